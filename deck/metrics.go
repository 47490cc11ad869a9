/*
 * metrics.go, part of emprep.
 *
 * Copyright 2012 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package deck

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

//Metrics counts the work of a Generator. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Micrographs *prometheus.CounterVec //by status: ok, rejected (before processing), failed
	Decks       prometheus.Counter
	Duration    prometheus.Histogram //seconds spent on each processed micrograph
}

//NewMetrics creates the collectors and registers them with reg, unless reg is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	M := &Metrics{
		Micrographs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emprep",
			Subsystem: "deck",
			Name:      "micrographs_total",
			Help:      "Micrographs handled by the deck generator, by status.",
		}, []string{"status"}),
		Decks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emprep",
			Subsystem: "deck",
			Name:      "decks_written_total",
			Help:      "Simulator input decks written.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emprep",
			Subsystem: "deck",
			Name:      "micrograph_seconds",
			Help:      "Time spent rendering the artifacts of one micrograph.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	if reg == nil {
		return M, nil
	}
	for _, c := range []prometheus.Collector{M.Micrographs, M.Decks, M.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, &Error{"registering metrics: " + err.Error(), "", []string{"NewMetrics"}, true}
		}
	}
	return M, nil
}

func (M *Metrics) processed(o outcome, d time.Duration) {
	if M == nil {
		return
	}
	M.Duration.Observe(d.Seconds())
	if o.err != nil {
		M.Micrographs.WithLabelValues("failed").Inc() //its decks were removed
		return
	}
	M.Micrographs.WithLabelValues("ok").Inc()
	M.Decks.Add(float64(o.decks))
}

func (M *Metrics) rejected() {
	if M == nil {
		return
	}
	M.Micrographs.WithLabelValues("rejected").Inc()
}
