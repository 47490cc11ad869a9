/*
 * report.go, part of emprep.
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
	"io"

	"github.com/rmera/emprep"
	"gopkg.in/yaml.v3"
)

//Report summarizes a run. It is written as YAML next to the output particle table.
type Report struct {
	RunID        string          `yaml:"run_id"`
	Particles    string          `yaml:"particles"`
	Maps         string          `yaml:"maps"`
	Dose         float64         `yaml:"dose"`
	Frames       int             `yaml:"frames"`
	Schedule     []string        `yaml:"schedule"`
	Drift        bool            `yaml:"drift"`
	Collision    emprep.Policy   `yaml:"collision"`
	Micrographs  []string        `yaml:"micrographs"`
	Failures     []FailureReport `yaml:"failures,omitempty"`
	Decks        int             `yaml:"decks"`
	OutParticles int             `yaml:"output_particles"`
	Table        string          `yaml:"table"`
	Elapsed      string          `yaml:"elapsed"`
}

//FailureReport is a Failure as written in a Report.
type FailureReport struct {
	Micrograph string `yaml:"micrograph"`
	State      State  `yaml:"state"`
	Error      string `yaml:"error"`
}

//Encode writes R as YAML.
func (R *Report) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(R); err != nil {
		return &Error{"encoding report: " + err.Error(), "", []string{"Report.Encode"}, true}
	}
	if err := enc.Close(); err != nil {
		return &Error{"encoding report: " + err.Error(), "", []string{"Report.Encode"}, true}
	}
	return nil
}

//DecodeReport reads a report written by Report.Encode.
func DecodeReport(r io.Reader) (*Report, error) {
	R := new(Report)
	if err := yaml.NewDecoder(r).Decode(R); err != nil {
		return nil, &Error{"decoding report: " + err.Error(), "", []string{"DecodeReport"}, true}
	}
	return R, nil
}

func (Gen *Generator) report(R *Result) *Report {
	C := Gen.C
	rep := &Report{
		RunID:        R.RunID,
		Particles:    C.Particles,
		Maps:         C.Maps,
		Dose:         C.Dose,
		Frames:       C.Frames,
		Schedule:     R.Schedule.Keys(),
		Drift:        C.Drift.Enabled,
		Collision:    C.Collision,
		Micrographs:  R.Micrographs,
		Decks:        R.Decks,
		OutParticles: R.Particles,
		Table:        R.Table,
		Elapsed:      R.Elapsed.String(),
	}
	for _, F := range R.Failures {
		rep.Failures = append(rep.Failures, FailureReport{F.Micrograph, F.State, F.Err.Error()})
	}
	return rep
}
