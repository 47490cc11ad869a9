/*
 * dose.go, part of emprep.
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

package emprep

import (
	"fmt"
	"math"
)

//DoseSchedule contains the cumulative electron exposure (e/A^2) at the start of each frame of a
//movie. The first frame has received no dose.
type DoseSchedule []float64

//NewDoseSchedule fractionates total over frames frames: the n-th element is n*total/frames.
//The last element is thus total minus the dose of one frame.
func NewDoseSchedule(total float64, frames int) (DoseSchedule, error) {
	if frames <= 0 {
		return nil, NewInputError("frame count", float64(frames), "must be positive", "NewDoseSchedule")
	}
	if total < 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, NewInputError("total dose", total, "must be a finite, non-negative number", "NewDoseSchedule")
	}
	perframe := total / float64(frames)
	D := make(DoseSchedule, frames)
	for i := range D {
		D[i] = float64(i) * perframe
	}
	return D, nil
}

//Keys returns the DoseKey of each element of the schedule.
func (D DoseSchedule) Keys() []string {
	ret := make([]string, len(D))
	for i, v := range D {
		ret[i] = DoseKey(v)
	}
	return ret
}

//DoseKey encodes a cumulative dose with 3 decimal digits. Filtered volumes are stored and
//looked up by this key, so producer and consumer must both go through it.
func DoseKey(dose float64) string {
	return fmt.Sprintf("%5.3f", dose)
}
