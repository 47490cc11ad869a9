/*
 * drift.go, part of emprep.
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

//Package drift simulates beam-induced motion: the displacement of the frame center along a
//movie, as a random walk whose step length and change of heading both decay exponentially
//with the frame number.
package drift

import (
	"math"
	"math/rand/v2"

	"github.com/rmera/emprep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

//Params are the envelopes of the random walk. Distances are in nm, angles in radians.
type Params struct {
	MaxStep       float64 //upper bound for the length of the first step
	DistanceDecay float64 //rate of the exponential applied to MaxStep at each step
	MaxAngle      float64 //half width of the interval for the first change of heading
	AngleDecay    float64 //rate of the exponential applied to MaxAngle at each step
}

//SetDefaults sets a first step of up to 1 nm, a first turn of up to pi/4, and
//decay rates of -0.1 and -0.4, respectively.
func (P *Params) SetDefaults() {
	P.MaxStep = 1
	P.DistanceDecay = -0.1
	P.MaxAngle = math.Pi / 4
	P.AngleDecay = -0.4
}

//Point is the position of the frame center, relative to the first frame.
type Point struct {
	X, Y float64
}

//Trajectory contains one Point per frame. The first one is always the origin.
type Trajectory []Point

//Reference returns the index of the frame motion correction aligns the others to: the middle one.
func (T Trajectory) Reference() int {
	return len(T) / 2
}

//Steps returns the distance travelled between each pair of consecutive frames.
func (T Trajectory) Steps() []float64 {
	if len(T) < 2 {
		return nil
	}
	ret := make([]float64, len(T)-1)
	for i := range ret {
		ret[i] = math.Hypot(T[i+1].X-T[i].X, T[i+1].Y-T[i].Y)
	}
	return ret
}

//Length returns the length of the whole path.
func (T Trajectory) Length() float64 {
	return floats.Sum(T.Steps())
}

//StepStats returns the mean and standard deviation of the step lengths. The deviation is 0
//when there are fewer than 2 steps.
func (T Trajectory) StepStats() (mean, std float64) {
	s := T.Steps()
	if len(s) < 2 {
		return floats.Sum(s), 0
	}
	return stat.MeanStdDev(s, nil)
}

//Scale returns a copy of T with every offset multiplied by f.
func (T Trajectory) Scale(f float64) Trajectory {
	ret := make(Trajectory, len(T))
	for i, v := range T {
		ret[i] = Point{v.X * f, v.Y * f}
	}
	return ret
}

//Generate returns a trajectory of n frames, drawing every random value from src. The heading of
//the first step is uniform in [0, 2pi). At step i (starting from 0) the heading changes by a uniform
//amount within MaxAngle*exp(AngleDecay*i) of the previous one, and the step length is uniform in
//[0, MaxStep*exp(DistanceDecay*i)). The signs of the decay rates are not checked.
//Generate keeps no state, so the same src state always gives the same trajectory.
func Generate(src rand.Source, n int, P *Params) (Trajectory, error) {
	if n <= 0 {
		return nil, emprep.NewInputError("frame count", float64(n), "must be positive", "drift.Generate")
	}
	if P == nil {
		P = new(Params)
		P.SetDefaults()
	}
	T := make(Trajectory, n)
	heading := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: src}.Rand()
	for i := 0; i < n-1; i++ {
		w := P.MaxAngle * math.Exp(P.AngleDecay*float64(i))
		heading = distuv.Uniform{Min: heading - w, Max: heading + w, Src: src}.Rand()
		dist := distuv.Uniform{Min: 0, Max: P.MaxStep * math.Exp(P.DistanceDecay*float64(i)), Src: src}.Rand()
		T[i+1] = Point{T[i].X + math.Cos(heading)*dist, T[i].Y + math.Sin(heading)*dist}
	}
	return T, nil
}
