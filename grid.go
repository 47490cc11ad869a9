/*
 * grid.go, part of emprep.
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
	"math/rand/v2"
	"strconv"

	"github.com/rmera/emprep/star"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

//GridOptions describes a synthetic particle table: each micrograph holds a regular grid of
//particles centered on the detector, with random orientations.
type GridOptions struct {
	Micrographs int
	Rows, Cols  int     //particles per row and per column
	Spacing     float64 //distance between particle centers, nm
	Apix        float64 //pixel size of the output micrograph, A
	DetX, DetY  int     //detector size in pixels

	Defocus    [2]float64 //um, uniform per micrograph
	PhaseShift [2]float64 //degrees, linearly spaced over the micrographs
	Rot        [2]float64
	Tilt       [2]float64
	Psi        [2]float64
}

//SetDefaults sets a 2x2 grid 10 nm apart on one micrograph of the default detector.
func (O *GridOptions) SetDefaults() {
	O.Micrographs = 1
	O.Rows, O.Cols = 2, 2
	O.Spacing = 10
	O.Apix = 1
	O.DetX, O.DetY = 3838, 3710
	O.Defocus = [2]float64{0, 1}
	O.PhaseShift = [2]float64{36, 144}
	O.Rot = [2]float64{0, 360}
	O.Tilt = [2]float64{0, 360}
	O.Psi = [2]float64{-180, 180}
}

//gridAxis returns n positions spaced by spacing and centered on zero.
func gridAxis(n int, spacing float64) []float64 {
	half := float64(n-1) * spacing / 2
	ret := make([]float64, n)
	if n == 1 {
		return ret
	}
	return floats.Span(ret, -half, half)
}

//GridParticles builds a STAR particle table as described by O, drawing the random values from src.
func GridParticles(O *GridOptions, src rand.Source) (*star.Table, error) {
	if O.Micrographs <= 0 || O.Rows <= 0 || O.Cols <= 0 {
		return nil, NewError(fmt.Sprintf("invalid grid %d micrographs of %dx%d particles", O.Micrographs, O.Rows, O.Cols), "GridParticles")
	}
	if O.Apix <= 0 {
		return nil, NewInputError("pixel size", O.Apix, "must be positive", "GridParticles")
	}
	T := star.New(star.CoordinateX, star.CoordinateY, star.AnglePsi, star.AngleTilt, star.AngleRot,
		star.DefocusU, star.DefocusV, star.DefocusAngle, star.PhaseShift, star.Magnification,
		star.DetectorPixelSize, star.MicrographName)
	uni := func(r [2]float64) distuv.Uniform { return distuv.Uniform{Min: r[0], Max: r[1], Src: src} }
	defocus := uni(O.Defocus)
	rot, tilt, psi := uni(O.Rot), uni(O.Tilt), uni(O.Psi)
	ps := make([]float64, O.Micrographs)
	if O.Micrographs > 1 {
		floats.Span(ps, O.PhaseShift[0], O.PhaseShift[1])
	} else {
		ps[0] = O.PhaseShift[0]
	}
	xs := gridAxis(O.Cols, O.Spacing)
	ys := gridAxis(O.Rows, O.Spacing)
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for m := 0; m < O.Micrographs; m++ {
		df := f(defocus.Rand() * 1e4) //um to A
		name := fmt.Sprintf("micrograph_%03d.mrc", m)
		for _, x := range xs {
			for _, y := range ys {
				px := math.Round(x*10/O.Apix + float64(O.DetX/2))
				py := math.Round(y*10/O.Apix + float64(O.DetY/2))
				T.Rows = append(T.Rows, []string{
					f(px), f(py), f(psi.Rand()), f(tilt.Rand()), f(rot.Rand()),
					df, df, "0", f(ps[m]), "10000", f(O.Apix), name,
				})
			}
		}
	}
	return T, nil
}
