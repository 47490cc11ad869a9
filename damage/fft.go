/*
 * fft.go, part of emprep.
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

package damage

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

//ndFFT applies 1D complex FFTs along each axis of a row-major N-D array. It keeps
//one plan per axis, so it must not be shared between goroutines.
type ndFFT struct {
	shape   []int
	strides []int
	total   int
	plans   []*fourier.CmplxFFT
	line    []complex128
}

func newNDFFT(shape []int) *ndFFT {
	F := new(ndFFT)
	F.shape = append([]int(nil), shape...)
	F.strides = make([]int, len(shape))
	F.plans = make([]*fourier.CmplxFFT, len(shape))
	acc := 1
	longest := 0
	for i := len(shape) - 1; i >= 0; i-- {
		F.strides[i] = acc
		acc *= shape[i]
		F.plans[i] = fourier.NewCmplxFFT(shape[i])
		if shape[i] > longest {
			longest = shape[i]
		}
	}
	F.total = acc
	F.line = make([]complex128, longest)
	return F
}

//Forward replaces data by its discrete Fourier transform.
func (F *ndFFT) Forward(data []complex128) {
	for a := range F.shape {
		F.axis(data, a, false)
	}
}

//Inverse replaces data by its inverse discrete Fourier transform, normalized so
//Inverse(Forward(x))==x.
func (F *ndFFT) Inverse(data []complex128) {
	for a := range F.shape {
		F.axis(data, a, true)
	}
	scale := complex(1/float64(F.total), 0)
	for i := range data {
		data[i] *= scale
	}
}

//axis transforms every line of data that runs along axis a.
func (F *ndFFT) axis(data []complex128, a int, inverse bool) {
	n := F.shape[a]
	if n == 1 {
		return //the transform of a single element is itself.
	}
	stride := F.strides[a]
	outer := F.total / (n * stride)
	line := F.line[:n]
	plan := F.plans[a]
	for o := 0; o < outer; o++ {
		for i := 0; i < stride; i++ {
			start := o*n*stride + i
			for k := range line {
				line[k] = data[start+k*stride]
			}
			if inverse {
				plan.Sequence(line, line)
			} else {
				plan.Coefficients(line, line)
			}
			for k, v := range line {
				data[start+k*stride] = v
			}
		}
	}
}
