/*
 * volume.go, part of emprep.
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

	"gonum.org/v1/gonum/floats"
)

//Volume is a real-valued N-dimensional array stored row-major, with the slowest axis first.
//Density maps are (z, y, x).
type Volume struct {
	Shape []int
	Data  []float64
}

//NewVolume returns a zero-filled volume with the given shape.
func NewVolume(shape ...int) *Volume {
	n := 1
	for _, v := range shape {
		if v <= 0 {
			panic(fmt.Sprintf("emprep: invalid volume shape %v", shape))
		}
		n *= v
	}
	return &Volume{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

//Len returns the number of elements in the volume.
func (V *Volume) Len() int {
	return len(V.Data)
}

//Strides returns the number of elements between consecutive indexes along each axis.
func (V *Volume) Strides() []int {
	s := make([]int, len(V.Shape))
	acc := 1
	for i := len(V.Shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= V.Shape[i]
	}
	return s
}

func (V *Volume) offset(idx []int) int {
	if len(idx) != len(V.Shape) {
		panic(fmt.Sprintf("emprep: %d indexes for a %d-dimensional volume", len(idx), len(V.Shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= V.Shape[i] {
			panic(fmt.Sprintf("emprep: index %v out of range for shape %v", idx, V.Shape))
		}
		off = off*V.Shape[i] + v
	}
	return off
}

//At returns the value at the given indexes.
func (V *Volume) At(idx ...int) float64 {
	return V.Data[V.offset(idx)]
}

//Set puts v at the given indexes.
func (V *Volume) Set(v float64, idx ...int) {
	V.Data[V.offset(idx)] = v
}

//Copy returns a deep copy of V.
func (V *Volume) Copy() *Volume {
	return &Volume{Shape: append([]int(nil), V.Shape...), Data: append([]float64(nil), V.Data...)}
}

//Min returns the smallest value in the volume.
func (V *Volume) Min() float64 {
	return floats.Min(V.Data)
}

//Max returns the largest value in the volume.
func (V *Volume) Max() float64 {
	return floats.Max(V.Data)
}

//SameShape returns true if V and W have identical shapes.
func (V *Volume) SameShape(W *Volume) bool {
	if len(V.Shape) != len(W.Shape) {
		return false
	}
	for i, v := range V.Shape {
		if W.Shape[i] != v {
			return false
		}
	}
	return true
}

//Pad returns a new volume with margin elements of value fill added on both sides of every axis.
func (V *Volume) Pad(margin int, fill float64) *Volume {
	shape := make([]int, len(V.Shape))
	for i, v := range V.Shape {
		shape[i] = v + 2*margin
	}
	P := NewVolume(shape...)
	if fill != 0 {
		for i := range P.Data {
			P.Data[i] = fill
		}
	}
	pstrides := P.Strides()
	base := 0
	for _, s := range pstrides {
		base += margin * s
	}
	eachIndex(V.Shape, func(src int, idx []int) {
		dst := base
		for i, v := range idx {
			dst += v * pstrides[i]
		}
		P.Data[dst] = V.Data[src]
	})
	return P
}

//Crop is the inverse of Pad: it returns a new volume without margin elements on both sides of every axis.
func (V *Volume) Crop(margin int) *Volume {
	shape := make([]int, len(V.Shape))
	for i, v := range V.Shape {
		shape[i] = v - 2*margin
	}
	C := NewVolume(shape...)
	vstrides := V.Strides()
	base := 0
	for _, s := range vstrides {
		base += margin * s
	}
	eachIndex(C.Shape, func(dst int, idx []int) {
		src := base
		for i, v := range idx {
			src += v * vstrides[i]
		}
		C.Data[dst] = V.Data[src]
	})
	return C
}

//eachIndex calls f for every element of an array of the given shape, in row-major order,
//with the flat offset and the N-D index of the element. idx is reused between calls.
func eachIndex(shape []int, f func(off int, idx []int)) {
	n := 1
	for _, v := range shape {
		n *= v
	}
	idx := make([]int, len(shape))
	for off := 0; off < n; off++ {
		f(off, idx)
		for a := len(idx) - 1; a >= 0; a-- {
			idx[a]++
			if idx[a] < shape[a] {
				break
			}
			idx[a] = 0
		}
	}
}

//FlatNoise returns a single-slice volume of constant value level with ny rows and nx columns,
//surrounded by one voxel of zeros on every side. The simulator uses it as a structural-noise
//component.
func FlatNoise(level float64, nx, ny int) *Volume {
	V := NewVolume(1, ny, nx)
	for i := range V.Data {
		V.Data[i] = level
	}
	return V.Pad(1, 0)
}
