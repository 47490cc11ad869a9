/*
 * coord.go, part of emprep.
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

//Package coord moves particles between the detector frame used in STAR tables (pixels, origin
//at the corner of the image, RELION Euler angles) and the frame of the simulator (nm, origin at
//the center of the image, TEM-Simulator Euler angles).
package coord

import (
	"github.com/rmera/emprep"
	v3 "github.com/rmera/emprep/v3"
)

//Transformer maps detector pixels to physical coordinates for one detector geometry.
type Transformer struct {
	PixelSize float64 //nm per pixel at the specimen
	Width     int     //detector size in pixels
	Height    int
}

//New returns a Transformer for a pixel size in nm and a detector of width x height pixels.
func New(pixelSize float64, width, height int) (*Transformer, error) {
	if !(pixelSize > 0) {
		return nil, emprep.NewInputError("pixel size", pixelSize, "must be positive", "coord.New")
	}
	if width <= 0 || height <= 0 {
		return nil, emprep.NewError("detector dimensions must be positive", "coord.New")
	}
	return &Transformer{PixelSize: pixelSize, Width: width, Height: height}, nil
}

//ForGroup returns the Transformer for the micrograph G, which must be resolved, on a detector
//of width x height pixels.
func ForGroup(G *emprep.MicrographGroup, width, height int) (*Transformer, error) {
	if !G.Resolved() {
		return nil, emprep.NewError("micrograph "+G.Name+" has not been resolved", "coord.ForGroup")
	}
	return New(G.PixelSize()/10, width, height) //A to nm
}

func (C *Transformer) center() (float64, float64) {
	return float64(C.Width) / 2, float64(C.Height) / 2
}

//ToPhysical converts pixel coordinates to nm from the center of the detector.
func (C *Transformer) ToPhysical(px, py float64) (x, y float64) {
	cx, cy := C.center()
	return (px - cx) * C.PixelSize, (py - cy) * C.PixelSize
}

//ToPixel is the inverse of ToPhysical.
func (C *Transformer) ToPixel(x, y float64) (px, py float64) {
	cx, cy := C.center()
	return x/C.PixelSize + cx, y/C.PixelSize + cy
}

//LengthToPixels converts a length, or a displacement, in nm to pixels.
func (C *Transformer) LengthToPixels(l float64) float64 {
	return l / C.PixelSize
}

//PositionsToPhysical converts a matrix of pixel positions, one particle per row, to nm.
//The z column is left unchanged.
func (C *Transformer) PositionsToPhysical(P *v3.Matrix) *v3.Matrix {
	cx, cy := C.center()
	center, _ := v3.NewMatrix([]float64{cx, cy, 0})
	scale, _ := v3.NewMatrix([]float64{C.PixelSize, C.PixelSize, 1})
	ret := v3.Zeros(P.NVecs())
	ret.SubVec(P, center)
	ret.ScaleByVec(ret, scale)
	return ret
}

//PositionsToPixel is the inverse of PositionsToPhysical.
func (C *Transformer) PositionsToPixel(P *v3.Matrix) *v3.Matrix {
	cx, cy := C.center()
	center, _ := v3.NewMatrix([]float64{cx, cy, 0})
	scale, _ := v3.NewMatrix([]float64{1 / C.PixelSize, 1 / C.PixelSize, 1})
	ret := v3.Zeros(P.NVecs())
	ret.ScaleByVec(P, scale)
	ret.AddVec(ret, center)
	return ret
}

//RelionToSimulator maps RELION Euler angles to the TEM-Simulator convention:
//phi = -rot, theta = -tilt, psi = -psi. Angles are in degrees.
func RelionToSimulator(rot, tilt, psi float64) (phi, theta, spsi float64) {
	return -rot, -tilt, -psi
}

//SimulatorToRelion is the inverse of RelionToSimulator: rot = -phi, tilt = -theta, psi = -psi.
func SimulatorToRelion(phi, theta, psi float64) (rot, tilt, rpsi float64) {
	return -phi, -theta, -psi
}

//AnglesToSimulator applies RelionToSimulator to a matrix with one (rot, tilt, psi) row per
//particle, and returns the (phi, theta, psi) matrix.
func AnglesToSimulator(A *v3.Matrix) *v3.Matrix {
	ret := v3.Zeros(A.NVecs())
	ret.Scale(-1, A)
	return ret
}

//AnglesToRelion is the inverse of AnglesToSimulator.
func AnglesToRelion(A *v3.Matrix) *v3.Matrix {
	ret := v3.Zeros(A.NVecs())
	ret.Scale(-1, A)
	return ret
}

//Group returns the pixel positions (z=0) and the RELION angles of the particles in G, one row
//per particle, in the order of G.Records. G must have at least one particle.
func Group(G *emprep.MicrographGroup) (pos, angles *v3.Matrix) {
	n := len(G.Records)
	pos, angles = v3.Zeros(n), v3.Zeros(n)
	for i, r := range G.Records {
		pos.Set(i, 0, r.X)
		pos.Set(i, 1, r.Y)
		angles.Set(i, 0, r.Rot)
		angles.Set(i, 1, r.Tilt)
		angles.Set(i, 2, r.Psi)
	}
	return pos, angles
}
