/*
 * particle.go, part of emprep.
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

	"github.com/rmera/emprep/star"
	"gonum.org/v1/gonum/floats/scalar"
)

//RequiredColumns lists the STAR columns a particle table must have to build simulation inputs.
var RequiredColumns = []string{
	star.MicrographName,
	star.CoordinateX,
	star.CoordinateY,
	star.AngleRot,
	star.AngleTilt,
	star.AnglePsi,
	star.DefocusU,
	star.DefocusV,
	star.Magnification,
	star.DetectorPixelSize,
}

//ParticleRecord is one particle of a STAR table. Coordinates are in detector pixels, angles in degrees
//(RELION convention), defocus in A and the detector pixel size in um.
type ParticleRecord struct {
	Row               int //index of the record in the source table
	Micrograph        string
	X, Y              float64
	Rot, Tilt, Psi    float64
	DefocusU          float64
	DefocusV          float64
	DefocusAngle      float64
	PhaseShift        float64
	Magnification     float64
	DetectorPixelSize float64
	OriginX, OriginY  float64
	ID                int
}

//ReadRecords parses every row of T into a ParticleRecord. A missing required column or an
//unparseable number is an error for the whole table.
func ReadRecords(T *star.Table) ([]ParticleRecord, error) {
	for _, c := range RequiredColumns {
		if !T.Has(c) {
			return nil, NewError(fmt.Sprintf("particle table lacks the required column %s", c), "ReadRecords")
		}
	}
	ret := make([]ParticleRecord, T.Len())
	for i := range ret {
		r := &ret[i]
		r.Row = i
		r.Micrograph, _ = T.Value(i, star.MicrographName)
		fields := []struct {
			name string
			dst  *float64
		}{
			{star.CoordinateX, &r.X},
			{star.CoordinateY, &r.Y},
			{star.AngleRot, &r.Rot},
			{star.AngleTilt, &r.Tilt},
			{star.AnglePsi, &r.Psi},
			{star.DefocusU, &r.DefocusU},
			{star.DefocusV, &r.DefocusV},
			{star.DefocusAngle, &r.DefocusAngle},
			{star.PhaseShift, &r.PhaseShift},
			{star.Magnification, &r.Magnification},
			{star.DetectorPixelSize, &r.DetectorPixelSize},
			{star.OriginX, &r.OriginX},
			{star.OriginY, &r.OriginY},
		}
		var err error
		for _, f := range fields {
			if !T.Has(f.name) {
				continue //optional, as the required ones were checked.
			}
			if *f.dst, err = T.Float(i, f.name); err != nil {
				return nil, ErrDecorate(err, "ReadRecords")
			}
		}
		r.ID = i
		if T.Has(star.ParticleID) {
			id, err := T.Float(i, star.ParticleID)
			if err != nil {
				return nil, ErrDecorate(err, "ReadRecords")
			}
			r.ID = int(id)
		}
	}
	return ret, nil
}

//MicrographGroup contains all the particles that share a micrograph. The per-micrograph
//scalars are only valid after a successful call to Resolve.
type MicrographGroup struct {
	Name          string
	Records       []ParticleRecord
	HasPhaseShift bool //whether the source table has a phase shift column

	Defocus           float64 //um, average of DefocusU and DefocusV
	PhaseShift        float64 //degrees
	Magnification     float64
	DetectorPixelSize float64 //um
	resolved          bool
}

//GroupByMicrograph reads the records of T and groups them by micrograph name, keeping the
//order in which each name first appears in the table.
func GroupByMicrograph(T *star.Table) ([]*MicrographGroup, error) {
	recs, err := ReadRecords(T)
	if err != nil {
		return nil, ErrDecorate(err, "GroupByMicrograph")
	}
	ps := T.Has(star.PhaseShift)
	index := make(map[string]*MicrographGroup)
	ret := make([]*MicrographGroup, 0)
	for _, r := range recs {
		G, ok := index[r.Micrograph]
		if !ok {
			G = &MicrographGroup{Name: r.Micrograph, HasPhaseShift: ps}
			index[r.Micrograph] = G
			ret = append(ret, G)
		}
		G.Records = append(G.Records, r)
	}
	return ret, nil
}

//Rows returns the indexes of the group's records in the source table.
func (G *MicrographGroup) Rows() []int {
	ret := make([]int, len(G.Records))
	for i, v := range G.Records {
		ret[i] = v.Row
	}
	return ret
}

//uniform returns the value of the field extracted by f if it is the same for all records
//of the group, or an IntegrityError.
func (G *MicrographGroup) uniform(field string, f func(r *ParticleRecord) float64) (float64, error) {
	first := f(&G.Records[0])
	for i := range G.Records[1:] {
		v := f(&G.Records[i+1])
		if !scalar.EqualWithinAbsOrRel(first, v, 1e-9, 1e-9) {
			e := &IntegrityError{Micrograph: G.Name, Field: field, Values: []float64{first, v}}
			e.Decorate("Resolve")
			return 0, e
		}
	}
	return first, nil
}

//Resolve checks that the optical and detector parameters are uniform across the group
//and sets the group's scalars. It returns an IntegrityError otherwise.
func (G *MicrographGroup) Resolve() error {
	if len(G.Records) == 0 {
		return NewError("micrograph "+G.Name+" has no particles", "Resolve")
	}
	du, err := G.uniform(star.DefocusU, func(r *ParticleRecord) float64 { return r.DefocusU })
	if err != nil {
		return err
	}
	dv, err := G.uniform(star.DefocusV, func(r *ParticleRecord) float64 { return r.DefocusV })
	if err != nil {
		return err
	}
	G.Defocus = (du + dv) / 2e4 //A to um
	if G.HasPhaseShift {
		if G.PhaseShift, err = G.uniform(star.PhaseShift, func(r *ParticleRecord) float64 { return r.PhaseShift }); err != nil {
			return err
		}
	}
	if G.Magnification, err = G.uniform(star.Magnification, func(r *ParticleRecord) float64 { return r.Magnification }); err != nil {
		return err
	}
	if G.DetectorPixelSize, err = G.uniform(star.DetectorPixelSize, func(r *ParticleRecord) float64 { return r.DetectorPixelSize }); err != nil {
		return err
	}
	if G.Magnification <= 0 {
		return NewInputError("magnification", G.Magnification, "must be positive", "Resolve")
	}
	if G.DetectorPixelSize <= 0 {
		return NewInputError("detector pixel size", G.DetectorPixelSize, "must be positive", "Resolve")
	}
	G.resolved = true
	return nil
}

//Resolved returns true if Resolve succeeded on the group.
func (G *MicrographGroup) Resolved() bool {
	return G.resolved
}

//PixelSize returns the pixel size of the micrograph at the specimen, in A.
func (G *MicrographGroup) PixelSize() float64 {
	return G.DetectorPixelSize / G.Magnification * 1e4
}
