/*
 * damage.go, part of emprep.
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

//Package damage models the loss of high-resolution signal caused by the electron dose a specimen
//receives during a movie exposure. Density maps are attenuated in Fourier space with the exposure
//curve measured by Grant & Grigorieff (eLife 2015;4:e06980), one filtered map per cumulative dose.
package damage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/rmera/emprep"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
)

//Constants of the critical exposure curve Nc(k) = a*k^b + c (k in 1/A, Nc in e/A^2).
//They come from the fit to the rotavirus VP6 data and must not be changed.
const (
	critA = 0.245
	critB = -1.665
	critC = 2.81
)

//Attenuation returns the fraction of the amplitude left at spatial frequency k (1/A) after a
//cumulative exposure of dose e/A^2. The zero frequency is never attenuated.
func Attenuation(k, dose float64) float64 {
	if k == 0 {
		return 1
	}
	return math.Exp(-dose / (2 * (critA*math.Pow(k, critB) + critC)))
}

//Frequencies returns, for an array of the given shape, the magnitude of the spatial frequency of
//each Fourier coefficient in cycles per sample (Nyquist is 0.5), laid out like the transform.
func Frequencies(shape ...int) *emprep.Volume {
	F := emprep.NewVolume(shape...)
	axes := make([][]float64, len(shape))
	for a, n := range shape {
		plan := fourier.NewCmplxFFT(n)
		axes[a] = make([]float64, n)
		for i := range axes[a] {
			axes[a][i] = plan.Freq(i)
		}
	}
	idx := make([]int, len(shape))
	for off := range F.Data {
		var sq float64
		for a, v := range idx {
			f := axes[a][v]
			sq += f * f
		}
		F.Data[off] = math.Sqrt(sq)
		for a := len(idx) - 1; a >= 0; a-- {
			idx[a]++
			if idx[a] < shape[a] {
				break
			}
			idx[a] = 0
		}
	}
	return F
}

//Options control the preprocessing of the map and the execution of the filter.
type Options struct {
	Factor      float64 //the map (minus its minimum) is divided by this to match the contrast of real particles
	Margin      int     //zeros added on every side before the transform, to avoid wraparound
	KeepPadding bool    //if true, the filtered maps keep the padding margin
	Workers     int     //maximum number of doses filtered at the same time
	Logger      *slog.Logger
}

//SetDefaults sets a factor of 1, a margin of 10 voxels and one worker per CPU.
func (O *Options) SetDefaults() {
	O.Factor = 1
	O.Margin = 10
	O.KeepPadding = false
	O.Workers = runtime.GOMAXPROCS(0)
}

//Filter holds the Fourier transform of a preprocessed map, and produces attenuated copies of it.
//After NewFilter, Apply can be called concurrently.
type Filter struct {
	O          Options
	shape      []int //padded shape
	background float64
	spectrum   []complex128
	freq       []float64 //physical frequency of each coefficient, 1/A
	logger     *slog.Logger
}

//NewFilter preprocesses V (minimum subtracted, divided by the factor, zero-padded), transforms it,
//and builds the map of physical frequencies for a voxel size voxelSize in A.
//A nil O means default options.
func NewFilter(V *emprep.Volume, voxelSize float64, O *Options) (*Filter, error) {
	if !(voxelSize > 0) || math.IsInf(voxelSize, 0) {
		return nil, emprep.NewInputError("voxel size", voxelSize, "must be positive", "NewFilter")
	}
	F := new(Filter)
	if O == nil {
		F.O.SetDefaults()
	} else {
		F.O = *O
	}
	if !(F.O.Factor > 0) {
		return nil, emprep.NewInputError("intensity factor", F.O.Factor, "must be positive", "NewFilter")
	}
	if F.O.Margin < 0 {
		return nil, emprep.NewInputError("padding margin", float64(F.O.Margin), "must not be negative", "NewFilter")
	}
	if F.O.Workers <= 0 {
		F.O.Workers = 1
	}
	F.logger = F.O.Logger
	if F.logger == nil {
		F.logger = slog.Default()
	}
	F.background = V.Min()
	work := V.Copy()
	for i, v := range work.Data {
		work.Data[i] = (v - F.background) / F.O.Factor
	}
	padded := work.Pad(F.O.Margin, 0)
	F.shape = padded.Shape
	F.spectrum = make([]complex128, padded.Len())
	for i, v := range padded.Data {
		F.spectrum[i] = complex(v, 0)
	}
	newNDFFT(F.shape).Forward(F.spectrum)
	freq := Frequencies(F.shape...)
	F.freq = freq.Data
	for i := range F.freq {
		F.freq[i] /= voxelSize
	}
	return F, nil
}

//Background returns the minimum of the original map, which is added back to every filtered map.
func (F *Filter) Background() float64 {
	return F.background
}

//Apply returns the map attenuated for a cumulative exposure of dose e/A^2.
func (F *Filter) Apply(dose float64) (*emprep.Volume, error) {
	if dose < 0 || math.IsNaN(dose) {
		return nil, emprep.NewInputError("dose", dose, "must not be negative", "Apply")
	}
	buf := make([]complex128, len(F.spectrum))
	for i, v := range F.spectrum {
		buf[i] = v * complex(Attenuation(F.freq[i], dose), 0)
	}
	newNDFFT(F.shape).Inverse(buf)
	out := emprep.NewVolume(F.shape...)
	for i, v := range buf {
		out.Data[i] = real(v) + F.background
	}
	if F.O.KeepPadding || F.O.Margin == 0 {
		return out, nil
	}
	return out.Crop(F.O.Margin), nil
}

//Schedule filters the map once per distinct DoseKey of D, running up to O.Workers doses at the same
//time, and passes each result to emit, which must be safe for concurrent use. The first error
//stops the remaining work and is returned.
func (F *Filter) Schedule(ctx context.Context, D emprep.DoseSchedule, emit func(dose float64, key string, V *emprep.Volume) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(F.O.Workers)
	seen := make(map[string]bool)
	for _, dose := range D {
		key := emprep.DoseKey(dose)
		if seen[key] {
			continue
		}
		seen[key] = true
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			V, err := F.Apply(dose)
			if err != nil {
				return emprep.ErrDecorate(err, "Schedule")
			}
			if err = emit(dose, key, V); err != nil {
				return fmt.Errorf("damage: storing map for dose %s: %w", key, err)
			}
			F.logger.Info("created damage filtered map", "dose", key, "shape", fmt.Sprint(V.Shape))
			return nil
		})
	}
	return g.Wait()
}

//Apply is a shortcut to filter a single map at a single dose.
func Apply(V *emprep.Volume, voxelSize, dose float64, O *Options) (*emprep.Volume, error) {
	F, err := NewFilter(V, voxelSize, O)
	if err != nil {
		return nil, err
	}
	return F.Apply(dose)
}
