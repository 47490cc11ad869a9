/*
 * deck.go, part of emprep.
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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

//Geometry error modes.
const (
	GeometryErrorsNone = "none"
	GeometryErrorsFile = "file"
)

//ParticleBlock describes one particle species of a deck: the map it is made of and the file
//with the position and orientation of every copy.
type ParticleBlock struct {
	Name        string
	Map         string  //MRC file with the real part of the potential
	VoxelSize   float64 //nm
	Randomize   bool
	Seed        int
	Coordinates string
}

//Deck is the input of one simulator run, which produces one frame of a movie. Every field is
//a slot of the deck; the constant parts of the deck are added by Encode.
type Deck struct {
	LogFile           string
	RandomSeed        int
	DosePerFrame      float64 //e/nm^2
	GeometryErrors    string  //GeometryErrorsNone or GeometryErrorsFile
	GeometryErrorFile string
	Magnification     float64
	Defocus           float64 //um
	PhaseShift        float64 //degrees
	DetectorX         int
	DetectorY         int
	DetectorPixelSize float64 //um
	ImageNoNoise      string
	ImageWithNoise    string
	Particles         []ParticleBlock
}

//Validate checks every slot of D, so that a deck that passes can always be encoded into a valid
//simulator input.
func (D *Deck) Validate() error {
	fail := func(format string, a ...any) error {
		return &Error{fmt.Sprintf(format, a...), "", []string{"Validate"}, true}
	}
	for _, v := range [][2]string{{"log_file", D.LogFile}, {"image_file_out (no noise)", D.ImageNoNoise}, {"image_file_out (noise)", D.ImageWithNoise}} {
		if strings.TrimSpace(v[1]) == "" {
			return fail("empty slot %s", v[0])
		}
	}
	if D.RandomSeed < 0 {
		return fail("negative random seed %d", D.RandomSeed)
	}
	if D.DosePerFrame < 0 {
		return fail("negative dose per frame %g", D.DosePerFrame)
	}
	switch D.GeometryErrors {
	case GeometryErrorsNone:
		if D.GeometryErrorFile != "" {
			return fail("geometry error file %s given, but geometry errors are disabled", D.GeometryErrorFile)
		}
	case GeometryErrorsFile:
		if D.GeometryErrorFile == "" {
			return fail("geometry errors read from file, but no file given")
		}
	default:
		return fail("invalid geometry error mode %q", D.GeometryErrors)
	}
	if !(D.Magnification > 0) {
		return fail("non-positive magnification %g", D.Magnification)
	}
	if !(D.DetectorPixelSize > 0) {
		return fail("non-positive detector pixel size %g", D.DetectorPixelSize)
	}
	if D.DetectorX <= 0 || D.DetectorY <= 0 {
		return fail("invalid detector size %d x %d", D.DetectorX, D.DetectorY)
	}
	if len(D.Particles) == 0 {
		return fail("no particles")
	}
	names := make(map[string]bool)
	for _, p := range D.Particles {
		if p.Name == "" || strings.ContainsAny(p.Name, " \t\n") {
			return fail("invalid particle name %q", p.Name)
		}
		if names[p.Name] {
			return fail("particle %s declared twice", p.Name)
		}
		names[p.Name] = true
		if p.Map == "" || p.Coordinates == "" {
			return fail("particle %s lacks its map or its coordinates", p.Name)
		}
		if !(p.VoxelSize > 0) {
			return fail("particle %s has a non-positive voxel size %g", p.Name, p.VoxelSize)
		}
		if p.Seed < 0 {
			return fail("particle %s has a negative seed %d", p.Name, p.Seed)
		}
	}
	return nil
}

func yesno(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

//deckWriter writes the "=== section ===" and "key = value" lines of a deck.
type deckWriter struct {
	*bufio.Writer
}

func (w deckWriter) section(name string) {
	fmt.Fprintf(w, "\n=== %s ===\n\n", name)
}

func (w deckWriter) slot(key string, value any) {
	fmt.Fprintf(w, "%-43s = %v\n", key, value)
}

func (w deckWriter) detector(D *Deck, quantize bool, out string) {
	w.section("detector")
	w.slot("det_pix_x", D.DetectorX)
	w.slot("det_pix_y", D.DetectorY)
	w.slot("padding", 50)
	w.slot("pixel_size", ftoa(D.DetectorPixelSize))
	w.slot("gain", 1)
	w.slot("use_quantization", yesno(quantize))
	w.slot("dqe", 1)
	w.slot("mtf_a", 0)
	w.slot("mtf_b", 0)
	w.slot("mtf_c", 1)
	w.slot("mtf_alpha", 0)
	w.slot("mtf_beta", 0)
	w.slot("image_file_out", out)
}

//Encode validates D and writes it as a TEM-Simulator input file. Values that are not slots of
//Deck (acceleration voltage, lens aberrations, sample geometry, detector response) are the same
//for every deck.
func (D *Deck) Encode(out io.Writer) error {
	if err := D.Validate(); err != nil {
		return errDecorate(err, "Encode")
	}
	w := deckWriter{bufio.NewWriter(out)}
	w.section("simulation")
	w.slot("generate_micrographs", "yes")
	w.slot("log_file", D.LogFile)
	w.slot("rand_seed", D.RandomSeed)

	w.section("sample")
	w.slot("diameter", 100000)
	w.slot("thickness_center", 50)
	w.slot("thickness_edge", 50)

	w.section("electronbeam")
	w.slot("acc_voltage", 300)
	w.slot("energy_spread", 0.7)
	w.slot("gen_dose", "yes")
	w.slot("total_dose", ftoa(D.DosePerFrame))
	w.slot("dose_sd", 0)

	w.section("geometry")
	w.slot("gen_tilt_data", "yes")
	w.slot("ntilts", 1)
	w.slot("theta_start", 0)
	w.slot("theta_incr", 0)
	w.slot("geom_errors", D.GeometryErrors)
	errfile := D.GeometryErrorFile
	if errfile == "" {
		errfile = "none"
	}
	w.slot("error_file_in", errfile)

	w.section("optics")
	w.slot("magnification", ftoa(D.Magnification))
	w.slot("cs", 2.62)
	w.slot("cc", 2.62)
	w.slot("aperture", 100)
	w.slot("focal_length", 3.5)
	w.slot("cond_ap_angle", 0.03)
	w.slot("gen_defocus", "yes")
	w.slot("defocus_nominal", ftoa(D.Defocus))
	w.slot("phase_shift", ftoa(D.PhaseShift))
	w.slot("phase_plate_spot", "0.050000")

	w.detector(D, false, D.ImageNoNoise)
	w.detector(D, true, D.ImageWithNoise)

	for _, p := range D.Particles {
		w.section("particle " + p.Name)
		w.slot("source", "map")
		w.slot("map_file_re_in", p.Map)
		w.slot("voxel_size", ftoa(p.VoxelSize))
		w.slot("use_imag_pot", "no")
		w.slot("famp", 0.1)
		w.slot("randomize_particle", yesno(p.Randomize))
		w.slot("rand_seed_particle", p.Seed)

		w.section("particleset")
		w.slot("particle_type", p.Name)
		w.slot("particle_coords", "file")
		w.slot("coord_file_in", p.Coordinates)
	}
	if err := w.Flush(); err != nil {
		return &Error{err.Error(), "", []string{"Encode"}, true}
	}
	return nil
}

//GeometryError is the displacement of the whole frame, in nm, that the simulator applies
//when geometry errors are read from a file.
type GeometryError struct {
	X, Y float64
}

//Encode writes E as a simulator geometry error file for a single tilt.
func (E GeometryError) Encode(out io.Writer) error {
	_, err := fmt.Fprintf(out, "1  5\n#            rho             alpha             tau           x         y\n             0               0                 0             %s      %s\n", ftoa(E.X), ftoa(E.Y))
	if err != nil {
		return &Error{err.Error(), "", []string{"GeometryError.Encode"}, true}
	}
	return nil
}
