/*
 * config.go, part of emprep.
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
	"fmt"
	"math"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rmera/emprep"
	"github.com/rmera/emprep/drift"
)

//DriftConfig controls the simulation of beam-induced motion.
type DriftConfig struct {
	Enabled       bool    `toml:"enabled"`
	MaxStep       float64 `toml:"max_step"`       //nm
	DistanceDecay float64 `toml:"distance_decay"` //per frame
	MaxAngle      float64 `toml:"max_angle"`      //radians
	AngleDecay    float64 `toml:"angle_decay"`    //per frame
}

//Params returns the parameters of the random walk.
func (D *DriftConfig) Params() *drift.Params {
	return &drift.Params{MaxStep: D.MaxStep, DistanceDecay: D.DistanceDecay, MaxAngle: D.MaxAngle, AngleDecay: D.AngleDecay}
}

//StructConfig adds a structural-noise component to every deck. It is disabled when Map is empty.
type StructConfig struct {
	Map       string  `toml:"map"`
	VoxelSize float64 `toml:"voxel_size"` //A
}

//Config contains all the parameters of a deck generation run.
type Config struct {
	Particles      string        `toml:"particles"`  //input STAR file
	Maps           string        `toml:"maps"`       //directory with the damage-filtered maps
	OutDir         string        `toml:"output_dir"` //one subdirectory per micrograph is created here
	Dose           float64       `toml:"dose"`       //total dose of a movie, e/A^2
	Frames         int           `toml:"frames"`
	VoxelSize      float64       `toml:"voxel_size"` //of the particle map, A
	Species        string        `toml:"species"`    //name of the particle in the decks
	DetectorX      int           `toml:"detector_x"`
	DetectorY      int           `toml:"detector_y"`
	MaxMicrographs int           `toml:"max_micrographs"` //negative means all
	Drift          DriftConfig   `toml:"drift"`
	Struct         StructConfig  `toml:"structural_noise"`
	RandomState    string        `toml:"random_state"` //file to restore the random state from, or to save it to
	Seed           uint64        `toml:"seed"`         //used only when the random state is created; 0 means random
	Collision      emprep.Policy `toml:"collision"`
	Workers        int           `toml:"workers"`
	Report         string        `toml:"report"` //name of the run report, relative to OutDir
}

//SetDefaults sets a single-frame, 30 e/A^2 exposure on a 3838x3710 detector, for the first
//micrograph of the table only, without drift or structural noise.
func (C *Config) SetDefaults() {
	C.Dose = 30
	C.Frames = 1
	C.VoxelSize = 1
	C.Species = "proteasome"
	C.DetectorX, C.DetectorY = 3838, 3710
	C.MaxMicrographs = 1
	C.Drift = DriftConfig{}
	P := new(drift.Params)
	P.SetDefaults()
	C.Drift.MaxStep, C.Drift.DistanceDecay = P.MaxStep, P.DistanceDecay
	C.Drift.MaxAngle, C.Drift.AngleDecay = P.MaxAngle, P.AngleDecay
	C.Struct = StructConfig{VoxelSize: 1}
	C.Collision = emprep.Fail
	C.Workers = runtime.GOMAXPROCS(0)
	C.Report = "report.yaml"
}

//Validate checks that the configuration can be used for a run.
func (C *Config) Validate() error {
	fail := func(format string, a ...any) error {
		return &Error{fmt.Sprintf(format, a...), "", []string{"Config.Validate"}, true}
	}
	switch {
	case C.Particles == "":
		return fail("particles is required")
	case C.Maps == "":
		return fail("maps is required")
	case C.OutDir == "":
		return fail("output_dir is required")
	case C.Dose < 0 || math.IsNaN(C.Dose) || math.IsInf(C.Dose, 0):
		return fail("dose must be a finite, non-negative number, not %g", C.Dose)
	case C.Frames <= 0:
		return fail("frames must be positive, not %d", C.Frames)
	case !(C.VoxelSize > 0):
		return fail("voxel_size must be positive, not %g", C.VoxelSize)
	case C.Species == "" || strings.ContainsAny(C.Species, " \t\n"):
		return fail("invalid species name %q", C.Species)
	case C.Species == StructSpecies && C.Struct.Map != "":
		return fail("species can't be named %s when structural noise is used", StructSpecies)
	case C.DetectorX <= 0 || C.DetectorY <= 0:
		return fail("invalid detector size %d x %d", C.DetectorX, C.DetectorY)
	case C.Struct.Map != "" && !(C.Struct.VoxelSize > 0):
		return fail("structural_noise.voxel_size must be positive, not %g", C.Struct.VoxelSize)
	case C.Collision < emprep.Fail || C.Collision > emprep.Version:
		return fail("invalid collision policy %d", C.Collision)
	case C.Workers <= 0:
		return fail("workers must be positive, not %d", C.Workers)
	case C.Report == "":
		return fail("report is required")
	}
	return nil
}

var envRe = regexp.MustCompile(`\$\{([^}]+)\}`)

//expandEnv replaces ${VAR} with the value of the environment variable VAR.
func expandEnv(s string) string {
	return envRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}"))
	})
}

//DecodeConfig reads a TOML configuration from s, after expanding ${VAR} environment variables.
//Keys missing from s keep their default values. The result is validated.
func DecodeConfig(s string) (*Config, error) {
	C := new(Config)
	C.SetDefaults()
	md, err := toml.Decode(expandEnv(s), C)
	if err != nil {
		return nil, &Error{"parsing config: " + err.Error(), "", []string{"DecodeConfig"}, true}
	}
	if un := md.Undecoded(); len(un) > 0 {
		return nil, &Error{fmt.Sprintf("unknown config keys %v", un), "", []string{"DecodeConfig"}, true}
	}
	if err := C.Validate(); err != nil {
		return nil, errDecorate(err, "DecodeConfig")
	}
	return C, nil
}

//LoadConfig reads the TOML configuration in the file name. See DecodeConfig.
func LoadConfig(name string) (*Config, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, &Error{"reading config: " + err.Error(), name, []string{"LoadConfig"}, true}
	}
	C, err := DecodeConfig(string(data))
	if err != nil {
		e := err.(*Error)
		e.filename = name
		e.deco = append(e.deco, "LoadConfig")
		return nil, e
	}
	return C, nil
}
