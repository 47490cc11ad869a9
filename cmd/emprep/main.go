/*
 * main.go, part of emprep.
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

//Command emprep prepares the inputs of TEM-Simulator runs that produce cryo-EM movies.
//
//	emprep filter -map particle.mrc -dose 30 -frames 10 -out maps
//	emprep decks -config run.toml [-dry-run]
//	emprep grid -mics 5 -out particles.star
//	emprep noise -level 0.1 -out noise.mrc
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rmera/emprep"
	"github.com/rmera/emprep/damage"
	"github.com/rmera/emprep/deck"
	"github.com/rmera/emprep/mrc"
	"github.com/rmera/emprep/rng"
	"github.com/rmera/emprep/star"
)

const usage = `usage: emprep <command> [flags]

commands:
  filter   write the damage-filtered maps of a particle, one per frame of the dose schedule
  decks    write the simulator decks for the micrographs of a particle table
  grid     write a synthetic particle table with a grid of particles per micrograph
  noise    write a flat map to be used as structural noise

run "emprep <command> -h" for the flags of each command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "filter":
		err = runFilter(ctx, args)
	case "decks":
		err = runDecks(ctx, args)
	case "grid":
		err = runGrid(args)
	case "noise":
		err = runNoise(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

//banner prints the parameters of a command, so they can be checked before anything is written.
func banner(title string, params [][2]string) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	cyan.Printf("emprep %s\n", title)
	for _, p := range params {
		green.Print("    ▶ ")
		fmt.Printf("%-18s %s\n", p[0]+":", p[1])
	}
	fmt.Println()
}

func runFilter(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	in := fs.String("map", "", "MRC map of the particle (required)")
	voxel := fs.Float64("voxel", 0, "voxel size of the map in A (0 means the one in the map's header)")
	dose := fs.Float64("dose", 30, "total dose of the movie, e/A^2")
	frames := fs.Int("frames", 1, "number of frames of the movie")
	out := fs.String("out", "filtered_maps", "directory for the filtered maps")
	O := new(damage.Options)
	O.SetDefaults()
	fs.Float64Var(&O.Factor, "factor", O.Factor, "the map, minus its minimum, is divided by this")
	fs.IntVar(&O.Margin, "margin", O.Margin, "zero padding added on every side before filtering, in voxels")
	fs.BoolVar(&O.KeepPadding, "keep-padding", O.KeepPadding, "keep the padding in the filtered maps")
	fs.IntVar(&O.Workers, "workers", O.Workers, "maps filtered at the same time")
	level := fs.String("log-level", "info", "debug, info, warn or error")
	collision := emprep.Fail
	fs.Var(&collision, "collision", "what to do with existing output files: fail, overwrite or version")
	fs.Parse(args)
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("filter: -map is required")
	}
	O.Logger = setupLogger(*level)
	V, H, err := mrc.Read(*in)
	if err != nil {
		return err
	}
	if *voxel == 0 {
		*voxel = H.VoxelSize()
	}
	D, err := emprep.NewDoseSchedule(*dose, *frames)
	if err != nil {
		return err
	}
	set, err := mrc.NewVolumeSet(*out)
	if err != nil {
		return err
	}
	banner("filter", [][2]string{
		{"map", *in},
		{"shape", fmt.Sprint(V.Shape)},
		{"voxel size (A)", fmt.Sprint(*voxel)},
		{"dose (e/A^2)", fmt.Sprint(*dose)},
		{"frames", fmt.Sprint(*frames)},
		{"output", set.Dir},
		{"collision", collision.String()},
	})
	F, err := damage.NewFilter(V, *voxel, O)
	if err != nil {
		return err
	}
	return F.Schedule(ctx, D, func(dose float64, key string, W *emprep.Volume) error {
		name, err := set.Store(dose, W, *voxel, collision)
		if err == nil {
			O.Logger.Info("stored filtered map", "dose", key, "path", name)
		}
		return err
	})
}

func runDecks(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decks", flag.ExitOnError)
	cfgPath := fs.String("config", "emprep.toml", "TOML configuration of the run")
	dry := fs.Bool("dry-run", false, "check the inputs and print the plan, without writing anything")
	metrics := fs.String("metrics", "", "write the run metrics to this file, in Prometheus text format")
	level := fs.String("log-level", "info", "debug, info, warn or error")
	fs.Parse(args)
	logger := setupLogger(*level)
	C, err := deck.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	params := [][2]string{
		{"config", *cfgPath},
		{"particles", C.Particles},
		{"maps", C.Maps},
		{"output", C.OutDir},
		{"dose (e/A^2)", fmt.Sprint(C.Dose)},
		{"frames", fmt.Sprint(C.Frames)},
		{"voxel size (A)", fmt.Sprint(C.VoxelSize)},
		{"detector", fmt.Sprintf("%d x %d", C.DetectorX, C.DetectorY)},
		{"drift", fmt.Sprint(C.Drift.Enabled)},
		{"collision", C.Collision.String()},
		{"workers", fmt.Sprint(C.Workers)},
	}
	if C.Struct.Map != "" {
		params = append(params, [2]string{"structural noise", C.Struct.Map})
	}
	if C.RandomState != "" {
		params = append(params, [2]string{"random state", C.RandomState})
	}
	banner("decks", params)

	reg := prometheus.NewRegistry()
	M, err := deck.NewMetrics(reg)
	if err != nil {
		return err
	}
	G, err := deck.NewGenerator(C, logger, M)
	if err != nil {
		return err
	}
	P, err := G.Plan()
	if err != nil {
		return err
	}
	yellow := color.New(color.FgYellow)
	for _, F := range P.Failures {
		yellow.Printf("    ✗ %s\n", F.Error())
	}
	fmt.Printf("%d micrographs to render, %d rejected, output table %s\n", len(P.Micrographs), len(P.Failures), P.Table)
	if *dry {
		for _, m := range P.Micrographs {
			fmt.Printf("  %s: %d particles -> %s\n", m.Name, m.Particles, m.Dir)
			for _, a := range m.Artifacts {
				fmt.Printf("      %s\n", a)
			}
		}
		return nil
	}
	R, err := G.Run(ctx)
	if err != nil {
		return err
	}
	for _, F := range R.Failures {
		yellow.Printf("    ✗ %s\n", F.Error())
	}
	color.New(color.FgGreen).Printf("%d micrographs, %d decks, %d particles written to %s (run %s)\n",
		len(R.Micrographs), R.Decks, R.Particles, R.Table, R.RunID)
	if *metrics != "" {
		if err := prometheus.WriteToTextfile(*metrics, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func runGrid(args []string) error {
	fs := flag.NewFlagSet("grid", flag.ExitOnError)
	O := new(emprep.GridOptions)
	O.SetDefaults()
	fs.IntVar(&O.Micrographs, "mics", O.Micrographs, "number of micrographs")
	fs.IntVar(&O.Rows, "rows", O.Rows, "particles per column")
	fs.IntVar(&O.Cols, "cols", O.Cols, "particles per row")
	fs.Float64Var(&O.Spacing, "spacing", O.Spacing, "distance between particles, nm")
	fs.Float64Var(&O.Apix, "apix", O.Apix, "pixel size of the micrographs, A")
	fs.IntVar(&O.DetX, "det-x", O.DetX, "detector width, pixels")
	fs.IntVar(&O.DetY, "det-y", O.DetY, "detector height, pixels")
	fs.Float64Var(&O.Defocus[0], "defocus-min", O.Defocus[0], "minimum defocus, um")
	fs.Float64Var(&O.Defocus[1], "defocus-max", O.Defocus[1], "maximum defocus, um")
	seed := fs.Uint64("seed", 0, "random seed (0 means random)")
	out := fs.String("out", "particles.star", "output STAR file")
	collision := emprep.Fail
	fs.Var(&collision, "collision", "what to do with existing output files: fail, overwrite or version")
	fs.Parse(args)
	src := rng.NewRandom()
	if *seed != 0 {
		src = rng.New(*seed)
	}
	T, err := emprep.GridParticles(O, src)
	if err != nil {
		return err
	}
	name, err := emprep.WriteFile(*out, collision, func(w io.Writer) error { return star.Encode(w, T) })
	if err != nil {
		return err
	}
	fmt.Printf("%d particles in %d micrographs written to %s\n", T.Len(), O.Micrographs, name)
	return nil
}

func runNoise(args []string) error {
	fs := flag.NewFlagSet("noise", flag.ExitOnError)
	level := fs.Float64("level", 0.1, "value of the map")
	nx := fs.Int("nx", 5200, "width of the map, voxels")
	ny := fs.Int("ny", 5200, "height of the map, voxels")
	voxel := fs.Float64("voxel", 1, "voxel size, A")
	out := fs.String("out", "noise.mrc", "output MRC file")
	collision := emprep.Fail
	fs.Var(&collision, "collision", "what to do with existing output files: fail, overwrite or version")
	fs.Parse(args)
	if *nx <= 0 || *ny <= 0 {
		return fmt.Errorf("noise: invalid size %d x %d", *nx, *ny)
	}
	name, err := mrc.Write(*out, emprep.FlatNoise(*level, *nx, *ny), *voxel, collision)
	if err != nil {
		return err
	}
	fmt.Printf("structural noise map written to %s\n", name)
	return nil
}
