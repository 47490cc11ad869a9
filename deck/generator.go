/*
 * generator.go, part of emprep.
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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rmera/emprep"
	"github.com/rmera/emprep/coord"
	"github.com/rmera/emprep/drift"
	"github.com/rmera/emprep/mrc"
	"github.com/rmera/emprep/rng"
	"github.com/rmera/emprep/star"
	v3 "github.com/rmera/emprep/v3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

//StructSpecies is the name of the structural-noise particle in the decks.
const StructSpecies = "struct"

//MaxFrameSeed bounds the random seed of each simulated frame.
const MaxFrameSeed = 10000

//PhasePlateFactor scales the dose of micrographs taken with a phase plate, which absorbs
//part of the beam.
const PhasePlateFactor = 0.9

//Names of the artifacts in the directory of a micrograph.
const (
	CoordinateFile       = "coordinates.txt"
	StructCoordinateFile = "single_coordinate.txt"
	DriftFile            = "drift.txt"
	OutputTable          = "particles.star"
)

func deckName(n int) string      { return fmt.Sprintf("input_frame_%02d.txt", n) }
func logName(n int) string       { return fmt.Sprintf("simulation_frame_%02d.log", n) }
func errorName(n int) string     { return fmt.Sprintf("error_frame_%02d.txt", n) }
func noNoiseName(n int) string   { return fmt.Sprintf("frame_%02d_no_noise.mrc", n) }
func withNoiseName(n int) string { return fmt.Sprintf("frame_%02d_with_noise.mrc", n) }

//State is the progress of a micrograph through a run.
type State int

const (
	Pending State = iota
	CoordinatesTransformed
	DriftResolved
	DecksRendered
	Appended
)

var stateNames = []string{"pending", "coordinates-transformed", "drift-resolved", "decks-rendered", "appended"}

func (S State) String() string {
	if S < 0 || int(S) >= len(stateNames) {
		return "State(" + strconv.Itoa(int(S)) + ")"
	}
	return stateNames[S]
}

//MarshalText implements encoding.TextMarshaler.
func (S State) MarshalText() ([]byte, error) {
	return []byte(S.String()), nil
}

//UnmarshalText implements encoding.TextUnmarshaler.
func (S *State) UnmarshalText(b []byte) error {
	for i, v := range stateNames {
		if v == string(b) {
			*S = State(i)
			return nil
		}
	}
	return &Error{"unknown state " + strconv.Quote(string(b)), "", []string{"State.UnmarshalText"}, true}
}

//Failure is a micrograph that could not be processed. The rest of the run is not affected.
type Failure struct {
	Micrograph string
	State      State //the last state the micrograph reached
	Err        error
}

func (F Failure) Error() string {
	return fmt.Sprintf("micrograph %s (%s): %v", F.Micrograph, F.State, F.Err)
}

func (F Failure) Unwrap() error { return F.Err }

//MicrographPlan lists what a run will do with one micrograph.
type MicrographPlan struct {
	Name      string
	Dir       string
	Particles int
	Volumes   []string //filtered map of each frame
	Artifacts []string //files emprep writes for the micrograph, as resolved by the collision policy
}

//Plan is the result of a dry run.
type Plan struct {
	Schedule    emprep.DoseSchedule
	Micrographs []*MicrographPlan
	Failures    []Failure
	Table       string //the output particle table
}

//Result is the outcome of a run.
type Result struct {
	RunID       string
	Schedule    emprep.DoseSchedule
	Micrographs []string //the micrographs that reached the appended state, in table order
	Failures    []Failure
	States      map[string]State //the last state reached by every micrograph of the run
	Decks       int
	Particles   int
	Table       string
	Report      string
	Elapsed     time.Duration
}

//Generator renders the simulator inputs for every micrograph of a particle table.
type Generator struct {
	C       *Config
	Logger  *slog.Logger
	Metrics *Metrics //may be nil
}

//NewGenerator returns a generator for C, which must be valid. A nil logger means slog.Default().
func NewGenerator(C *Config, logger *slog.Logger, M *Metrics) (*Generator, error) {
	if C == nil {
		return nil, &Error{"nil config", "", []string{"NewGenerator"}, true}
	}
	if err := C.Validate(); err != nil {
		return nil, errDecorate(err, "NewGenerator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{C: C, Logger: logger, Metrics: M}, nil
}

//job is a micrograph that survived the checks that don't write anything.
type job struct {
	G       *emprep.MicrographGroup
	dir     string
	volumes []string
	paths   map[string]string //resolved path of each artifact, by plain name
	plan    *MicrographPlan
	src     *rng.Source
}

//batch is the part of a run that is common to Plan and Run.
type batch struct {
	table     *star.Table
	schedule  emprep.DoseSchedule
	outdir    string
	structMap string //absolute, empty without structural noise
	output    string //resolved name of the output particle table
	report    string //resolved name of the run report
	res       *resolver
	jobs      []*job
	failures  []Failure
}

//prepare reads the table, groups it and checks every micrograph: uniform scalars, available
//filtered maps, and the output paths under the collision policy. Micrograph directories are
//claimed sequentially in table order, so the outcome doesn't depend on the worker count.
func (Gen *Generator) prepare() (*batch, error) {
	C := Gen.C
	T, err := star.Read(C.Particles)
	if err != nil {
		return nil, errDecorate(err, "prepare")
	}
	groups, err := emprep.GroupByMicrograph(T)
	if err != nil {
		return nil, errDecorate(err, "prepare")
	}
	if C.MaxMicrographs >= 0 && C.MaxMicrographs < len(groups) {
		groups = groups[:C.MaxMicrographs]
	}
	D, err := emprep.NewDoseSchedule(C.Dose, C.Frames)
	if err != nil {
		return nil, errDecorate(err, "prepare")
	}
	set, err := mrc.NewVolumeSet(C.Maps)
	if err != nil {
		return nil, errDecorate(err, "prepare")
	}
	outdir, err := filepath.Abs(C.OutDir)
	if err != nil {
		return nil, &Error{err.Error(), C.OutDir, []string{"prepare"}, true}
	}
	B := &batch{table: T, schedule: D, outdir: outdir, res: newResolver(C.Collision)}
	if C.Struct.Map != "" {
		if B.structMap, err = filepath.Abs(C.Struct.Map); err != nil {
			return nil, &Error{err.Error(), C.Struct.Map, []string{"prepare"}, true}
		}
		if _, err := os.Stat(B.structMap); err != nil {
			return nil, &Error{"structural noise map: " + err.Error(), B.structMap, []string{"prepare"}, true}
		}
	}
	if B.output, err = B.res.resolve(filepath.Join(outdir, OutputTable)); err != nil {
		return nil, errDecorate(err, "prepare")
	}
	if B.report, err = B.res.resolve(filepath.Join(outdir, C.Report)); err != nil {
		return nil, errDecorate(err, "prepare")
	}
	//The maps are the same for every micrograph, but a missing one fails each micrograph, not the run.
	vols, volErr := set.LookupSchedule(D)
	for _, G := range groups {
		if err := G.Resolve(); err != nil {
			B.failures = append(B.failures, Failure{G.Name, Pending, err})
			continue
		}
		if volErr != nil {
			B.failures = append(B.failures, Failure{G.Name, Pending, volErr})
			continue
		}
		dir, err := B.res.claimDir(filepath.Join(outdir, micrographBase(G.Name)))
		if err != nil {
			B.failures = append(B.failures, Failure{G.Name, Pending, err})
			continue
		}
		J := &job{G: G, dir: dir, volumes: vols}
		J.plan = &MicrographPlan{Name: G.Name, Dir: dir, Particles: len(G.Records), Volumes: vols}
		J.paths, J.plan.Artifacts, err = Gen.artifacts(B.res, dir)
		if err != nil {
			B.res.release(J.plan.Artifacts...)
			B.res.release(dir)
			B.failures = append(B.failures, Failure{G.Name, Pending, err})
			continue
		}
		B.jobs = append(B.jobs, J)
	}
	return B, nil
}

//micrographBase returns the name of a micrograph without its directory and extension.
func micrographBase(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

//artifacts resolves the names of every file emprep writes in dir. It returns them both by
//plain name and as a list. On error, the names resolved so far are returned so they can be released.
func (Gen *Generator) artifacts(R *resolver, dir string) (map[string]string, []string, error) {
	names := []string{CoordinateFile}
	if Gen.C.Struct.Map != "" {
		names = append(names, StructCoordinateFile)
	}
	if Gen.C.Drift.Enabled {
		names = append(names, DriftFile)
	}
	for n := 0; n < Gen.C.Frames; n++ {
		names = append(names, deckName(n))
		if Gen.C.Drift.Enabled {
			names = append(names, errorName(n))
		}
	}
	paths := make(map[string]string, len(names))
	list := make([]string, 0, len(names))
	for _, v := range names {
		p, err := R.resolve(filepath.Join(dir, v))
		if err != nil {
			return nil, list, err
		}
		paths[v] = p
		list = append(list, p)
	}
	return paths, list, nil
}

//Plan is a dry run: it performs every check Run does before writing, and returns the paths
//Run would write. Plan creates, modifies or deletes no file.
func (Gen *Generator) Plan() (*Plan, error) {
	B, err := Gen.prepare()
	if err != nil {
		return nil, errDecorate(err, "Plan")
	}
	P := &Plan{Schedule: B.schedule, Failures: B.failures, Table: B.output}
	for _, J := range B.jobs {
		P.Micrographs = append(P.Micrographs, J.plan)
	}
	return P, nil
}

//outcome is what processing a micrograph leaves for the merge.
type outcome struct {
	state            State
	err              error
	originX, originY float64
	decks            int
	written          []string
}

//Run processes every micrograph, writes the updated particle table and the run report.
//Micrographs that fail are reported in the result and don't stop the run; the returned error
//is reserved for problems with the whole run.
func (Gen *Generator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	C := Gen.C
	B, err := Gen.prepare()
	if err != nil {
		return nil, errDecorate(err, "Run")
	}
	if err := os.MkdirAll(B.outdir, 0o755); err != nil {
		return nil, &Error{err.Error(), B.outdir, []string{"Run"}, true}
	}
	root, created, err := rng.LoadOrCreate(C.RandomState, C.Seed)
	if err != nil {
		return nil, &Error{err.Error(), C.RandomState, []string{"Run"}, true}
	}
	if created && C.RandomState != "" {
		Gen.Logger.Info("saved new random state", "path", C.RandomState)
	} else if C.RandomState != "" {
		Gen.Logger.Info("restored random state", "path", C.RandomState)
	}
	for _, J := range B.jobs {
		J.src = root.Derive(J.G.Name)
	}
	outcomes := make([]outcome, len(B.jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(C.Workers)
	for i, J := range B.jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := time.Now()
			outcomes[i] = Gen.process(J, B)
			Gen.Metrics.processed(outcomes[i], time.Since(t))
			if outcomes[i].err != nil {
				Gen.discard(B.res, J, outcomes[i].written)
				Gen.Logger.Error("micrograph failed", "micrograph", J.G.Name, "state", outcomes[i].state.String(), "error", outcomes[i].err)
				return nil
			}
			Gen.Logger.Info("rendered micrograph", "micrograph", J.G.Name, "path", J.dir, "frames", C.Frames, "particles", len(J.G.Records))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &Error{"run interrupted: " + err.Error(), "", []string{"Run"}, true}
	}
	for _, F := range B.failures {
		Gen.Metrics.rejected()
		Gen.Logger.Error("micrograph failed", "micrograph", F.Micrograph, "state", F.State.String(), "error", F.Err)
	}
	R := &Result{RunID: uuid.NewString(), Schedule: B.schedule, Failures: B.failures, States: make(map[string]State)}
	for _, F := range B.failures {
		R.States[F.Micrograph] = F.State
	}
	out := star.New(B.table.Columns...)
	for _, c := range []string{star.OriginX, star.OriginY, star.ParticleID} {
		out.AddColumn(c, "0")
	}
	for i, J := range B.jobs {
		o := outcomes[i]
		if o.err != nil {
			R.Failures = append(R.Failures, Failure{J.G.Name, o.state, o.err})
			R.States[J.G.Name] = o.state
			continue
		}
		sub := B.table.Select(J.G.Rows())
		for r := range sub.Rows {
			sub.Set(r, star.MicrographName, J.dir+".mrc")
			if C.Drift.Enabled {
				sub.SetFloat(r, star.OriginX, o.originX)
				sub.SetFloat(r, star.OriginY, o.originY)
			}
		}
		out.Append(sub)
		R.States[J.G.Name] = Appended
		R.Micrographs = append(R.Micrographs, J.G.Name)
		R.Decks += o.decks
	}
	for r := range out.Rows {
		out.Set(r, star.ParticleID, strconv.Itoa(r+1))
	}
	R.Particles = out.Len()
	R.Table, R.Report = B.output, B.report
	if err := writeArtifact(B.output, C.Collision, func(w io.Writer) error { return star.Encode(w, out) }); err != nil {
		return R, errDecorate(err, "Run")
	}
	R.Elapsed = time.Since(start)
	if err := writeArtifact(B.report, C.Collision, func(w io.Writer) error { return Gen.report(R).Encode(w) }); err != nil {
		return R, errDecorate(err, "Run")
	}
	Gen.Logger.Info("run finished", "micrographs", len(R.Micrographs), "failed", len(R.Failures), "decks", R.Decks, "path", R.Table)
	return R, nil
}

//discard removes the files a failed micrograph managed to write, and gives its paths back.
func (Gen *Generator) discard(R *resolver, J *job, written []string) {
	for _, v := range written {
		if err := os.Remove(v); err != nil && !os.IsNotExist(err) {
			Gen.Logger.Warn("could not remove artifact of failed micrograph", "micrograph", J.G.Name, "path", v, "error", err)
		}
	}
	os.Remove(J.dir) //only succeeds if the directory is empty, which is what we want.
	R.release(J.plan.Artifacts...)
	R.release(J.dir)
}

//process renders every artifact of one micrograph, advancing through the states in order.
func (Gen *Generator) process(J *job, B *batch) (o outcome) {
	C := Gen.C
	G := J.G
	paths := J.paths
	fail := func(err error) outcome {
		o.err = err
		return o
	}
	write := func(name string, enc func(io.Writer) error) error {
		if err := writeArtifact(name, C.Collision, enc); err != nil {
			return err
		}
		o.written = append(o.written, name)
		return nil
	}
	if err := os.MkdirAll(J.dir, 0o755); err != nil {
		return fail(&Error{err.Error(), J.dir, []string{"process"}, true})
	}
	//Particle coordinates.
	T, err := coord.ForGroup(G, C.DetectorX, C.DetectorY)
	if err != nil {
		return fail(err)
	}
	pos, angles := coord.Group(G)
	phys := T.PositionsToPhysical(pos)
	sim := coord.AnglesToSimulator(angles)
	if err := write(paths[CoordinateFile], func(w io.Writer) error { return coord.Encode(w, phys, sim) }); err != nil {
		return fail(err)
	}
	if C.Struct.Map != "" {
		if err := write(paths[StructCoordinateFile], func(w io.Writer) error {
			return coord.Encode(w, v3.Zeros(1), v3.Zeros(1))
		}); err != nil {
			return fail(err)
		}
	}
	o.state = CoordinatesTransformed

	//Drift. It is drawn before the frame seeds, so enabling it changes the seeds.
	var traj drift.Trajectory
	if C.Drift.Enabled {
		traj, err = drift.Generate(J.src, C.Frames, C.Drift.Params())
		if err != nil {
			return fail(err)
		}
		Gen.Logger.Debug("simulated drift", "micrograph", G.Name, "length", traj.Length())
		ref := traj[traj.Reference()]
		o.originX, o.originY = -T.LengthToPixels(ref.X), -T.LengthToPixels(ref.Y)
		if err := write(paths[DriftFile], traj.Encode); err != nil {
			return fail(err)
		}
		for n, p := range traj {
			if err := write(paths[errorName(n)], GeometryError{p.X, p.Y}.Encode); err != nil {
				return fail(err)
			}
		}
	}
	o.state = DriftResolved

	//Decks.
	r := J.src.Rand()
	dose := C.Dose / float64(C.Frames)
	if G.HasPhaseShift {
		dose *= PhasePlateFactor
	}
	for n := range B.schedule {
		dk := &Deck{
			LogFile:           filepath.Join(J.dir, logName(n)),
			RandomSeed:        r.IntN(MaxFrameSeed),
			DosePerFrame:      dose * 100, //e/A^2 to e/nm^2
			GeometryErrors:    GeometryErrorsNone,
			Magnification:     G.Magnification,
			Defocus:           G.Defocus,
			PhaseShift:        G.PhaseShift,
			DetectorX:         C.DetectorX,
			DetectorY:         C.DetectorY,
			DetectorPixelSize: G.DetectorPixelSize,
			ImageNoNoise:      filepath.Join(J.dir, noNoiseName(n)),
			ImageWithNoise:    filepath.Join(J.dir, withNoiseName(n)),
		}
		if C.Drift.Enabled {
			dk.GeometryErrors = GeometryErrorsFile
			dk.GeometryErrorFile = paths[errorName(n)]
		}
		dk.Particles = append(dk.Particles, ParticleBlock{
			Name:        C.Species,
			Map:         J.volumes[n],
			VoxelSize:   C.VoxelSize / 10, //A to nm
			Coordinates: paths[CoordinateFile],
		})
		if B.structMap != "" {
			dk.Particles = append(dk.Particles, ParticleBlock{
				Name:        StructSpecies,
				Map:         B.structMap,
				VoxelSize:   C.Struct.VoxelSize / 10,
				Randomize:   true,
				Seed:        rng.StableSeed(G.Name),
				Coordinates: paths[StructCoordinateFile],
			})
		}
		if err := write(paths[deckName(n)], dk.Encode); err != nil {
			return fail(err)
		}
		o.decks++
	}
	o.state = DecksRendered
	return o
}

//writeArtifact creates name under policy P and fills it with enc. If enc fails, the
//partial file is removed.
func writeArtifact(name string, P emprep.Policy, enc func(io.Writer) error) error {
	f, err := emprep.Create(name, P)
	if err != nil {
		return errDecorate(err, "writeArtifact")
	}
	if err := enc(f); err != nil {
		f.Close()
		os.Remove(name)
		return errDecorate(err, "writeArtifact")
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return &Error{err.Error(), name, []string{"writeArtifact"}, true}
	}
	return nil
}
