package deck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmera/emprep"
	"github.com/rmera/emprep/drift"
	"github.com/rmera/emprep/mrc"
	"github.com/rmera/emprep/rng"
	"github.com/rmera/emprep/star"
)

//setup writes a grid particle table with the given number of micrographs (4 particles each)
//and the filtered maps for every frame, and returns a configuration that uses them.
//edit, if not nil, can change the table before it is written.
func setup(t *testing.T, micrographs, frames int, edit func(T *star.Table)) *Config {
	t.Helper()
	dir := t.TempDir()
	O := new(emprep.GridOptions)
	O.SetDefaults()
	O.Micrographs = micrographs
	T, err := emprep.GridParticles(O, rng.New(3))
	require.NoError(t, err)
	if edit != nil {
		edit(T)
	}
	C := new(Config)
	C.SetDefaults()
	C.Particles = filepath.Join(dir, "particles.star")
	require.NoError(t, star.Write(C.Particles, T))
	C.Maps = filepath.Join(dir, "maps")
	C.OutDir = filepath.Join(dir, "out")
	C.Frames = frames
	C.MaxMicrographs = -1
	C.Seed = 7
	C.Drift.Enabled = true
	set, err := mrc.NewVolumeSet(C.Maps)
	require.NoError(t, err)
	D, err := emprep.NewDoseSchedule(C.Dose, C.Frames)
	require.NoError(t, err)
	V := emprep.NewVolume(4, 4, 4)
	for i := range V.Data {
		V.Data[i] = float64(i % 7)
	}
	for _, d := range D {
		_, err := set.Store(d, V, 1, emprep.Fail)
		require.NoError(t, err)
	}
	return C
}

func run(t *testing.T, C *Config, M *Metrics) *Result {
	t.Helper()
	G, err := NewGenerator(C, nil, M)
	require.NoError(t, err)
	R, err := G.Run(context.Background())
	require.NoError(t, err)
	return R
}

func readDeck(t *testing.T, name string) map[string][]string {
	t.Helper()
	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	slots, _ := parseDeck(t, f)
	return slots
}

func TestRun(t *testing.T) {
	C := setup(t, 1, 3, nil)
	R := run(t, C, nil)
	require.Empty(t, R.Failures)
	assert.Equal(t, []string{"micrograph_000.mrc"}, R.Micrographs)
	assert.Equal(t, map[string]State{"micrograph_000.mrc": Appended}, R.States)
	assert.Equal(t, 3, R.Decks)
	assert.Equal(t, 4, R.Particles)
	assert.NotEmpty(t, R.RunID)

	out, _ := filepath.Abs(C.OutDir)
	mdir := filepath.Join(out, "micrograph_000")
	traj, err := drift.Read(filepath.Join(mdir, DriftFile))
	require.NoError(t, err)
	require.Len(t, traj, 3)
	assert.Equal(t, drift.Point{}, traj[0])

	set, _ := mrc.NewVolumeSet(C.Maps)
	for n, dose := range []float64{0, 10, 20} {
		slots := readDeck(t, filepath.Join(mdir, deckName(n)))
		assert.Equal(t, []string{"900"}, slots["total_dose"], "10 e/A^2 per frame, 0.9 for the phase plate, in e/nm^2")
		assert.Equal(t, []string{"file"}, slots["geom_errors"])
		assert.Equal(t, []string{filepath.Join(mdir, errorName(n))}, slots["error_file_in"])
		assert.Equal(t, []string{set.Path(dose)}, slots["map_file_re_in"])
		assert.Equal(t, []string{filepath.Join(mdir, CoordinateFile)}, slots["coord_file_in"])
		assert.Equal(t, []string{"0.1"}, slots["voxel_size"])
		assert.Equal(t, []string{"no"}, slots["randomize_particle"])
		seed, err := strconv.Atoi(slots["rand_seed"][0])
		require.NoError(t, err)
		assert.True(t, seed >= 0 && seed < MaxFrameSeed)
		assert.FileExists(t, filepath.Join(mdir, errorName(n)))
	}

	T, err := star.Read(R.Table)
	require.NoError(t, err)
	require.Equal(t, 4, T.Len())
	for i := 0; i < T.Len(); i++ {
		name, _ := T.Value(i, star.MicrographName)
		assert.Equal(t, mdir+".mrc", name)
		id, _ := T.Value(i, star.ParticleID)
		assert.Equal(t, strconv.Itoa(i+1), id)
		ox, err := T.Float(i, star.OriginX)
		require.NoError(t, err)
		oy, _ := T.Float(i, star.OriginY)
		//pixel size 1 A is 0.1 nm; the reference is the middle frame.
		assert.InDelta(t, -traj[1].X/0.1, ox, 1e-6)
		assert.InDelta(t, -traj[1].Y/0.1, oy, 1e-6)
	}

	rf, err := os.Open(R.Report)
	require.NoError(t, err)
	defer rf.Close()
	rep, err := DecodeReport(rf)
	require.NoError(t, err)
	assert.Equal(t, R.RunID, rep.RunID)
	assert.Equal(t, []string{"0.000", "10.000", "20.000"}, rep.Schedule)
	assert.Equal(t, 4, rep.OutParticles)
	assert.Empty(t, rep.Failures)
}

func TestStructuralNoise(t *testing.T) {
	C := setup(t, 1, 1, nil)
	C.Drift.Enabled = false
	C.Struct.Map = filepath.Join(filepath.Dir(C.Maps), "noise.mrc")
	_, err := mrc.Write(C.Struct.Map, emprep.FlatNoise(0.5, 5, 5), 1, emprep.Fail)
	require.NoError(t, err)
	R := run(t, C, nil)
	require.Empty(t, R.Failures)
	out, _ := filepath.Abs(C.OutDir)
	mdir := filepath.Join(out, "micrograph_000")
	slots := readDeck(t, filepath.Join(mdir, deckName(0)))
	assert.Equal(t, []string{"none"}, slots["geom_errors"])
	assert.Equal(t, []string{"proteasome", StructSpecies}, slots["particle_type"])
	assert.Equal(t, []string{"no", "yes"}, slots["randomize_particle"])
	assert.Equal(t, []string{"0", strconv.Itoa(rng.StableSeed("micrograph_000.mrc"))}, slots["rand_seed_particle"])
	assert.Equal(t, filepath.Join(mdir, StructCoordinateFile), slots["coord_file_in"][1])
	assert.NoFileExists(t, filepath.Join(mdir, DriftFile))

	T, err := star.Read(R.Table)
	require.NoError(t, err)
	ox, _ := T.Float(0, star.OriginX)
	assert.Zero(t, ox, "no drift, no origin correction")
}

func TestOriginsKeptWithoutDrift(t *testing.T) {
	C := setup(t, 1, 1, func(T *star.Table) {
		for i := 0; i < T.Len(); i++ {
			T.SetFloat(i, star.OriginX, 3.5)
			T.SetFloat(i, star.OriginY, -2.25)
		}
	})
	C.Drift.Enabled = false
	R := run(t, C, nil)
	require.Empty(t, R.Failures)
	T, err := star.Read(R.Table)
	require.NoError(t, err)
	require.Equal(t, 4, T.Len())
	for i := 0; i < T.Len(); i++ {
		ox, _ := T.Value(i, star.OriginX)
		oy, _ := T.Value(i, star.OriginY)
		assert.Equal(t, "3.5", ox)
		assert.Equal(t, "-2.25", oy)
	}
}

//dropColumn removes the column name from T.
func dropColumn(T *star.Table, name string) {
	c := T.Index(name)
	if c < 0 {
		return
	}
	T.Columns = append(T.Columns[:c], T.Columns[c+1:]...)
	for i, r := range T.Rows {
		T.Rows[i] = append(r[:c], r[c+1:]...)
	}
}

func TestNoPhasePlate(t *testing.T) {
	C := setup(t, 2, 3, func(T *star.Table) { dropColumn(T, star.PhaseShift) })
	R := run(t, C, nil)
	require.Empty(t, R.Failures)
	require.Len(t, R.Micrographs, 2)
	for _, m := range R.Micrographs {
		mdir := filepath.Join(C.OutDir, micrographBase(m))
		for n := 0; n < C.Frames; n++ {
			slots := readDeck(t, filepath.Join(mdir, deckName(n)))
			assert.Equal(t, []string{"1000"}, slots["total_dose"], "10 e/A^2 per frame in e/nm^2, no phase plate")
			assert.Equal(t, []string{"0"}, slots["phase_shift"])
		}
	}
}

func TestPhasePlateFactorPerMicrograph(t *testing.T) {
	C := setup(t, 4, 3, nil)
	R := run(t, C, nil)
	require.Empty(t, R.Failures)
	require.Len(t, R.Micrographs, 4)
	for _, m := range R.Micrographs {
		mdir := filepath.Join(C.OutDir, micrographBase(m))
		for n := 0; n < C.Frames; n++ {
			slots := readDeck(t, filepath.Join(mdir, deckName(n)))
			assert.Equal(t, []string{"900"}, slots["total_dose"], "micrograph %s frame %d", m, n)
		}
	}
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	tables := make([]*star.Table, 0, 2)
	seeds := make([][]string, 0, 2)
	drifts := make([][]string, 0, 2)
	for _, workers := range []int{1, 4} {
		C := setup(t, 3, 2, nil)
		C.Workers = workers
		R := run(t, C, nil)
		require.Len(t, R.Micrographs, 3)
		var s, d []string
		for _, m := range R.Micrographs {
			mdir := filepath.Join(C.OutDir, micrographBase(m))
			for n := 0; n < C.Frames; n++ {
				s = append(s, readDeck(t, filepath.Join(mdir, deckName(n)))["rand_seed"]...)
			}
			b, err := os.ReadFile(filepath.Join(mdir, DriftFile))
			require.NoError(t, err)
			d = append(d, string(b))
		}
		T, err := star.Read(R.Table)
		require.NoError(t, err)
		tables = append(tables, T)
		seeds = append(seeds, s)
		drifts = append(drifts, d)
	}
	assert.Equal(t, seeds[0], seeds[1])
	assert.Equal(t, drifts[0], drifts[1])
	assert.NotEqual(t, drifts[0][0], drifts[0][1], "each micrograph has its own random stream")
	for _, c := range []string{star.OriginX, star.OriginY, star.ParticleID} {
		for i := 0; i < tables[0].Len(); i++ {
			a, _ := tables[0].Value(i, c)
			b, _ := tables[1].Value(i, c)
			assert.Equal(t, a, b, "column %s row %d", c, i)
		}
	}
}

func TestRandomStateReplay(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state.bin")
	var drifts []string
	for i := 0; i < 2; i++ {
		C := setup(t, 1, 4, nil)
		C.Seed = 0
		C.RandomState = state
		run(t, C, nil)
		b, err := os.ReadFile(filepath.Join(C.OutDir, "micrograph_000", DriftFile))
		require.NoError(t, err)
		drifts = append(drifts, string(b))
	}
	assert.FileExists(t, state)
	assert.Equal(t, drifts[0], drifts[1])
}

func TestMissingVolume(t *testing.T) {
	C := setup(t, 2, 2, nil)
	set, _ := mrc.NewVolumeSet(C.Maps)
	require.NoError(t, os.Remove(set.Path(15)))
	reg := prometheus.NewRegistry()
	M, err := NewMetrics(reg)
	require.NoError(t, err)
	R := run(t, C, M)
	require.Len(t, R.Failures, 2)
	for _, F := range R.Failures {
		var mv *mrc.MissingVolumeError
		require.True(t, errors.As(F, &mv), "got %v", F.Err)
		assert.Equal(t, "15.000", mv.Key)
		assert.Equal(t, Pending, F.State)
	}
	assert.Empty(t, R.Micrographs)
	T, err := star.Read(R.Table)
	require.NoError(t, err)
	assert.Zero(t, T.Len(), "the output table is written even when empty")
	assert.Equal(t, 2.0, testutil.ToFloat64(M.Micrographs.WithLabelValues("rejected")))
	assert.Zero(t, testutil.ToFloat64(M.Decks))
}

func TestIntegrityFailureDoesNotStopTheRun(t *testing.T) {
	C := setup(t, 2, 2, func(T *star.Table) {
		T.Set(5, star.DefocusU, "1") //second particle of micrograph_001
	})
	reg := prometheus.NewRegistry()
	M, err := NewMetrics(reg)
	require.NoError(t, err)
	R := run(t, C, M)
	assert.Equal(t, []string{"micrograph_000.mrc"}, R.Micrographs)
	require.Len(t, R.Failures, 1)
	assert.Equal(t, "micrograph_001.mrc", R.Failures[0].Micrograph)
	assert.Equal(t, map[string]State{"micrograph_000.mrc": Appended, "micrograph_001.mrc": Pending}, R.States)
	var ie *emprep.IntegrityError
	require.ErrorAs(t, R.Failures[0].Err, &ie)
	assert.Equal(t, star.DefocusU, ie.Field)
	assert.NoDirExists(t, filepath.Join(C.OutDir, "micrograph_001"))

	T, err := star.Read(R.Table)
	require.NoError(t, err)
	require.Equal(t, 4, T.Len())
	last, _ := T.Value(3, star.ParticleID)
	assert.Equal(t, "4", last)

	assert.Equal(t, 1.0, testutil.ToFloat64(M.Micrographs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(M.Micrographs.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(M.Decks))
	assert.Equal(t, 1, testutil.CollectAndCount(M.Duration))
}

func TestFailedMicrographIsDiscarded(t *testing.T) {
	C := setup(t, 1, 3, nil)
	C.Collision = emprep.Overwrite
	mdir := filepath.Join(C.OutDir, "micrograph_000")
	blocker := filepath.Join(mdir, deckName(1))
	require.NoError(t, os.MkdirAll(blocker, 0o755))
	R := run(t, C, nil)
	require.Len(t, R.Failures, 1)
	assert.Equal(t, DriftResolved, R.Failures[0].State)
	assert.Equal(t, DriftResolved, R.States["micrograph_000.mrc"])
	for _, v := range []string{CoordinateFile, DriftFile, deckName(0), errorName(0)} {
		assert.NoFileExists(t, filepath.Join(mdir, v))
	}
	assert.DirExists(t, blocker, "files emprep did not write are left alone")
}

func TestCollisionPolicies(t *testing.T) {
	t.Run("fail", func(t *testing.T) {
		C := setup(t, 1, 1, nil)
		run(t, C, nil)
		G, err := NewGenerator(C, nil, nil)
		require.NoError(t, err)
		_, err = G.Run(context.Background())
		var ce *emprep.CollisionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, OutputTable, filepath.Base(ce.Path))
	})

	t.Run("version", func(t *testing.T) {
		C := setup(t, 1, 1, nil)
		first := run(t, C, nil)
		C.Collision = emprep.Version
		R := run(t, C, nil)
		require.Empty(t, R.Failures)
		assert.Equal(t, "particles_1.star", filepath.Base(R.Table))
		assert.Equal(t, OutputTable, filepath.Base(first.Table))
		out, _ := filepath.Abs(C.OutDir)
		mdir := filepath.Join(out, "micrograph_000")
		slots := readDeck(t, filepath.Join(mdir, "input_frame_00_1.txt"))
		assert.Equal(t, []string{filepath.Join(mdir, "coordinates_1.txt")}, slots["coord_file_in"])
		assert.Equal(t, []string{filepath.Join(mdir, "error_frame_00_1.txt")}, slots["error_file_in"])
	})

	t.Run("duplicated micrograph names", func(t *testing.T) {
		C := setup(t, 2, 1, func(T *star.Table) {
			for i := 4; i < T.Len(); i++ {
				T.Set(i, star.MicrographName, "other/micrograph_000.mrc")
			}
		})
		C.Collision = emprep.Version
		R := run(t, C, nil)
		require.Empty(t, R.Failures)
		T, err := star.Read(R.Table)
		require.NoError(t, err)
		out, _ := filepath.Abs(C.OutDir)
		last, _ := T.Value(7, star.MicrographName)
		assert.Equal(t, filepath.Join(out, "micrograph_000_1.mrc"), last)
	})
}

func TestPlanWritesNothing(t *testing.T) {
	C := setup(t, 2, 3, nil)
	G, err := NewGenerator(C, nil, nil)
	require.NoError(t, err)
	P, err := G.Plan()
	require.NoError(t, err)
	assert.NoDirExists(t, C.OutDir)
	require.Len(t, P.Micrographs, 2)
	assert.Empty(t, P.Failures)
	assert.Len(t, P.Schedule, 3)
	for _, m := range P.Micrographs {
		assert.Equal(t, 4, m.Particles)
		assert.Len(t, m.Volumes, 3)
		assert.Len(t, m.Artifacts, 2+2*3, "coordinates, drift, and a deck and an error file per frame")
	}
	assert.Equal(t, OutputTable, filepath.Base(P.Table))

	C.MaxMicrographs = 1
	P, err = G.Plan()
	require.NoError(t, err)
	assert.Len(t, P.Micrographs, 1)
}
