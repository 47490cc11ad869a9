package drift

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rmera/emprep"
	"github.com/rmera/emprep/rng"
)

func TestGenerate(Te *testing.T) {
	P := new(Params)
	P.SetDefaults()
	for _, n := range []int{1, 2, 7, 40} {
		T, err := Generate(rng.New(11), n, P)
		if err != nil {
			Te.Fatal(err)
		}
		if len(T) != n {
			Te.Fatalf("%d frames requested, %d generated", n, len(T))
		}
		if T[0] != (Point{}) {
			Te.Errorf("first frame at %v", T[0])
		}
		for i, s := range T.Steps() {
			if s < 0 || s >= P.MaxStep*math.Exp(P.DistanceDecay*float64(i)) {
				Te.Errorf("step %d of length %v is outside its envelope", i, s)
			}
		}
	}
	T := Trajectory{{0, 0}, {3, 4}, {3, 4}, {0, 0}}
	if l := T.Length(); l != 10 {
		Te.Errorf("path length %v, want 10", l)
	}
	if l := (Trajectory{{1, 1}}).Length(); l != 0 {
		Te.Errorf("single frame path length %v", l)
	}
	if _, err := Generate(rng.New(1), 0, P); err == nil {
		Te.Error("zero frames should be an error")
	}
}

func TestGenerateReplay(Te *testing.T) {
	a, _ := Generate(rng.New(5), 10, nil)
	b, _ := Generate(rng.New(5), 10, nil)
	c, _ := Generate(rng.New(6), 10, nil)
	for i := range a {
		if a[i] != b[i] {
			Te.Fatalf("same seed, different frame %d: %v %v", i, a[i], b[i])
		}
	}
	if a[9] == c[9] {
		Te.Error("different seeds gave the same trajectory")
	}
}

func TestPositiveDecay(Te *testing.T) {
	//Growing envelopes are unusual but allowed.
	P := &Params{MaxStep: 0.1, DistanceDecay: 0.5, MaxAngle: 0, AngleDecay: 1}
	T, err := Generate(rng.New(3), 6, P)
	if err != nil {
		Te.Fatal(err)
	}
	//With no turning, the walk is a straight line from the origin.
	dir := math.Atan2(T[1].Y, T[1].X)
	for _, p := range T[2:] {
		if math.Hypot(p.X, p.Y) > 1e-12 && math.Abs(math.Atan2(p.Y, p.X)-dir) > 1e-9 {
			Te.Errorf("point %v is off the initial heading %v", p, dir)
		}
	}
}

func TestTrajectoryFile(Te *testing.T) {
	T, _ := Generate(rng.New(2), 5, nil)
	name := filepath.Join(Te.TempDir(), "drift.txt")
	if _, err := emprep.WriteFile(name, emprep.Fail, T.Encode); err != nil {
		Te.Fatal(err)
	}
	R, err := Read(name)
	if err != nil {
		Te.Fatal(err)
	}
	if len(R) != len(T) {
		Te.Fatalf("read %d frames, wrote %d", len(R), len(T))
	}
	for i := range T {
		if R[i] != T[i] {
			Te.Errorf("frame %d: read %v, wrote %v", i, R[i], T[i])
		}
	}
	var b bytes.Buffer
	T.Encode(&b)
	if strings.Count(b.String(), "\t") != 5 || strings.Contains(b.String(), "#") {
		Te.Errorf("unexpected layout:\n%s", b.String())
	}
	if _, err := Decode(strings.NewReader("1\t2\t3\n")); err == nil {
		Te.Error("three fields should be an error")
	}
}

const motionCorLog = `MotionCor2 version 1.2.1
Full-frame alignment shift
...... Frame (  1) shift:    -1.2000      0.5000
...... Frame (  2) shift:     0.0000      0.0000
...... Frame (  3) shift:     2.5000     -3.0000
Computational time: 1.2 sec
`

func TestMotionCorLog(Te *testing.T) {
	T, err := ReadMotionCorLog(strings.NewReader(motionCorLog))
	if err != nil {
		Te.Fatal(err)
	}
	if len(T) != 3 || T[0] != (Point{-1.2, 0.5}) || T[2] != (Point{2.5, -3}) {
		Te.Fatalf("read %v", T)
	}
	N := ShiftsToNanometers(T, 2)
	if math.Abs(N[2].X-0.5) > 1e-12 || math.Abs(N[2].Y+0.6) > 1e-12 {
		Te.Errorf("converted %v", N[2])
	}
	mean, std := T.StepStats()
	if mean <= 0 || std <= 0 {
		Te.Errorf("step stats %v %v", mean, std)
	}
	if T.Reference() != 1 {
		Te.Errorf("reference frame %d", T.Reference())
	}
}

func TestErrorDecoration(Te *testing.T) {
	_, err := Read(filepath.Join(Te.TempDir(), "none.txt"))
	err = emprep.ErrDecorate(err, "caller")
	var e emprep.Error
	if !errors.As(err, &e) {
		Te.Fatalf("%v does not implement emprep.Error", err)
	}
	if d := e.Decorate(""); len(d) != 2 || d[0] != "Read" || d[1] != "caller" {
		Te.Errorf("decorations %v", d)
	}
}
