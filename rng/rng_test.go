package rng

import (
	"os"
	"path/filepath"
	"testing"
)

func draws(S *Source, n int) []uint64 {
	ret := make([]uint64, n)
	for i := range ret {
		ret[i] = S.Uint64()
	}
	return ret
}

func TestSaveRestore(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "rand.state")
	S, created, err := LoadOrCreate(name, 42)
	if err != nil || !created {
		Te.Fatalf("created %v err %v", created, err)
	}
	first := draws(S, 5)
	S2, created, err := LoadOrCreate(name, 7)
	if err != nil || created {
		Te.Fatalf("second call should load the saved state: created %v err %v", created, err)
	}
	again := draws(S2, 5)
	for i := range first {
		if first[i] != again[i] {
			Te.Fatalf("restored source diverges at draw %d", i)
		}
	}
	if err := New(9).Save(name); err == nil {
		Te.Error("an existing state file should not be replaced")
	}
	S3, _, err := LoadOrCreate(name, 0)
	if err != nil || draws(S3, 1)[0] != first[0] {
		Te.Errorf("state file changed after a refused save: %v", err)
	}
}

func TestDerive(Te *testing.T) {
	root := New(3)
	before := root.State()
	a1 := draws(root.Derive("a.mrc"), 3)
	a2 := draws(root.Derive("a.mrc"), 3)
	b := draws(root.Derive("b.mrc"), 3)
	if string(before) != string(root.State()) {
		Te.Error("Derive must not advance the root source")
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			Te.Fatal("same key gave different sub-streams")
		}
	}
	if a1[0] == b[0] && a1[1] == b[1] {
		Te.Error("different keys gave the same sub-stream")
	}
}

func TestStableSeed(Te *testing.T) {
	s := StableSeed("micrograph_000.mrc")
	if s < 0 || s != StableSeed("micrograph_000.mrc") {
		Te.Errorf("unstable or negative seed %d", s)
	}
	if s == StableSeed("micrograph_001.mrc") {
		Te.Error("distinct names should give distinct seeds")
	}
}

func TestCorruptState(Te *testing.T) {
	dir := Te.TempDir()
	name := filepath.Join(dir, "bad.state")
	if err := os.WriteFile(name, []byte("not a state"), 0o644); err != nil {
		Te.Fatal(err)
	}
	if _, _, err := LoadOrCreate(name, 1); err == nil {
		Te.Error("a corrupt state file must be reported, not replaced")
	}
	if _, err := Load(filepath.Join(dir, "missing.state")); err == nil {
		Te.Error("loading a missing file should fail")
	}
}
