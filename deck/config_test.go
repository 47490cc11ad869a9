package deck

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmera/emprep"
)

func TestConfigDefaults(t *testing.T) {
	C, err := DecodeConfig(`
particles = "in.star"
maps = "maps"
output_dir = "out"
`)
	require.NoError(t, err)
	assert.Equal(t, 30.0, C.Dose)
	assert.Equal(t, 1, C.Frames)
	assert.Equal(t, 3838, C.DetectorX)
	assert.Equal(t, 3710, C.DetectorY)
	assert.Equal(t, "proteasome", C.Species)
	assert.Equal(t, 1, C.MaxMicrographs)
	assert.Equal(t, emprep.Fail, C.Collision)
	assert.False(t, C.Drift.Enabled)
	assert.Equal(t, 1.0, C.Drift.MaxStep)
	assert.Equal(t, -0.1, C.Drift.DistanceDecay)
	assert.Equal(t, math.Pi/4, C.Drift.MaxAngle)
	assert.Equal(t, -0.4, C.Drift.AngleDecay)
	assert.Empty(t, C.Struct.Map)
	assert.Positive(t, C.Workers)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EMPREP_TEST_DATA", dir)
	name := filepath.Join(dir, "run.toml")
	require.NoError(t, os.WriteFile(name, []byte(`
particles = "${EMPREP_TEST_DATA}/particles.star"
maps = "${EMPREP_TEST_DATA}/maps"
output_dir = "${EMPREP_TEST_DATA}/out"
dose = 40
frames = 8
max_micrographs = -1
collision = "version"
workers = 3

[drift]
enabled = true
max_step = 2.5

[structural_noise]
map = "${EMPREP_TEST_DATA}/noise.mrc"
voxel_size = 2
`), 0o644))
	C, err := LoadConfig(name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "particles.star"), C.Particles)
	assert.Equal(t, filepath.Join(dir, "noise.mrc"), C.Struct.Map)
	assert.Equal(t, 40.0, C.Dose)
	assert.Equal(t, 8, C.Frames)
	assert.Equal(t, -1, C.MaxMicrographs)
	assert.Equal(t, emprep.Version, C.Collision)
	assert.Equal(t, 3, C.Workers)
	assert.True(t, C.Drift.Enabled)
	assert.Equal(t, 2.5, C.Drift.Params().MaxStep)
	assert.Equal(t, -0.4, C.Drift.Params().AngleDecay, "keys left out keep their defaults")
	assert.Equal(t, 2.0, C.Struct.VoxelSize)
}

func TestConfigErrors(t *testing.T) {
	base := "particles = \"a\"\nmaps = \"b\"\noutput_dir = \"c\"\n"
	cases := map[string]string{
		"missing particles": "maps = \"b\"\noutput_dir = \"c\"\n",
		"unknown key":       base + "frame_count = 3\n",
		"bad policy":        base + "collision = \"ask\"\n",
		"zero frames":       base + "frames = 0\n",
		"negative dose":     base + "dose = -1\n",
		"struct species":    base + "species = \"struct\"\n[structural_noise]\nmap = \"n.mrc\"\n",
		"syntax":            base + "dose = \n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeConfig(doc)
			assert.Error(t, err)
		})
	}
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
