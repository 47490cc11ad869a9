package mrc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/rmera/emprep"
)

func testVolume() *emprep.Volume {
	V := emprep.NewVolume(3, 4, 5)
	for i := range V.Data {
		V.Data[i] = float64(i)*0.5 - 7
	}
	return V
}

func TestWriteRead(Te *testing.T) {
	fmt.Println("MRC write/read test!")
	dir := Te.TempDir()
	V := testVolume()
	for _, name := range []string{"map.mrc", "map.mrc.zst"} {
		name = filepath.Join(dir, name)
		if _, err := Write(name, V, 1.3, emprep.Fail); err != nil {
			Te.Fatal(err)
		}
		W, H, err := Read(name)
		if err != nil {
			Te.Fatal(err)
		}
		if !W.SameShape(V) {
			Te.Fatalf("%s: shape %v, want %v", name, W.Shape, V.Shape)
		}
		for i, v := range V.Data {
			if W.Data[i] != v {
				Te.Fatalf("%s: element %d is %v, want %v", name, i, W.Data[i], v)
			}
		}
		if math.Abs(H.VoxelSize()-1.3) > 1e-6 {
			Te.Errorf("%s: voxel size %v", name, H.VoxelSize())
		}
		if H.DMin != -7 || H.DMax != float32(V.Max()) {
			Te.Errorf("%s: header min/max %v %v", name, H.DMin, H.DMax)
		}
		if H.Label(0) != "emprep" {
			Te.Errorf("%s: label %q", name, H.Label(0))
		}
	}
}

func TestSmallDimensions(Te *testing.T) {
	V := emprep.NewVolume(2, 3)
	H, err := NewHeader(V, 1)
	if err != nil {
		Te.Fatal(err)
	}
	if H.NZ != 1 || H.NY != 2 || H.NX != 3 {
		Te.Errorf("2D volume stored as %d x %d x %d", H.NZ, H.NY, H.NX)
	}
	if _, err := NewHeader(emprep.NewVolume(1, 1, 1, 1), 1); err == nil {
		Te.Error("a 4D volume should be rejected")
	}
	var ie *emprep.InputError
	if _, err := NewHeader(V, 0); !errors.As(err, &ie) {
		Te.Errorf("zero voxel size: got %v", err)
	}
}

//bigEndianInt16 builds by hand a 2x2x1 mode 1 map as written by an old big-endian machine,
//with an extended header.
func bigEndianInt16() []byte {
	H := new(Header)
	H.NX, H.NY, H.NZ = 2, 2, 1
	H.MX, H.MY, H.MZ = 2, 2, 1
	H.Mode = ModeInt16
	H.CellA = [3]float32{4, 4, 2}
	H.MapC, H.MapR, H.MapS = 1, 2, 3
	H.NSymBT = 8
	H.MachSt = [4]byte{0x11, 0x11, 0, 0}
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, H)
	b.Write(make([]byte, 8))
	binary.Write(&b, binary.BigEndian, []int16{-3, 0, 7, 300})
	return b.Bytes()
}

func TestDecodeBigEndian(Te *testing.T) {
	V, H, err := Decode(bytes.NewReader(bigEndianInt16()))
	if err != nil {
		Te.Fatal(err)
	}
	want := []float64{-3, 0, 7, 300}
	for i, v := range want {
		if V.Data[i] != v {
			Te.Errorf("element %d is %v, want %v", i, V.Data[i], v)
		}
	}
	if H.VoxelSize() != 2 {
		Te.Errorf("voxel size %v", H.VoxelSize())
	}
}

func TestDecodeErrors(Te *testing.T) {
	raw := bigEndianInt16()
	if _, _, err := Decode(bytes.NewReader(raw[:len(raw)-1])); err == nil {
		Te.Error("truncated data should be an error")
	}
	if _, _, err := Decode(bytes.NewReader(raw[:100])); err == nil {
		Te.Error("truncated header should be an error")
	}
	bad := append([]byte(nil), raw...)
	binary.BigEndian.PutUint32(bad[12:], 4) //complex mode
	if _, _, err := Decode(bytes.NewReader(bad)); err == nil {
		Te.Error("unsupported mode should be an error")
	}
	if _, _, err := Read(filepath.Join(Te.TempDir(), "none.mrc")); err == nil {
		Te.Error("missing file should be an error")
	}
}

func TestVolumeSet(Te *testing.T) {
	S, err := NewVolumeSet(filepath.Join(Te.TempDir(), "maps"))
	if err != nil {
		Te.Fatal(err)
	}
	D, _ := emprep.NewDoseSchedule(30, 4)
	for _, d := range D[:3] {
		if _, err := S.Store(d, testVolume(), 1, emprep.Fail); err != nil {
			Te.Fatal(err)
		}
	}
	name, err := S.Lookup(7.5)
	if err != nil {
		Te.Fatal(err)
	}
	if filepath.Base(name) != "filt_7.500.mrc" {
		Te.Errorf("lookup gave %s", name)
	}
	//7.5004 and 7.5 share the key 7.500.
	if _, err := S.Lookup(7.5004); err != nil {
		Te.Errorf("lookup must go through the dose key: %v", err)
	}
	_, err = S.LookupSchedule(D)
	var me *MissingVolumeError
	if !errors.As(err, &me) {
		Te.Fatalf("expected a missing volume error, got %v", err)
	}
	if me.Key != "22.500" {
		Te.Errorf("missing key %s", me.Key)
	}
	keys, err := S.Keys()
	if err != nil {
		Te.Fatal(err)
	}
	if len(keys) != 3 || keys[0] != "0.000" {
		Te.Errorf("keys %v", keys)
	}
}

func TestStoreCollision(Te *testing.T) {
	S, err := NewVolumeSet(filepath.Join(Te.TempDir(), "maps"))
	if err != nil {
		Te.Fatal(err)
	}
	first, err := S.Store(0, testVolume(), 1, emprep.Fail)
	if err != nil {
		Te.Fatal(err)
	}
	if filepath.Base(first) != "filt_0.000.mrc" {
		Te.Fatalf("stored as %s", first)
	}
	_, err = S.Store(0, emprep.FlatNoise(2, 3, 3), 1, emprep.Fail)
	var ce *emprep.CollisionError
	if !errors.As(err, &ce) {
		Te.Fatalf("expected a collision error, got %v", err)
	}
	if ce.Path != first {
		Te.Errorf("collision on %s, want %s", ce.Path, first)
	}
	V, _, err := Read(first)
	if err != nil {
		Te.Fatal(err)
	}
	if !V.SameShape(testVolume()) {
		Te.Errorf("the existing map was modified: shape %v", V.Shape)
	}
	name, err := S.Store(0, emprep.FlatNoise(2, 3, 3), 1, emprep.Version)
	if err != nil {
		Te.Fatal(err)
	}
	if filepath.Base(name) != "filt_0.000_1.mrc" {
		Te.Errorf("versioned map stored as %s", name)
	}
	if got, _ := S.Lookup(0); got != first {
		Te.Errorf("lookup gave %s, want the first map %s", got, first)
	}
	name, err = S.Store(0, emprep.FlatNoise(2, 3, 3), 1, emprep.Overwrite)
	if err != nil {
		Te.Fatal(err)
	}
	V, _, err = Read(name)
	if err != nil {
		Te.Fatal(err)
	}
	if name != first || !V.SameShape(emprep.FlatNoise(2, 3, 3)) {
		Te.Errorf("overwrite gave %s with shape %v", name, V.Shape)
	}
}
