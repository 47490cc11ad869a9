package star

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeHeaderZone(Te *testing.T) {
	fmt.Println("STAR header zone test!")
	in := `
data_

loop_
_rlnCoordinateX #1
_rlnCoordinateY #2
_rlnAnglePsi #3
1919.0   1855.0  12.5
10 20	-30
`
	T, err := Decode(strings.NewReader(in))
	if err != nil {
		Te.Fatal(err)
	}
	want := &Table{
		Columns: []string{CoordinateX, CoordinateY, AnglePsi},
		Rows:    [][]string{{"1919.0", "1855.0", "12.5"}, {"10", "20", "-30"}},
	}
	if diff := cmp.Diff(want, T); diff != "" {
		Te.Errorf("decoded table mismatch (-want +got):\n%s", diff)
	}
	f, err := T.Float(1, AnglePsi)
	if err != nil || f != -30 {
		Te.Errorf("Float: got %v, %v", f, err)
	}
}

func TestRoundTrip(Te *testing.T) {
	T := New(MicrographName, CoordinateX, CoordinateY, ParticleID)
	T.Rows = append(T.Rows,
		[]string{"mics/a.mrc", "1", "2", "0"},
		[]string{"mics/b.mrc", "3.5", "-4", "1"},
	)
	var b bytes.Buffer
	if err := Encode(&b, T); err != nil {
		Te.Fatal(err)
	}
	T2, err := Decode(&b)
	if err != nil {
		Te.Fatal(err)
	}
	if diff := cmp.Diff(T, T2); diff != "" {
		Te.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDropsForeignColumns(Te *testing.T) {
	T := New("x", CoordinateX, "_other", CoordinateY)
	T.Rows = append(T.Rows, []string{"a", "1", "b", "2"})
	var b bytes.Buffer
	if err := Encode(&b, T); err != nil {
		Te.Fatal(err)
	}
	want := "data_\nloop_\n_rlnCoordinateX\n_rlnCoordinateY\n1\t2\n"
	if b.String() != want {
		Te.Errorf("got %q, want %q", b.String(), want)
	}
	T2, err := Decode(&b)
	if err != nil {
		Te.Fatal(err)
	}
	if diff := cmp.Diff([]string{CoordinateX, CoordinateY}, T2.Columns); diff != "" {
		Te.Error(diff)
	}
}

func TestEmptyInputs(Te *testing.T) {
	T, err := Decode(strings.NewReader(""))
	if err != nil {
		Te.Fatal(err)
	}
	if len(T.Columns) != 0 || T.Len() != 0 {
		Te.Errorf("empty file gave %d columns and %d rows", len(T.Columns), T.Len())
	}
	T, err = Decode(strings.NewReader("data_\nloop_\n"))
	if err != nil {
		Te.Fatal(err)
	}
	if len(T.Columns) != 0 || T.Len() != 0 {
		Te.Errorf("header without fields gave %d columns and %d rows", len(T.Columns), T.Len())
	}
}

func TestEncodeWithoutRelionColumns(Te *testing.T) {
	T := New("x", "_other")
	T.Rows = append(T.Rows, []string{"a", "b"}, []string{"c", "d"})
	var b bytes.Buffer
	if err := Encode(&b, T); err != nil {
		Te.Fatal(err)
	}
	if b.String() != "data_\nloop_\n" {
		Te.Errorf("got %q, want only the block markers", b.String())
	}
	if T.Len() != 2 {
		Te.Errorf("encoding changed the table: %d rows", T.Len())
	}
}

func TestRaggedRow(Te *testing.T) {
	_, err := Decode(strings.NewReader("loop_\n_rlnA\n_rlnB\n1 2\n3\n"))
	if err == nil {
		Te.Fatal("a short row should be a format error")
	}
	e, ok := err.(*Error)
	if !ok || e.line != 5 {
		Te.Errorf("unexpected error %v", err)
	}
}

func TestTableEdit(Te *testing.T) {
	T := New(MicrographName, CoordinateX)
	T.Rows = append(T.Rows, []string{"a", "1"}, []string{"b", "2"})
	T.SetFloat(1, OriginX, -2.5)
	if got, _ := T.Value(0, OriginX); got != "0" {
		Te.Errorf("new column should be zero-filled, got %q", got)
	}
	if got, _ := T.Value(1, OriginX); got != "-2.5" {
		Te.Errorf("got %q", got)
	}
	S := T.Select([]int{1})
	S.Set(0, MicrographName, "c")
	if T.Rows[1][0] != "b" {
		Te.Error("Select must copy rows")
	}
	O := New(CoordinateX, MicrographName, ParticleID)
	O.Rows = append(O.Rows, []string{"9", "d", "7"})
	T.Append(O)
	want := [][]string{{"a", "1", "0", "0"}, {"b", "2", "-2.5", "0"}, {"d", "9", "0", "7"}}
	if diff := cmp.Diff(want, T.Rows); diff != "" {
		Te.Error(diff)
	}
}

func TestFileIO(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "particles.star")
	T := New(CoordinateX, CoordinateY)
	T.Rows = append(T.Rows, []string{"1", "2"})
	if err := Write(name, T); err != nil {
		Te.Fatal(err)
	}
	T2, err := Read(name)
	if err != nil {
		Te.Fatal(err)
	}
	if diff := cmp.Diff(T, T2); diff != "" {
		Te.Error(diff)
	}
	if err := Write(name, T); err == nil {
		Te.Error("an existing table should not be overwritten")
	}
}
