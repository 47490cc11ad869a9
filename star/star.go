/*
 * star.go, part of emprep.
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

//Package star reads and writes the RELION STAR particle tables used to exchange particle
//records between emprep and the rest of the processing chain.
//
//Only the single-loop layout is supported: optional block markers (data_..., loop_), one field
//declaration per column (a line starting with '_' whose first token is the column name) and
//whitespace-delimited data rows, one value per declared column.
package star

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

//Prefix marks the column names that belong to the RELION namespace. Only those are written.
const Prefix = "_rln"

//Canonical column names.
const (
	CoordinateX       = "_rlnCoordinateX"
	CoordinateY       = "_rlnCoordinateY"
	AnglePsi          = "_rlnAnglePsi"
	AngleTilt         = "_rlnAngleTilt"
	AngleRot          = "_rlnAngleRot"
	DefocusU          = "_rlnDefocusU"
	DefocusV          = "_rlnDefocusV"
	DefocusAngle      = "_rlnDefocusAngle"
	PhaseShift        = "_rlnPhaseShift"
	Magnification     = "_rlnMagnification"
	DetectorPixelSize = "_rlnDetectorPixelSize"
	MicrographName    = "_rlnMicrographName"
	OriginX           = "_rlnOriginX"
	OriginY           = "_rlnOriginY"
	ParticleID        = "_rlnParticleId"
)

//Table is a decoded STAR loop. Values are kept as the text found in the file, so columns
//emprep doesn't know about survive a read/write cycle unchanged.
type Table struct {
	Columns []string
	Rows    [][]string //row-major, len(Rows[i])==len(Columns)
}

//New returns an empty table with the given columns.
func New(columns ...string) *Table {
	T := new(Table)
	T.Columns = append([]string(nil), columns...)
	T.Rows = make([][]string, 0)
	return T
}

//Len returns the number of rows.
func (T *Table) Len() int {
	return len(T.Rows)
}

//Index returns the position of column name, or -1 if the table doesn't have it.
func (T *Table) Index(name string) int {
	for i, v := range T.Columns {
		if v == name {
			return i
		}
	}
	return -1
}

//Has returns true if the table contains the column name.
func (T *Table) Has(name string) bool {
	return T.Index(name) >= 0
}

//Value returns the raw text in the given row and column.
func (T *Table) Value(row int, name string) (string, error) {
	c := T.Index(name)
	if c < 0 {
		return "", &Error{message: "missing column " + name, line: -1}
	}
	return T.Rows[row][c], nil
}

//Float parses the value in the given row and column as a float64.
func (T *Table) Float(row int, name string) (float64, error) {
	s, err := T.Value(row, name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &Error{message: fmt.Sprintf("column %s, row %d: %s", name, row, err.Error()), line: -1}
	}
	return f, nil
}

//AddColumn adds the column name, filled with fill, unless the table already has it.
//It returns the index of the column.
func (T *Table) AddColumn(name, fill string) int {
	if i := T.Index(name); i >= 0 {
		return i
	}
	T.Columns = append(T.Columns, name)
	for i := range T.Rows {
		T.Rows[i] = append(T.Rows[i], fill)
	}
	return len(T.Columns) - 1
}

//Set puts v in the given row and column, adding the column (filled with "0") if needed.
func (T *Table) Set(row int, name, v string) {
	c := T.AddColumn(name, "0")
	T.Rows[row][c] = v
}

//SetFloat is Set for a float64, formatted with the shortest exact representation.
func (T *Table) SetFloat(row int, name string, v float64) {
	T.Set(row, name, strconv.FormatFloat(v, 'f', -1, 64))
}

//Select returns a new table with copies of the rows with the given indexes, in that order.
func (T *Table) Select(rows []int) *Table {
	ret := New(T.Columns...)
	for _, r := range rows {
		ret.Rows = append(ret.Rows, append([]string(nil), T.Rows[r]...))
	}
	return ret
}

//Append adds the rows of other to T. Columns are matched by name; columns present only in
//other are added to T (filled with "0"), columns missing in other are filled with "0".
func (T *Table) Append(other *Table) {
	idx := make([]int, len(other.Columns))
	for i, v := range other.Columns {
		idx[i] = T.AddColumn(v, "0")
	}
	for _, r := range other.Rows {
		row := make([]string, len(T.Columns))
		for i := range row {
			row[i] = "0"
		}
		for i, v := range r {
			row[idx[i]] = v
		}
		T.Rows = append(T.Rows, row)
	}
}

func isBlockMarker(s string) bool {
	return strings.HasPrefix(s, "data_") || strings.HasPrefix(s, "loop_")
}

//Decode reads a STAR table from r. The header zone ends at the first line that is not blank,
//not a block marker and not a field declaration; that line and every following non-blank line is a
//data row. A header without field declarations gives a valid table with no columns.
func Decode(r io.Reader) (*Table, error) {
	T := New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	header := true
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if header {
			switch {
			case line == "" || isBlockMarker(line):
				continue
			case strings.HasPrefix(line, "_"):
				T.Columns = append(T.Columns, strings.Fields(line)[0])
				continue
			}
			header = false
		}
		if line == "" {
			continue
		}
		if len(T.Columns) == 0 {
			break //nothing can be assigned to a table without columns
		}
		fields := strings.Fields(line)
		if len(fields) != len(T.Columns) {
			return nil, &Error{message: fmt.Sprintf("%d values in a row, %d columns declared", len(fields), len(T.Columns)), line: lineno, deco: []string{"Decode"}}
		}
		T.Rows = append(T.Rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, &Error{message: err.Error(), line: lineno, deco: []string{"Decode"}}
	}
	return T, nil
}

//Encode writes T to w: the block markers, one declaration per column carrying the RELION prefix,
//and tab-delimited rows with only those columns, in the same order. Other columns are dropped.
//A table with no RELION columns is written as the block markers alone.
func Encode(w io.Writer, T *Table) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("data_\nloop_\n")
	keep := make([]int, 0, len(T.Columns))
	for i, v := range T.Columns {
		if !strings.HasPrefix(v, Prefix) {
			continue
		}
		keep = append(keep, i)
		bw.WriteString(v + "\n")
	}
	vals := make([]string, len(keep))
	if len(keep) == 0 {
		T = New()
	}
	for _, r := range T.Rows {
		for i, k := range keep {
			vals[i] = r[k]
		}
		bw.WriteString(strings.Join(vals, "\t"))
		bw.WriteString("\n")
	}
	if err := bw.Flush(); err != nil {
		return &Error{message: err.Error(), line: -1, deco: []string{"Encode"}}
	}
	return nil
}

//Read decodes the STAR file name.
func Read(name string) (*Table, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	T, err := Decode(f)
	if err != nil {
		e := err.(*Error)
		e.filename = name
		e.Decorate("Read")
		return nil, e
	}
	return T, nil
}

//Write encodes T into the file name, which must not exist.
func Write(name string, T *Table) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &Error{message: err.Error(), filename: name, line: -1, deco: []string{"Write"}}
	}
	if err = Encode(f, T); err != nil {
		f.Close()
		err.(*Error).Decorate("Write")
		return err
	}
	return f.Close()
}

//Error is the error type of the package. It fulfills emprep.Error.
type Error struct {
	message  string
	filename string
	line     int //-1 if not associated to a line
	deco     []string
}

func (err *Error) Error() string {
	ret := "star"
	if err.filename != "" {
		ret += " file " + err.filename
	}
	if err.line >= 0 {
		ret += fmt.Sprintf(" line %d", err.line)
	}
	return ret + ": " + err.message
}

//Decorate adds information to the error.
func (err *Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}
