/*
 * files.go, part of emprep.
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

package coord

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rmera/emprep"
	v3 "github.com/rmera/emprep/v3"
)

//Legend is the second line of a simulator coordinate file.
const Legend = "#            x             y             z           phi         theta           psi"

//Encode writes a simulator coordinate file: a line with the number of particles and the number
//of columns (6), the legend, and one tab-separated row (x, y, z, phi, theta, psi) per particle.
//pos is in nm and angles are in the simulator convention, in degrees.
func Encode(w io.Writer, pos, angles *v3.Matrix) error {
	n := pos.NVecs()
	if angles.NVecs() != n {
		return emprep.NewError(fmt.Sprintf("%d positions but %d orientations", n, angles.NVecs()), "coord.Encode")
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d  6\n%s\n", n, Legend)
	vals := make([]string, 6)
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			vals[j] = strconv.FormatFloat(pos.At(i, j), 'f', -1, 64)
			vals[j+3] = strconv.FormatFloat(angles.At(i, j), 'f', -1, 64)
		}
		bw.WriteString(strings.Join(vals, "\t"))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return emprep.NewError(err.Error(), "coord.Encode")
	}
	return nil
}

//Write writes a coordinate file named name. An existing file is handled according to P.
//It returns the name actually written.
func Write(name string, pos, angles *v3.Matrix, P emprep.Policy) (string, error) {
	path, err := emprep.WriteFile(name, P, func(w io.Writer) error { return Encode(w, pos, angles) })
	if err != nil {
		return "", emprep.ErrDecorate(err, "coord.Write")
	}
	return path, nil
}

//Decode reads a coordinate file written by Encode. Comment lines are skipped and the number
//of rows must match the count in the first line.
func Decode(r io.Reader) (pos, angles *v3.Matrix, err error) {
	sc := bufio.NewScanner(r)
	n := -1
	data := make([]float64, 0)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Fields(line)
		if n < 0 {
			if len(f) != 2 || f[1] != "6" {
				return nil, nil, emprep.NewError(fmt.Sprintf("line %d: bad header %q", lineno, line), "coord.Decode")
			}
			if n, err = strconv.Atoi(f[0]); err != nil || n < 0 {
				return nil, nil, emprep.NewError(fmt.Sprintf("line %d: bad particle count %q", lineno, f[0]), "coord.Decode")
			}
			continue
		}
		if len(f) != 6 {
			return nil, nil, emprep.NewError(fmt.Sprintf("line %d: %d values, expected 6", lineno, len(f)), "coord.Decode")
		}
		for _, v := range f {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, nil, emprep.NewError(fmt.Sprintf("line %d: %s", lineno, err), "coord.Decode")
			}
			data = append(data, x)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, emprep.NewError(err.Error(), "coord.Decode")
	}
	if n <= 0 || len(data) != 6*n {
		return nil, nil, emprep.NewError(fmt.Sprintf("header announces %d particles, %d found", n, len(data)/6), "coord.Decode")
	}
	pos, angles = v3.Zeros(n), v3.Zeros(n)
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			pos.Set(i, j, data[6*i+j])
			angles.Set(i, j, data[6*i+j+3])
		}
	}
	return pos, angles, nil
}

//Read reads the coordinate file name.
func Read(name string) (pos, angles *v3.Matrix, err error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, emprep.NewError(err.Error(), "coord.Read")
	}
	defer f.Close()
	pos, angles, err = Decode(f)
	return pos, angles, emprep.ErrDecorate(err, "coord.Read")
}
