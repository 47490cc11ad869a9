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

package drift

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

//Encode writes T as tab-separated x and y values, one line per frame, without header.
func (T Trajectory) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, v := range T {
		bw.WriteString(strconv.FormatFloat(v.X, 'f', -1, 64))
		bw.WriteByte('\t')
		bw.WriteString(strconv.FormatFloat(v.Y, 'f', -1, 64))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return &Error{err.Error(), "", []string{"Encode"}, true}
	}
	return nil
}

//Decode reads a trajectory written by Encode. Blank lines are ignored.
func Decode(r io.Reader) (Trajectory, error) {
	T := make(Trajectory, 0)
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		if len(f) != 2 {
			return nil, &Error{fmt.Sprintf("line %d: %d fields, expected 2", lineno, len(f)), "", []string{"Decode"}, true}
		}
		var p Point
		var err error
		if p.X, err = strconv.ParseFloat(f[0], 64); err != nil {
			return nil, &Error{fmt.Sprintf("line %d: %s", lineno, err), "", []string{"Decode"}, true}
		}
		if p.Y, err = strconv.ParseFloat(f[1], 64); err != nil {
			return nil, &Error{fmt.Sprintf("line %d: %s", lineno, err), "", []string{"Decode"}, true}
		}
		T = append(T, p)
	}
	if err := sc.Err(); err != nil {
		return nil, &Error{err.Error(), "", []string{"Decode"}, true}
	}
	return T, nil
}

//Read reads the trajectory in the file name.
func Read(name string) (Trajectory, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, &Error{err.Error(), name, []string{"Read"}, true}
	}
	defer f.Close()
	T, err := Decode(f)
	if err != nil {
		e := err.(*Error)
		e.filename = name
		e.deco = append(e.deco, "Read")
		return nil, e
	}
	return T, nil
}

//MotionCor2 reports the shift of each frame in lines such as
//"...... Frame (  1) shift:    -0.9374      0.5411"
const motionCorFramePrefix = "...... Frame "

var decimalRe = regexp.MustCompile(`[-+]?\d*\.\d+`)

//ReadMotionCorLog reads the per-frame shifts, in pixels, from a MotionCor2 log. Only
//the first two decimal numbers of each frame line are used; the frame number is an integer
//and is not matched.
func ReadMotionCorLog(r io.Reader) (Trajectory, error) {
	T := make(Trajectory, 0)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, motionCorFramePrefix) {
			continue
		}
		nums := decimalRe.FindAllString(line, 2)
		if len(nums) < 2 {
			return nil, &Error{fmt.Sprintf("can't find the shifts in %q", line), "", []string{"ReadMotionCorLog"}, true}
		}
		x, errx := strconv.ParseFloat(nums[0], 64)
		y, erry := strconv.ParseFloat(nums[1], 64)
		if errx != nil || erry != nil {
			return nil, &Error{fmt.Sprintf("can't parse the shifts in %q", line), "", []string{"ReadMotionCorLog"}, true}
		}
		T = append(T, Point{x, y})
	}
	if err := sc.Err(); err != nil {
		return nil, &Error{err.Error(), "", []string{"ReadMotionCorLog"}, true}
	}
	return T, nil
}

//ShiftsToNanometers converts shifts in pixels to nm, given the pixel size in A.
func ShiftsToNanometers(T Trajectory, apix float64) Trajectory {
	return T.Scale(apix / 10)
}

//Error is the error type of the package. It fulfills emprep.Error.
type Error struct {
	message  string
	filename string
	deco     []string
	critical bool
}

func (err *Error) Error() string {
	if err.filename == "" {
		return "drift: " + err.message
	}
	return fmt.Sprintf("drift file %s: %s", err.filename, err.message)
}

//Decorate will add the dec string to the decoration slice of strings of the error,
//and return the resulting slice.
func (err *Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

//Critical return whether the error is critical or it can be ignored
func (err *Error) Critical() bool { return err.critical }

func errDecorate(err error, caller string) error {
	if e, ok := err.(*Error); ok {
		e.deco = append(e.deco, caller)
		return e
	}
	return err
}
