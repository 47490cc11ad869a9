/*
 * policy.go, part of emprep.
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

package emprep

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//Policy decides what happens when an output file already exists.
type Policy int

const (
	Fail      Policy = iota //the file is not written and the operation fails
	Overwrite               //the existing file is replaced
	Version                 //the file is written as name_1.ext, name_2.ext... whichever is free first
)

var policyNames = []string{"fail", "overwrite", "version"}

func (P Policy) String() string {
	if P < 0 || int(P) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", int(P))
	}
	return policyNames[P]
}

//ParsePolicy returns the policy named s.
func ParsePolicy(s string) (Policy, error) {
	for i, v := range policyNames {
		if strings.EqualFold(s, v) {
			return Policy(i), nil
		}
	}
	return Fail, NewError(fmt.Sprintf("unknown collision policy %q (use one of %s)", s, strings.Join(policyNames, ", ")), "ParsePolicy")
}

//Set implements flag.Value.
func (P *Policy) Set(s string) error {
	return P.UnmarshalText([]byte(s))
}

//MarshalText implements encoding.TextMarshaler.
func (P Policy) MarshalText() ([]byte, error) {
	return []byte(P.String()), nil
}

//UnmarshalText implements encoding.TextUnmarshaler, so a policy can be given by name in a
//configuration file.
func (P *Policy) UnmarshalText(b []byte) error {
	p, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*P = p
	return nil
}

//CollisionError means that an output file exists and the policy doesn't allow replacing it.
type CollisionError struct {
	Decorations
	Path string
}

func (err *CollisionError) Error() string {
	return fmt.Sprintf("output file %s already exists%s", err.Path, err.chain())
}

//NewCollisionError returns a CollisionError for path, decorated with caller.
func NewCollisionError(path, caller string) *CollisionError {
	e := &CollisionError{Path: path}
	e.Decorate(caller)
	return e
}

//Versioned returns name with _n added before the extension.
func Versioned(name string, n int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

//FileExists returns whether something is at name. Errors other than a missing file count as existing.
func FileExists(name string) bool {
	_, err := os.Lstat(name)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

//ResolvePath applies P to a single output file. It returns the path to write, which under
//Version may be a versioned name, or a CollisionError under Fail if name exists.
func ResolvePath(name string, P Policy) (string, error) {
	if P == Overwrite || !FileExists(name) {
		return name, nil
	}
	if P == Fail {
		return "", NewCollisionError(name, "ResolvePath")
	}
	for n := 1; ; n++ {
		if v := Versioned(name, n); !FileExists(v) {
			return v, nil
		}
	}
}

//Create opens a resolved path for writing. Unless P is Overwrite, the file must not exist
//yet, so a file that appeared after the path was resolved is a collision, not a silent overwrite.
func Create(name string, P Policy) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if P == Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(name, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, NewCollisionError(name, "Create")
	}
	if err != nil {
		return nil, NewError(err.Error(), "Create")
	}
	return f, nil
}

//WriteFile resolves name with P, creates it and fills it with enc. A partially written file is
//removed. It returns the path actually written.
func WriteFile(name string, P Policy, enc func(io.Writer) error) (string, error) {
	path, err := ResolvePath(name, P)
	if err != nil {
		return "", ErrDecorate(err, "WriteFile")
	}
	f, err := Create(path, P)
	if err != nil {
		return "", ErrDecorate(err, "WriteFile")
	}
	if err := enc(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", ErrDecorate(err, "WriteFile")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", NewError(err.Error(), "WriteFile")
	}
	return path, nil
}
