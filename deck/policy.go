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

package deck

import (
	"fmt"
	"sync"

	"github.com/rmera/emprep"
)

//resolver applies an emprep.Policy to the paths of a run. Paths claimed during the run are treated as
//existing files, so two artifacts of one run never share a path, whatever the policy.
//It is safe for concurrent use.
type resolver struct {
	policy  emprep.Policy
	mu      sync.Mutex
	claimed map[string]bool
	exists  func(string) bool
}

func newResolver(P emprep.Policy) *resolver {
	return &resolver{policy: P, claimed: make(map[string]bool), exists: emprep.FileExists}
}

//resolve returns the path the artifact name will be written to, and claims it.
func (R *resolver) resolve(name string) (string, error) {
	R.mu.Lock()
	defer R.mu.Unlock()
	if R.claimed[name] {
		if R.policy != emprep.Version {
			return "", emprep.NewCollisionError(name, "resolve")
		}
	} else if !R.exists(name) || R.policy == emprep.Overwrite {
		R.claimed[name] = true
		return name, nil
	}
	if R.policy == emprep.Fail {
		return "", emprep.NewCollisionError(name, "resolve")
	}
	for n := 1; ; n++ {
		v := emprep.Versioned(name, n)
		if !R.claimed[v] && !R.exists(v) {
			R.claimed[v] = true
			return v, nil
		}
	}
}

//claimDir claims the directory of a micrograph. Existing directories are reused, since the
//files in them are resolved one by one, but two micrographs of one run with the same base
//name can't share one: under Version the later one gets name_1, name_2...
func (R *resolver) claimDir(name string) (string, error) {
	R.mu.Lock()
	defer R.mu.Unlock()
	if !R.claimed[name] {
		R.claimed[name] = true
		return name, nil
	}
	if R.policy != emprep.Version {
		return "", emprep.NewCollisionError(name, "claimDir")
	}
	for n := 1; ; n++ {
		v := fmt.Sprintf("%s_%d", name, n)
		if !R.claimed[v] && !R.exists(v) {
			R.claimed[v] = true
			return v, nil
		}
	}
}

//release gives back paths claimed by a micrograph that failed.
func (R *resolver) release(names ...string) {
	R.mu.Lock()
	defer R.mu.Unlock()
	for _, v := range names {
		delete(R.claimed, v)
	}
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
		return "deck: " + err.message
	}
	return fmt.Sprintf("deck: %s: %s", err.filename, err.message)
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
	if e, ok := err.(interface{ Decorate(string) []string }); ok {
		e.Decorate(caller)
	}
	return err
}
