/*
 * set.go, part of emprep.
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

package mrc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmera/emprep"
)

//FilePrefix is prepended to the dose key to build the name of a filtered map.
const FilePrefix = "filt_"

//VolumeSet is a directory of damage-filtered maps, one per cumulative dose. The file for a dose
//is named after its emprep.DoseKey, so a lookup is exact on the 3-decimal encoding of the dose.
type VolumeSet struct {
	Dir string
}

//NewVolumeSet returns the set in dir. The directory is made absolute, since the paths
//returned by the set end up in simulator decks, which may be run from anywhere.
func NewVolumeSet(dir string) (*VolumeSet, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &Error{err.Error(), dir, []string{"NewVolumeSet"}, true}
	}
	return &VolumeSet{Dir: abs}, nil
}

//Path returns the name of the map for the given dose, whether it exists or not.
func (S *VolumeSet) Path(dose float64) string {
	return filepath.Join(S.Dir, FilePrefix+emprep.DoseKey(dose)+".mrc")
}

//Lookup returns the name of the map for dose, or a *MissingVolumeError if there is no such
//regular file in the set.
func (S *VolumeSet) Lookup(dose float64) (string, error) {
	name := S.Path(dose)
	info, err := os.Stat(name)
	if err == nil && info.Mode().IsRegular() {
		return name, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", &Error{err.Error(), name, []string{"Lookup"}, true}
	}
	return "", &MissingVolumeError{Dose: dose, Key: emprep.DoseKey(dose), Path: name, deco: []string{"Lookup"}}
}

//LookupSchedule returns the map for every element of D, or the first missing one as error.
func (S *VolumeSet) LookupSchedule(D emprep.DoseSchedule) ([]string, error) {
	ret := make([]string, len(D))
	for i, v := range D {
		name, err := S.Lookup(v)
		if err != nil {
			return nil, emprep.ErrDecorate(err, "LookupSchedule")
		}
		ret[i] = name
	}
	return ret, nil
}

//Store writes V as the map for dose and returns its name. An existing map for the same dose
//is handled according to P. Under emprep.Version the new map gets a versioned name, which
//Lookup does not find: the set keeps serving the previous one.
func (S *VolumeSet) Store(dose float64, V *emprep.Volume, voxelSize float64, P emprep.Policy) (string, error) {
	if err := os.MkdirAll(S.Dir, 0o755); err != nil {
		return "", &Error{err.Error(), S.Dir, []string{"Store"}, true}
	}
	name, err := Write(S.Path(dose), V, voxelSize, P)
	if err != nil {
		return "", emprep.ErrDecorate(err, "Store")
	}
	return name, nil
}

//Keys returns the dose keys of the maps present in the set, in lexical order.
func (S *VolumeSet) Keys() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(S.Dir, FilePrefix+"*.mrc"))
	if err != nil {
		return nil, &Error{err.Error(), S.Dir, []string{"Keys"}, true}
	}
	ret := make([]string, 0, len(matches))
	for _, v := range matches {
		ret = append(ret, strings.TrimSuffix(strings.TrimPrefix(filepath.Base(v), FilePrefix), ".mrc"))
	}
	return ret, nil
}

//MissingVolumeError means that a frame needs a dose for which no filtered map was produced.
//It is fatal for the micrograph being processed.
type MissingVolumeError struct {
	Dose float64
	Key  string
	Path string
	deco []string
}

func (err *MissingVolumeError) Error() string {
	return fmt.Sprintf("no filtered map for cumulative dose %s (expected %s)", err.Key, err.Path)
}

//Decorate adds information to the error.
func (err *MissingVolumeError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}
