/*
 * rng.go, part of emprep.
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

//Package rng provides the random sources used in emprep. A run owns one root Source, whose state can
//be saved to and restored from a file, so a run can be replayed exactly. Work units (micrographs) don't
//share the root source: each gets its own sub-stream derived from the root state and a key, so the
//result doesn't depend on the order in which, or on how many workers, the units are processed.
package rng

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/rmera/emprep"
)

//Source is a PCG random source with a serializable state. It implements rand.Source. It is
//not safe for concurrent use.
type Source struct {
	*rand.PCG
}

//New returns a source seeded with seed.
func New(seed uint64) *Source {
	return &Source{rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

//NewRandom returns a source seeded from the runtime's random generator.
func NewRandom() *Source {
	return &Source{rand.NewPCG(rand.Uint64(), rand.Uint64())}
}

//State returns the serialized state of the source.
func (S *Source) State() []byte {
	b, err := S.PCG.MarshalBinary()
	if err != nil {
		panic("rng: can't serialize PCG state: " + err.Error()) //MarshalBinary for PCG never fails.
	}
	return b
}

//Derive returns a new source for the work unit key. The sub-stream depends only on the current
//state of S and on key, and deriving does not advance S.
func (S *Source) Derive(key string) *Source {
	st := S.State()
	h := xxhash.New()
	h.Write(st)
	h.Write([]byte(key))
	s1 := h.Sum64()
	h.Write([]byte{0})
	s2 := h.Sum64()
	return &Source{rand.NewPCG(s1, s2)}
}

//Rand returns a *rand.Rand that draws from S.
func (S *Source) Rand() *rand.Rand {
	return rand.New(S)
}

//Save writes the state of the source to the file name. An existing state file is never
//replaced, since it is what a run is replayed from.
func (S *Source) Save(name string) error {
	_, err := emprep.WriteFile(name, emprep.Fail, func(w io.Writer) error {
		_, err := w.Write(S.State())
		return err
	})
	if err != nil {
		return fmt.Errorf("rng: saving random state: %w", err)
	}
	return nil
}

//Load restores a source from a state file written by Save.
func Load(name string) (*Source, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("rng: loading random state: %w", err)
	}
	S := &Source{new(rand.PCG)}
	if err := S.PCG.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("rng: corrupt random state file %s: %w", name, err)
	}
	return S, nil
}

//LoadOrCreate restores the source from the state file name if it exists. Otherwise it creates a new
//source (seeded with seed, or randomly if seed is 0), saves its state to name and returns it, with created
//set to true. An empty name just returns a new source, without saving it.
func LoadOrCreate(name string, seed uint64) (S *Source, created bool, err error) {
	if name != "" {
		_, err = os.Stat(name)
		if err == nil {
			S, err = Load(name)
			return S, false, err
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("rng: %w", err)
		}
	}
	if seed == 0 {
		S = NewRandom()
	} else {
		S = New(seed)
	}
	if name == "" {
		return S, true, nil
	}
	return S, true, S.Save(name)
}

//StableSeed maps key to a non-negative 31-bit seed with a fixed hash (xxhash64), so the same key gives the
//same seed in every process and on every platform.
func StableSeed(key string) int {
	return int(xxhash.Sum64String(key) & 0x7fffffff)
}

