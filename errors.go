/*
 * errors.go, part of emprep.
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
	"strings"
)

//Error is the interface for errors that all packages in this module implement. The Decorate method allows to add and retrieve info from the
//error, without changing it's type or wrapping it around something else.
type Error interface {
	Error() string
	Decorate(string) []string //Each call adds the caller name (or "Function: extra info") and returns the current decoration. An empty string only returns the current value.
}

//Decorations is meant to be embedded in the error types of this module. It gives them
//the Decorate method.
type Decorations struct {
	deco []string
}

//Decorate adds deco to the call chain kept in the error and returns the whole chain.
func (D *Decorations) Decorate(deco string) []string {
	if deco != "" {
		D.deco = append(D.deco, deco)
	}
	return D.deco
}

func (D *Decorations) chain() string {
	if len(D.deco) == 0 {
		return ""
	}
	return " (" + strings.Join(D.deco, " <- ") + ")"
}

//CError is the generic error of the root package.
type CError struct {
	Decorations
	msg string
}

func (err *CError) Error() string { return err.msg + err.chain() }

//NewError returns a CError with message msg, decorated with the given callers.
func NewError(msg string, callers ...string) *CError {
	e := &CError{msg: msg}
	for _, v := range callers {
		e.Decorate(v)
	}
	return e
}

//InputError reports a numeric argument out of its valid domain, such as a non-positive
//voxel size or a negative dose. It is never silently coerced.
type InputError struct {
	Decorations
	Field  string
	Value  float64
	Reason string
}

func (err *InputError) Error() string {
	return fmt.Sprintf("invalid %s %g: %s%s", err.Field, err.Value, err.Reason, err.chain())
}

//NewInputError returns an InputError for field with value v.
func NewInputError(field string, v float64, reason string, caller string) *InputError {
	e := &InputError{Field: field, Value: v, Reason: reason}
	e.Decorate(caller)
	return e
}

//IntegrityError means that a per-micrograph scalar is not uniform over the
//records of the micrograph. It is fatal only for that micrograph.
type IntegrityError struct {
	Decorations
	Micrograph string
	Field      string
	Values     []float64
}

func (err *IntegrityError) Error() string {
	return fmt.Sprintf("micrograph %s: field %s is not uniform across its particles (values %v)%s", err.Micrograph, err.Field, err.Values, err.chain())
}

//ErrDecorate adds caller to the decoration of err, if err (or something it wraps) implements Error.
//It returns err, so it can be used directly in return statements.
func ErrDecorate(err error, caller string) error {
	if err == nil {
		return nil
	}
	var e Error
	if errors.As(err, &e) {
		e.Decorate(caller)
	}
	return err
}
