// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package vartype provides optional values for fields where the zero value is meaningful, like
// a timestamp of 0 ms or an accuracy of 0 m.
package vartype

import (
	"fmt"
)

type (
	// VarFloat64 is a type alias for Variable[float64], used for optional accuracies in meters.
	VarFloat64 = Variable[float64]

	// VarInt64 is a type alias for Variable[int64], used for optional timestamps in unix milliseconds.
	VarInt64 = Variable[int64]

	// VarString is a type alias for Variable[string], used for optional geohash fingerprints.
	VarString = Variable[string]
)

// Variable holds a value of type T and whether it was ever set. The zero value is unset.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable returns a Variable set to value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{value: value, isset: true}
}

// Set assigns val and marks the Variable as set.
func (v *Variable[T]) Set(val T) {
	v.value, v.isset = val, true
}

// Value returns the stored value, or the zero value of T if unset.
func (v Variable[T]) Value() T {
	return v.value
}

// IsSet returns true if the Variable has been set, even if to the zero value of T.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

// Get returns the value and whether it is set, comma-ok style.
func (v Variable[T]) Get() (T, bool) {
	return v.value, v.isset
}

// String returns "n/a" for an unset Variable.
func (v Variable[T]) String() string {
	if !v.isset {
		return "n/a"
	}
	return fmt.Sprint(v.value)
}
