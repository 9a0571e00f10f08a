// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Source failure kinds. They are reported out-of-band and never reach the update pipeline.
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("timeout")
	ErrUnknown             = errors.New("unknown error")
)

// SourceError is a failure reported by a location source.
type SourceError struct {
	Source string
	Kind   error
	Err    error
}

// NewSourceError wraps err into a SourceError of the kind returned by Classify.
func NewSourceError(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: Classify(err), Err: err}
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Kind, e.Err)
}

// Unwrap makes both the kind and the cause visible to errors.Is and errors.As.
func (e *SourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Classify maps an error to one of the source failure kinds. Errors that already carry a kind
// keep it.
func Classify(err error) error {
	var netErr net.Error
	switch {
	case err == nil:
		return ErrUnknown
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EPERM):
		return ErrPermissionDenied
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrTimeout
	case errors.Is(err, ErrPositionUnavailable), errors.Is(err, os.ErrNotExist),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ENODEV):
		return ErrPositionUnavailable
	default:
		return ErrUnknown
	}
}
