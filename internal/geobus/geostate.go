// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"time"
)

// GeolocationState tracks the last coordinate a provider emitted. Providers that poll a
// source whose content rarely changes use it to avoid re-emitting identical reads.
type GeolocationState struct {
	last     Coordinate
	haveLast bool
}

// Update stores the provided coordinate as the last emitted one.
func (s *GeolocationState) Update(c Coordinate) {
	s.last = c
	s.haveLast = true
}

// HasChanged reports whether c differs from the last emitted coordinate. An empty state
// always reports a change.
func (s *GeolocationState) HasChanged(c Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return s.last.Lat != c.Lat || s.last.Lon != c.Lon
}

// Reset forgets the last emitted coordinate.
func (s *GeolocationState) Reset() {
	s.last = Coordinate{}
	s.haveLast = false
}

// PollEmitter forwards the outcome of periodic lookups to a provider stream. A position is only
// emitted if it differs from the last emitted one, a failure only if its kind differs from the
// failure before. A failure resets the position state, so the next fix is emitted in any case.
type PollEmitter struct {
	Key    string
	Source string
	TTL    time.Duration
	Out    chan<- Result

	state   GeolocationState
	lastErr error
}

// Emit sends sample, or the failure if err is not nil. It gives up if the context is cancelled
// while the stream is blocked.
func (e *PollEmitter) Emit(ctx context.Context, sample Sample, err error) {
	if err != nil {
		srcErr := NewSourceError(e.Source, err)
		if e.lastErr == srcErr.Kind {
			return
		}
		e.lastErr = srcErr.Kind
		e.state.Reset()
		e.send(ctx, Result{Key: e.Key, Err: srcErr})
		return
	}
	e.lastErr = nil

	if !e.state.HasChanged(sample.Coordinate()) {
		return
	}
	e.state.Update(sample.Coordinate())
	e.send(ctx, Result{Key: e.Key, Sample: sample, TTL: e.TTL})
}

func (e *PollEmitter) send(ctx context.Context, r Result) {
	select {
	case <-ctx.Done():
	case e.Out <- r:
	}
}
