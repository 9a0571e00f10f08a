// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"time"

	"github.com/wneessen/geowatch/internal/vartype"
)

// Sample is a single raw position fix as delivered by a location source. Samples are
// immutable once created.
type Sample struct {
	Lat       float64
	Lon       float64
	Timestamp time.Time
	// Accuracy is the horizontal accuracy radius in meters, if the source reports one.
	Accuracy vartype.VarFloat64
	Source   string
}

// Coordinate returns the position of the sample.
func (s Sample) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lon: s.Lon}
}

// TimestampMillis returns the sample time in milliseconds since the unix epoch.
func (s Sample) TimestampMillis() int64 {
	return s.Timestamp.UnixMilli()
}

// Valid reports whether the sample carries a usable coordinate.
func (s Sample) Valid() bool {
	return s.Coordinate().Valid()
}

// Result is what providers emit on their stream: either a Sample or, if Err is set, a
// source failure.
type Result struct {
	Key    string
	Sample Sample
	Err    error
	TTL    time.Duration
}

// IsExpired checks if the Result has exceeded its time-to-live (TTL) based on the current time
// and the sample timestamp.
func (r Result) IsExpired() bool {
	return r.TTL > 0 && time.Since(r.Sample.Timestamp) > r.TTL
}
