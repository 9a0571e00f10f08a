// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package pipeline implements the location update filter. Every raw sample passes a
// minimum-interval throttle, gets a geohash fingerprint, and is compared against the
// fingerprint of the last accepted sample to decide whether a map view needs recentering.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/geohash"
	"github.com/wneessen/geowatch/internal/vartype"
)

const (
	DefaultMinInterval = 5 * time.Second
	DefaultPrecision   = geohash.DefaultPrecision

	// ReasonThrottled is the reason of samples dropped by the minimum-interval throttle.
	ReasonThrottled = "throttled"
)

// Kind is the kind of an update decision.
type Kind int

const (
	Dropped Kind = iota
	AcceptedNoMove
	AcceptedMove
)

func (k Kind) String() string {
	switch k {
	case Dropped:
		return "dropped"
	case AcceptedNoMove:
		return "accepted_no_move"
	case AcceptedMove:
		return "accepted_move"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Config controls the throttle and the fingerprint precision.
type Config struct {
	// MinInterval is the minimum gap between the timestamps of two accepted samples.
	MinInterval time.Duration
	// FingerprintPrecision is the geohash length used for change detection.
	FingerprintPrecision int
}

// DefaultConfig returns a Config with a 5 second throttle and 8 character fingerprints.
func DefaultConfig() Config {
	return Config{
		MinInterval:          DefaultMinInterval,
		FingerprintPrecision: DefaultPrecision,
	}
}

// Validate checks the configuration for values the pipeline cannot work with.
func (c Config) Validate() error {
	if c.MinInterval < 0 {
		return fmt.Errorf("minimum interval must not be negative: %s", c.MinInterval)
	}
	if c.FingerprintPrecision < 1 || c.FingerprintPrecision > geohash.MaxPrecision {
		return fmt.Errorf("fingerprint precision must be between 1 and %d: %d", geohash.MaxPrecision,
			c.FingerprintPrecision)
	}
	return nil
}

// State is the memory of one monitoring session. The zero value is the empty state of a
// freshly started session.
type State struct {
	LastAcceptedTimestamp vartype.VarInt64
	LastFingerprint       vartype.VarString
}

// Decision is the outcome of processing one sample.
type Decision struct {
	Kind        Kind
	Reason      string
	Sample      geobus.Sample
	Fingerprint string
}

// Recenter reports whether a dependent map view should be recentered on the sample.
func (d Decision) Recenter() bool {
	return d.Kind == AcceptedMove
}

// Accepted reports whether the sample passed the throttle.
func (d Decision) Accepted() bool {
	return d.Kind != Dropped
}

// Process runs one sample through the throttle and the fingerprint comparison and returns the
// decision together with the successor state. The passed state is never modified. On error
// the returned state equals the passed one.
//
// Timestamps are compared with plain signed arithmetic against the last accepted sample.
// Samples arriving out of order are not treated specially.
func Process(sample geobus.Sample, state State, cfg Config) (Decision, State, error) {
	now := sample.TimestampMillis()
	if last, ok := state.LastAcceptedTimestamp.Get(); ok && now-last < cfg.MinInterval.Milliseconds() {
		return Decision{Kind: Dropped, Reason: ReasonThrottled, Sample: sample}, state, nil
	}

	if cfg.FingerprintPrecision < 1 || cfg.FingerprintPrecision > geohash.MaxPrecision {
		return Decision{}, state, fmt.Errorf("failed to compute fingerprint: %w: precision %d",
			geohash.ErrInvalidArgument, cfg.FingerprintPrecision)
	}
	// the fingerprint is a prefix of the full hash, the cell that contains the sample
	hash, err := geohash.Encode(sample.Lat, sample.Lon, geohash.MaxPrecision)
	if err != nil {
		return Decision{}, state, fmt.Errorf("failed to compute fingerprint: %w", err)
	}
	fp := geohash.Truncate(hash, cfg.FingerprintPrecision)

	next := state
	next.LastAcceptedTimestamp.Set(now)
	if last, ok := state.LastFingerprint.Get(); ok && last == fp {
		return Decision{Kind: AcceptedNoMove, Sample: sample, Fingerprint: fp}, next, nil
	}
	next.LastFingerprint.Set(fp)
	return Decision{Kind: AcceptedMove, Sample: sample, Fingerprint: fp}, next, nil
}

// ErrInvalidSample is returned by Session.Process for samples whose coordinates cannot be
// fingerprinted.
var ErrInvalidSample = errors.New("invalid sample")

// Session owns the state of a single monitoring run. A Session is not safe for concurrent use;
// samples of one session are processed strictly in order.
type Session struct {
	config Config
	state  State
}

// NewSession returns a Session with an empty state.
func NewSession(cfg Config) *Session {
	return &Session{config: cfg}
}

// Process runs the sample through the pipeline and carries the resulting state forward.
func (s *Session) Process(sample geobus.Sample) (Decision, error) {
	decision, next, err := Process(sample, s.state, s.config)
	if err != nil {
		if errors.Is(err, geohash.ErrInvalidArgument) {
			return decision, fmt.Errorf("%w: %w", ErrInvalidSample, err)
		}
		return decision, err
	}
	s.state = next
	return decision, nil
}

// State returns a copy of the current session state.
func (s *Session) State() State {
	return s.state
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.config
}
