// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package monitor runs location monitoring sessions. A session subscribes to the samples of
// one key on the GeoBus and runs them strictly in order through its own update pipeline
// state. Stopping a session discards that state; the next session starts from scratch.
package monitor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/logger"
	"github.com/wneessen/geowatch/internal/metrics"
	"github.com/wneessen/geowatch/internal/pipeline"
)

const subscriptionSize = 32

// Status is the state of a Monitor.
type Status int

const (
	Stopped Status = iota
	Active
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "stopped"
}

// Handler consumes the output of monitoring sessions. It is called from the session goroutine
// and must not call back into the Monitor.
type Handler interface {
	HandleDecision(sessionID string, decision pipeline.Decision)
	HandleSourceError(sessionID string, err *geobus.SourceError)
	HandleStopped(sessionID string)
}

// Monitor owns at most one active session at a time.
type Monitor struct {
	bus     *geobus.GeoBus
	key     string
	config  pipeline.Config
	handler Handler
	logger  *logger.Logger

	mu        sync.Mutex
	status    Status
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New returns a stopped Monitor for samples published under key.
func New(bus *geobus.GeoBus, key string, cfg pipeline.Config, handler Handler, log *logger.Logger) *Monitor {
	return &Monitor{
		bus:     bus,
		key:     key,
		config:  cfg,
		handler: handler,
		logger:  log,
	}
}

// Start begins a new session with an empty pipeline state. Starting an active Monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == Active {
		return
	}

	id := uuid.NewString()
	samples, unsubSamples := m.bus.Subscribe(m.key, subscriptionSize)
	errs, unsubErrs := m.bus.SubscribeErrors(subscriptionSize)
	sessCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.status = Active
	m.sessionID = id
	m.cancel = cancel
	m.done = done
	metrics.Sessions.Inc()
	metrics.SessionActive.Set(1)
	m.logger.Info("monitoring started", slog.String("session", id))

	go func() {
		defer close(done)
		defer unsubErrs()
		defer unsubSamples()
		m.run(sessCtx, id, pipeline.NewSession(m.config), samples, errs)
	}()
}

// Stop ends the active session and discards its state. Stopping a stopped Monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.status == Stopped {
		m.mu.Unlock()
		return
	}
	id, cancel, done := m.sessionID, m.cancel, m.done
	m.status = Stopped
	m.sessionID = ""
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	cancel()
	<-done
	metrics.SessionActive.Set(0)
	m.logger.Info("monitoring ended", slog.String("session", id))
	m.handler.HandleStopped(id)
}

// Toggle stops an active Monitor or starts a stopped one and returns the new status.
func (m *Monitor) Toggle(ctx context.Context) Status {
	if m.Status() == Active {
		m.Stop()
		return Stopped
	}
	m.Start(ctx)
	return Active
}

// Status returns the current status of the Monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SessionID returns the ID of the active session or an empty string.
func (m *Monitor) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Monitor) run(ctx context.Context, id string, sess *pipeline.Session, samples <-chan geobus.Sample,
	errs <-chan *geobus.SourceError,
) {
	var lastMove geobus.Coordinate
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			decision, err := sess.Process(sample)
			if err != nil {
				metrics.InvalidSamples.Inc()
				m.logger.Error("failed to process position update", logger.Err(err), slog.String("session", id),
					slog.String("source", sample.Source))
				continue
			}
			metrics.Samples.WithLabelValues(decision.Kind.String()).Inc()
			m.logDecision(id, decision, lastMove)
			if decision.Recenter() {
				lastMove = sample.Coordinate()
			}
			m.handler.HandleDecision(id, decision)
		case srcErr, ok := <-errs:
			if !ok {
				return
			}
			kind := srcErr.Kind
			if kind == nil {
				kind = geobus.Classify(srcErr.Err)
			}
			metrics.SourceErrors.WithLabelValues(kind.Error()).Inc()
			m.logger.Error("location source failed", logger.Err(srcErr), slog.String("session", id))
			m.handler.HandleSourceError(id, srcErr)
		}
	}
}

func (m *Monitor) logDecision(id string, decision pipeline.Decision, lastMove geobus.Coordinate) {
	switch decision.Kind {
	case pipeline.Dropped:
		m.logger.Debug("ignoring position update", slog.String("session", id),
			slog.String("reason", decision.Reason))
	case pipeline.AcceptedNoMove:
		m.logger.Debug("geohash has not changed", slog.String("session", id),
			slog.String("geohash", decision.Fingerprint))
	case pipeline.AcceptedMove:
		attrs := []any{
			slog.String("session", id), slog.String("geohash", decision.Fingerprint),
			slog.Float64("lat", decision.Sample.Lat), slog.Float64("lon", decision.Sample.Lon),
			slog.String("source", decision.Sample.Source),
		}
		if lastMove != (geobus.Coordinate{}) {
			attrs = append(attrs, slog.Float64("moved_meters", lastMove.DistanceTo(decision.Sample.Coordinate())))
		}
		m.logger.Info("location changed", attrs...)
	}
}
