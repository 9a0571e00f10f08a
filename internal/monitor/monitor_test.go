// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package monitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/logger"
	"github.com/wneessen/geowatch/internal/pipeline"
)

const (
	testKey   = "test"
	needleLat = 47.6205
	needleLon = -122.3493
)

type recorder struct {
	mu        sync.Mutex
	decisions []pipeline.Decision
	sessions  []string
	errs      []*geobus.SourceError
	stopped   []string
}

func (r *recorder) HandleDecision(id string, d pipeline.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
	r.sessions = append(r.sessions, id)
}

func (r *recorder) HandleSourceError(_ string, err *geobus.SourceError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) HandleStopped(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, id)
}

func (r *recorder) kinds() []pipeline.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]pipeline.Kind, 0, len(r.decisions))
	for _, d := range r.decisions {
		kinds = append(kinds, d.Kind)
	}
	return kinds
}

func newTestMonitor(t *testing.T) (*Monitor, *geobus.GeoBus, *recorder) {
	t.Helper()
	log := logger.NewLogger(slog.LevelDebug, io.Discard)
	bus := geobus.New(log)
	rec := &recorder{}
	return New(bus, testKey, pipeline.DefaultConfig(), rec, log), bus, rec
}

func publishAt(bus *geobus.GeoBus, millis int64, lat, lon float64) {
	bus.Publish(geobus.Result{
		Key:    testKey,
		Sample: geobus.Sample{Lat: lat, Lon: lon, Timestamp: time.UnixMilli(millis), Source: "test"},
	})
}

func TestMonitor_Start(t *testing.T) {
	t.Run("samples are processed in order", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mon, bus, rec := newTestMonitor(t)
			mon.Start(context.Background())
			defer mon.Stop()

			for _, ts := range []int64{0, 4000, 6000} {
				publishAt(bus, ts, needleLat, needleLon)
			}
			synctest.Wait()

			want := []pipeline.Kind{pipeline.AcceptedMove, pipeline.Dropped, pipeline.AcceptedNoMove}
			if diff := cmp.Diff(want, rec.kinds()); diff != "" {
				t.Errorf("unexpected decisions (-want +got):\n%s", diff)
			}
		})
	})
	t.Run("starting an active monitor is a no-op", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mon, _, _ := newTestMonitor(t)
			mon.Start(context.Background())
			defer mon.Stop()
			id := mon.SessionID()
			mon.Start(context.Background())
			if mon.SessionID() != id {
				t.Errorf("expected session %q to stay active, got %q", id, mon.SessionID())
			}
		})
	})
	t.Run("samples are ignored while stopped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mon, bus, rec := newTestMonitor(t)
			publishAt(bus, 0, needleLat, needleLon)
			synctest.Wait()
			if len(rec.kinds()) != 0 {
				t.Errorf("expected no decisions while stopped, got %d", len(rec.kinds()))
			}
			if mon.Status() != Stopped {
				t.Errorf("expected monitor to be stopped, got %s", mon.Status())
			}
		})
	})
	t.Run("cancelled parent context ends the session", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mon, bus, rec := newTestMonitor(t)
			ctx, cancel := context.WithCancel(context.Background())
			mon.Start(ctx)
			cancel()
			synctest.Wait()

			publishAt(bus, 0, needleLat, needleLon)
			synctest.Wait()
			if len(rec.kinds()) != 0 {
				t.Errorf("expected no decisions after cancellation, got %d", len(rec.kinds()))
			}
			mon.Stop()
		})
	})
}

func TestMonitor_Stop(t *testing.T) {
	t.Run("a restarted session starts with an empty state", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mon, bus, rec := newTestMonitor(t)
			mon.Start(context.Background())
			publishAt(bus, 0, needleLat, needleLon)
			synctest.Wait()
			mon.Stop()

			mon.Start(context.Background())
			defer mon.Stop()
			publishAt(bus, 1000, needleLat, needleLon)
			synctest.Wait()

			// the restarted session first receives the replayed sample of the bus
			want := []pipeline.Kind{pipeline.AcceptedMove, pipeline.AcceptedMove, pipeline.Dropped}
			if diff := cmp.Diff(want, rec.kinds()); diff != "" {
				t.Errorf("unexpected decisions (-want +got):\n%s", diff)
			}
			rec.mu.Lock()
			defer rec.mu.Unlock()
			if rec.sessions[0] == rec.sessions[1] {
				t.Errorf("expected a new session ID after restart, both are %q", rec.sessions[0])
			}
		})
	})
	t.Run("stop notifies the handler once", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			mon, _, rec := newTestMonitor(t)
			mon.Start(context.Background())
			id := mon.SessionID()
			mon.Stop()
			mon.Stop()

			if diff := cmp.Diff([]string{id}, rec.stopped); diff != "" {
				t.Errorf("unexpected stop notifications (-want +got):\n%s", diff)
			}
			if mon.SessionID() != "" {
				t.Errorf("expected empty session ID, got %q", mon.SessionID())
			}
		})
	})
	t.Run("stopping a stopped monitor is a no-op", func(t *testing.T) {
		mon, _, rec := newTestMonitor(t)
		mon.Stop()
		if len(rec.stopped) != 0 {
			t.Errorf("expected no stop notification, got %d", len(rec.stopped))
		}
	})
}

func TestMonitor_Toggle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mon, _, rec := newTestMonitor(t)
		if got := mon.Toggle(context.Background()); got != Active {
			t.Errorf("expected monitor to be active, got %s", got)
		}
		if got := mon.Toggle(context.Background()); got != Stopped {
			t.Errorf("expected monitor to be stopped, got %s", got)
		}
		if len(rec.stopped) != 1 {
			t.Errorf("expected one stop notification, got %d", len(rec.stopped))
		}
	})
}

func TestMonitor_SourceErrors(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mon, bus, rec := newTestMonitor(t)
		mon.Start(context.Background())
		defer mon.Stop()

		bus.Publish(geobus.Result{Key: testKey, Err: geobus.NewSourceError("file", os.ErrNotExist)})
		publishAt(bus, 0, needleLat, needleLon)
		synctest.Wait()

		rec.mu.Lock()
		defer rec.mu.Unlock()
		if len(rec.errs) != 1 {
			t.Fatalf("expected one source error, got %d", len(rec.errs))
		}
		if rec.errs[0].Kind != geobus.ErrPositionUnavailable {
			t.Errorf("expected error kind to be %s, got %s", geobus.ErrPositionUnavailable, rec.errs[0].Kind)
		}
		if len(rec.decisions) != 1 || rec.decisions[0].Kind != pipeline.AcceptedMove {
			t.Errorf("expected the error to not affect the pipeline, got %v", rec.decisions)
		}
	})
}

func TestStatus_String(t *testing.T) {
	if Active.String() != "active" || Stopped.String() != "stopped" {
		t.Errorf("unexpected status strings: %s, %s", Active, Stopped)
	}
}
