// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/vartype"
)

const (
	name = "gpsd"

	fallbackAccuracy3DFix = 10 // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25

	reportBufferSize = 8
)

// watcher is the part of a gpsd session the provider uses.
type watcher interface {
	AddFilter(class string, f gpsd.Filter)
	Watch() chan bool
	Close() error
}

// GeolocationGPSDProvider streams TPV reports of a gpsd daemon as samples.
type GeolocationGPSDProvider struct {
	name       string
	addr       string
	period     time.Duration
	ttl        time.Duration
	fixTimeout time.Duration
	dialFn     func(addr string) (watcher, error)
}

// NewGeolocationGPSDProvider returns a provider for the gpsd daemon listening on addr.
func NewGeolocationGPSDProvider(addr string) *GeolocationGPSDProvider {
	return &GeolocationGPSDProvider{
		name:       name,
		addr:       addr,
		period:     time.Second * 30,
		ttl:        time.Minute * 2,
		fixTimeout: time.Minute,
		dialFn: func(addr string) (watcher, error) {
			return gpsd.Dial(addr)
		},
	}
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// LookupStream connects to gpsd and emits a sample for every report with at least a 2D fix.
// Losing the fix, failing to connect and getting no fix in time are emitted as source errors.
// Lost connections are re-established after the retry period.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)

		for {
			session, err := p.dialFn(p.addr)
			if err != nil {
				err = fmt.Errorf("%w: failed to connect to gpsd at %q: %w", geobus.ErrPositionUnavailable,
					p.addr, err)
				if !p.send(ctx, out, geobus.Result{Key: key, Err: geobus.NewSourceError(p.name, err)}) {
					return
				}
			} else if !p.stream(ctx, key, session, out) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()

	return out
}

// stream watches one gpsd session and closes it once the connection ended or the context was
// cancelled. It returns false if the context was cancelled.
func (p *GeolocationGPSDProvider) stream(ctx context.Context, key string, session watcher,
	out chan<- geobus.Result,
) bool {
	// the socket is gone already if gpsd hung up, so the close error carries no information
	defer func() { _ = session.Close() }()

	reports := make(chan *gpsd.TPVReport, reportBufferSize)
	stop := make(chan struct{})
	defer close(stop)
	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		select {
		case reports <- tpv:
		case <-stop:
		}
	})
	return p.watch(ctx, key, reports, session.Watch(), out)
}

// watch forwards the reports of one gpsd connection until the connection ends. It returns false
// if the context was cancelled.
func (p *GeolocationGPSDProvider) watch(ctx context.Context, key string, reports <-chan *gpsd.TPVReport,
	done <-chan bool, out chan<- geobus.Result,
) bool {
	fixTimer := time.NewTimer(p.fixTimeout)
	defer fixTimer.Stop()
	hasFix, lostReported := false, false

	for {
		select {
		case <-ctx.Done():
			return false
		case <-done:
			return true
		case <-fixTimer.C:
			if hasFix {
				continue
			}
			err := fmt.Errorf("%w: no fix within %s", geobus.ErrTimeout, p.fixTimeout)
			if !p.send(ctx, out, geobus.Result{Key: key, Err: geobus.NewSourceError(p.name, err)}) {
				return false
			}
		case tpv := <-reports:
			if tpv.Mode < gpsd.Mode2D {
				if !hasFix || lostReported {
					continue
				}
				lostReported = true
				err := fmt.Errorf("%w: fix lost", geobus.ErrPositionUnavailable)
				if !p.send(ctx, out, geobus.Result{Key: key, Err: geobus.NewSourceError(p.name, err)}) {
					return false
				}
				continue
			}
			hasFix, lostReported = true, false
			if !p.send(ctx, out, p.createResult(key, tpv)) {
				return false
			}
		}
	}
}

func (p *GeolocationGPSDProvider) send(ctx context.Context, out chan<- geobus.Result, r geobus.Result) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}

// createResult composes and returns a Result from a TPV report.
func (p *GeolocationGPSDProvider) createResult(key string, tpv *gpsd.TPVReport) geobus.Result {
	return geobus.Result{
		Key: key,
		Sample: geobus.Sample{
			Lat:       tpv.Lat,
			Lon:       tpv.Lon,
			Timestamp: tpv.Time,
			Accuracy:  vartype.NewVariable(horizontalAccuracy(tpv)),
			Source:    p.name,
		},
		TTL: p.ttl,
	}
}

// horizontalAccuracy estimates the accuracy radius in meters from the error estimates of the
// report, falling back to typical values of the fix mode.
func horizontalAccuracy(tpv *gpsd.TPVReport) float64 {
	switch {
	case tpv.Epx > 0 && tpv.Epy > 0:
		return math.Hypot(tpv.Epx, tpv.Epy)
	case tpv.Mode == gpsd.Mode3D:
		return fallbackAccuracy3DFix
	default:
		return fallbackAccuracy2DFix
	}
}
