// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/geowatch/internal/logger"
)

// Orchestrator runs a set of providers and publishes their results through a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider
}

// Track runs all providers concurrently for the given key and blocks until the context is cancelled
// and every provider has returned.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Go(func() {
			o.trackProvider(ctx, p, key)
		})
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider keeps a provider stream open, publishing every result to the GeoBus. Closed or
// failed streams are reopened with exponential backoff.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lookupChan, err := o.safeLookup(ctx, p, key)
		if err != nil {
			o.Bus.logger.Error("location provider failed", slog.String("provider", p.Name()), logger.Err(err))
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if !o.drain(ctx, lookupChan, &backoff) {
			return
		}
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// drain publishes results until the stream closes. It returns false if the context was cancelled.
func (o *Orchestrator) drain(ctx context.Context, results <-chan Result, backoff *time.Duration) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case r, ok := <-results:
			if !ok {
				return true
			}
			o.Bus.Publish(r)
			if r.Err == nil {
				*backoff = initialBackoff
			}
		}
	}
}

// safeLookup invokes LookupStream on a provider and recovers from panics.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, key string) (ch <-chan Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ch, err = nil, fmt.Errorf("provider %s panicked: %v", provider.Name(), r)
		}
	}()
	ch = provider.LookupStream(ctx, key)
	if ch == nil {
		return nil, fmt.Errorf("provider %s returned no stream", provider.Name())
	}
	return ch, nil
}
