// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/geowatch/internal/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Provider defines an interface for location sources. A provider pushes samples and source
// failures for a given key until the context is cancelled.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// GeoBus fans out samples and source failures from providers to consumers. It never filters
// or reorders samples; the only thing it drops are samples with unusable coordinates.
type GeoBus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	last        map[string]Result
	subscribers map[string]map[chan Sample]struct{}
	errSubs     map[chan *SourceError]struct{}
}

// New initializes and returns a new instance of GeoBus.
func New(log *logger.Logger) *GeoBus {
	return &GeoBus{
		logger:      log,
		last:        make(map[string]Result),
		subscribers: make(map[string]map[chan Sample]struct{}),
		errSubs:     make(map[chan *SourceError]struct{}),
	}
}

// NewOrchestrator returns an Orchestrator publishing the results of the given providers to the bus.
func (b *GeoBus) NewOrchestrator(provider []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: provider,
	}
}

// Subscribe adds a subscriber for samples of the given key, returning a sample channel and an
// unsubscribe function. The last non-expired sample for the key is replayed to the new subscriber.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Sample, func()) {
	ch := make(chan Sample, size)
	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[chan Sample]struct{})
	}
	b.subscribers[key][ch] = struct{}{}
	if last, ok := b.last[key]; ok && !last.IsExpired() && size > 0 {
		ch <- last.Sample
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subscribers[key]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subscribers, key)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, unsub
}

// SubscribeErrors adds a subscriber for source failures of all keys.
func (b *GeoBus) SubscribeErrors(size int) (<-chan *SourceError, func()) {
	ch := make(chan *SourceError, size)
	b.mu.Lock()
	b.errSubs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.errSubs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish routes a provider result to the subscribers. Source failures go to the error
// subscribers only, samples go to the subscribers of their key.
func (b *GeoBus) Publish(r Result) {
	if r.Err != nil {
		b.publishError(r)
		return
	}
	if !r.Sample.Valid() {
		b.logger.Debug("dropping sample with invalid coordinates", slog.String("source", r.Sample.Source),
			slog.Float64("lat", r.Sample.Lat), slog.Float64("lon", r.Sample.Lon))
		return
	}
	if r.Sample.Timestamp.IsZero() {
		r.Sample.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[r.Key] = r
	for ch := range b.subscribers[r.Key] {
		select {
		case ch <- r.Sample:
		default:
			b.logger.Warn("subscriber is not keeping up, dropping sample", slog.String("key", r.Key))
		}
	}
}

func (b *GeoBus) publishError(r Result) {
	var srcErr *SourceError
	if !errors.As(r.Err, &srcErr) {
		srcErr = NewSourceError(r.Sample.Source, r.Err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.errSubs {
		select {
		case ch <- srcErr:
		default:
		}
	}
}

// Last returns the last published non-expired sample for the given key.
func (b *GeoBus) Last(key string) (Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.last[key]
	return r.Sample, ok && !r.IsExpired()
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}
