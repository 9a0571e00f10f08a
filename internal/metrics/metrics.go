// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var (
	Samples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geowatch_samples_total",
		Help: "Position samples processed by the update pipeline, by decision",
	}, []string{"decision"})
	InvalidSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geowatch_invalid_samples_total",
		Help: "Position samples rejected by the geohash encoder",
	})
	SourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geowatch_source_errors_total",
		Help: "Failures reported by location sources, by kind",
	}, []string{"kind"})
	Sessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geowatch_sessions_started_total",
		Help: "Monitoring sessions started",
	})
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geowatch_session_active",
		Help: "1 while a monitoring session is active",
	})
)

// Handler returns the HTTP handler serving /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve exposes the metrics on addr until the context is cancelled.
func Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	return nil
}
