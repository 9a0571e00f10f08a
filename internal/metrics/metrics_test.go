// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandler(t *testing.T) {
	t.Run("healthz returns ok", func(t *testing.T) {
		server := httptest.NewServer(Handler())
		defer server.Close()

		resp, err := http.Get(server.URL + "/healthz")
		if err != nil {
			t.Fatalf("failed to query healthz: %s", err)
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || string(body) != "ok" {
			t.Errorf("unexpected healthz response: %d %q", resp.StatusCode, body)
		}
	})
	t.Run("metrics exposes the sample counter", func(t *testing.T) {
		Samples.WithLabelValues("accepted_move").Inc()
		server := httptest.NewServer(Handler())
		defer server.Close()

		resp, err := http.Get(server.URL + "/metrics")
		if err != nil {
			t.Fatalf("failed to query metrics: %s", err)
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), `geowatch_samples_total{decision="accepted_move"}`) {
			t.Errorf("expected sample counter in metrics output, got:\n%s", body)
		}
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(SourceErrors.WithLabelValues("timeout"))
	SourceErrors.WithLabelValues("timeout").Inc()
	if got := testutil.ToFloat64(SourceErrors.WithLabelValues("timeout")); got != before+1 {
		t.Errorf("expected counter to be %f, got %f", before+1, got)
	}
}

func TestServe(t *testing.T) {
	t.Run("serve stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := Serve(ctx, "127.0.0.1:0"); err != nil {
			t.Errorf("expected clean shutdown, got: %s", err)
		}
	})
	t.Run("serve fails on invalid address", func(t *testing.T) {
		if err := Serve(context.Background(), "invalid-address"); err == nil {
			t.Error("expected serve to fail, but didn't")
		}
	})
}
