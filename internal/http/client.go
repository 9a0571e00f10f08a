// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package http is the JSON client used by the network based location sources.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"runtime"
	"time"

	"github.com/wneessen/geowatch/internal/logger"
)

const (
	// DefaultTimeout caps every request, independent of the per-request timeout
	DefaultTimeout = time.Second * 10

	mimeJSON = "application/json"
)

var (
	// version is the version of the application (will be set at build time)
	version = "dev"
	// UserAgent identifies geowatch towards the geolocation APIs
	UserAgent = fmt.Sprintf("geowatch/%s (%s; %s; +https://github.com/wneessen/geowatch/)",
		version,
		runtime.GOOS,
		runtime.GOARCH,
	)

	ErrNonPointerTarget = errors.New("target must be a non-nil pointer")
)

// Client talks JSON to geolocation APIs.
type Client struct {
	*http.Client
	logger *logger.Logger
}

// New returns a Client that refuses TLS versions below 1.2.
func New(log *logger.Logger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &Client{
		Client: &http.Client{Timeout: DefaultTimeout, Transport: transport},
		logger: log,
	}
}

// GetJSON queries url and decodes the JSON response into target. The status code is returned
// together with decoding errors, so that callers can evaluate error responses.
func (c *Client) GetJSON(ctx context.Context, url string, target any, timeout time.Duration) (int, error) {
	return c.requestJSON(ctx, http.MethodGet, url, nil, target, timeout)
}

// PostJSON sends payload JSON-encoded to url and decodes the JSON response into target.
func (c *Client) PostJSON(ctx context.Context, url string, payload, target any, timeout time.Duration) (int, error) {
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return 0, fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.requestJSON(ctx, http.MethodPost, url, buf, target, timeout)
}

func (c *Client) requestJSON(ctx context.Context, method, url string, body io.Reader, target any,
	timeout time.Duration,
) (int, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, ErrNonPointerTarget
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, fmt.Errorf("failed create new HTTP request with context: %w", err)
	}
	request.Header.Set("User-Agent", UserAgent)
	request.Header.Set("Accept", mimeJSON)
	if body != nil {
		request.Header.Set("Content-Type", mimeJSON)
	}

	start := time.Now()
	response, err := c.Do(request)
	if err != nil {
		// deadline and cancellation stay unwrapped for the source error classification
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			c.logger.Error("failed to close HTTP response body", logger.Err(err))
		}
	}()
	c.logger.Debug("geolocation API responded", slog.String("method", method), slog.String("url", url),
		slog.Int("status", response.StatusCode), slog.Duration("took", time.Since(start)))

	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return response.StatusCode, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return response.StatusCode, nil
}
