// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/job"
)

const (
	name = "geolocation_file"
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider polls a file holding a "lat,lon" line and emits a sample whenever
// the coordinate in the file changes. Blank lines and lines starting with # are skipped.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn func() (geobus.Coordinate, error)
}

// NewGeolocationFileProvider returns a provider polling the file at path every period.
func NewGeolocationFileProvider(path string, period time.Duration) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: period,
		ttl:    time.Hour,
	}
	provider.locateFn = provider.readFile
	return provider
}

func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// LookupStream polls the file until the context is cancelled. Unchanged coordinates are not
// emitted again. Read failures are emitted as source errors, once per kind of failure.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		emitter := &geobus.PollEmitter{Key: key, Source: p.name, TTL: p.ttl, Out: out}
		job.New(p.period, func(ctx context.Context) {
			coord, err := p.locateFn()
			emitter.Emit(ctx, p.createSample(coord), err)
		}).Start(ctx)
	}()
	return out
}

// createSample stamps coord with the current time. A file carries no accuracy.
func (p *GeolocationFileProvider) createSample(coord geobus.Coordinate) geobus.Sample {
	return geobus.Sample{
		Lat:       coord.Lat,
		Lon:       coord.Lon,
		Timestamp: time.Now(),
		Source:    p.name,
	}
}

// readFile returns the first valid coordinate of the file at the configured path.
func (p *GeolocationFileProvider) readFile() (geobus.Coordinate, error) {
	file, err := os.Open(p.path)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to open geolocation file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if coord, ok := parseCoordinate(scanner.Text()); ok {
			return coord, nil
		}
	}
	if err = scanner.Err(); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	return geobus.Coordinate{}, ErrNoCoordinates
}

func parseCoordinate(line string) (geobus.Coordinate, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return geobus.Coordinate{}, false
	}
	latStr, lonStr, found := strings.Cut(line, ",")
	if !found {
		return geobus.Coordinate{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geobus.Coordinate{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return geobus.Coordinate{}, false
	}
	coord := geobus.Coordinate{Lat: lat, Lon: lon}
	return coord, coord.Valid()
}
