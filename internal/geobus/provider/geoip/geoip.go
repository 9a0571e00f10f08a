// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wneessen/geowatch/internal/geobus"
	httpclient "github.com/wneessen/geowatch/internal/http"
	"github.com/wneessen/geowatch/internal/job"
)

const (
	lookupTimeout = time.Second * 5
	name          = "geoip"
)

// Accuracy radius in meters by the most precise field the API resolved.
const (
	AccuracyZip     = 5_000
	AccuracyCity    = 15_000
	AccuracyRegion  = 100_000
	AccuracyCountry = 500_000
)

// GeolocationGeoIPProvider resolves the coarse position of the public IP address.
type GeolocationGeoIPProvider struct {
	name     string
	endpoint string
	http     *httpclient.Client
	period   time.Duration
	ttl      time.Duration
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MetroCode   int     `json:"metro_code"`
}

func NewGeolocationGeoIPProvider(client *httpclient.Client, endpoint string) (*GeolocationGeoIPProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	return &GeolocationGeoIPProvider{
		name:     name,
		endpoint: endpoint,
		http:     client,
		period:   30 * time.Minute,
		ttl:      60 * time.Minute,
	}, nil
}

func (p *GeolocationGeoIPProvider) Name() string {
	return p.name
}

// LookupStream queries the API once per period until the context is cancelled.
func (p *GeolocationGeoIPProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		emitter := &geobus.PollEmitter{Key: key, Source: p.name, TTL: p.ttl, Out: out}
		job.New(p.period, func(ctx context.Context) {
			sample, err := p.locate(ctx)
			if err != nil && ctx.Err() != nil {
				return
			}
			emitter.Emit(ctx, sample, err)
		}).Start(ctx)
	}()
	return out
}

func (p *GeolocationGeoIPProvider) locate(ctx context.Context) (geobus.Sample, error) {
	result := new(APIResult)
	status, err := p.http.GetJSON(ctx, p.endpoint, result, lookupTimeout)
	if err != nil {
		return geobus.Sample{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if status != http.StatusOK {
		return geobus.Sample{}, fmt.Errorf("geolocation API returned unexpected status %d", status)
	}
	if result.CountryCode == "" {
		return geobus.Sample{}, fmt.Errorf("%w: address %q could not be located", geobus.ErrPositionUnavailable,
			result.IP)
	}

	sample := geobus.Sample{
		Lat:       result.Latitude,
		Lon:       result.Longitude,
		Timestamp: time.Now(),
		Source:    p.name,
	}
	sample.Accuracy.Set(accuracy(result))
	return sample, nil
}

// accuracy estimates the accuracy radius from the most precise field the API resolved.
func accuracy(result *APIResult) float64 {
	switch {
	case result.ZipCode != "":
		return AccuracyZip
	case result.City != "":
		return AccuracyCity
	case result.RegionCode != "":
		return AccuracyRegion
	default:
		return AccuracyCountry
	}
}
