// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/geowatch/internal/geobus"
	httpclient "github.com/wneessen/geowatch/internal/http"
	"github.com/wneessen/geowatch/internal/job"
)

const (
	lookupTimeout = time.Second * 5
	name          = "ichnaea"
)

// scanner lists the wireless access points in range. It is satisfied by *wifi.Client.
type scanner interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
	Close() error
}

// GeolocationICHNAEAProvider resolves the position by sending the nearby WiFi access points
// to an Ichnaea compatible geolocation API.
type GeolocationICHNAEAProvider struct {
	name     string
	endpoint string
	http     *httpclient.Client
	wlan     scanner
	period   time.Duration
	ttl      time.Duration
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

type request struct {
	ConsiderIP   bool              `json:"considerIp"`
	Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
}

// NewGeolocationICHNAEAProvider returns a provider querying the given endpoint. It fails if
// the system offers no nl80211 WiFi support.
func NewGeolocationICHNAEAProvider(client *httpclient.Client, endpoint string) (*GeolocationICHNAEAProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	return newProvider(client, endpoint, wlan), nil
}

func newProvider(client *httpclient.Client, endpoint string, wlan scanner) *GeolocationICHNAEAProvider {
	return &GeolocationICHNAEAProvider{
		name:     name,
		endpoint: endpoint,
		http:     client,
		wlan:     wlan,
		period:   time.Minute * 5,
		ttl:      time.Hour * 1,
	}
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// LookupStream scans for access points and queries the API once per period until the context
// is cancelled. Unchanged positions are not emitted again, lookup failures are emitted once per
// kind of failure.
func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		defer func() { _ = p.wlan.Close() }()
		emitter := &geobus.PollEmitter{Key: key, Source: p.name, TTL: p.ttl, Out: out}
		job.New(p.period, func(ctx context.Context) {
			aps, scanErr := p.wifiAccessPoints()
			sample, err := p.locate(ctx, aps)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// a failed scan usually explains a failed lookup, so it is classified first
				err = errors.Join(scanErr, err)
			}
			emitter.Emit(ctx, sample, err)
		}).Start(ctx)
	}()
	return out
}

// wifiAccessPoints returns the access points seen by all station interfaces. Networks that
// opted out of location services via the _nomap suffix are skipped.
func (p *GeolocationICHNAEAProvider) wifiAccessPoints() ([]WirelessNetwork, error) {
	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var list []WirelessNetwork
	var scanErr error
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			scanErr = fmt.Errorf("failed to scan access points on %q: %w", iface.Name, err)
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, scanErr
}

// locate queries the API with the given access points. The API falls back to an IP based
// lookup if none are known.
func (p *GeolocationICHNAEAProvider) locate(ctx context.Context, aps []WirelessNetwork) (geobus.Sample, error) {
	result := new(APIResult)
	status, err := p.http.PostJSON(ctx, p.endpoint, request{ConsiderIP: true, Accesspoints: aps}, result,
		lookupTimeout)
	switch {
	case status == http.StatusNotFound:
		return geobus.Sample{}, fmt.Errorf("%w: no location found for the current networks",
			geobus.ErrPositionUnavailable)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return geobus.Sample{}, fmt.Errorf("%w: geolocation API rejected the request with status %d",
			geobus.ErrPermissionDenied, status)
	case err != nil:
		return geobus.Sample{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	case status != http.StatusOK:
		return geobus.Sample{}, fmt.Errorf("geolocation API returned unexpected status %d", status)
	}

	sample := geobus.Sample{
		Lat:       result.Location.Latitude,
		Lon:       result.Location.Longitude,
		Timestamp: time.Now(),
		Source:    p.name,
	}
	if result.Accuracy > 0 {
		sample.Accuracy.Set(result.Accuracy)
	}
	return sample, nil
}
