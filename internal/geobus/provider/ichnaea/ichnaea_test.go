// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	stdhttp "net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mdlayher/wifi"

	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/http"
	"github.com/wneessen/geowatch/internal/logger"
	"github.com/wneessen/geowatch/internal/testhelper"
)

const (
	testFile     = "../../../../testdata/beacondb.json"
	testEndpoint = "https://example.com/v1/geolocate"
	testLat      = 40.7185
	testLon      = -74.0025
	testAcc      = 2000
)

type fakeScanner struct {
	mu      sync.Mutex
	ifaces  []*wifi.Interface
	aps     []*wifi.BSS
	scanErr error
	closed  bool
}

func (f *fakeScanner) Interfaces() ([]*wifi.Interface, error) {
	return f.ifaces, nil
}

func (f *fakeScanner) AccessPoints(*wifi.Interface) ([]*wifi.BSS, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.aps, nil
}

func (f *fakeScanner) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{
		ifaces: []*wifi.Interface{
			{Name: "wlan0", Type: wifi.InterfaceTypeStation},
			{Name: "wlan1", Type: wifi.InterfaceTypeAP},
		},
		aps: []*wifi.BSS{
			{SSID: "home", BSSID: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, Signal: -6500, LastSeen: time.Second},
			{SSID: "private_nomap", BSSID: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x56}, Signal: -7000},
			{SSID: "", BSSID: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x57}, Signal: -8000},
		},
	}
}

func testProvider(t *testing.T, wlan scanner, fn func(*stdhttp.Request) (*stdhttp.Response, error)) *GeolocationICHNAEAProvider {
	t.Helper()
	client := http.New(logger.NewLogger(slog.LevelInfo, io.Discard))
	client.Transport = testhelper.MockRoundTripper{Fn: fn}
	return newProvider(client, testEndpoint, wlan)
}

func fileResponse(t *testing.T) func(*stdhttp.Request) (*stdhttp.Response, error) {
	return func(*stdhttp.Request) (*stdhttp.Response, error) {
		data, err := os.Open(testFile)
		if err != nil {
			t.Errorf("failed to open JSON response file: %s", err)
			return nil, err
		}
		return &stdhttp.Response{StatusCode: 200, Body: data, Header: make(stdhttp.Header)}, nil
	}
}

func TestNewGeolocationICHNAEAProvider(t *testing.T) {
	t.Run("ICHNAEA without http client fails", func(t *testing.T) {
		provider, err := NewGeolocationICHNAEAProvider(nil, testEndpoint)
		if err == nil {
			t.Fatal("expected provider to fail")
		}
		if provider != nil {
			t.Fatal("expected provider to be nil")
		}
	})
}

func TestGeolocationICHNAEAProvider_Name(t *testing.T) {
	provider := testProvider(t, newFakeScanner(), fileResponse(t))
	if !strings.EqualFold(provider.Name(), name) {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
}

func TestGeolocationICHNAEAProvider_wifiAccessPoints(t *testing.T) {
	t.Run("only station interfaces and mappable networks are listed", func(t *testing.T) {
		provider := testProvider(t, newFakeScanner(), fileResponse(t))
		list, err := provider.wifiAccessPoints()
		if err != nil {
			t.Fatalf("failed to get WiFi list: %s", err)
		}
		want := []WirelessNetwork{{LastSeen: 1000, MACAddress: "00:11:22:33:44:55", SignalStrength: -65}}
		if diff := cmp.Diff(want, list); diff != "" {
			t.Errorf("unexpected access points (-want +got):\n%s", diff)
		}
	})
	t.Run("scan failures are reported", func(t *testing.T) {
		wlan := newFakeScanner()
		wlan.scanErr = os.ErrPermission
		provider := testProvider(t, wlan, fileResponse(t))
		_, err := provider.wifiAccessPoints()
		if !errors.Is(err, os.ErrPermission) {
			t.Errorf("expected error to be %s, got %v", os.ErrPermission, err)
		}
	})
}

func TestGeolocationICHNAEAProvider_locate(t *testing.T) {
	t.Run("locate succeeds", func(t *testing.T) {
		var req request
		provider := testProvider(t, newFakeScanner(), func(r *stdhttp.Request) (*stdhttp.Response, error) {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %s", err)
			}
			return fileResponse(t)(r)
		})
		aps := []WirelessNetwork{{MACAddress: "00:11:22:33:44:55", SignalStrength: -65}}
		sample, err := provider.locate(t.Context(), aps)
		if err != nil {
			t.Fatalf("failed to locate coordinates via ICHNAEA: %s", err)
		}
		if sample.Lat != testLat || sample.Lon != testLon {
			t.Errorf("expected coordinates to be %f,%f, got %f,%f", testLat, testLon, sample.Lat, sample.Lon)
		}
		if sample.Accuracy.Value() != testAcc {
			t.Errorf("expected accuracy to be %d, got %f", testAcc, sample.Accuracy.Value())
		}
		if sample.Source != name {
			t.Errorf("expected source to be %s, got %s", name, sample.Source)
		}
		if !req.ConsiderIP || len(req.Accesspoints) != 1 {
			t.Errorf("unexpected request payload: %+v", req)
		}
	})
	t.Run("locate errors are classified", func(t *testing.T) {
		tests := []struct {
			name string
			resp *stdhttp.Response
			want error
		}{
			{"not found", testhelper.JSONResponse(404, `{"error":{"code":404}}`), geobus.ErrPositionUnavailable},
			{"forbidden", testhelper.JSONResponse(403, `{"error":{"code":403}}`), geobus.ErrPermissionDenied},
			{"server error", testhelper.JSONResponse(500, `{}`), geobus.ErrUnknown},
			{"broken JSON", testhelper.JSONResponse(200, "NOT_JSON"), geobus.ErrUnknown},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				provider := testProvider(t, newFakeScanner(), func(*stdhttp.Request) (*stdhttp.Response, error) {
					return tc.resp, nil
				})
				_, err := provider.locate(t.Context(), nil)
				if err == nil {
					t.Fatal("expected locate to fail")
				}
				if got := geobus.Classify(err); got != tc.want {
					t.Errorf("expected error kind to be %s, got %s", tc.want, got)
				}
			})
		}
	})
}

func TestGeolocationICHNAEAProvider_LookupStream(t *testing.T) {
	t.Run("lookup stream emits the located sample", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			wlan := newFakeScanner()
			provider := testProvider(t, wlan, fileResponse(t))

			out := provider.LookupStream(ctx, "test")
			result := <-out
			cancel()
			for range out {
			}

			if result.Err != nil {
				t.Fatalf("expected a sample, got error: %s", result.Err)
			}
			if result.Key != "test" {
				t.Errorf("expected key to be %s, got %s", "test", result.Key)
			}
			if result.Sample.Lat != testLat || result.Sample.Lon != testLon {
				t.Errorf("unexpected coordinates: %f,%f", result.Sample.Lat, result.Sample.Lon)
			}
			if result.TTL != provider.ttl {
				t.Errorf("expected TTL to be %s, got %s", provider.ttl, result.TTL)
			}
			wlan.mu.Lock()
			defer wlan.mu.Unlock()
			if !wlan.closed {
				t.Error("expected WiFi client to be closed")
			}
		})
	})
	t.Run("unchanged positions are emitted once", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			provider := testProvider(t, newFakeScanner(), fileResponse(t))
			provider.period = time.Minute

			out := provider.LookupStream(ctx, "test")
			<-out
			time.Sleep(time.Minute*3 + time.Second)
			synctest.Wait()
			select {
			case r := <-out:
				t.Errorf("expected no further result, got %+v", r)
			default:
			}
			cancel()
			for range out {
			}
		})
	})
	t.Run("lookup failures are emitted once per kind", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			var mu sync.Mutex
			calls := 0
			wlan := newFakeScanner()
			wlan.scanErr = os.ErrPermission
			provider := testProvider(t, wlan, func(r *stdhttp.Request) (*stdhttp.Response, error) {
				mu.Lock()
				defer mu.Unlock()
				calls++
				if calls <= 3 {
					return testhelper.JSONResponse(404, `{}`), nil
				}
				return fileResponse(t)(r)
			})
			provider.period = time.Minute

			out := provider.LookupStream(ctx, "test")
			first := <-out
			second := <-out
			cancel()
			for range out {
			}

			var srcErr *geobus.SourceError
			if !errors.As(first.Err, &srcErr) {
				t.Fatalf("expected source error, got %v", first.Err)
			}
			if srcErr.Kind != geobus.ErrPermissionDenied {
				t.Errorf("expected scan failure to be classified first, got %s", srcErr.Kind)
			}
			if second.Err != nil || second.Sample.Lat != testLat {
				t.Errorf("expected the located sample after the failures, got %+v", second)
			}
		})
	})
}
