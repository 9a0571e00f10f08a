// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/geobus/provider/geoip"
	"github.com/wneessen/geowatch/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/geowatch/internal/geobus/provider/gpsd"
	"github.com/wneessen/geowatch/internal/geobus/provider/ichnaea"
	"github.com/wneessen/geowatch/internal/http"
	"github.com/wneessen/geowatch/internal/logger"
)

// selectGeobusProviders returns the location sources enabled in the configuration. The
// network based sources share one HTTP client.
func (s *Service) selectGeobusProviders() ([]geobus.Provider, error) {
	geo := s.config.GeoLocation
	var providers []geobus.Provider

	if !geo.DisableGeolocationFile {
		providers = append(providers, geolocation_file.NewGeolocationFileProvider(geo.File, geo.FileInterval))
	}
	if !geo.DisableGPSD {
		providers = append(providers, gpsd.NewGeolocationGPSDProvider(geo.GPSDAddr))
	}

	var client *http.Client
	if geo.EnableICHNAEA || geo.EnableGeoIP {
		client = http.New(s.logger)
	}
	if geo.EnableICHNAEA {
		// no wifi hardware is not fatal as long as other sources are left
		wifiSource, err := ichnaea.NewGeolocationICHNAEAProvider(client, geo.ICHNAEAEndpoint)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			providers = append(providers, wifiSource)
		}
	}
	if geo.EnableGeoIP {
		ipSource, err := geoip.NewGeolocationGeoIPProvider(client, geo.GeoIPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoIP provider: %w", err)
		}
		providers = append(providers, ipSource)
	}

	if len(providers) == 0 {
		return nil, errors.New("no geolocation providers enabled")
	}
	names := make([]string, 0, len(providers))
	for _, provider := range providers {
		names = append(names, provider.Name())
	}
	s.logger.Debug("location sources selected", slog.Any("providers", names))
	return providers, nil
}
