// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kkyr/fig"

	"github.com/wneessen/geowatch/internal/geohash"
	"github.com/wneessen/geowatch/internal/i18n"
	"github.com/wneessen/geowatch/internal/pipeline"
)

const (
	configEnv         = "GEOWATCH"
	DefaultTextTpl    = "{{iconWithSpace .Icon}}{{.Fingerprint}}"
	DefaultTooltipTpl = "{{loc \"Location\"}}: {{floatFormat .Latitude 5}}, {{floatFormat .Longitude 5}}\n" +
		"{{loc \"Accuracy\"}}: {{meters .Accuracy}}\n{{loc \"Source\"}}: {{.Source}}\n" +
		"{{loc \"Geohash\"}}: {{.Fingerprint}}\n{{loc \"Updated\"}}: {{localizedDateTime .Timestamp}}"
	DefaultICHNAEAEndpoint = "https://api.beacondb.net/v1/geolocate"
	DefaultGeoIPEndpoint   = "https://reallyfreegeoip.org/json/"

	DefaultZoom = 16
	maxZoom     = 22
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Pipeline struct {
		MinInterval          time.Duration `fig:"min_interval" default:"5s"`
		FingerprintPrecision int           `fig:"fingerprint_precision" default:"8"`
	} `fig:"pipeline"`

	Map struct {
		// Allowed values: 0 to 22. A pointer, so that an explicit 0 is not replaced by the default
		Zoom *int `fig:"zoom" default:"16"`
	} `fig:"map"`

	Monitor struct {
		StartStopped bool `fig:"start_stopped"`
		IgnoreSleep  bool `fig:"ignore_sleep"`
	} `fig:"monitor"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	GeoLocation struct {
		File                   string        `fig:"file"`
		FileInterval           time.Duration `fig:"file_interval" default:"10s"`
		DisableGeolocationFile bool          `fig:"disable_geolocation_file"`
		DisableGPSD            bool          `fig:"disable_gpsd"`
		GPSDAddr               string        `fig:"gpsd_addr" default:"localhost:2947"`
		EnableICHNAEA          bool          `fig:"enable_ichnaea"`
		ICHNAEAEndpoint        string        `fig:"ichnaea_endpoint"`
		EnableGeoIP            bool          `fig:"enable_geoip"`
		GeoIPEndpoint          string        `fig:"geoip_endpoint"`
	} `fig:"geolocation"`

	Metrics struct {
		Listen string `fig:"listen"`
	} `fig:"metrics"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if err := c.PipelineConfig().Validate(); err != nil {
		return fmt.Errorf("invalid pipeline settings: %w", err)
	}
	if zoom := c.MapZoom(); zoom < 0 || zoom > maxZoom {
		return fmt.Errorf("invalid map zoom: %d", zoom)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if c.GeoLocation.FileInterval <= 0 {
		return fmt.Errorf("invalid geolocation file interval: %s", c.GeoLocation.FileInterval)
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.GeoLocation.File == "" {
		home, _ := os.UserHomeDir()
		c.GeoLocation.File = filepath.Join(home, ".config", "geowatch", "geolocation")
	}
	if c.GeoLocation.ICHNAEAEndpoint == "" {
		c.GeoLocation.ICHNAEAEndpoint = DefaultICHNAEAEndpoint
	}
	if c.GeoLocation.GeoIPEndpoint == "" {
		c.GeoLocation.GeoIPEndpoint = DefaultGeoIPEndpoint
	}

	return nil
}

// PipelineConfig returns the settings of the location update pipeline.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		MinInterval:          c.Pipeline.MinInterval,
		FingerprintPrecision: c.Pipeline.FingerprintPrecision,
	}
}

// MapZoom returns the zoom level passed along with every recenter.
func (c *Config) MapZoom() int {
	if c.Map.Zoom == nil {
		return DefaultZoom
	}
	return *c.Map.Zoom
}

// CellSize returns the approximate width and height in meters of a fingerprint cell at the
// configured precision.
func (c *Config) CellSize() (width, height float64) {
	return geohash.CellSize(c.Pipeline.FingerprintPrecision)
}

func getLocale() string {
	return i18n.Normalize(os.Getenv("LC_MESSAGES"))
}
