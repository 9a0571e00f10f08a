// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/geowatch/internal/config"
	"github.com/wneessen/geowatch/internal/geobus"
	"github.com/wneessen/geowatch/internal/logger"
	"github.com/wneessen/geowatch/internal/metrics"
	"github.com/wneessen/geowatch/internal/monitor"
	"github.com/wneessen/geowatch/internal/presenter"
	"github.com/wneessen/geowatch/internal/template"
)

const (
	DesktopID = "geowatch"
)

type Service struct {
	config    *config.Config
	geobus    *geobus.GeoBus
	logger    *logger.Logger
	monitor   *monitor.Monitor
	presenter *presenter.Presenter
	scheduler gocron.Scheduler
	output    io.Writer

	// sleepPaused is set while a session is stopped because the system went to sleep
	sleepPaused atomic.Bool
	// lastResume holds the time of the last resume event in unix milliseconds
	lastResume atomic.Int64

	SignalSrc signalSource
}

func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer) (*Service, error) {
	return newService(conf, log, loc, os.Stdout)
}

func newService(conf *config.Config, log *logger.Logger, loc *spreak.Localizer, output io.Writer) (*Service, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	tpls, err := template.New(conf, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	writer := presenter.NewJSONWriter(output)
	pres, err := presenter.New(tpls, writer, writer, conf.MapZoom(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	bus := geobus.New(log)
	service := &Service{
		config:    conf,
		geobus:    bus,
		logger:    log,
		monitor:   monitor.New(bus, DesktopID, conf.PipelineConfig(), pres, log),
		presenter: pres,
		output:    output,
		SignalSrc: stdLibSignalSource{},
	}
	return service, nil
}

// Run starts the location sources and, unless configured otherwise, a monitoring session. It
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	providers, err := s.selectGeobusProviders()
	if err != nil {
		return fmt.Errorf("failed to create geobus orchestrator: %w", err)
	}
	orchestrator := s.geobus.NewOrchestrator(providers)

	s.scheduler, err = gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err = s.createScheduledJob(ctx, s.config.Intervals.Output, s.printStatus,
		"status_output_job"); err != nil {
		return err
	}
	s.scheduler.Start()
	s.presenter.Reprint()

	width, height := s.config.CellSize()
	s.logger.Debug("location updates are deduplicated per geohash cell",
		slog.Int("precision", s.config.Pipeline.FingerprintPrecision),
		slog.Float64("cell_width_meters", width), slog.Float64("cell_height_meters", height),
		slog.Duration("min_interval", s.config.Pipeline.MinInterval))

	go orchestrator.Track(ctx, DesktopID)
	if !s.config.Monitor.StartStopped {
		s.monitor.Start(ctx)
	}

	if s.config.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, s.config.Metrics.Listen); err != nil {
				s.logger.Error("failed to serve metrics", logger.Err(err),
					slog.String("listen", s.config.Metrics.Listen))
			}
		}()
	}

	go s.watchSignals(ctx)

	if !s.config.Monitor.IgnoreSleep {
		go s.monitorSleepResume(ctx)
	}

	<-ctx.Done()
	s.monitor.Stop()
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// printStatus repeats the last status line, so that a restarted bar picks up the current state.
func (s *Service) printStatus(context.Context) {
	s.presenter.Reprint()
}

// logStatus logs the monitoring status and the last known position.
func (s *Service) logStatus() {
	attrs := []any{
		slog.String("status", s.monitor.Status().String()),
		slog.String("session", s.monitor.SessionID()),
	}
	if sample, ok := s.geobus.Last(DesktopID); ok {
		attrs = append(attrs, slog.Float64("latitude", sample.Lat), slog.Float64("longitude", sample.Lon),
			slog.String("source", sample.Source), slog.Time("timestamp", sample.Timestamp))
	}
	s.logger.Info("current monitoring status", attrs...)
}
