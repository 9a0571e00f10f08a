// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/geowatch/internal/logger"
	"github.com/wneessen/geowatch/internal/monitor"
)

const (
	login1Manager  = "org.freedesktop.login1.Manager"
	prepareToSleep = "PrepareForSleep"

	resumeDebounce   = 2 * time.Second
	signalBufferSize = 8

	systemBusRetryDelay = 5 * time.Second
	networkWakeupDelay  = 10 * time.Second
)

var errSignalChannelClosed = errors.New("system bus closed the signal channel")

// monitorSleepResume pauses monitoring while the system is suspended. Lost system bus
// connections are re-established until the context is cancelled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	for {
		if err := s.watchSleepSignals(ctx); err != nil {
			s.logger.Warn("sleep monitoring interrupted", logger.Err(err),
				slog.Duration("retry_in", systemBusRetryDelay))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(systemBusRetryDelay):
		}
	}
}

// watchSleepSignals subscribes to the PrepareForSleep signal of logind and processes it until
// the context is cancelled or the connection breaks.
func (s *Service) watchSleepSignals(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
	}()

	if err = conn.AddMatchSignal(dbus.WithMatchInterface(login1Manager),
		dbus.WithMatchMember(prepareToSleep)); err != nil {
		return fmt.Errorf("failed to subscribe to %s.%s: %w", login1Manager, prepareToSleep, err)
	}
	signals := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)
	s.logger.Debug("watching for system sleep", slog.String("interface", login1Manager),
		slog.String("member", prepareToSleep))

	for {
		select {
		case <-ctx.Done():
			return nil
		case sgn, ok := <-signals:
			if !ok {
				return errSignalChannelClosed
			}
			s.processSleepSignal(ctx, sgn)
		}
	}
}

// processSleepSignal pauses monitoring when the system prepares for sleep and resumes it after
// wake-up. Only a session that was paused for sleep is resumed.
func (s *Service) processSleepSignal(ctx context.Context, sgn *dbus.Signal) {
	if len(sgn.Body) != 1 {
		return
	}
	sleeping, ok := sgn.Body[0].(bool)
	if !ok {
		return
	}
	if sleeping {
		s.handleSleepEvent()
		return
	}
	s.handleResumeEvent(ctx)
}

// handleSleepEvent ends the active session. Samples taken before the suspend must not
// throttle the samples after the wake-up.
func (s *Service) handleSleepEvent() {
	if s.monitor.Status() != monitor.Active {
		return
	}
	s.logger.Debug("system is going to sleep, pausing monitoring")
	s.sleepPaused.Store(true)
	s.monitor.Stop()
}

// handleResumeEvent starts a new session once the location sources had time to reconnect.
func (s *Service) handleResumeEvent(ctx context.Context) {
	now := time.Now().UnixMilli()
	if now-s.lastResume.Load() < resumeDebounce.Milliseconds() {
		return
	}
	s.lastResume.Store(now)

	if !s.sleepPaused.Swap(false) {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(networkWakeupDelay):
	}

	s.logger.Debug("resuming from sleep, starting a new monitoring session")
	s.monitor.Start(ctx)
}
