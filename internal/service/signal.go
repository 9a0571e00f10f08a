// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// watchSignals routes SIGUSR1 and SIGUSR2 to HandleSignals until the context is cancelled.
func (s *Service) watchSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	defer s.SignalSrc.Stop(sigChan)
	s.HandleSignals(ctx, sigChan)
}

// HandleSignals toggles monitoring on SIGUSR1 and logs the current status on SIGUSR2.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				status := s.monitor.Toggle(ctx)
				s.logger.Debug("monitoring toggled", slog.String("status", status.String()))
			case syscall.SIGUSR2:
				s.logStatus()
			}
		}
	}
}
