// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"sync"
	"time"
)

// Job runs a task right away and then at a fixed interval. Runs never overlap: a tick that fires
// while the previous run is still executing is skipped.
type Job struct {
	interval time.Duration
	task     func(context.Context)
}

// New creates a new Job with the given interval and task.
func New(interval time.Duration, task func(context.Context)) *Job {
	return &Job{
		interval: interval,
		task:     task,
	}
}

// Start executes the job until the context is cancelled. It returns once the context is
// cancelled and a run in progress has finished.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.interval <= 0 {
		return
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	// 1-slot semaphore, held while a run is in progress
	sem := make(chan struct{}, 1)
	run := func() {
		select {
		case sem <- struct{}{}:
		default:
			return
		}
		wg.Go(func() {
			defer func() { <-sem }()
			j.task(ctx)
		})
	}

	run()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
