/*
Copyright 2017 The Nuclio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package emulator

import (
	"context"
	"time"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	cronlib "github.com/robfig/cron/v3"
)

// Scheduler re-enqueues a set of invocations on a cron schedule
type Scheduler struct {
	logger      logger.Logger
	server      *Server
	schedule    cronlib.Schedule
	invocations []*Invocation
}

// NewScheduler parses a standard cron spec ("*/5 * * * *") or a descriptor ("@every 10s")
func NewScheduler(parentLogger logger.Logger,
	server *Server,
	spec string,
	invocations []*Invocation) (*Scheduler, error) {
	schedule, err := cronlib.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to parse schedule: %s", spec)
	}

	return &Scheduler{
		logger:      parentLogger.GetChild("scheduler"),
		server:      server,
		schedule:    schedule,
		invocations: invocations,
	}, nil
}

// Run enqueues the invocations at every tick until the context is done, returning the number of ticks
func (s *Scheduler) Run(ctx context.Context) int {
	ticks := 0
	lastTickTime := time.Now()

	for {
		delay := s.getNextTickDelay(lastTickTime)

		s.logger.DebugWith("Waiting for next tick", "delay", delay)

		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ticks
		case <-timer.C:
		}

		for _, invocation := range s.invocations {

			tickInvocation := *invocation

			// request IDs must be unique per tick
			tickInvocation.RequestID = ""

			if _, err := s.server.EnqueueContext(ctx, &tickInvocation); err != nil {
				s.logger.DebugWith("Stopped enqueueing", "err", err.Error())
				return ticks
			}
		}

		ticks++
		lastTickTime = time.Now()
	}
}

func (s *Scheduler) getNextTickDelay(lastTickTime time.Time) time.Duration {
	nextTickTime := s.schedule.Next(lastTickTime)

	// skip ticks missed while enqueueing
	missedTicks := 0
	for nextTickTime.Before(time.Now()) {
		nextTickTime = s.schedule.Next(nextTickTime)
		missedTicks++
	}

	if missedTicks > 0 {
		s.logger.InfoWith("Missed ticks, skipping to the next one", "missedTicks", missedTicks)
	}

	return time.Until(nextTickTime)
}
