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

package runtime

import (
	"sync/atomic"

	"github.com/nuclio/lambda-bootstrap/pkg/arena"
	"github.com/nuclio/lambda-bootstrap/pkg/runtimeapi"
	"github.com/nuclio/lambda-bootstrap/pkg/runtimeconfig"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// Loop polls the control endpoint for invocations, calls the handler for each and reports
// the outcome. Exactly one invocation is in flight at any time
type Loop struct {
	logger        logger.Logger
	configuration *runtimeconfig.Configuration
	client        *runtimeapi.Client
	handler       Handler
	allocator     *arena.Allocator
	statistics    Statistics
	iterations    int

	functionIdentityLogged bool
}

// NewLoop creates a loop. If client is nil, one is created against the configured control endpoint
func NewLoop(parentLogger logger.Logger,
	configuration *runtimeconfig.Configuration,
	handler Handler,
	client *runtimeapi.Client) (*Loop, error) {

	if handler == nil {
		return nil, errors.New("Handler must be provided")
	}

	if err := configuration.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}

	loopLogger := parentLogger.GetChild("loop")

	if client == nil {
		client = runtimeapi.NewClient(loopLogger, configuration.BaseURL(), runtimeapi.NewTransport)
	}

	return &Loop{
		logger:        loopLogger,
		configuration: configuration,
		client:        client,
		handler:       handler,
		allocator:     arena.NewAllocator(),
	}, nil
}

// Run iterates until a fatal error occurs, which is returned as a *FatalError. If an
// iteration limit is configured, Run returns nil once it is reached
func (l *Loop) Run() error {
	l.logger.InfoWith("Starting",
		"controlEndpoint", l.configuration.ControlEndpoint,
		"iterationLimit", l.configuration.IterationLimit)

	for l.configuration.IterationLimit == 0 || l.iterations < l.configuration.IterationLimit {
		l.iterations++

		if err := l.iterate(); err != nil {
			l.logger.ErrorWith("Fatal error, stopping",
				"iteration", l.iterations,
				"err", errors.GetErrorStackString(err, 10))

			return err
		}
	}

	l.logger.InfoWith("Iteration limit reached", "iterations", l.iterations)

	return nil
}

// GetStatistics returns the loop statistics
func (l *Loop) GetStatistics() *Statistics {
	return &l.statistics
}

// GetAllocatorStatistics returns statistics of the per-invocation arenas
func (l *Loop) GetAllocatorStatistics() *arena.Statistics {
	return l.allocator.GetStatistics()
}

// iterate performs a single Polling -> Processing cycle. Only fatal errors are returned
func (l *Loop) iterate() error {
	invocationArena := l.allocator.Acquire()
	defer invocationArena.Release()

	// blocks until the control endpoint hands out work. the process may be frozen in here
	event, err := l.acquireEvent(invocationArena)
	if err != nil {
		return err
	}

	// nothing to report to without a request ID
	if event == nil {
		atomic.AddUint64(&l.statistics.EventsSkippedTotal, 1)
		return nil
	}

	outcome := l.invokeHandler(invocationArena, event)

	return l.reportOutcome(event, outcome)
}
