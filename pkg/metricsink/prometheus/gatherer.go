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

package prometheus

import (
	"sync"
	"sync/atomic"

	"github.com/nuclio/lambda-bootstrap/pkg/arena"
	"github.com/nuclio/lambda-bootstrap/pkg/runtime"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// StatisticsProvider exposes the counters of a running loop
type StatisticsProvider interface {
	GetStatistics() *runtime.Statistics
	GetAllocatorStatistics() *arena.Statistics
}

// LoopGatherer turns loop statistics into prometheus metrics. Counters are fed with the
// difference since the previous gather
type LoopGatherer struct {
	logger             logger.Logger
	statisticsProvider StatisticsProvider
	prevStatistics     runtime.Statistics
	gatherLock         sync.Mutex

	eventsAcquiredTotal                    prometheus.Counter
	eventsSkippedTotal                     prometheus.Counter
	eventsHandledSuccessTotal              prometheus.Counter
	eventsHandledFailureTotal              prometheus.Counter
	handledEventsDurationMillisecondsSum   prometheus.Counter
	handledEventsDurationMillisecondsCount prometheus.Counter
	peakArenaBytes                         prometheus.Gauge
	outstandingArenas                      prometheus.Gauge
}

func NewLoopGatherer(parentLogger logger.Logger,
	instanceName string,
	statisticsProvider StatisticsProvider,
	metricRegistry *prometheus.Registry) (*LoopGatherer, error) {

	newLoopGatherer := &LoopGatherer{
		logger:             parentLogger.GetChild("gatherer"),
		statisticsProvider: statisticsProvider,
	}

	labels := prometheus.Labels{
		"instance": instanceName,
	}

	newCounter := func(name string, help string) (prometheus.Counter, error) {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})

		if err := metricRegistry.Register(counter); err != nil {
			return nil, errors.Wrapf(err, "Failed to register %s", name)
		}

		return counter, nil
	}

	newGauge := func(name string, help string) (prometheus.Gauge, error) {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})

		if err := metricRegistry.Register(gauge); err != nil {
			return nil, errors.Wrapf(err, "Failed to register %s", name)
		}

		return gauge, nil
	}

	var err error

	if newLoopGatherer.eventsAcquiredTotal, err = newCounter("nuclio_bootstrap_events_acquired_total",
		"Total number of events acquired from the control endpoint"); err != nil {
		return nil, err
	}

	if newLoopGatherer.eventsSkippedTotal, err = newCounter("nuclio_bootstrap_events_skipped_total",
		"Total number of events skipped for lack of a request ID"); err != nil {
		return nil, err
	}

	if newLoopGatherer.eventsHandledSuccessTotal, err = newCounter("nuclio_bootstrap_events_handled_success_total",
		"Total number of events handled successfully"); err != nil {
		return nil, err
	}

	if newLoopGatherer.eventsHandledFailureTotal, err = newCounter("nuclio_bootstrap_events_handled_failure_total",
		"Total number of events the handler failed"); err != nil {
		return nil, err
	}

	if newLoopGatherer.handledEventsDurationMillisecondsSum, err = newCounter(
		"nuclio_bootstrap_handled_events_duration_milliseconds_sum",
		"Total sum of milliseconds it took to handle events"); err != nil {
		return nil, err
	}

	if newLoopGatherer.handledEventsDurationMillisecondsCount, err = newCounter(
		"nuclio_bootstrap_handled_events_duration_milliseconds_count",
		"Number of measurements taken for nuclio_bootstrap_handled_events_duration_milliseconds_sum"); err != nil {
		return nil, err
	}

	if newLoopGatherer.peakArenaBytes, err = newGauge("nuclio_bootstrap_peak_arena_bytes",
		"Largest number of bytes a single invocation arena held"); err != nil {
		return nil, err
	}

	if newLoopGatherer.outstandingArenas, err = newGauge("nuclio_bootstrap_outstanding_arenas",
		"Number of invocation arenas not yet released"); err != nil {
		return nil, err
	}

	newLoopGatherer.logger.DebugWith("Loop gatherer created", "instance", instanceName)

	return newLoopGatherer, nil
}

func (lg *LoopGatherer) Gather() error {
	lg.gatherLock.Lock()
	defer lg.gatherLock.Unlock()

	// read current stats
	currentStatistics := lg.statisticsProvider.GetStatistics().Snapshot()

	// diff from previous to get this period
	diffStatistics := currentStatistics.DiffFrom(&lg.prevStatistics)

	lg.eventsAcquiredTotal.Add(float64(diffStatistics.EventsAcquiredTotal))
	lg.eventsSkippedTotal.Add(float64(diffStatistics.EventsSkippedTotal))
	lg.eventsHandledSuccessTotal.Add(float64(diffStatistics.EventsHandledSuccessTotal))
	lg.eventsHandledFailureTotal.Add(float64(diffStatistics.EventsHandledFailureTotal))
	lg.handledEventsDurationMillisecondsSum.Add(float64(diffStatistics.DurationMilliSecondsSum))
	lg.handledEventsDurationMillisecondsCount.Add(float64(diffStatistics.DurationMilliSecondsCount))

	allocatorStatistics := lg.statisticsProvider.GetAllocatorStatistics()
	lg.peakArenaBytes.Set(float64(atomic.LoadUint64(&allocatorStatistics.PeakArenaBytes)))
	lg.outstandingArenas.Set(float64(allocatorStatistics.Outstanding()))

	// save previous
	lg.prevStatistics = currentStatistics

	return nil
}
