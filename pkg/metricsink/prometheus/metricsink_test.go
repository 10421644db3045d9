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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nuclio/lambda-bootstrap/pkg/arena"
	"github.com/nuclio/lambda-bootstrap/pkg/runtime"

	"github.com/nuclio/logger"
	"github.com/nuclio/zap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

type fakeStatisticsProvider struct {
	statistics          runtime.Statistics
	allocatorStatistics arena.Statistics
}

func (fsp *fakeStatisticsProvider) GetStatistics() *runtime.Statistics {
	return &fsp.statistics
}

func (fsp *fakeStatisticsProvider) GetAllocatorStatistics() *arena.Statistics {
	return &fsp.allocatorStatistics
}

type MetricSinkTestSuite struct {
	suite.Suite
	logger   logger.Logger
	provider *fakeStatisticsProvider
}

func (suite *MetricSinkTestSuite) SetupSuite() {
	var err error

	suite.logger, err = nucliozap.NewNuclioZapTest("test")
	suite.Require().NoError(err)
}

func (suite *MetricSinkTestSuite) SetupTest() {
	suite.provider = &fakeStatisticsProvider{}
}

func (suite *MetricSinkTestSuite) TestGatherAddsDifferences() {
	gatherer, err := NewLoopGatherer(suite.logger, "test", suite.provider, prometheus.NewRegistry())
	suite.Require().NoError(err)

	suite.provider.statistics.EventsAcquiredTotal = 3
	suite.provider.statistics.EventsHandledSuccessTotal = 2
	suite.provider.statistics.EventsHandledFailureTotal = 1
	suite.provider.statistics.DurationMilliSecondsSum = 30
	suite.provider.statistics.DurationMilliSecondsCount = 3
	suite.provider.allocatorStatistics.PeakArenaBytes = 4096
	suite.Require().NoError(gatherer.Gather())

	suite.provider.statistics.EventsAcquiredTotal = 5
	suite.provider.statistics.EventsSkippedTotal = 1
	suite.provider.statistics.EventsHandledSuccessTotal = 3
	suite.provider.allocatorStatistics.PeakArenaBytes = 8192
	suite.provider.allocatorStatistics.ArenasAcquired = 6
	suite.provider.allocatorStatistics.ArenasReleased = 5
	suite.Require().NoError(gatherer.Gather())

	suite.Require().Equal(float64(5), testutil.ToFloat64(gatherer.eventsAcquiredTotal))
	suite.Require().Equal(float64(1), testutil.ToFloat64(gatherer.eventsSkippedTotal))
	suite.Require().Equal(float64(3), testutil.ToFloat64(gatherer.eventsHandledSuccessTotal))
	suite.Require().Equal(float64(1), testutil.ToFloat64(gatherer.eventsHandledFailureTotal))
	suite.Require().Equal(float64(30), testutil.ToFloat64(gatherer.handledEventsDurationMillisecondsSum))
	suite.Require().Equal(float64(3), testutil.ToFloat64(gatherer.handledEventsDurationMillisecondsCount))
	suite.Require().Equal(float64(8192), testutil.ToFloat64(gatherer.peakArenaBytes))
	suite.Require().Equal(float64(1), testutil.ToFloat64(gatherer.outstandingArenas))
}

func (suite *MetricSinkTestSuite) TestDuplicateRegistrationFails() {
	registry := prometheus.NewRegistry()

	_, err := NewLoopGatherer(suite.logger, "test", suite.provider, registry)
	suite.Require().NoError(err)

	_, err = NewLoopGatherer(suite.logger, "test", suite.provider, registry)
	suite.Require().Error(err)
}

func (suite *MetricSinkTestSuite) TestScrapeGathers() {
	metricSink, err := NewMetricSink(suite.logger, &Configuration{}, suite.provider)
	suite.Require().NoError(err)

	suite.provider.statistics.EventsAcquiredTotal = 7

	recorder := httptest.NewRecorder()
	metricSink.GetHandler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	suite.Require().Equal(http.StatusOK, recorder.Code)
	suite.Require().Contains(recorder.Body.String(),
		`nuclio_bootstrap_events_acquired_total{instance="bootstrap"} 7`)
}

func (suite *MetricSinkTestSuite) TestServe() {
	metricSink, err := NewMetricSink(suite.logger, &Configuration{ListenAddress: "127.0.0.1:0"}, suite.provider)
	suite.Require().NoError(err)

	suite.Require().NoError(metricSink.Start())
	defer metricSink.Stop(context.Background()) // nolint: errcheck

	server := httptest.NewServer(metricSink.GetHandler())
	defer server.Close()

	response, err := http.Get(server.URL + "/metrics")
	suite.Require().NoError(err)
	defer response.Body.Close() // nolint: errcheck

	body, err := io.ReadAll(response.Body)
	suite.Require().NoError(err)
	suite.Require().Contains(string(body), "nuclio_bootstrap_peak_arena_bytes")
}

func TestMetricSinkTestSuite(t *testing.T) {
	suite.Run(t, new(MetricSinkTestSuite))
}
