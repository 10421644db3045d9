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
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Configuration struct {
	ListenAddress string
	InstanceName  string
}

// MetricSink serves loop metrics for prometheus to pull. Metrics are gathered on every scrape
type MetricSink struct {
	logger         logger.Logger
	configuration  *Configuration
	metricRegistry *prometheus.Registry
	gatherer       *LoopGatherer
	router         chi.Router
	server         *http.Server
}

func NewMetricSink(parentLogger logger.Logger,
	configuration *Configuration,
	statisticsProvider StatisticsProvider) (*MetricSink, error) {

	if configuration.InstanceName == "" {
		configuration.InstanceName = "bootstrap"
	}

	newMetricSink := &MetricSink{
		logger:         parentLogger.GetChild("metricsink"),
		configuration:  configuration,
		metricRegistry: prometheus.NewRegistry(),
	}

	var err error

	newMetricSink.gatherer, err = NewLoopGatherer(newMetricSink.logger,
		configuration.InstanceName,
		statisticsProvider,
		newMetricSink.metricRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create loop gatherer")
	}

	newMetricSink.router = newMetricSink.createRouter()

	newMetricSink.logger.InfoWith("Created",
		"instanceName", configuration.InstanceName,
		"listenAddress", configuration.ListenAddress)

	return newMetricSink, nil
}

// Start listens on the configured address and serves in the background
func (ms *MetricSink) Start() error {
	listener, err := net.Listen("tcp", ms.configuration.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "Failed to listen on %s", ms.configuration.ListenAddress)
	}

	ms.server = &http.Server{
		Handler: ms.router,
	}

	go func() {
		if err := ms.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			ms.logger.WarnWith("Metric sink stopped serving", "err", err.Error())
		}
	}()

	ms.logger.InfoWith("Listening", "listenAddress", listener.Addr().String())

	return nil
}

func (ms *MetricSink) Stop(ctx context.Context) error {
	if ms.server == nil {
		return nil
	}

	return ms.server.Shutdown(ctx)
}

// GetHandler returns the router serving /metrics
func (ms *MetricSink) GetHandler() http.Handler {
	return ms.router
}

func (ms *MetricSink) GetRegistry() *prometheus.Registry {
	return ms.metricRegistry
}

func (ms *MetricSink) createRouter() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(middleware.StripSlashes)

	metricsHandler := promhttp.HandlerFor(ms.metricRegistry, promhttp.HandlerOpts{})

	router.Get("/metrics", func(responseWriter http.ResponseWriter, request *http.Request) {
		if err := ms.gatherer.Gather(); err != nil {
			ms.logger.WarnWith("Failed to gather metrics", "err", err.Error())
			responseWriter.WriteHeader(http.StatusInternalServerError)
			return
		}

		metricsHandler.ServeHTTP(responseWriter, request)
	})

	return router
}
