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

package bootstrap

import (
	"context"
	"io"
	"os"
	"time"

	prometheusmetricsink "github.com/nuclio/lambda-bootstrap/pkg/metricsink/prometheus"
	"github.com/nuclio/lambda-bootstrap/pkg/runtime"
	"github.com/nuclio/lambda-bootstrap/pkg/runtimeapi"
	"github.com/nuclio/lambda-bootstrap/pkg/runtimeconfig"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/nuclio/zap"
	"github.com/v3io/version-go"
)

const metricSinkStopTimeout = 5 * time.Second

type Options struct {
	Initializer      runtime.Initializer
	Environ          []string
	Stdout           io.Writer
	Stderr           io.Writer
	TransportFactory runtimeapi.TransportFactory
}

type Option func(*Options)

// WithInitializer runs initializer once before the first invocation. If it fails, the error
// is reported on the init error exchange and the process exits
func WithInitializer(initializer runtime.Initializer) Option {
	return func(options *Options) {
		options.Initializer = initializer
	}
}

// WithEnviron reads configuration from environ instead of the process environment
func WithEnviron(environ []string) Option {
	return func(options *Options) {
		options.Environ = environ
	}
}

// WithOutput directs log output to stdout and stderr
func WithOutput(stdout io.Writer, stderr io.Writer) Option {
	return func(options *Options) {
		options.Stdout = stdout
		options.Stderr = stderr
	}
}

func WithTransportFactory(transportFactory runtimeapi.TransportFactory) Option {
	return func(options *Options) {
		options.TransportFactory = transportFactory
	}
}

// Start runs the handler until a fatal error occurs, then exits the process. It only returns
// if an iteration limit is configured and reached
func Start(handler runtime.Handler, options ...Option) {
	if err := Run(handler, options...); err != nil {
		errors.PrintErrorStack(os.Stderr, err, 5)

		os.Exit(1)
	}
}

// Run runs the handler until a fatal error occurs, and returns it
func Run(handler runtime.Handler, options ...Option) error {
	resolvedOptions := resolveOptions(options)

	configuration, err := runtimeconfig.NewConfigurationFromEnv(resolvedOptions.Environ)
	if err != nil {
		return errors.Wrap(err, "Failed to read configuration")
	}

	loggerInstance, err := createLogger(configuration, resolvedOptions)
	if err != nil {
		return errors.Wrap(err, "Failed to create logger")
	}

	bootstrapVersion := "unknown"
	if versionInfo := version.Get(); versionInfo != nil && versionInfo.Label != "" {
		bootstrapVersion = versionInfo.Label
	}

	loggerInstance.InfoWith("Starting bootstrap",
		"version", bootstrapVersion,
		"controlEndpoint", configuration.ControlEndpoint,
		"functionName", configuration.FunctionName,
		"functionVersion", configuration.FunctionVersion,
		"functionMemorySize", configuration.FunctionMemorySize)

	client := runtimeapi.NewClient(loggerInstance, configuration.BaseURL(), resolvedOptions.TransportFactory)

	loop, err := runtime.NewLoop(loggerInstance, configuration, handler, client)
	if err != nil {
		return errors.Wrap(err, "Failed to create loop")
	}

	if configuration.MetricsListenAddress != "" {
		metricSink, err := prometheusmetricsink.NewMetricSink(loggerInstance,
			&prometheusmetricsink.Configuration{
				ListenAddress: configuration.MetricsListenAddress,
				InstanceName:  configuration.FunctionName,
			},
			loop)
		if err != nil {
			return errors.Wrap(err, "Failed to create metric sink")
		}

		if err := metricSink.Start(); err != nil {
			return errors.Wrap(err, "Failed to start metric sink")
		}

		defer stopMetricSink(loggerInstance, metricSink)
	}

	if err := initialize(loggerInstance, loop, resolvedOptions.Initializer); err != nil {
		return err
	}

	return loop.Run()
}

// initialize runs the initializer. A failed initializer is reported, and is terminal either way
func initialize(loggerInstance logger.Logger, loop *runtime.Loop, initializer runtime.Initializer) error {
	if initializer == nil {
		return nil
	}

	initErr := callInitializer(initializer)
	if initErr == nil {
		return nil
	}

	loggerInstance.ErrorWith("Initializer failed", "err", errors.GetErrorStackString(initErr, 10))

	if err := loop.ReportInitError(initErr); err != nil {
		return err
	}

	return errors.Wrap(initErr, "Initializer failed")
}

func callInitializer(initializer runtime.Initializer) (err error) {
	defer func() {
		if recoveredErr := recover(); recoveredErr != nil {
			err = errors.Errorf("Initializer panicked: %v", recoveredErr)
		}
	}()

	if initErr := initializer(); initErr != nil {
		return runtime.CaptureError(initErr)
	}

	return nil
}

func createLogger(configuration *runtimeconfig.Configuration, options *Options) (logger.Logger, error) {
	return nucliozap.NewNuclioZap("bootstrap",
		configuration.LogFormat,
		nil,
		options.Stdout,
		options.Stderr,
		nucliozap.GetLevelByName(configuration.LogLevel))
}

func stopMetricSink(loggerInstance logger.Logger, metricSink *prometheusmetricsink.MetricSink) {
	ctx, cancel := context.WithTimeout(context.Background(), metricSinkStopTimeout)
	defer cancel()

	if err := metricSink.Stop(ctx); err != nil {
		loggerInstance.WarnWith("Failed to stop metric sink", "err", err.Error())
	}
}

func resolveOptions(options []Option) *Options {
	resolvedOptions := &Options{
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
		TransportFactory: runtimeapi.NewTransport,
	}

	for _, option := range options {
		option(resolvedOptions)
	}

	if resolvedOptions.Environ == nil {
		resolvedOptions.Environ = os.Environ()
	}

	return resolvedOptions
}
