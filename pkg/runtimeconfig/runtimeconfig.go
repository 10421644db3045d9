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

package runtimeconfig

import (
	"fmt"
	"strings"

	"github.com/imdario/mergo"
	"github.com/mitchellh/mapstructure"
	"github.com/nuclio/errors"
)

const (
	DefaultMaxPayloadSize = 6 * 1024 * 1024
	MaxPayloadSizeLimit   = 1024 * 1024 * 1024
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"

	ControlEndpointEnvVar = "AWS_LAMBDA_RUNTIME_API"
	IterationLimitEnvVar  = "NUCLIO_BOOTSTRAP_ITERATION_LIMIT"
)

// Configuration is resolved once at process start and never modified afterwards
type Configuration struct {

	// host:port of the control endpoint
	ControlEndpoint string `mapstructure:"AWS_LAMBDA_RUNTIME_API"`

	// number of loop iterations after which the loop returns. zero means forever. only
	// test harnesses set this
	IterationLimit int `mapstructure:"NUCLIO_BOOTSTRAP_ITERATION_LIMIT"`

	// safety cap on the size of an event payload
	MaxPayloadSize int64 `mapstructure:"NUCLIO_BOOTSTRAP_MAX_PAYLOAD_SIZE"`

	LogLevel  string `mapstructure:"NUCLIO_BOOTSTRAP_LOG_LEVEL"`
	LogFormat string `mapstructure:"NUCLIO_BOOTSTRAP_LOG_FORMAT"`

	// if set, runtime statistics are exposed in prometheus format on this address
	MetricsListenAddress string `mapstructure:"NUCLIO_BOOTSTRAP_METRICS_LISTEN_ADDRESS"`

	FunctionName       string `mapstructure:"AWS_LAMBDA_FUNCTION_NAME"`
	FunctionVersion    string `mapstructure:"AWS_LAMBDA_FUNCTION_VERSION"`
	FunctionMemorySize int    `mapstructure:"AWS_LAMBDA_FUNCTION_MEMORY_SIZE"`
}

// NewConfiguration creates a configuration for a given control endpoint, with defaults for everything else
func NewConfiguration(controlEndpoint string) *Configuration {
	newConfiguration := &Configuration{
		ControlEndpoint: controlEndpoint,
	}

	// both sides are the same type, so merging can't fail
	newConfiguration.enrichDefaults() // nolint: errcheck

	return newConfiguration
}

// NewConfigurationFromEnv creates a configuration from a list of KEY=VALUE pairs (e.g. os.Environ())
func NewConfigurationFromEnv(environ []string) (*Configuration, error) {
	newConfiguration := &Configuration{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           newConfiguration,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create decoder")
	}

	if err := decoder.Decode(envToMap(environ)); err != nil {
		return nil, errors.Wrap(err, "Failed to decode environment")
	}

	if err := newConfiguration.enrichDefaults(); err != nil {
		return nil, err
	}

	if err := newConfiguration.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}

	return newConfiguration, nil
}

// Validate returns an error if the configuration cannot be used to run the loop
func (c *Configuration) Validate() error {
	if c.ControlEndpoint == "" {
		return errors.Errorf("%s must be set", ControlEndpointEnvVar)
	}

	if c.IterationLimit < 0 {
		return errors.Errorf("Iteration limit must not be negative (got %d)", c.IterationLimit)
	}

	if c.MaxPayloadSize <= 0 {
		return errors.Errorf("Max payload size must be positive (got %d)", c.MaxPayloadSize)
	}

	if c.MaxPayloadSize > MaxPayloadSizeLimit {
		return errors.Errorf("Max payload size must not exceed %d bytes (got %d)",
			MaxPayloadSizeLimit,
			c.MaxPayloadSize)
	}

	return nil
}

// BaseURL returns the URL all exchange paths are relative to
func (c *Configuration) BaseURL() string {
	controlEndpoint := strings.TrimSuffix(c.ControlEndpoint, "/")

	if strings.HasPrefix(controlEndpoint, "http://") {
		return controlEndpoint
	}

	return fmt.Sprintf("http://%s", controlEndpoint)
}

// enrichDefaults fills every unset field that has a default
func (c *Configuration) enrichDefaults() error {
	defaults := Configuration{
		MaxPayloadSize: DefaultMaxPayloadSize,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}

	if err := mergo.Merge(c, defaults); err != nil {
		return errors.Wrap(err, "Failed to enrich defaults")
	}

	return nil
}

func envToMap(environ []string) map[string]interface{} {
	envMap := map[string]interface{}{}

	for _, env := range environ {
		key, value, found := strings.Cut(env, "=")
		if !found || value == "" {
			continue
		}

		envMap[key] = value
	}

	return envMap
}
