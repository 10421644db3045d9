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

package command

import (
	"io"
	"os"

	"github.com/nuclio/lambda-bootstrap/pkg/emulator"
	"github.com/nuclio/lambda-bootstrap/pkg/renderer"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/nuclio/zap"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const (
	outputFormatTSV   = "tsv"
	outputFormatTable = "table"
	outputFormatJSON  = "json"
	outputFormatYAML  = "yaml"
)

type RootCommandeer struct {
	loggerInstance logger.Logger
	cmd            *cobra.Command
	verbose        bool
	listenAddress  string
	functionARN    string
	fixturesPath   string
	output         string
}

func NewRootCommandeer() *RootCommandeer {
	commandeer := &RootCommandeer{}

	cmd := &cobra.Command{
		Use:           "emulator [command]",
		Short:         "Local control endpoint for bootstrap processes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultListenAddress := os.Getenv("NUCLIO_EMULATOR_LISTEN_ADDRESS")
	if defaultListenAddress == "" {
		defaultListenAddress = emulator.DefaultListenAddress
	}

	cmd.PersistentFlags().BoolVarP(&commandeer.verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().StringVarP(&commandeer.listenAddress, "listen", "l", defaultListenAddress, "Address to serve the control endpoint on")
	cmd.PersistentFlags().StringVarP(&commandeer.fixturesPath, "fixtures", "f", "", "Path of a YAML file with invocations to enqueue")
	cmd.PersistentFlags().StringVarP(&commandeer.functionARN, "function-arn", "", "", "Invoked function ARN handed out with every invocation")
	cmd.PersistentFlags().StringVarP(&commandeer.output, "output", "o", outputFormatTSV, "Result output format (tsv, table, json, yaml)")

	// add children
	cmd.AddCommand(
		newServeCommandeer(commandeer).cmd,
		newRunCommandeer(commandeer).cmd,
		newVersionCommandeer(commandeer).cmd,
	)

	commandeer.cmd = cmd

	return commandeer
}

// Execute uses os.Args to execute the command
func (rc *RootCommandeer) Execute() error {
	return rc.cmd.Execute()
}

// GetCmd returns the underlying cobra command
func (rc *RootCommandeer) GetCmd() *cobra.Command {
	return rc.cmd
}

func (rc *RootCommandeer) initialize() error {
	var err error

	rc.loggerInstance, err = rc.createLogger()
	if err != nil {
		return errors.Wrap(err, "Failed to create logger")
	}

	return nil
}

func (rc *RootCommandeer) createLogger() (logger.Logger, error) {
	var loggerLevel nucliozap.Level

	if rc.verbose {
		loggerLevel = nucliozap.DebugLevel
	} else {
		loggerLevel = nucliozap.InfoLevel
	}

	loggerInstance, err := nucliozap.NewNuclioZap("emulator",
		"console",
		nil,
		rc.cmd.ErrOrStderr(),
		rc.cmd.ErrOrStderr(),
		loggerLevel)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create logger")
	}

	return loggerInstance, nil
}

func (rc *RootCommandeer) createServer() (*emulator.Server, error) {
	configuration := emulator.NewConfiguration(rc.listenAddress)
	if rc.functionARN != "" {
		configuration.FunctionARN = rc.functionARN
	}

	server, err := emulator.NewServer(rc.loggerInstance, configuration)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create emulator")
	}

	return server, nil
}

func (rc *RootCommandeer) readFixtures() (*emulator.Fixtures, error) {
	if rc.fixturesPath == "" {
		return &emulator.Fixtures{}, nil
	}

	return emulator.ReadFixturesFile(rc.fixturesPath)
}

type resultView struct {
	RequestID string `json:"requestID"`
	Kind      string `json:"kind"`
	ErrorType string `json:"errorType,omitempty"`
	Body      string `json:"body"`
}

func (rc *RootCommandeer) writeResults(writer io.Writer, results []emulator.Result) error {
	resultRenderer := renderer.NewRenderer(writer)

	views := lo.Map(results, func(result emulator.Result, _ int) resultView {
		return resultView{
			RequestID: result.RequestID,
			Kind:      string(result.Kind),
			ErrorType: result.ErrorType,
			Body:      string(result.Body),
		}
	})

	records := lo.Map(views, func(view resultView, _ int) []interface{} {
		return []interface{}{view.RequestID, view.Kind, view.ErrorType, view.Body}
	})

	switch rc.output {
	case outputFormatTSV:
		return resultRenderer.RenderTSV(records)
	case outputFormatTable:
		resultRenderer.RenderTable([]interface{}{"Request ID", "Kind", "Error type", "Body"}, records)
		return nil
	case outputFormatJSON:
		return resultRenderer.RenderJSON(views)
	case outputFormatYAML:
		return resultRenderer.RenderYAML(views)
	}

	return errors.Errorf("Unsupported output format: %s", rc.output)
}
