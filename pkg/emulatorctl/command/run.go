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
	"context"
	"sync/atomic"
	"time"

	"github.com/nuclio/lambda-bootstrap/pkg/cmdrunner"
	"github.com/nuclio/lambda-bootstrap/pkg/emulator"
	"github.com/nuclio/lambda-bootstrap/pkg/errgroup"
	"github.com/nuclio/lambda-bootstrap/pkg/runtimeconfig"

	"github.com/nuclio/errors"
	"github.com/spf13/cobra"
)

type runCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
	timeout        time.Duration
	env            map[string]string
}

func newRunCommandeer(rootCommandeer *RootCommandeer) *runCommandeer {
	commandeer := &runCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "run [flags] -- bootstrap-path [args...]",
		Short: "Run a bootstrap against the control endpoint until every fixture reported a result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("Run requires the path of a bootstrap executable")
			}

			// initialize root
			if err := rootCommandeer.initialize(); err != nil {
				return errors.Wrap(err, "Failed to initialize root")
			}

			ctx, cancel := context.WithTimeout(context.Background(), commandeer.timeout)
			defer cancel()

			return commandeer.run(ctx, args[0], args[1:])
		},
	}

	cmd.Flags().DurationVarP(&commandeer.timeout, "timeout", "t", time.Minute, "Maximum time to wait for all results")
	cmd.Flags().StringToStringVarP(&commandeer.env, "env", "e", nil, "Extra environment for the bootstrap (name=value)")

	commandeer.cmd = cmd

	return commandeer
}

func (rc *runCommandeer) run(ctx context.Context, bootstrapPath string, bootstrapArgs []string) error {
	loggerInstance := rc.rootCommandeer.loggerInstance

	fixtures, err := rc.rootCommandeer.readFixtures()
	if err != nil {
		return errors.Wrap(err, "Failed to read fixtures")
	}

	server, err := rc.rootCommandeer.createServer()
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return errors.Wrap(err, "Failed to start emulator")
	}

	defer server.Stop() // nolint: errcheck

	env := map[string]string{}
	for name, value := range rc.env {
		env[name] = value
	}

	env[runtimeconfig.ControlEndpointEnvVar] = server.Address()

	// the bootstrap is killed once all results are in
	bootstrapCtx, cancelBootstrap := context.WithCancel(ctx)
	defer cancelBootstrap()

	process, err := cmdrunner.NewProcessRunner(loggerInstance).Start(bootstrapCtx,
		&cmdrunner.RunOptions{Env: env},
		bootstrapPath,
		bootstrapArgs...)
	if err != nil {
		return errors.Wrap(err, "Failed to start bootstrap")
	}

	var resultsReceived int32
	var results []emulator.Result

	errGroup, errGroupCtx := errgroup.WithContext(ctx, loggerInstance)

	errGroup.Go("feeder", func() error {
		for _, invocation := range fixtures.ToInvocations() {
			if _, err := server.EnqueueContext(errGroupCtx, invocation); err != nil {
				return errors.Wrap(err, "Failed to enqueue fixture")
			}
		}

		return nil
	})

	errGroup.Go("results", func() error {
		var err error

		results, err = server.WaitForResults(errGroupCtx, fixtures.ReportingCount())
		if err != nil {
			return errors.Wrap(err, "Failed to wait for results")
		}

		atomic.StoreInt32(&resultsReceived, 1)
		cancelBootstrap()

		return nil
	})

	errGroup.Go("bootstrap", func() error {
		runResult, err := process.Wait(nil)

		// expected, we killed it
		if atomic.LoadInt32(&resultsReceived) == 1 {
			return nil
		}

		if err != nil {
			return errors.Wrapf(err, "Bootstrap exited with code %d before reporting all results", runResult.ExitCode)
		}

		return errors.New("Bootstrap exited before reporting all results")
	})

	if err := errGroup.Wait(); err != nil {
		rc.rootCommandeer.writeResults(rc.cmd.OutOrStdout(), server.GetResults()) // nolint: errcheck
		return err
	}

	loggerInstance.InfoWith("All results received", "count", len(results))

	return rc.rootCommandeer.writeResults(rc.cmd.OutOrStdout(), results)
}
