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
	"os"
	"os/signal"
	"syscall"

	"github.com/nuclio/lambda-bootstrap/pkg/emulator"

	"github.com/nuclio/errors"
	"github.com/spf13/cobra"
)

type serveCommandeer struct {
	cmd            *cobra.Command
	rootCommandeer *RootCommandeer
	schedule       string
}

func newServeCommandeer(rootCommandeer *RootCommandeer) *serveCommandeer {
	commandeer := &serveCommandeer{
		rootCommandeer: rootCommandeer,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control endpoint until interrupted, enqueueing fixtures if given",
		RunE: func(cmd *cobra.Command, args []string) error {

			// initialize root
			if err := rootCommandeer.initialize(); err != nil {
				return errors.Wrap(err, "Failed to initialize root")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return commandeer.serve(ctx)
		},
	}

	cmd.Flags().StringVarP(&commandeer.schedule, "schedule", "s", "", "Cron schedule on which fixtures are enqueued again (e.g. \"@every 10s\")")

	commandeer.cmd = cmd

	return commandeer
}

func (sc *serveCommandeer) serve(ctx context.Context) error {
	fixtures, err := sc.rootCommandeer.readFixtures()
	if err != nil {
		return errors.Wrap(err, "Failed to read fixtures")
	}

	server, err := sc.rootCommandeer.createServer()
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return errors.Wrap(err, "Failed to start emulator")
	}

	invocations := fixtures.ToInvocations()
	for _, invocation := range invocations {
		if _, err := server.EnqueueContext(ctx, invocation); err != nil {
			server.Stop() // nolint: errcheck
			return errors.Wrap(err, "Failed to enqueue fixture")
		}
	}

	sc.rootCommandeer.loggerInstance.InfoWith("Serving control endpoint",
		"address", server.Address(),
		"enqueued", len(invocations),
		"schedule", sc.schedule)

	if sc.schedule != "" {
		scheduler, err := emulator.NewScheduler(sc.rootCommandeer.loggerInstance, server, sc.schedule, invocations)
		if err != nil {
			server.Stop() // nolint: errcheck
			return errors.Wrap(err, "Failed to create scheduler")
		}

		ticks := scheduler.Run(ctx)

		sc.rootCommandeer.loggerInstance.DebugWith("Scheduler stopped", "ticks", ticks)
	} else {
		<-ctx.Done()
	}

	if err := server.Stop(); err != nil {
		return errors.Wrap(err, "Failed to stop emulator")
	}

	return sc.rootCommandeer.writeResults(sc.cmd.OutOrStdout(), server.GetResults())
}
