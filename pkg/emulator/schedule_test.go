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
)

func (suite *ServerTestSuite) TestSchedulerEnqueuesEveryTick() {
	scheduler, err := NewScheduler(suite.logger, suite.server, "@every 1s", []*Invocation{
		{RequestID: "fixed", Payload: []byte("tick")},
	})
	suite.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	ticks := scheduler.Run(ctx)
	suite.Require().GreaterOrEqual(ticks, 1)

	suite.Require().NoError(suite.createLoop(ticks, echoHandler).Run())

	results := suite.server.GetResults()
	suite.Require().Len(results, ticks)

	requestIDs := map[string]bool{}
	for _, result := range results {
		suite.Require().Equal("tick", string(result.Body))
		suite.Require().NotEqual("fixed", result.RequestID)
		requestIDs[result.RequestID] = true
	}

	suite.Require().Len(requestIDs, ticks)
}

func (suite *ServerTestSuite) TestSchedulerStopsOnCancel() {
	scheduler, err := NewScheduler(suite.logger, suite.server, "0 0 1 1 *", nil)
	suite.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	suite.Require().Zero(scheduler.Run(ctx))
}

func (suite *ServerTestSuite) TestSchedulerInvalidSpec() {
	_, err := NewScheduler(suite.logger, suite.server, "not a schedule", nil)
	suite.Require().Error(err)
}
