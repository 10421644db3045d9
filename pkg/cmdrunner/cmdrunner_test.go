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

package cmdrunner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nuclio/lambda-bootstrap/pkg/processwaiter"

	"github.com/nuclio/logger"
	"github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

type CmdRunnerTestSuite struct {
	suite.Suite
	logger        logger.Logger
	commandRunner CmdRunner
	lock          sync.Mutex
	lines         []string
}

func (suite *CmdRunnerTestSuite) SetupTest() {
	suite.logger, _ = nucliozap.NewNuclioZapTest("test")
	suite.commandRunner = NewProcessRunner(suite.logger)
	suite.lines = nil
}

func (suite *CmdRunnerTestSuite) TestEnvAndExitCode() {
	runOptions := suite.createRunOptions()
	runOptions.Env = map[string]string{
		"ENV1": "env1",
		"ENV2": "env2",
	}

	process, err := suite.commandRunner.Start(context.Background(),
		runOptions,
		"/bin/sh", "-c", `echo $ENV1 && echo $ENV2 >&2 && exit 3`)
	suite.Require().NoError(err)

	runResult, err := process.Wait(nil)
	suite.Require().Error(err)
	suite.Require().Equal(3, runResult.ExitCode)
	suite.Require().ElementsMatch([]string{"stdout:env1", "stderr:env2"}, suite.getLines())
}

func (suite *CmdRunnerTestSuite) TestSuccess() {
	process, err := suite.commandRunner.Start(context.Background(), suite.createRunOptions(), "/bin/sh", "-c", "echo hello")
	suite.Require().NoError(err)

	runResult, err := process.Wait(nil)
	suite.Require().NoError(err)
	suite.Require().Equal(0, runResult.ExitCode)
	suite.Require().Equal([]string{"stdout:hello"}, suite.getLines())
}

func (suite *CmdRunnerTestSuite) TestWorkingDir() {
	currentDirectory, err := filepath.Abs(filepath.Dir(os.Args[0]))
	suite.Require().NoError(err)

	runOptions := suite.createRunOptions()
	runOptions.WorkingDir = &currentDirectory

	process, err := suite.commandRunner.Start(context.Background(), runOptions, "pwd")
	suite.Require().NoError(err)

	_, err = process.Wait(nil)
	suite.Require().NoError(err)

	lines := suite.getLines()
	suite.Require().Len(lines, 1)

	// remove "private" on OSX
	output := strings.TrimPrefix(strings.TrimPrefix(lines[0], "stdout:"), "/private")
	suite.Require().True(strings.HasPrefix(output, currentDirectory))
}

func (suite *CmdRunnerTestSuite) TestRedaction() {
	runOptions := suite.createRunOptions()
	runOptions.LogRedactions = []string{"secret"}

	process, err := suite.commandRunner.Start(context.Background(), runOptions, "/bin/sh", "-c", "echo my secret")
	suite.Require().NoError(err)

	_, err = process.Wait(nil)
	suite.Require().NoError(err)
	suite.Require().Equal([]string{"stdout:my [redacted]"}, suite.getLines())
}

func (suite *CmdRunnerTestSuite) TestLongOutputLines() {
	process, err := suite.commandRunner.Start(context.Background(),
		suite.createRunOptions(),
		"/bin/sh", "-c", `head -c 102400 /dev/zero | tr '\0' a; echo; head -c 2097152 /dev/zero | tr '\0' b; echo; echo done`)
	suite.Require().NoError(err)

	timeout := 10 * time.Second
	runResult, err := process.Wait(&timeout)
	suite.Require().NoError(err)
	suite.Require().Equal(0, runResult.ExitCode)

	// lines above the default scanner limit are delivered whole
	lines := suite.getLines()
	suite.Require().NotEmpty(lines)
	suite.Require().Equal("stdout:"+strings.Repeat("a", 102400), lines[0])
}

func (suite *CmdRunnerTestSuite) TestTimeoutKills() {
	process, err := suite.commandRunner.Start(context.Background(), nil, "sleep", "10")
	suite.Require().NoError(err)

	timeout := 100 * time.Millisecond
	_, err = process.Wait(&timeout)
	suite.Require().Equal(processwaiter.ErrTimeout, err)
}

func (suite *CmdRunnerTestSuite) TestContextCancelKills() {
	ctx, cancel := context.WithCancel(context.Background())

	process, err := suite.commandRunner.Start(ctx, nil, "sleep", "10")
	suite.Require().NoError(err)

	cancel()

	timeout := 5 * time.Second
	_, err = process.Wait(&timeout)
	suite.Require().Error(err)
	suite.Require().NotEqual(processwaiter.ErrTimeout, err)
}

func (suite *CmdRunnerTestSuite) TestBadCommand() {
	_, err := suite.commandRunner.Start(context.Background(), nil, "/bin/definitelynotacommand")
	suite.Require().Error(err)
}

func (suite *CmdRunnerTestSuite) createRunOptions() *RunOptions {
	return &RunOptions{
		OutputHandler: func(stream string, line string) {
			suite.lock.Lock()
			defer suite.lock.Unlock()

			suite.lines = append(suite.lines, stream+":"+line)
		},
	}
}

func (suite *CmdRunnerTestSuite) getLines() []string {
	suite.lock.Lock()
	defer suite.lock.Unlock()

	return append([]string{}, suite.lines...)
}

func TestCmdRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(CmdRunnerTestSuite))
}
