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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nuclio/lambda-bootstrap/pkg/processwaiter"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

// lines longer than this end output parsing for the stream
const maxOutputLineSize = 1024 * 1024

// OutputHandler receives every line a child process writes. stream is "stdout" or "stderr"
type OutputHandler func(stream string, line string)

// RunOptions specifies options to CmdRunner.Start
type RunOptions struct {
	WorkingDir *string

	// added to the environment of the current process
	Env map[string]string

	// values replaced with [redacted] before output lines are logged
	LogRedactions []string

	// called on each output line, in addition to logging it
	OutputHandler OutputHandler
}

type RunResult struct {
	ExitCode int
}

// CmdRunner specifies the interface to an underlying command runner
type CmdRunner interface {

	// Start starts a command, given options. The command is killed when ctx is done
	Start(ctx context.Context, runOptions *RunOptions, name string, args ...string) (*Process, error)
}

type ProcessRunner struct {
	logger logger.Logger
}

func NewProcessRunner(parentLogger logger.Logger) *ProcessRunner {
	return &ProcessRunner{
		logger: parentLogger.GetChild("runner"),
	}
}

func (pr *ProcessRunner) Start(ctx context.Context,
	runOptions *RunOptions,
	name string,
	args ...string) (*Process, error) {

	// support missing runOptions for tests that send nil
	if runOptions == nil {
		runOptions = &RunOptions{}
	}

	cmd := exec.CommandContext(ctx, name, args...)

	if runOptions.WorkingDir != nil {
		cmd.Dir = *runOptions.WorkingDir
	}

	cmd.Env = append(os.Environ(), getEnvFromOptions(runOptions)...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create stdout pipe")
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create stderr pipe")
	}

	processLogger := pr.logger.GetChild(filepath.Base(name))

	processLogger.DebugWith("Executing", "name", name, "args", args)

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "Failed to start %s", name)
	}

	newProcess := &Process{
		logger: processLogger,
		cmd:    cmd,
	}

	newProcess.outputWaitGroup.Add(2)
	go newProcess.streamOutput("stdout", stdoutPipe, runOptions)
	go newProcess.streamOutput("stderr", stderrPipe, runOptions)

	return newProcess, nil
}

// Process is a started child process
type Process struct {
	logger          logger.Logger
	cmd             *exec.Cmd
	outputWaitGroup sync.WaitGroup
}

func (p *Process) GetPID() int {
	return p.cmd.Process.Pid
}

// Wait waits for the process to exit. If timeout passes first, the process is killed and
// processwaiter.ErrTimeout is returned
func (p *Process) Wait(timeout *time.Duration) (RunResult, error) {
	waitResult := <-processwaiter.NewProcessWaiter().Wait(p.wait, timeout)

	if waitResult.Err == processwaiter.ErrTimeout {
		p.logger.WarnWith("Timed out waiting for process, killing", "pid", p.GetPID())

		if err := p.cmd.Process.Kill(); err != nil {
			p.logger.WarnWith("Failed to kill process", "err", err.Error())
		}

		return RunResult{}, waitResult.Err
	}

	runResult := RunResult{
		ExitCode: waitResult.ExitCode,
	}

	if waitResult.Err != nil {
		p.logger.DebugWith("Process exited with an error",
			"exitCode", runResult.ExitCode,
			"err", waitResult.Err.Error())

		return runResult, errors.Wrapf(waitResult.Err, "Process exited with code %d", runResult.ExitCode)
	}

	p.logger.DebugWith("Process exited", "exitCode", runResult.ExitCode)

	return runResult, nil
}

func (p *Process) wait() (int, error) {

	// pipes are closed by Wait, so drain them first
	p.outputWaitGroup.Wait()

	err := p.cmd.Wait()
	if exitError, ok := err.(*exec.ExitError); ok {
		return exitError.ExitCode(), err
	}

	if err != nil {
		return -1, err
	}

	return 0, nil
}

func (p *Process) streamOutput(stream string, reader io.Reader, runOptions *RunOptions) {
	defer p.outputWaitGroup.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxOutputLineSize)

	for scanner.Scan() {
		line := Redact(runOptions.LogRedactions, scanner.Text())

		p.logger.InfoWith("Output", "stream", stream, "line", line)

		if runOptions.OutputHandler != nil {
			runOptions.OutputHandler(stream, line)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.WarnWith("Stopped parsing output, discarding the rest", "stream", stream, "err", err.Error())

		// keep the pipe drained so the child never blocks on a write
		io.Copy(io.Discard, reader) // nolint: errcheck
	}
}

func Redact(redactions []string, runOutput string) string {
	if redactions == nil {
		return runOutput
	}

	var replacements []string

	for _, redactionField := range redactions {
		replacements = append(replacements, redactionField, "[redacted]")
	}

	return strings.NewReplacer(replacements...).Replace(runOutput)
}

func getEnvFromOptions(runOptions *RunOptions) []string {
	envs := []string{}

	for name, value := range runOptions.Env {
		envs = append(envs, fmt.Sprintf("%s=%s", name, value))
	}

	sort.Strings(envs)

	return envs
}
