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

package processwaiter

import (
	"time"

	"github.com/nuclio/errors"
)

var ErrCancelled = errors.New("Wait cancelled")
var ErrTimeout = errors.New("Timed out waiting for process to exit")

// WaitFunc blocks until the process exits and returns its exit code
type WaitFunc func() (int, error)

type ProcessWaiter struct {
	cancelChan chan struct{}
	resultChan chan WaitResult
}

type WaitResult struct {
	ExitCode int
	Err      error
}

func NewProcessWaiter() *ProcessWaiter {
	return &ProcessWaiter{
		resultChan: make(chan WaitResult, 1),
		cancelChan: make(chan struct{}, 1),
	}
}

// Wait calls waitFunc in the background. The returned channel yields the process result, or
// ErrTimeout / ErrCancelled, whichever happens first
func (pw *ProcessWaiter) Wait(waitFunc WaitFunc, timeout *time.Duration) <-chan WaitResult {
	var timeoutChan <-chan time.Time

	if timeout != nil {
		timeoutChan = time.After(*timeout)
	}

	processExitedChan := make(chan WaitResult, 1)

	go func() {

		// terminates only when the process terminates
		go pw.waitForProcess(waitFunc, processExitedChan)

		select {
		case <-timeoutChan:
			pw.resultChan <- WaitResult{Err: ErrTimeout}
		case waitResult := <-processExitedChan:

			// prefer cancellation if both happened at the same time
			select {
			case <-pw.cancelChan:
				pw.resultChan <- WaitResult{Err: ErrCancelled}
			default:
				pw.resultChan <- waitResult
			}
		case <-pw.cancelChan:
			pw.resultChan <- WaitResult{Err: ErrCancelled}
		}
	}()

	return pw.resultChan
}

func (pw *ProcessWaiter) Cancel() {
	select {
	case pw.cancelChan <- struct{}{}:
	default:
		// already cancelled
	}
}

func (pw *ProcessWaiter) waitForProcess(waitFunc WaitFunc, processExitedChan chan WaitResult) {
	exitCode, err := waitFunc()

	processExitedChan <- WaitResult{ExitCode: exitCode, Err: err}
}
