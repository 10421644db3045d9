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

package runtime

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/nuclio/lambda-bootstrap/pkg/arena"
)

// invokeHandler calls the handler. Errors and panics are captured in the outcome and never
// propagate to the loop
func (l *Loop) invokeHandler(invocationArena *arena.Arena, event *Event) (outcome Outcome) {
	startTime := time.Now()

	defer func() {
		if recovered := recover(); recovered != nil {
			callStack := string(debug.Stack())

			l.logger.ErrorWith("Panic caught in handler",
				"requestID", event.RequestID,
				"err", recovered,
				"stack", callStack)

			outcome = Outcome{
				Err: &PanicError{
					Value: recovered,
					Stack: callStack,
				},
			}
		}

		atomic.AddUint64(&l.statistics.DurationMilliSecondsSum, uint64(time.Since(startTime).Milliseconds()))
		atomic.AddUint64(&l.statistics.DurationMilliSecondsCount, 1)
	}()

	response, err := l.handler(invocationArena, event.Payload)
	if err != nil {
		return Outcome{
			Err: CaptureError(err),
		}
	}

	return Outcome{
		Response: response,
	}
}
