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
	"fmt"

	"github.com/nuclio/lambda-bootstrap/pkg/runtimeapi"
)

// FatalError terminates the loop. The process must exit once it receives one, since the
// control channel can no longer be trusted to carry work or results
type FatalError struct {
	Exchange  runtimeapi.Exchange
	RequestID string
	Cause     error
}

func newFatalError(exchange runtimeapi.Exchange, requestID string, cause error) *FatalError {
	return &FatalError{
		Exchange:  exchange,
		RequestID: requestID,
		Cause:     cause,
	}
}

func (fe *FatalError) Error() string {
	if fe.RequestID == "" {
		return fmt.Sprintf("Fatal failure in %s exchange: %s", fe.Exchange, fe.Cause)
	}

	return fmt.Sprintf("Fatal failure in %s exchange (request ID %s): %s", fe.Exchange, fe.RequestID, fe.Cause)
}

func (fe *FatalError) Unwrap() error {
	return fe.Cause
}

// IsFatal returns whether err is a *FatalError
func IsFatal(err error) bool {
	_, isFatal := err.(*FatalError)
	return isFatal
}
