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

	"github.com/nuclio/lambda-bootstrap/pkg/arena"
)

// Handler is the user function. payload is owned by the runtime and must not be modified or
// retained past the call; the same goes for anything allocated from invocationArena. The
// returned bytes are posted as-is to the control endpoint
type Handler func(invocationArena *arena.Arena, payload []byte) ([]byte, error)

// Initializer is called once, before the first invocation
type Initializer func() error

// Metadata holds the optional per-invocation headers of the next invocation response
type Metadata struct {
	DeadlineMs         int64
	InvokedFunctionARN string
	TraceID            string
	ClientContext      string
	CognitoIdentity    string
}

// Event is a single invocation, valid for the duration of one loop iteration
type Event struct {
	RequestID string
	Payload   []byte
	Metadata  Metadata
}

// Outcome is the result of calling the handler: either Response or Err is meaningful
type Outcome struct {
	Response []byte
	Err      error
}

// StackTracer is implemented by errors that can provide a diagnostic trace
type StackTracer interface {
	StackTrace() string
}

// HandlerError is a convenience error for handlers that want to report a trace along with the error
type HandlerError struct {
	Name  string
	Trace string
}

func NewHandlerError(name string, trace string) *HandlerError {
	return &HandlerError{
		Name:  name,
		Trace: trace,
	}
}

func (he *HandlerError) Error() string {
	return he.Name
}

func (he *HandlerError) StackTrace() string {
	return he.Trace
}

// PanicError is the error an invocation results in when the handler panics
type PanicError struct {
	Value interface{}
	Stack string
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("Caught panic: %v", pe.Value)
}

func (pe *PanicError) StackTrace() string {
	return pe.Stack
}
