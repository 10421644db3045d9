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
	"net/http"
	"runtime/debug"
	"sync/atomic"

	"github.com/nuclio/lambda-bootstrap/pkg/runtimeapi"

	"github.com/nuclio/errors"
)

func (l *Loop) reportOutcome(event *Event, outcome Outcome) error {
	if outcome.Err != nil {
		return l.reportHandlerError(event, outcome.Err)
	}

	return l.reportSuccess(event, outcome.Response)
}

func (l *Loop) reportSuccess(event *Event, response []byte) error {
	if _, err := l.client.Do(&runtimeapi.Request{
		Exchange: runtimeapi.ExchangeResponse,
		Method:   http.MethodPost,
		Path:     runtimeapi.InvocationResponsePath(event.RequestID),
		Body:     response,
	}, nil); err != nil {
		return newFatalError(runtimeapi.ExchangeResponse,
			event.RequestID,
			errors.Wrap(err, "Failed to report response"))
	}

	atomic.AddUint64(&l.statistics.EventsHandledSuccessTotal, 1)

	l.logger.DebugWith("Reported response",
		"requestID", event.RequestID,
		"responseSize", len(response))

	return nil
}

// reportHandlerError posts the error document. Failing to do so is a double fault, since
// the original error can't be communicated either
func (l *Loop) reportHandlerError(event *Event, handlerErr error) error {
	atomic.AddUint64(&l.statistics.EventsHandledFailureTotal, 1)

	l.logger.WarnWith("Handler returned error",
		"requestID", event.RequestID,
		"err", handlerErr.Error())

	if err := l.postErrorDocument(runtimeapi.ExchangeError,
		runtimeapi.InvocationErrorPath(event.RequestID),
		runtimeapi.ErrorTypeHandlerReturned,
		handlerErr); err != nil {

		l.logger.ErrorWith("Failed to report handler error",
			"requestID", event.RequestID,
			"handlerErr", handlerErr.Error(),
			"err", err.Error())

		return newFatalError(runtimeapi.ExchangeError,
			event.RequestID,
			errors.Wrapf(err, "Failed to report handler error %q", handlerErr.Error()))
	}

	l.logger.DebugWith("Reported handler error", "requestID", event.RequestID)

	return nil
}

// ReportInitError reports a failure that happened before the first invocation. The process
// is expected to exit afterwards regardless of the result
func (l *Loop) ReportInitError(initErr error) error {
	initErr = CaptureError(initErr)

	l.logger.ErrorWith("Initialization failed", "err", initErr.Error())

	if err := l.postErrorDocument(runtimeapi.ExchangeInitError,
		runtimeapi.InitErrorPath(),
		runtimeapi.ErrorTypeInitializerReturned,
		initErr); err != nil {

		return newFatalError(runtimeapi.ExchangeInitError,
			"",
			errors.Wrapf(err, "Failed to report initialization error %q", initErr.Error()))
	}

	return nil
}

func (l *Loop) postErrorDocument(exchange runtimeapi.Exchange,
	path string,
	errorType string,
	reportedErr error) error {

	encodedErrorDocument, err := runtimeapi.NewErrorDocument(reportedErr.Error(),
		errorType,
		stackTraceOf(reportedErr)).Encode()
	if err != nil {
		return errors.Wrap(err, "Failed to encode error document")
	}

	_, err = l.client.Do(&runtimeapi.Request{
		Exchange: exchange,
		Method:   http.MethodPost,
		Path:     path,
		Headers: map[string]string{
			runtimeapi.FunctionErrorTypeHeader: errorType,
		},
		Body: encodedErrorDocument,
	}, nil)

	return err
}

// CaptureError captures the message and trace of a user provided error. Error and StackTrace
// may be user methods (or called on a typed nil), so a panic in them is reported in place of
// the original error
func CaptureError(err error) (captured *HandlerError) {
	defer func() {
		if recovered := recover(); recovered != nil {
			captured = NewHandlerError(fmt.Sprintf("Failed to describe error of type %T: %v", err, recovered),
				string(debug.Stack()))
		}
	}()

	return NewHandlerError(err.Error(), stackTraceOf(err))
}

// stackTraceOf returns the trace of the first error in the chain that carries one
func stackTraceOf(err error) string {
	const maxChainDepth = 64

	for depth := 0; err != nil && depth < maxChainDepth; depth++ {
		if stackTracer, isStackTracer := err.(StackTracer); isStackTracer {
			return stackTracer.StackTrace()
		}

		switch typedErr := err.(type) {
		case interface{ Unwrap() error }:
			err = typedErr.Unwrap()
		case interface{ Cause() error }:
			err = typedErr.Cause()
		default:
			return ""
		}
	}

	return ""
}
