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
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/nuclio/lambda-bootstrap/pkg/arena"
	"github.com/nuclio/lambda-bootstrap/pkg/runtimeapi"

	"github.com/nuclio/errors"
	"github.com/samber/lo"
)

// acquireEvent blocks until the control endpoint returns the next invocation. A nil event
// and nil error mean the response carried no request ID and must be skipped
func (l *Loop) acquireEvent(invocationArena *arena.Arena) (*Event, error) {
	var payload []byte

	response, err := l.client.Do(&runtimeapi.Request{
		Exchange: runtimeapi.ExchangeNext,
		Method:   http.MethodGet,
		Path:     runtimeapi.NextInvocationPath(),
	}, func(response *runtimeapi.Response, body io.Reader) error {
		var readErr error

		payload, readErr = l.readPayload(invocationArena, contentLengthHint(response), body)
		return readErr
	})

	if err != nil {
		return nil, newFatalError(runtimeapi.ExchangeNext, "", err)
	}

	atomic.AddUint64(&l.statistics.EventsAcquiredTotal, 1)

	requestID := headerValue(response.Header, runtimeapi.RequestIDHeader)
	if requestID == "" {
		l.logger.WarnWith("Received invocation without request ID, skipping",
			"payloadSize", len(payload))

		return nil, nil
	}

	event := &Event{
		RequestID: requestID,
		Payload:   payload,
		Metadata:  l.parseMetadata(response.Header),
	}

	l.logger.DebugWith("Acquired event",
		"requestID", event.RequestID,
		"payloadSize", len(event.Payload),
		"deadlineMs", event.Metadata.DeadlineMs,
		"traceID", event.Metadata.TraceID)

	if !l.functionIdentityLogged && event.Metadata.InvokedFunctionARN != "" {
		l.logFunctionIdentity(event.Metadata.InvokedFunctionARN)
	}

	return event, nil
}

// logFunctionIdentity logs where the function runs, once per loop
func (l *Loop) logFunctionIdentity(invokedFunctionARN string) {
	l.functionIdentityLogged = true

	functionARN, err := runtimeapi.ParseFunctionARN(invokedFunctionARN)
	if err != nil {
		l.logger.DebugWith("Invoked function ARN is not parsable",
			"arn", invokedFunctionARN,
			"err", err.Error())

		return
	}

	l.logger.InfoWith("Serving function",
		"function", functionARN.Function,
		"qualifier", functionARN.Qualifier,
		"region", functionARN.Region,
		"accountID", functionARN.AccountID)
}

// readPayload reads the body into the arena. With a content length the body is read in one
// allocation, otherwise it is read until EOF under the configured cap
func (l *Loop) readPayload(invocationArena *arena.Arena, contentLength int64, body io.Reader) ([]byte, error) {
	maxPayloadSize := l.configuration.MaxPayloadSize

	if contentLength >= 0 {
		if contentLength > maxPayloadSize {
			return nil, errors.Errorf("Payload size %d exceeds limit of %d bytes", contentLength, maxPayloadSize)
		}

		payload := invocationArena.Alloc(int(contentLength))
		if _, err := io.ReadFull(body, payload); err != nil {
			return nil, errors.Wrapf(err, "Failed to read payload of %d bytes", contentLength)
		}

		return payload, nil
	}

	buffer := invocationArena.NewBuffer()

	bytesRead, err := buffer.ReadFrom(io.LimitReader(body, maxPayloadSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read payload")
	}

	if bytesRead > maxPayloadSize {
		return nil, errors.Errorf("Payload exceeds limit of %d bytes", maxPayloadSize)
	}

	return buffer.B, nil
}

func (l *Loop) parseMetadata(header http.Header) Metadata {
	metadata := Metadata{
		InvokedFunctionARN: headerValue(header, runtimeapi.InvokedFunctionARNHeader),
		TraceID:            headerValue(header, runtimeapi.TraceIDHeader),
		ClientContext:      headerValue(header, runtimeapi.ClientContextHeader),
		CognitoIdentity:    headerValue(header, runtimeapi.CognitoIdentityHeader),
	}

	if deadlineMs := headerValue(header, runtimeapi.DeadlineMsHeader); deadlineMs != "" {
		parsedDeadlineMs, err := strconv.ParseInt(deadlineMs, 10, 64)
		if err != nil {
			l.logger.DebugWith("Ignoring malformed deadline", "deadlineMs", deadlineMs)
		} else {
			metadata.DeadlineMs = parsedDeadlineMs
		}
	}

	return metadata
}

// contentLengthHint returns the response content length, or -1 if the endpoint didn't send one
func contentLengthHint(response *runtimeapi.Response) int64 {
	if response.ContentLength >= 0 {
		return response.ContentLength
	}

	contentLength, err := strconv.ParseInt(headerValue(response.Header, runtimeapi.ContentLengthHeader), 10, 64)
	if err != nil || contentLength < 0 {
		return -1
	}

	return contentLength
}

// headerValue looks up a header by name, ignoring case even for keys that weren't canonicalized
func headerValue(header http.Header, name string) string {
	if value := header.Get(name); value != "" {
		return value
	}

	headerKey, found := lo.FindKeyBy(map[string][]string(header), func(key string, values []string) bool {
		return strings.EqualFold(key, name) && len(values) > 0
	})

	if !found {
		return ""
	}

	return header[headerKey][0]
}
