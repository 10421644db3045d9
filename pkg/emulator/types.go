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
	"time"

	"github.com/nuclio/lambda-bootstrap/pkg/runtimeapi"
)

const DefaultListenAddress = "127.0.0.1:9001"

type Configuration struct {
	ListenAddress string

	// function ARN set on every invocation that doesn't carry one
	FunctionARN string

	// added to the enqueue time to produce the deadline header
	InvocationTimeout time.Duration

	// invocations that may wait for a next exchange before enqueueing blocks
	QueueSize int
}

const DefaultQueueSize = 1024

func NewConfiguration(listenAddress string) *Configuration {
	if listenAddress == "" {
		listenAddress = DefaultListenAddress
	}

	return &Configuration{
		ListenAddress:     listenAddress,
		FunctionARN:       "arn:aws:lambda:us-east-1:123456789012:function:emulated",
		InvocationTimeout: 3 * time.Second,
		QueueSize:         DefaultQueueSize,
	}
}

// Invocation is a unit of work handed out on the next exchange
type Invocation struct {
	RequestID string
	Payload   []byte

	// extra headers set on the next response, overriding the generated ones
	Headers map[string]string

	// hand out the invocation without a request ID header
	OmitRequestID bool
}

type ResultKind string

const (
	ResultKindResponse  ResultKind = "response"
	ResultKindError     ResultKind = "error"
	ResultKindInitError ResultKind = "initError"
)

// Result is what the runtime reported for an invocation, or for its initialization
type Result struct {
	Kind      ResultKind
	RequestID string
	Body      []byte
	ErrorType string
}

// ExchangeRecord is a single request the emulator served, in arrival order
type ExchangeRecord struct {
	Exchange   runtimeapi.Exchange
	RequestID  string
	StatusCode int
}
