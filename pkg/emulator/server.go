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
	"net"
	net_http "net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nuclio/lambda-bootstrap/pkg/runtimeapi"

	"github.com/google/uuid"
	"github.com/heptiolabs/healthcheck"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/rs/xid"
	"github.com/samber/lo"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)


// Server emulates the control endpoint a bootstrap process polls. The next exchange blocks
// until an invocation is enqueued, the same way a real endpoint keeps the process frozen
type Server struct {
	logger        logger.Logger
	configuration *Configuration
	server        *fasthttp.Server
	health        healthcheck.Handler
	healthHandler fasthttp.RequestHandler

	pending  chan *Invocation
	stop     chan struct{}
	stopOnce sync.Once

	lock               sync.Mutex
	listener           net.Listener
	exchanges          []ExchangeRecord
	results            []Result
	failures           map[runtimeapi.Exchange]int
	resultNotification chan struct{}
}

func NewServer(parentLogger logger.Logger, configuration *Configuration) (*Server, error) {
	if configuration == nil {
		return nil, errors.New("Configuration must be provided")
	}

	queueSize := configuration.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	newServer := &Server{
		logger:             parentLogger.GetChild("emulator"),
		configuration:      configuration,
		pending:            make(chan *Invocation, queueSize),
		stop:               make(chan struct{}),
		failures:           map[runtimeapi.Exchange]int{},
		resultNotification: make(chan struct{}, 1),
		health:             healthcheck.NewHandler(),
	}

	newServer.health.AddLivenessCheck("emulator_liveness", func() error {
		return nil
	})

	newServer.health.AddReadinessCheck("emulator_readiness", func() error {
		select {
		case <-newServer.stop:
			return errors.New("Emulator is stopping")
		default:
			return nil
		}
	})

	newServer.healthHandler = fasthttpadaptor.NewFastHTTPHandler(newServer.health)

	newServer.server = &fasthttp.Server{
		Handler: newServer.requestHandler,
		Name:    "nuclio-emulator",
	}

	return newServer, nil
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.configuration.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "Failed to listen on %s", s.configuration.ListenAddress)
	}

	s.lock.Lock()
	s.listener = listener
	s.lock.Unlock()

	go s.Serve(listener) // nolint: errcheck

	return nil
}

// Serve serves on the given listener until Stop is called
func (s *Server) Serve(listener net.Listener) error {
	s.lock.Lock()
	s.listener = listener
	s.lock.Unlock()

	s.logger.InfoWith("Serving", "address", listener.Addr().String())

	if err := s.server.Serve(listener); err != nil {
		return errors.Wrap(err, "Failed to serve")
	}

	return nil
}

// Address returns the host:port the emulator listens on, suitable for AWS_LAMBDA_RUNTIME_API
func (s *Server) Address() string {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.listener == nil {
		return s.configuration.ListenAddress
	}

	return s.listener.Addr().String()
}

// Stop releases any blocked next exchange and shuts the server down
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	if err := s.server.Shutdown(); err != nil {
		return errors.Wrap(err, "Failed to shut down server")
	}

	return nil
}

// Enqueue queues an invocation and returns its request ID. An ID is generated if none
// is set, unless the invocation is handed out without one. When the queue is full, Enqueue
// blocks until a next exchange takes an invocation or the server stops
func (s *Server) Enqueue(invocation *Invocation) string {
	requestID, err := s.EnqueueContext(context.Background(), invocation)
	if err != nil {
		s.logger.DebugWith("Invocation dropped", "requestID", invocation.RequestID, "err", err.Error())
	}

	return requestID
}

// EnqueueContext is like Enqueue, but gives up once ctx is done
func (s *Server) EnqueueContext(ctx context.Context, invocation *Invocation) (string, error) {
	if invocation.RequestID == "" && !invocation.OmitRequestID {
		invocation.RequestID = uuid.New().String()
	}

	select {
	case s.pending <- invocation:
		return invocation.RequestID, nil
	case <-s.stop:
		return "", errors.New("Emulator is stopping")
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "Failed to enqueue invocation")
	}
}

// Invoke queues a payload and returns its generated request ID
func (s *Server) Invoke(payload []byte) string {
	return s.Enqueue(&Invocation{Payload: payload})
}

// FailNextExchange makes the next exchange of the given kind respond with statusCode
func (s *Server) FailNextExchange(exchange runtimeapi.Exchange, statusCode int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.failures[exchange] = statusCode
}

func (s *Server) GetExchanges() []ExchangeRecord {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]ExchangeRecord{}, s.exchanges...)
}

func (s *Server) GetResults() []Result {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]Result{}, s.results...)
}

// GetResult returns the result reported for a request ID, if any
func (s *Server) GetResult(requestID string) (Result, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return lo.Find(s.results, func(result Result) bool {
		return result.RequestID == requestID && result.Kind != ResultKindInitError
	})
}

// WaitForResults blocks until at least count results were reported
func (s *Server) WaitForResults(ctx context.Context, count int) ([]Result, error) {
	for {
		results := s.GetResults()
		if len(results) >= count {
			return results, nil
		}

		select {
		case <-s.resultNotification:
		case <-ctx.Done():
			return results, errors.Wrapf(ctx.Err(), "Got %d of %d results", len(results), count)
		}
	}
}

func (s *Server) requestHandler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())

	switch {
	case path == "/live" || path == "/ready":
		s.healthHandler(ctx)

	case path == runtimeapi.NextInvocationPath() && ctx.IsGet():
		s.handleNext(ctx)

	case path == runtimeapi.InitErrorPath() && ctx.IsPost():
		s.handleResult(ctx, runtimeapi.ExchangeInitError, ResultKindInitError, "")

	case ctx.IsPost():
		requestID, kind, valid := parseInvocationPath(path)
		if !valid {
			ctx.SetStatusCode(net_http.StatusNotFound)
			return
		}

		exchange := runtimeapi.ExchangeResponse
		if kind == ResultKindError {
			exchange = runtimeapi.ExchangeError
		}

		s.handleResult(ctx, exchange, kind, requestID)

	default:
		ctx.SetStatusCode(net_http.StatusNotFound)
	}
}

func (s *Server) handleNext(ctx *fasthttp.RequestCtx) {
	if statusCode, shouldFail := s.consumeFailure(runtimeapi.ExchangeNext); shouldFail {
		s.recordExchange(runtimeapi.ExchangeNext, "", statusCode)
		ctx.SetStatusCode(statusCode)
		return
	}

	var invocation *Invocation

	// park the caller until there's work, or until we're told to stop
	select {
	case invocation = <-s.pending:
	case <-s.stop:
		s.recordExchange(runtimeapi.ExchangeNext, "", net_http.StatusServiceUnavailable)
		ctx.SetStatusCode(net_http.StatusServiceUnavailable)
		return
	}

	deadline := time.Now().Add(s.configuration.InvocationTimeout).UnixMilli()

	if !invocation.OmitRequestID {
		ctx.Response.Header.Set(runtimeapi.RequestIDHeader, invocation.RequestID)
	}

	ctx.Response.Header.Set(runtimeapi.DeadlineMsHeader, strconv.FormatInt(deadline, 10))
	ctx.Response.Header.Set(runtimeapi.InvokedFunctionARNHeader, s.configuration.FunctionARN)
	ctx.Response.Header.Set(runtimeapi.TraceIDHeader, "Root="+xid.New().String())

	for headerKey, headerValue := range invocation.Headers {
		ctx.Response.Header.Set(headerKey, headerValue)
	}

	ctx.SetStatusCode(net_http.StatusOK)
	ctx.SetBody(invocation.Payload)

	s.recordExchange(runtimeapi.ExchangeNext, invocation.RequestID, net_http.StatusOK)

	s.logger.DebugWith("Handed out invocation",
		"requestID", invocation.RequestID,
		"size", len(invocation.Payload))
}

func (s *Server) handleResult(ctx *fasthttp.RequestCtx,
	exchange runtimeapi.Exchange,
	kind ResultKind,
	requestID string) {

	if statusCode, shouldFail := s.consumeFailure(exchange); shouldFail {
		s.recordExchange(exchange, requestID, statusCode)
		ctx.SetStatusCode(statusCode)
		return
	}

	// the body is only valid during the handler
	body := append([]byte{}, ctx.PostBody()...)

	result := Result{
		Kind:      kind,
		RequestID: requestID,
		Body:      body,
		ErrorType: string(ctx.Request.Header.Peek(runtimeapi.FunctionErrorTypeHeader)),
	}

	s.lock.Lock()
	s.results = append(s.results, result)
	s.exchanges = append(s.exchanges, ExchangeRecord{
		Exchange:   exchange,
		RequestID:  requestID,
		StatusCode: net_http.StatusAccepted,
	})
	s.lock.Unlock()

	// wake up a waiter, if there is one
	select {
	case s.resultNotification <- struct{}{}:
	default:
	}

	s.logger.DebugWith("Received result",
		"kind", kind,
		"requestID", requestID,
		"errorType", result.ErrorType,
		"size", len(body))

	ctx.SetStatusCode(net_http.StatusAccepted)
}

func (s *Server) consumeFailure(exchange runtimeapi.Exchange) (int, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	statusCode, found := s.failures[exchange]
	if found {
		delete(s.failures, exchange)
	}

	return statusCode, found
}

func (s *Server) recordExchange(exchange runtimeapi.Exchange, requestID string, statusCode int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.exchanges = append(s.exchanges, ExchangeRecord{
		Exchange:   exchange,
		RequestID:  requestID,
		StatusCode: statusCode,
	})
}

// parseInvocationPath extracts the request ID and result kind from
// /<version>/runtime/invocation/<id>/(response|error)
func parseInvocationPath(path string) (string, ResultKind, bool) {
	prefix := "/" + runtimeapi.APIVersion + "/runtime/invocation/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}

	requestID, suffix, found := strings.Cut(strings.TrimPrefix(path, prefix), "/")
	if !found || requestID == "" {
		return "", "", false
	}

	switch suffix {
	case string(ResultKindResponse):
		return requestID, ResultKindResponse, true
	case string(ResultKindError):
		return requestID, ResultKindError, true
	}

	return "", "", false
}
