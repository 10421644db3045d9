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

package runtimeapi

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
)

const maxDiagnosticBodySize = 1024

// TransportFactory creates the transport for a single exchange
type TransportFactory func() http.RoundTripper

// NewTransport returns a transport that never reuses connections. The process may be frozen
// for an unbounded time between exchanges, so no connection is assumed to survive one
func NewTransport() http.RoundTripper {
	return &http.Transport{
		DialContext: (&net.Dialer{
			KeepAlive: -1,
		}).DialContext,
		DisableKeepAlives:  true,
		DisableCompression: true,
	}
}

// Request describes one exchange with the control endpoint
type Request struct {
	Exchange Exchange
	Method   string
	Path     string
	Headers  map[string]string
	Body     []byte
}

// Response holds the parts of a control endpoint response the runtime cares about
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
}

// BodyReader consumes the body of a successful response. The body is only valid during the call
type BodyReader func(response *Response, body io.Reader) error

// StatusError is returned when the control endpoint responds with a non-2xx status
type StatusError struct {
	Exchange   Exchange
	StatusCode int
	Body       string
}

func (se *StatusError) Error() string {
	return fmt.Sprintf("Control endpoint responded to %s exchange with status %d: %s",
		se.Exchange,
		se.StatusCode,
		se.Body)
}

// Client performs blocking exchanges against the control endpoint
type Client struct {
	logger           logger.Logger
	baseURL          string
	transportFactory TransportFactory
}

func NewClient(parentLogger logger.Logger, baseURL string, transportFactory TransportFactory) *Client {
	if transportFactory == nil {
		transportFactory = NewTransport
	}

	return &Client{
		logger:           parentLogger.GetChild("client"),
		baseURL:          baseURL,
		transportFactory: transportFactory,
	}
}

// Do performs a single request/response cycle on a freshly created transport, which is torn
// down before returning. A transport failure returns an error and a nil response; a non-2xx
// status returns a *StatusError along with the response. bodyReader is only called on 2xx
func (c *Client) Do(request *Request, bodyReader BodyReader) (*Response, error) {
	var requestBody io.Reader
	if request.Body != nil || request.Method != http.MethodGet {
		requestBody = bytes.NewReader(request.Body)
	}

	httpRequest, err := http.NewRequest(request.Method, c.baseURL+request.Path, requestBody)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to create %s request", request.Exchange)
	}

	// never keep the connection around past this exchange
	httpRequest.Close = true

	for headerName, headerValue := range request.Headers {
		httpRequest.Header.Set(headerName, headerValue)
	}

	transport := c.transportFactory()
	defer closeIdleConnections(transport)

	httpClient := &http.Client{
		Transport: transport,
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to perform %s exchange", request.Exchange)
	}

	defer httpResponse.Body.Close() // nolint: errcheck

	response := &Response{
		StatusCode:    httpResponse.StatusCode,
		Header:        httpResponse.Header,
		ContentLength: httpResponse.ContentLength,
	}

	if httpResponse.StatusCode < http.StatusOK || httpResponse.StatusCode >= http.StatusMultipleChoices {
		diagnosticBody, _ := io.ReadAll(io.LimitReader(httpResponse.Body, maxDiagnosticBodySize))

		return response, &StatusError{
			Exchange:   request.Exchange,
			StatusCode: httpResponse.StatusCode,
			Body:       string(diagnosticBody),
		}
	}

	if bodyReader == nil {
		if _, err := io.Copy(io.Discard, httpResponse.Body); err != nil {
			return response, errors.Wrapf(err, "Failed to drain %s response body", request.Exchange)
		}

		return response, nil
	}

	if err := bodyReader(response, httpResponse.Body); err != nil {
		return response, errors.Wrapf(err, "Failed to read %s response body", request.Exchange)
	}

	return response, nil
}

func closeIdleConnections(transport http.RoundTripper) {
	if closer, ok := transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}
