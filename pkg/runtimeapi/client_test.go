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
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

const testBaseURL = "http://127.0.0.1:9001"

type ClientTestSuite struct {
	suite.Suite
	logger           logger.Logger
	mockTransport    *httpmock.MockTransport
	transportsIssued int
	client           *Client
}

func (suite *ClientTestSuite) SetupSuite() {
	var err error

	suite.logger, err = nucliozap.NewNuclioZapTest("test")
	suite.Require().NoError(err)
}

func (suite *ClientTestSuite) SetupTest() {
	suite.mockTransport = httpmock.NewMockTransport()
	suite.transportsIssued = 0
	suite.client = NewClient(suite.logger, testBaseURL, func() http.RoundTripper {
		suite.transportsIssued++
		return suite.mockTransport
	})
}

func (suite *ClientTestSuite) TestReadsBodyOnSuccess() {
	suite.mockTransport.RegisterResponder(http.MethodGet,
		testBaseURL+NextInvocationPath(),
		func(request *http.Request) (*http.Response, error) {
			response := httpmock.NewStringResponse(http.StatusOK, "payload")
			response.Header.Set(RequestIDHeader, "some-id")
			return response, nil
		})

	var body []byte
	response, err := suite.client.Do(&Request{
		Exchange: ExchangeNext,
		Method:   http.MethodGet,
		Path:     NextInvocationPath(),
	}, func(response *Response, reader io.Reader) error {
		var readErr error
		body, readErr = io.ReadAll(reader)
		return readErr
	})

	suite.Require().NoError(err)
	suite.Require().Equal(http.StatusOK, response.StatusCode)
	suite.Require().Equal("some-id", response.Header.Get(RequestIDHeader))
	suite.Require().Equal("payload", string(body))
}

func (suite *ClientTestSuite) TestSendsBodyAndHeaders() {
	var receivedBody []byte
	var receivedErrorType string

	suite.mockTransport.RegisterResponder(http.MethodPost,
		testBaseURL+InvocationErrorPath("id"),
		func(request *http.Request) (*http.Response, error) {
			var err error

			receivedErrorType = request.Header.Get(FunctionErrorTypeHeader)
			receivedBody, err = io.ReadAll(request.Body)
			if err != nil {
				return nil, err
			}

			// the connection must not be kept around
			if !request.Close {
				return nil, errors.New("Expected request to close connection")
			}

			return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
		})

	_, err := suite.client.Do(&Request{
		Exchange: ExchangeError,
		Method:   http.MethodPost,
		Path:     InvocationErrorPath("id"),
		Headers:  map[string]string{FunctionErrorTypeHeader: ErrorTypeHandlerReturned},
		Body:     []byte("body"),
	}, nil)

	suite.Require().NoError(err)
	suite.Require().Equal("body", string(receivedBody))
	suite.Require().Equal(ErrorTypeHandlerReturned, receivedErrorType)
}

func (suite *ClientTestSuite) TestNonSuccessStatus() {
	suite.mockTransport.RegisterResponder(http.MethodPost,
		testBaseURL+InvocationResponsePath("id"),
		httpmock.NewStringResponder(http.StatusRequestEntityTooLarge, "too large"))

	bodyReaderCalled := false
	response, err := suite.client.Do(&Request{
		Exchange: ExchangeResponse,
		Method:   http.MethodPost,
		Path:     InvocationResponsePath("id"),
		Body:     []byte("x"),
	}, func(*Response, io.Reader) error {
		bodyReaderCalled = true
		return nil
	})

	suite.Require().Error(err)
	suite.Require().False(bodyReaderCalled)
	suite.Require().NotNil(response)

	statusError, isStatusError := err.(*StatusError)
	suite.Require().True(isStatusError)
	suite.Require().Equal(http.StatusRequestEntityTooLarge, statusError.StatusCode)
	suite.Require().Equal(ExchangeResponse, statusError.Exchange)
	suite.Require().Equal("too large", statusError.Body)
}

func (suite *ClientTestSuite) TestTransportFailure() {
	suite.mockTransport.RegisterResponder(http.MethodGet,
		testBaseURL+NextInvocationPath(),
		httpmock.NewErrorResponder(errors.New("connection refused")))

	response, err := suite.client.Do(&Request{
		Exchange: ExchangeNext,
		Method:   http.MethodGet,
		Path:     NextInvocationPath(),
	}, nil)

	suite.Require().Error(err)
	suite.Require().Nil(response)
}

func (suite *ClientTestSuite) TestFreshTransportPerExchange() {
	suite.mockTransport.RegisterResponder(http.MethodGet,
		testBaseURL+NextInvocationPath(),
		httpmock.NewStringResponder(http.StatusOK, ""))

	for exchangeIdx := 0; exchangeIdx < 3; exchangeIdx++ {
		_, err := suite.client.Do(&Request{
			Exchange: ExchangeNext,
			Method:   http.MethodGet,
			Path:     NextInvocationPath(),
		}, nil)
		suite.Require().NoError(err)
	}

	suite.Require().Equal(3, suite.transportsIssued)
	suite.Require().Equal(3, suite.mockTransport.GetTotalCallCount())
}

func (suite *ClientTestSuite) TestPaths() {
	suite.Require().Equal("/2018-06-01/runtime/invocation/next", NextInvocationPath())
	suite.Require().Equal("/2018-06-01/runtime/invocation/abc-123/response", InvocationResponsePath("abc-123"))
	suite.Require().Equal("/2018-06-01/runtime/invocation/abc-123/error", InvocationErrorPath("abc-123"))
	suite.Require().Equal("/2018-06-01/runtime/invocation/a%2Fb/response", InvocationResponsePath("a/b"))
	suite.Require().Equal("/2018-06-01/runtime/init/error", InitErrorPath())
}

type ErrorDocumentTestSuite struct {
	suite.Suite
}

func (suite *ErrorDocumentTestSuite) TestEncode() {
	encoded, err := NewErrorDocument("BadInput", ErrorTypeHandlerReturned, "main.handler()\n\tmain.go:10").Encode()
	suite.Require().NoError(err)

	suite.Require().Equal(`{"errorMessage":"BadInput","errorType":"HandlerReturnedError","stackTrace":["main.handler()\n\tmain.go:10"]}`,
		string(encoded))
}

func (suite *ErrorDocumentTestSuite) TestPlaceholderWithoutTrace() {
	document := NewErrorDocument("BadInput", ErrorTypeHandlerReturned, "")
	suite.Require().Equal([]string{StackTracePlaceholder}, document.StackTrace)
}

func (suite *ErrorDocumentTestSuite) TestEscapesQuotesAndControlCharacters() {
	encoded, err := NewErrorDocument("bad \"input\"\x01", ErrorTypeHandlerReturned, "<trace>").Encode()
	suite.Require().NoError(err)

	suite.Require().Contains(string(encoded), `"errorMessage":"bad \"input\"\u0001"`)
	suite.Require().Contains(string(encoded), `"stackTrace":["<trace>"]`)
}

type FunctionARNTestSuite struct {
	suite.Suite
}

func (suite *FunctionARNTestSuite) TestParse() {
	functionARN, err := ParseFunctionARN("arn:aws:lambda:us-east-1:123456789012:function:echo:live")
	suite.Require().NoError(err)
	suite.Require().Equal(&FunctionARN{
		Partition: "aws",
		Region:    "us-east-1",
		AccountID: "123456789012",
		Function:  "echo",
		Qualifier: "live",
	}, functionARN)

	functionARN, err = ParseFunctionARN("arn:aws:lambda:eu-west-1:123456789012:function:echo")
	suite.Require().NoError(err)
	suite.Require().Empty(functionARN.Qualifier)
}

func (suite *FunctionARNTestSuite) TestParseInvalid() {
	for _, invalidARN := range []string{
		"",
		"not-an-arn",
		"arn:aws:s3:::bucket",
	} {
		_, err := ParseFunctionARN(invalidARN)
		suite.Require().Error(err, "Expected %q to fail", invalidARN)
	}
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestErrorDocumentTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorDocumentTestSuite))
}

func TestFunctionARNTestSuite(t *testing.T) {
	suite.Run(t, new(FunctionARNTestSuite))
}
