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

package nuclioadapter

import (
	"net/http"
	"testing"

	"github.com/nuclio/lambda-bootstrap/pkg/arena"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/nuclio/nuclio-sdk-go"
	"github.com/nuclio/zap"
	"github.com/stretchr/testify/suite"
)

type AdapterTestSuite struct {
	suite.Suite
	logger    logger.Logger
	allocator *arena.Allocator
}

func (suite *AdapterTestSuite) SetupSuite() {
	var err error

	suite.logger, err = nucliozap.NewNuclioZapTest("test")
	suite.Require().NoError(err)
}

func (suite *AdapterTestSuite) SetupTest() {
	suite.allocator = arena.NewAllocator()
}

func (suite *AdapterTestSuite) TestResponseTypes() {
	for _, testCase := range []struct {
		name             string
		response         interface{}
		expectedResponse string
	}{
		{name: "Bytes", response: []byte("bytes"), expectedResponse: "bytes"},
		{name: "String", response: "string", expectedResponse: "string"},
		{name: "Nil", response: nil, expectedResponse: ""},
		{
			name:             "Response",
			response:         nuclio.Response{StatusCode: http.StatusOK, Body: []byte("response")},
			expectedResponse: "response",
		},
		{
			name:             "ResponsePointer",
			response:         &nuclio.Response{Body: []byte("pointer")},
			expectedResponse: "pointer",
		},
	} {
		suite.Run(testCase.name, func() {
			adapter := suite.createAdapter(func(*nuclio.Context, nuclio.Event) (interface{}, error) {
				return testCase.response, nil
			})

			invocationArena := suite.allocator.Acquire()
			defer invocationArena.Release()

			response, err := adapter.Handle(invocationArena, []byte("payload"))
			suite.Require().NoError(err)
			suite.Require().Equal(testCase.expectedResponse, string(response))
		})
	}
}

func (suite *AdapterTestSuite) TestEventCarriesPayload() {
	var receivedBody string

	adapter := suite.createAdapter(func(context *nuclio.Context, event nuclio.Event) (interface{}, error) {
		suite.Require().NotNil(context.Logger)
		suite.Require().False(event.GetTimestamp().IsZero())

		receivedBody = string(event.GetBody())
		return event.GetBody(), nil
	})

	invocationArena := suite.allocator.Acquire()
	defer invocationArena.Release()

	response, err := adapter.Handle(invocationArena, []byte(`{"foo":"bar"}`))
	suite.Require().NoError(err)
	suite.Require().Equal(`{"foo":"bar"}`, receivedBody)
	suite.Require().Equal(`{"foo":"bar"}`, string(response))
	suite.Require().Nil(adapter.event.body)
}

func (suite *AdapterTestSuite) TestFunctionError() {
	adapter := suite.createAdapter(func(*nuclio.Context, nuclio.Event) (interface{}, error) {
		return nil, errors.New("BadInput")
	})

	invocationArena := suite.allocator.Acquire()
	defer invocationArena.Release()

	_, err := adapter.Handle(invocationArena, nil)
	suite.Require().Error(err)
	suite.Require().Equal("BadInput", err.Error())
}

func (suite *AdapterTestSuite) TestErrorStatusIsError() {
	adapter := suite.createAdapter(func(*nuclio.Context, nuclio.Event) (interface{}, error) {
		return nuclio.Response{StatusCode: http.StatusBadRequest, Body: []byte("missing field")}, nil
	})

	invocationArena := suite.allocator.Acquire()
	defer invocationArena.Release()

	_, err := adapter.Handle(invocationArena, nil)
	suite.Require().Error(err)
	suite.Require().Contains(err.Error(), "missing field")
}

func (suite *AdapterTestSuite) TestUnsupportedResponse() {
	adapter := suite.createAdapter(func(*nuclio.Context, nuclio.Event) (interface{}, error) {
		return 42, nil
	})

	invocationArena := suite.allocator.Acquire()
	defer invocationArena.Release()

	_, err := adapter.Handle(invocationArena, nil)
	suite.Require().Error(err)
}

func (suite *AdapterTestSuite) TestInitializer() {
	adapter := suite.createAdapter(func(*nuclio.Context, nuclio.Event) (interface{}, error) {
		return nil, nil
	})

	suite.Require().NoError(adapter.Initializer(nil)())

	err := adapter.Initializer(func(context *nuclio.Context) error {
		suite.Require().Equal(adapter.GetContext(), context)
		return errors.New("MissingTable")
	})()
	suite.Require().Error(err)
}

func (suite *AdapterTestSuite) TestMissingEntrypoint() {
	_, err := NewAdapter(suite.logger, nil)
	suite.Require().Error(err)
}

func (suite *AdapterTestSuite) createAdapter(entrypoint Entrypoint) *Adapter {
	adapter, err := NewAdapter(suite.logger, entrypoint)
	suite.Require().NoError(err)

	return adapter
}

func TestAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(AdapterTestSuite))
}
