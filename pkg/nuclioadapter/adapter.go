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
	"time"

	"github.com/nuclio/lambda-bootstrap/pkg/arena"
	"github.com/nuclio/lambda-bootstrap/pkg/runtime"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/nuclio/nuclio-sdk-go"
)

// Entrypoint is the signature of a nuclio golang function handler
type Entrypoint func(context *nuclio.Context, event nuclio.Event) (interface{}, error)

// InitContext is the signature of a nuclio golang function InitContext
type InitContext func(context *nuclio.Context) error

// Adapter runs a nuclio function as a bootstrap handler
type Adapter struct {
	logger     logger.Logger
	context    *nuclio.Context
	entrypoint Entrypoint
	event      Event
}

func NewAdapter(parentLogger logger.Logger, entrypoint Entrypoint) (*Adapter, error) {
	if entrypoint == nil {
		return nil, errors.New("Entrypoint must be provided")
	}

	adapterLogger := parentLogger.GetChild("nuclio")

	return &Adapter{
		logger:     adapterLogger,
		entrypoint: entrypoint,
		context: &nuclio.Context{
			Logger: adapterLogger,
		},
	}, nil
}

// GetContext returns the context passed to the entrypoint on every invocation
func (a *Adapter) GetContext() *nuclio.Context {
	return a.context
}

// Initializer returns an initializer calling initContext with the adapter's context
func (a *Adapter) Initializer(initContext InitContext) runtime.Initializer {
	return func() error {
		if initContext == nil {
			return nil
		}

		return initContext(a.context)
	}
}

// Handle is a runtime.Handler. The event is reused across invocations, so the function
// must not keep references to it
func (a *Adapter) Handle(invocationArena *arena.Arena, payload []byte) ([]byte, error) {
	a.event.body = payload
	a.event.timestamp = time.Now()

	response, err := a.entrypoint(a.context, &a.event)

	// don't hold on to the payload past the invocation
	a.event.body = nil

	if err != nil {
		return nil, err
	}

	return a.renderResponse(invocationArena, response)
}

func (a *Adapter) renderResponse(invocationArena *arena.Arena, response interface{}) ([]byte, error) {
	switch typedResponse := response.(type) {
	case nil:
		return nil, nil

	case nuclio.Response:
		if typedResponse.StatusCode >= http.StatusBadRequest {
			return nil, errors.Errorf("Function responded with status %d: %s",
				typedResponse.StatusCode,
				string(typedResponse.Body))
		}

		return invocationArena.Copy(typedResponse.Body), nil

	case *nuclio.Response:
		return a.renderResponse(invocationArena, *typedResponse)

	case []byte:
		return invocationArena.Copy(typedResponse), nil

	case string:
		responseBuffer := invocationArena.NewBuffer()
		responseBuffer.WriteString(typedResponse) // nolint: errcheck

		return responseBuffer.B, nil
	}

	return nil, errors.Errorf("Unsupported response type %T", response)
}
