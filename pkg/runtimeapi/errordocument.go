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
	"encoding/json"

	"github.com/nuclio/errors"
)

const (
	ErrorTypeHandlerReturned     = "HandlerReturnedError"
	ErrorTypeInitializerReturned = "InitializerReturnedError"

	// used as the single stack trace entry when the failure carries no trace
	StackTracePlaceholder = "no stack trace available"
)

// ErrorDocument is the diagnostic body posted to the error exchanges
type ErrorDocument struct {
	ErrorMessage string   `json:"errorMessage"`
	ErrorType    string   `json:"errorType"`
	StackTrace   []string `json:"stackTrace"`
}

// NewErrorDocument creates an error document. An empty trace is replaced by a placeholder
func NewErrorDocument(errorMessage string, errorType string, trace string) *ErrorDocument {
	if trace == "" {
		trace = StackTracePlaceholder
	}

	return &ErrorDocument{
		ErrorMessage: errorMessage,
		ErrorType:    errorType,
		StackTrace:   []string{trace},
	}
}

// Encode returns the JSON encoding of the document. Quotes and control characters in the
// message and trace are escaped
func (ed *ErrorDocument) Encode() ([]byte, error) {
	var encoded bytes.Buffer

	encoder := json.NewEncoder(&encoded)

	// traces carry "<" and ">" (e.g. goroutine stacks), keep them readable
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(ed); err != nil {
		return nil, errors.Wrap(err, "Failed to encode error document")
	}

	return bytes.TrimSuffix(encoded.Bytes(), []byte("\n")), nil
}
