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
	"fmt"
	"net/url"
)

const (
	APIVersion = "2018-06-01"

	// Headers the control endpoint sets on the next invocation response
	RequestIDHeader          = "Lambda-Runtime-Aws-Request-Id"
	DeadlineMsHeader         = "Lambda-Runtime-Deadline-Ms"
	InvokedFunctionARNHeader = "Lambda-Runtime-Invoked-Function-Arn"
	TraceIDHeader            = "Lambda-Runtime-Trace-Id"
	ClientContextHeader      = "Lambda-Runtime-Client-Context"
	CognitoIdentityHeader    = "Lambda-Runtime-Cognito-Identity"
	ContentLengthHeader      = "Content-Length"

	// Header the runtime sets when reporting an error
	FunctionErrorTypeHeader = "Lambda-Runtime-Function-Error-Type"
)

// Exchange identifies one of the control endpoint exchanges
type Exchange string

const (
	ExchangeNext      Exchange = "next"
	ExchangeResponse  Exchange = "response"
	ExchangeError     Exchange = "error"
	ExchangeInitError Exchange = "initError"
)

func NextInvocationPath() string {
	return fmt.Sprintf("/%s/runtime/invocation/next", APIVersion)
}

func InvocationResponsePath(requestID string) string {
	return fmt.Sprintf("/%s/runtime/invocation/%s/response", APIVersion, url.PathEscape(requestID))
}

func InvocationErrorPath(requestID string) string {
	return fmt.Sprintf("/%s/runtime/invocation/%s/error", APIVersion, url.PathEscape(requestID))
}

func InitErrorPath() string {
	return fmt.Sprintf("/%s/runtime/init/error", APIVersion)
}
