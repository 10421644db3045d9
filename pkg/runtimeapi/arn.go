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
	"strings"

	"github.com/aws/aws-sdk-go/aws/arn"
	"github.com/nuclio/errors"
)

// FunctionARN holds the parts of an invoked function ARN worth logging
type FunctionARN struct {
	Partition string
	Region    string
	AccountID string
	Function  string
	Qualifier string
}

// ParseFunctionARN parses an ARN of the form arn:aws:lambda:<region>:<account>:function:<name>[:<qualifier>]
func ParseFunctionARN(functionARN string) (*FunctionARN, error) {
	parsedARN, err := arn.Parse(functionARN)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to parse ARN %q", functionARN)
	}

	resourceParts := strings.Split(parsedARN.Resource, ":")
	if len(resourceParts) < 2 || resourceParts[0] != "function" || resourceParts[1] == "" {
		return nil, errors.Errorf("ARN resource is not a function: %q", parsedARN.Resource)
	}

	parsedFunctionARN := &FunctionARN{
		Partition: parsedARN.Partition,
		Region:    parsedARN.Region,
		AccountID: parsedARN.AccountID,
		Function:  resourceParts[1],
	}

	if len(resourceParts) > 2 {
		parsedFunctionARN.Qualifier = resourceParts[2]
	}

	return parsedFunctionARN, nil
}
