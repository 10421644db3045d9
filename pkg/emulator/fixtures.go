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
	"io"
	"os"

	"github.com/nuclio/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Fixture describes an invocation in a YAML fixtures file:
//
//	invocations:
//	- name: echo
//	  payload: '{"foo":"bar"}'
//	- name: no-id
//	  omitRequestID: true
type Fixture struct {
	Name          string            `yaml:"name"`
	RequestID     string            `yaml:"requestID,omitempty"`
	Payload       string            `yaml:"payload"`
	Headers       map[string]string `yaml:"headers,omitempty"`
	OmitRequestID bool              `yaml:"omitRequestID,omitempty"`
}

type Fixtures struct {
	Invocations []Fixture `yaml:"invocations"`
}

func ReadFixtures(reader io.Reader) (*Fixtures, error) {
	fixtures := Fixtures{}

	if err := yaml.NewDecoder(reader).Decode(&fixtures); err != nil {
		if err == io.EOF {
			return &fixtures, nil
		}

		return nil, errors.Wrap(err, "Failed to decode fixtures")
	}

	return &fixtures, nil
}

func ReadFixturesFile(path string) (*Fixtures, error) {
	fixturesFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to open fixtures file %s", path)
	}

	defer fixturesFile.Close() // nolint: errcheck

	return ReadFixtures(fixturesFile)
}

// ToInvocations converts the fixtures to invocations, preserving order
func (f *Fixtures) ToInvocations() []*Invocation {
	return lo.Map(f.Invocations, func(fixture Fixture, _ int) *Invocation {
		return &Invocation{
			RequestID:     fixture.RequestID,
			Payload:       []byte(fixture.Payload),
			Headers:       fixture.Headers,
			OmitRequestID: fixture.OmitRequestID,
		}
	})
}

// ReportingCount returns how many fixtures are expected to produce a result
func (f *Fixtures) ReportingCount() int {
	return lo.CountBy(f.Invocations, func(fixture Fixture) bool {
		return !fixture.OmitRequestID
	})
}
