/*
Copyright 2023 The Nuclio Authors.

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

package renderer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nuclio/errors"
	"sigs.k8s.io/yaml"
)

type Renderer struct {
	output io.Writer
}

func NewRenderer(output io.Writer) *Renderer {
	return &Renderer{
		output: output,
	}
}

// RenderTable writes a borderless table with an upper-cased header row
func (r *Renderer) RenderTable(header []interface{}, records [][]interface{}) {
	tableWriter := table.NewWriter()
	tableWriter.SetOutputMirror(r.output)
	tableWriter.SetStyle(table.StyleLight)
	tableWriter.Style().Options.DrawBorder = false
	tableWriter.Style().Options.SeparateRows = false

	tableWriter.AppendHeader(header)
	for _, record := range records {
		tableWriter.AppendRow(record)
	}

	tableWriter.Render()
}

// RenderTSV writes one tab separated line per record, without a header
func (r *Renderer) RenderTSV(records [][]interface{}) error {
	for _, record := range records {
		fields := make([]string, len(record))
		for fieldIndex, field := range record {
			fields[fieldIndex] = fmt.Sprint(field)
		}

		if _, err := fmt.Fprintln(r.output, strings.Join(fields, "\t")); err != nil {
			return errors.Wrap(err, "Failed to render TSV")
		}
	}

	return nil
}

func (r *Renderer) RenderYAML(items interface{}) error {
	body, err := yaml.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "Failed to render YAML")
	}

	fmt.Fprint(r.output, string(body)) // nolint: errcheck

	return nil
}

func (r *Renderer) RenderJSON(items interface{}) error {
	body, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "Failed to render JSON")
	}

	var pbody bytes.Buffer
	if err := json.Indent(&pbody, body, "", "\t"); err != nil {
		return errors.Wrap(err, "Failed to indent JSON")
	}

	fmt.Fprintln(r.output, pbody.String()) // nolint: errcheck

	return nil
}
