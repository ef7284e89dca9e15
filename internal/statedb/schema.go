// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package statedb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const schemaResource = "stategraph.schema.json"

var compiledSchema = sync.OnceValues(compileSchema)

// GenerateSchema reflects the JSON Schema of state graph files from File.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
		FieldNameTag:   "yaml",
	}
	schema := r.Reflect(&File{})
	schema.ID = jsonschema.ID(GetSchemaID())
	schema.Title = "Animation State Graph"
	schema.Description = "Schema for animation state graph files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Wrapf(err, "marshal state graph schema")
	}
	return data, nil
}

// ValidateSchema checks YAML state graph data against the generated schema.
// Violations carry their instance locations in the "problems" context.
func ValidateSchema(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return oops.Code(CodeSchemaViolation).Errorf("state graph data is empty")
	}

	doc, err := yamlToJSON(data)
	if err != nil {
		return err
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	if err := sch.Validate(doc); err != nil {
		errb := oops.Code(CodeSchemaViolation)
		var ve *jschema.ValidationError
		if errors.As(err, &ve) {
			errb = errb.With("problems", schemaProblems(ve))
		}
		return errb.Wrapf(err, "schema validation failed")
	}
	return nil
}

// yamlToJSON decodes YAML and re-reads it as JSON so numbers and maps have
// the types the validator expects.
func yamlToJSON(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, oops.Code(CodeInvalidGraph).Wrapf(err, "invalid YAML")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, oops.Code(CodeSchemaViolation).Wrapf(err, "state graph is not representable as JSON")
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, oops.Code(CodeSchemaViolation).Wrapf(err, "re-read state graph as JSON")
	}
	return doc, nil
}

func compileSchema() (*jschema.Schema, error) {
	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, oops.Wrapf(err, "parse state graph schema")
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, oops.Wrapf(err, "add state graph schema")
	}
	sch, err := c.Compile(schemaResource)
	if err != nil {
		return nil, oops.Wrapf(err, "compile state graph schema")
	}
	return sch, nil
}

// schemaProblems flattens a validation error into "location: message" lines.
func schemaProblems(ve *jschema.ValidationError) []string {
	var out []string
	for _, unit := range ve.BasicOutput().Errors {
		if unit.Error == nil {
			continue
		}
		loc := unit.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, fmt.Sprintf("%s: %s", loc, unit.Error))
	}
	return out
}

// GetSchemaID returns the schema $id for use in state graph files.
func GetSchemaID() string {
	return "https://holomush.dev/schemas/stategraph.schema.json"
}

// FormatSchemaError renders a schema violation for display, one problem per
// line when the locations are known.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	var ve *jschema.ValidationError
	if errors.As(err, &ve) {
		if problems := schemaProblems(ve); len(problems) > 0 {
			return strings.Join(problems, "\n")
		}
	}
	return strings.TrimPrefix(err.Error(), "schema validation failed: ")
}
