// Package pipeline loads declarative pipeline definitions, validates
// them against a JSON Schema, and resolves them into runnable flows.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/streamflow/pkg/schema"
)

// pipelineSchemaJSON is the JSON Schema for pipeline definitions.
// Embedded as a constant to avoid filesystem dependencies.
const pipelineSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://streamflow.dev/schemas/pipeline.json",
  "type": "object",
  "required": ["name", "stages"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": {
      "type": "string"
    },
    "stages": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/stage" }
    },
    "metadata": {
      "type": "object"
    }
  },
  "additionalProperties": false,
  "$defs": {
    "stage": {
      "type": "object",
      "oneOf": [
        { "required": ["flow"] },
        { "required": ["kind", "engine", "expr"] }
      ],
      "properties": {
        "flow": {
          "type": "string",
          "minLength": 1
        },
        "kind": {
          "type": "string",
          "enum": ["map", "filter"]
        },
        "engine": {
          "type": "string",
          "enum": ["cel", "expr", "jq"]
        },
        "expr": {
          "type": "string",
          "minLength": 1
        }
      },
      "additionalProperties": false
    }
  }
}`

// Stage is one step of a pipeline: either a reference to a registered
// flow, or an inline expression stage.
type Stage struct {
	Flow   string `json:"flow,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Engine string `json:"engine,omitempty"`
	Expr   string `json:"expr,omitempty"`
}

// Definition is a declarative pipeline loaded from JSON.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Stages      []Stage        `json:"stages"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validator validates pipeline definitions using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type Validator struct {
	compiled *jsonschema.Schema
}

var (
	validatorOnce sync.Once
	validator     *Validator
	validatorErr  error
)

// NewValidator compiles the pipeline schema. The compiled schema is
// shared process-wide.
func NewValidator() (*Validator, error) {
	validatorOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(pipelineSchemaJSON))
		if err != nil {
			validatorErr = fmt.Errorf("unmarshal pipeline schema: %w", err)
			return
		}
		if err := c.AddResource("https://streamflow.dev/schemas/pipeline.json", doc); err != nil {
			validatorErr = fmt.Errorf("add pipeline schema resource: %w", err)
			return
		}
		compiled, err := c.Compile("https://streamflow.dev/schemas/pipeline.json")
		if err != nil {
			validatorErr = fmt.Errorf("compile pipeline schema: %w", err)
			return
		}
		validator = &Validator{compiled: compiled}
	})
	return validator, validatorErr
}

// Validate checks raw definition JSON against the pipeline schema.
func (v *Validator) Validate(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "definition is not valid JSON").WithCause(err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// Parse validates and decodes a pipeline definition from raw JSON.
func Parse(raw []byte) (*Definition, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode definition").WithCause(err)
	}
	return &def, nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError
// with the leaf violations listed in the details.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
