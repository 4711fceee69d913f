package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const planSchemaURL = "plan.schema.json"

// planSchema is the JSON schema every plan document must satisfy.
const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "host":          {"type": "string"},
    "users":         {"type": "integer", "minimum": 1},
    "hatch_rate":    {"type": "number", "minimum": 0},
    "run_time":      {"type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"},
    "iterations":    {"type": "integer", "minimum": 0},
    "graceful_stop": {"type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"},
    "timeout":       {"type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"},
    "selection":     {"enum": ["weighted", "round-robin"]},
    "seed":          {"type": "integer"},
    "scenarios": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "weight":   {"type": "integer", "minimum": 1, "maximum": 1000},
          "disabled": {"type": "boolean"}
        }
      }
    }
  }
}`

var compiledPlanSchema = mustCompilePlanSchema()

func mustCompilePlanSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(planSchemaURL, strings.NewReader(planSchema)); err != nil {
		panic(fmt.Sprintf("invalid plan schema: %v", err))
	}
	return compiler.MustCompile(planSchemaURL)
}

// validatePlanSchema checks a JSON document against the plan schema and
// reports every violation.
func validatePlanSchema(doc []byte) error {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("invalid plan document: %w", err)
	}

	err := compiledPlanSchema.Validate(value)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	errs := &ValidationErrors{}
	collectSchemaErrors(verr, errs)
	if !errs.HasErrors() {
		errs.Add("", verr.Message)
	}
	return errs
}

// collectSchemaErrors flattens the leaf causes of a schema validation error.
func collectSchemaErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		field := strings.TrimPrefix(err.InstanceLocation, "/")
		errs.Add(strings.ReplaceAll(field, "/", "."), err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}
