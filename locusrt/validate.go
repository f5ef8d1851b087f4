// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package locusrt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Event payload schemas. The production client trusts the backend contract
// and runs without validation; tests and staging builds enable a Validator
// to catch malformed pushes instead of silently corrupting the stores.
var eventSchemas = map[string]string{
	EventNewOrder: `{
		"type": "object",
		"required": ["orderId", "customerName", "total", "createdAt"],
		"properties": {
			"orderId": {"type": "string", "minLength": 1},
			"customerName": {"type": "string"},
			"total": {"type": "number", "minimum": 0},
			"createdAt": {"type": "string"}
		}
	}`,
}

// Validator checks realtime event payloads against their JSON schemas.
// Events without a registered schema pass through unchanged.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles the built-in event schemas.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(eventSchemas))
	for event, source := range eventSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema for %s: %w", event, err)
		}
		url := event + ".schema.json"
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema for %s: %w", event, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", event, err)
		}
		schemas[event] = schema
	}
	return &Validator{schemas: schemas}, nil
}

// Validate checks one envelope. A nil error means the payload may be
// dispatched.
func (v *Validator) Validate(env Envelope) error {
	schema := v.schemas[env.Event]
	if schema == nil {
		return nil
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(env.Data))
	if err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("invalid %s payload: %w", env.Event, err)
	}
	return nil
}
