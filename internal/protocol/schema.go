package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolSchema wraps a resolved jsonschema.Schema for validating tools/call
// arguments before a provider-side handler runs.
type ToolSchema struct {
	resolved *jsonschema.Resolved
}

// CompileSchema resolves a tool's inputSchema (as stored on the SDK Tool
// embedded in ToolDescriptor) once so every call reuses the compiled form
// instead of re-parsing per invocation.
func CompileSchema(schema *jsonschema.Schema) (*ToolSchema, error) {
	if schema == nil {
		return nil, nil
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}
	return &ToolSchema{resolved: resolved}, nil
}

// MustSchema builds a *jsonschema.Schema from a JSON Schema document
// written as a plain map, for callers that would rather write schemas as
// JSON literals than as jsonschema.Schema struct literals. Panics on a
// malformed fragment, so it is only fit for static, known-good schemas.
func MustSchema(fragment map[string]any) *jsonschema.Schema {
	if fragment == nil {
		return nil
	}
	raw, err := json.Marshal(fragment)
	if err != nil {
		panic(fmt.Sprintf("marshal input schema: %v", err))
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		panic(fmt.Sprintf("unmarshal input schema: %v", err))
	}
	return &schema
}

// Validate checks arguments against the compiled schema, returning a
// validation-kind Error on mismatch. A nil ToolSchema (no schema declared)
// always passes.
func (s *ToolSchema) Validate(arguments map[string]any) *Error {
	if s == nil || s.resolved == nil {
		return nil
	}
	if err := s.resolved.Validate(arguments); err != nil {
		return NewErrorWithData(KindValidation, fmt.Sprintf("arguments do not match tool schema: %v", err), nil)
	}
	return nil
}
