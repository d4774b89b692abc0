package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaViolation is one failed keyword, located by JSON pointer into the payload.
type SchemaViolation struct {
	Path    string
	Message string
}

// SchemaViolationError lists every leaf violation of a payload, ordered by path.
type SchemaViolationError struct {
	Schema     string
	Violations []SchemaViolation
}

func (e *SchemaViolationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", pointerOrRoot(v.Path), v.Message))
	}
	return fmt.Sprintf("document does not match %s: %s", e.Schema, strings.Join(parts, "; "))
}

// SchemaValidator holds JSON Schemas compiled once at construction.
type SchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaValidator compiles every definition keyed by name.
func NewSchemaValidator(definitions map[string][]byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	for name, definition := range definitions {
		if err := compiler.AddResource(schemaURL(name), bytes.NewReader(definition)); err != nil {
			return nil, fmt.Errorf("register schema %s: %w", name, err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema, len(definitions))
	for name := range definitions {
		compiled, err := compiler.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		schemas[name] = compiled
	}
	return &SchemaValidator{schemas: schemas}, nil
}

// MustSchemaValidator is NewSchemaValidator for embedded definitions.
func MustSchemaValidator(definitions map[string][]byte) *SchemaValidator {
	v, err := NewSchemaValidator(definitions)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate decodes payload and checks it against the named schema. Schema mismatches
// are returned as *SchemaViolationError.
func (v *SchemaValidator) Validate(name string, payload []byte) error {
	compiled, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("schema %s is not registered", name)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return &SchemaViolationError{Schema: name, Violations: []SchemaViolation{{Message: "payload is required"}}}
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return &SchemaViolationError{Schema: name, Violations: []SchemaViolation{{Message: "invalid JSON: " + err.Error()}}}
	}

	err := compiled.Validate(document)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validate against %s: %w", name, err)
	}

	out := &SchemaViolationError{Schema: name}
	collectViolations(verr, &out.Violations)
	sort.SliceStable(out.Violations, func(i, j int) bool { return out.Violations[i].Path < out.Violations[j].Path })
	return out
}

func collectViolations(err *jsonschema.ValidationError, dst *[]SchemaViolation) {
	if len(err.Causes) == 0 {
		*dst = append(*dst, SchemaViolation{Path: err.InstanceLocation, Message: err.Message})
		return
	}
	for _, cause := range err.Causes {
		collectViolations(cause, dst)
	}
}

func schemaURL(name string) string {
	return "memory://schemas/" + name + ".json"
}

func pointerOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
