package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// SchemaError is model output that parsed as JSON but broke its schema.
type SchemaError struct {
	Schema string
	Cause  *jsonschema.ValidationError
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("json does not match schema %s: %v", e.Schema, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }
func (e *SchemaError) Is(target error) bool { return target == common.ErrValidation }

// SchemaValidator checks documents against one compiled schema.
type SchemaValidator struct {
	name   string
	schema *jsonschema.Schema
}

// compiled schemas, keyed by name and canonical JSON
var schemaCache sync.Map

// CompileSchema compiles schemaMap once per distinct schema and reuses it afterwards.
func CompileSchema(name string, schemaMap map[string]any) (*SchemaValidator, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	if name == "" {
		name = "schema"
	}
	key := name + "\x00" + string(b)
	if v, ok := schemaCache.Load(key); ok {
		return v.(*SchemaValidator), nil
	}
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	v, _ := schemaCache.LoadOrStore(key, &SchemaValidator{name: name, schema: schema})
	return v.(*SchemaValidator), nil
}

// Validate returns a *SchemaError when data breaks the schema and a plain
// ErrValidation error when it is not JSON at all.
func (v *SchemaValidator) Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: decode output: %w", common.ErrValidation, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return &SchemaError{Schema: v.name, Cause: ve}
		}
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	return nil
}

// ValidateJSONAgainstSchema validates data against schemaMap through the compiled-schema cache.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	v, err := CompileSchema("", schemaMap)
	if err != nil {
		return err
	}
	return v.Validate(data)
}
