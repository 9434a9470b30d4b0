package har

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Structural schema for the parts of HAR 1.2 the reader depends on.
//
//go:embed har.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var schemaValue any
		if err := json.Unmarshal(schemaJSON, &schemaValue); err != nil {
			schemaErr = fmt.Errorf("unmarshaling har schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("har.schema.json", schemaValue); err != nil {
			schemaErr = fmt.Errorf("adding har schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("har.schema.json")
	})
	return schema, schemaErr
}

// validate checks the raw document against the structural schema before the
// typed unmarshal, so malformed input fails with a precise reason.
func validate(data []byte) error {
	compiled, err := compiledSchema()
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return err
	}
	return nil
}
