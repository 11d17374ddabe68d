package toolreg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaCache sync.Map

func compileSchema(name string, schema []byte) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}

	key := name + ":" + string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("toolreg: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("toolreg: compile schema: %w", err)
	}

	schemaCache.Store(key, compiled)
	return compiled, nil
}

func validateAgainstSchema(name string, schema []byte, value interface{}) error {
	compiled, err := compileSchema(name, schema)
	if err != nil {
		return err
	}
	if compiled == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("toolreg: encode value: %w", err)
	}
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("toolreg: decode value: %w", err)
	}

	return compiled.Validate(decoded)
}
