package invoker

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DigestOf returns the sha256 hex digest of the value's canonical JSON
// encoding. Go's json package sorts map keys, so semantically equal
// inputs digest identically.
func DigestOf(value map[string]any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// schemaCache compiles JSON schemas once per skill and reuses them.
type schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{compiled: make(map[string]*jsonschema.Schema)}
}

// validate checks a payload against a schema document. A nil schema
// accepts everything.
func (c *schemaCache) validate(key string, schemaDoc map[string]any, payload map[string]any) error {
	if schemaDoc == nil {
		return nil
	}

	schema, err := c.compile(key, schemaDoc)
	if err != nil {
		return err
	}

	// Round-trip through JSON so the payload carries only JSON types.
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payload is not JSON-encodable: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return err
	}

	return schema.Validate(normalized)
}

func (c *schemaCache) compile(key string, schemaDoc map[string]any) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if schema, ok := c.compiled[key]; ok {
		return schema, nil
	}

	// The compiler wants a decoded JSON document; round-trip the map so
	// nested YAML types (map[any]any, int) become JSON types.
	data, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("schema for %s is not JSON-encodable: %w", key, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", key, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(key+".json", doc); err != nil {
		return nil, fmt.Errorf("failed to add schema for %s: %w", key, err)
	}
	schema, err := compiler.Compile(key + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", key, err)
	}

	c.compiled[key] = schema
	return schema, nil
}
