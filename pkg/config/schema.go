package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateSchema produces a self-describing JSON Schema document for
// ServerConfig via github.com/invopop/jsonschema. It backs the
// config-schema CLI subcommand and never runs on the request path.
func GenerateSchema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            false,
		RequiredFromJSONSchemaTags: false,
	}

	schema := reflector.Reflect(&ServerConfig{})

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal server config schema: %w", err)
	}

	return out, nil
}
