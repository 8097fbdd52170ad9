package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Lythaeon/strest/internal/errs"
	cfgpkg "github.com/Lythaeon/strest/internal/config"
	"github.com/Lythaeon/strest/schemas"
)

var schemaCompiled *jsonschema.Schema

func compiledSchema() (*jsonschema.Schema, error) {
	if schemaCompiled != nil {
		return schemaCompiled, nil
	}
	raw, err := schemas.FS.ReadFile("scenario/v1.json")
	if err != nil {
		return nil, fmt.Errorf("load scenario schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("scenario/v1.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	schema, err := c.Compile("scenario/v1.json")
	if err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	schemaCompiled = schema
	return schema, nil
}

// Load parses a scenario definition in either JSON or YAML, validates it
// against the embedded v1 JSON schema, and returns the decoded Scenario.
// Payloads over config.MaxScenarioBytes are rejected, and the schema
// requires schema_version 1; where that key appears in the payload is not
// checked. Script/scenario load failures
// are fatal: no traffic is issued with an invalid scenario.
func Load(data []byte) (*Scenario, error) {
	if len(data) > cfgpkg.MaxScenarioBytes {
		return nil, errs.New("scenario.Load", errs.Script, "",
			fmt.Errorf("scenario payload exceeds %d bytes", cfgpkg.MaxScenarioBytes))
	}

	jsonData := data
	if !looksLikeJSON(data) {
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, errs.New("scenario.Load", errs.Script, "", fmt.Errorf("parse scenario: %w", err))
		}
		converted, err := json.Marshal(yamlToJSON(generic))
		if err != nil {
			return nil, errs.New("scenario.Load", errs.Script, "", fmt.Errorf("normalize scenario: %w", err))
		}
		jsonData = converted
	}

	var doc any
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, errs.New("scenario.Load", errs.Script, "", fmt.Errorf("parse scenario json: %w", err))
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, errs.New("scenario.Load", errs.Internal, "", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, errs.New("scenario.Load", errs.Script, "", fmt.Errorf("schema validation: %w", err))
	}

	var sc Scenario
	if err := json.Unmarshal(jsonData, &sc); err != nil {
		return nil, errs.New("scenario.Load", errs.Script, "", fmt.Errorf("decode scenario: %w", err))
	}
	if len(sc.Steps) == 0 {
		return nil, errs.New("scenario.Load", errs.Script, "", fmt.Errorf("scenario has no steps"))
	}
	return &sc, nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// yamlToJSON converts the map[string]interface{}/map[interface{}]interface{}
// mix yaml.v3 produces into the map[string]interface{} shape encoding/json
// requires.
func yamlToJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = yamlToJSON(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = yamlToJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = yamlToJSON(item)
		}
		return out
	default:
		return val
	}
}
