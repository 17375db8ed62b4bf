package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"catty/api/internal/ingest"
)

// readDocument loads path and adapts it. YAML input (.yaml / .yml) is
// converted to JSON first so both go through the same adapter.
func (c *CLI) readDocument(path string) (*ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	c.Logger.Debug("read document", "path", path, "bytes", len(data))
	return ingest.Parse(data, c.ingestOptions()), nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	return json.Marshal(jsonCompatible(raw))
}

// jsonCompatible rewrites the map[any]any values yaml produces for
// non-string keys so encoding/json can marshal them.
func jsonCompatible(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = jsonCompatible(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[fmt.Sprint(k)] = jsonCompatible(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = jsonCompatible(item)
		}
		return out
	default:
		return v
	}
}
