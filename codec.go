package rudder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Codec defines the deserialization contract for raw source data. A codec
// produces a flat field→value map; nested documents are a decode error.
// Implement this interface to support additional flat formats.
type Codec interface {
	// Decode deserializes bytes into a flat key/value map.
	Decode(data []byte) (map[string]string, error)

	// ContentType returns the MIME type for observability and debugging.
	ContentType() string
}

// EnvCodec implements Codec for plain-text KEY=VALUE lines. Lines beginning
// with '#' and blank lines are ignored. Values may be wrapped in single or
// double quotes. This is the default codec.
type EnvCodec struct{}

// Decode parses KEY=VALUE lines into a map.
func (EnvCodec) Decode(data []byte) (map[string]string, error) {
	values := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		key, value, found := strings.Cut(text, "=")
		if !found {
			return nil, fmt.Errorf("line %d: missing '=' separator", line)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", line)
		}
		values[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}

	return values, nil
}

// ContentType returns the plain-text MIME type.
func (EnvCodec) ContentType() string {
	return "text/plain"
}

// Ensure EnvCodec implements Codec.
var _ Codec = EnvCodec{}

// unquote strips one matching pair of surrounding single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// JSONCodec implements Codec for flat JSON objects with scalar values.
type JSONCodec struct{}

// Decode deserializes a flat JSON object into a map. Nested objects and
// arrays are rejected.
func (JSONCodec) Decode(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return flatten(raw)
}

// ContentType returns the JSON MIME type.
func (JSONCodec) ContentType() string {
	return "application/json"
}

// Ensure JSONCodec implements Codec.
var _ Codec = JSONCodec{}

// YAMLCodec implements Codec for flat YAML mappings with scalar values.
type YAMLCodec struct{}

// Decode deserializes a flat YAML mapping into a map. Nested mappings and
// sequences are rejected.
func (YAMLCodec) Decode(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return flatten(raw)
}

// ContentType returns the YAML MIME type.
func (YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

// Ensure YAMLCodec implements Codec.
var _ Codec = YAMLCodec{}

// flatten converts decoded scalar values to strings, rejecting nesting.
func flatten(raw map[string]any) (map[string]string, error) {
	values := make(map[string]string, len(raw))
	for key, v := range raw {
		switch val := v.(type) {
		case string:
			values[key] = val
		case bool:
			values[key] = fmt.Sprintf("%t", val)
		case float64:
			values[key] = fmt.Sprintf("%g", val)
		case int:
			values[key] = fmt.Sprintf("%d", val)
		case nil:
			values[key] = ""
		default:
			return nil, fmt.Errorf("field %s: nested structures are not supported", key)
		}
	}
	return values, nil
}
