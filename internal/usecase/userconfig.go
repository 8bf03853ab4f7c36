package usecase

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	KeySystemInitMessage = "SYSTEM_INIT_MESSAGE"
	KeyExtraParams       = "OPENAI_API_EXTRA_PARAMS"

	DefaultSystemInitMessage = "You are a helpful assistant."
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindBool
	kindObject
)

func (k fieldKind) String() string {
	switch k {
	case kindNumber:
		return "number"
	case kindBool:
		return "boolean"
	case kindObject:
		return "JSON object"
	default:
		return "string"
	}
}

type configField struct {
	key  string
	kind fieldKind
	def  func() any
}

// userConfigSchema is the complete set of keys /setenv may change.
var userConfigSchema = []configField{
	{key: KeySystemInitMessage, kind: kindString, def: func() any { return DefaultSystemInitMessage }},
	{key: KeyExtraParams, kind: kindObject, def: func() any { return map[string]any{} }},
}

func lookupField(key string) (configField, bool) {
	for _, f := range userConfigSchema {
		if f.key == key {
			return f, true
		}
	}
	return configField{}, false
}

// UserConfig holds the per-chat settings persisted under the config key.
type UserConfig map[string]any

// DefaultUserConfig returns a fresh config populated from the schema defaults.
func DefaultUserConfig() UserConfig {
	cfg := make(UserConfig, len(userConfigSchema))
	for _, f := range userConfigSchema {
		cfg[f.key] = f.def()
	}
	return cfg
}

// SystemInitMessage returns the system prompt injected into new transcripts.
func (c UserConfig) SystemInitMessage() string {
	s, _ := c[KeySystemInitMessage].(string)
	return s
}

// ExtraParams returns the additional completion request parameters.
func (c UserConfig) ExtraParams() map[string]any {
	m, _ := c[KeyExtraParams].(map[string]any)
	return m
}

// Set coerces raw to the declared type of key and stores it. Unknown keys
// and values that do not parse are rejected and leave c unchanged.
func (c UserConfig) Set(key, raw string) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("unsupported configuration key %q", key)
	}
	v, err := coerce(f.kind, raw)
	if err != nil {
		return fmt.Errorf("%s expects a %s: %w", key, f.kind, err)
	}
	c[key] = v
	return nil
}

// merge overlays a persisted JSON blob onto c field by field. Unknown keys
// and values whose type does not match the schema are ignored.
func (c UserConfig) merge(blob string) error {
	var stored map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		return fmt.Errorf("usecase: decode user config: %w", err)
	}
	for _, f := range userConfigSchema {
		raw, ok := stored[f.key]
		if !ok {
			continue
		}
		if v, ok := decodeField(f.kind, raw); ok {
			c[f.key] = v
		}
	}
	return nil
}

func coerce(kind fieldKind, raw string) (any, error) {
	switch kind {
	case kindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case kindBool:
		switch raw {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not true or false", raw)
	case kindObject:
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, err
		}
		if obj == nil {
			return nil, fmt.Errorf("%q is not an object", raw)
		}
		return obj, nil
	default:
		return raw, nil
	}
}

func decodeField(kind fieldKind, raw json.RawMessage) (any, bool) {
	var dst any
	switch kind {
	case kindNumber:
		dst = new(float64)
	case kindBool:
		dst = new(bool)
	case kindObject:
		dst = new(map[string]any)
	default:
		dst = new(string)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, false
	}
	switch v := dst.(type) {
	case *float64:
		return *v, true
	case *bool:
		return *v, true
	case *map[string]any:
		return *v, *v != nil
	case *string:
		return *v, true
	}
	return nil, false
}
