package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// PluginActivation tells the host to load a named plugin and hand it an
// option bag. It is written either as a bare identifier or as a
// {resolve, options} mapping; encoding preserves whichever form was read.
type PluginActivation struct {
	Resolve string
	Options map[string]any

	bare bool
}

type activationObject struct {
	Resolve string         `yaml:"resolve" json:"resolve"`
	Options map[string]any `yaml:"options" json:"options"`
}

// Bare returns an activation written as a plain identifier.
func Bare(id string) PluginActivation {
	return PluginActivation{Resolve: id, Options: map[string]any{}, bare: true}
}

// Activate returns an activation with an explicit option bag.
func Activate(id string, options map[string]any) PluginActivation {
	if options == nil {
		options = map[string]any{}
	}
	return PluginActivation{Resolve: id, Options: options}
}

// IsBare reports whether the activation was declared as a bare identifier.
func (p PluginActivation) IsBare() bool {
	return p.bare
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PluginActivation) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var id string
		if err := node.Decode(&id); err != nil {
			return err
		}
		*p = Bare(id)
		return nil
	case yaml.MappingNode:
		var obj activationObject
		if err := node.Decode(&obj); err != nil {
			return err
		}
		*p = Activate(obj.Resolve, obj.Options)
		return nil
	default:
		return fmt.Errorf("line %d: plugin must be an identifier or a {resolve, options} mapping", node.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (p PluginActivation) MarshalYAML() (any, error) {
	if p.bare {
		return p.Resolve, nil
	}
	return activationObject{Resolve: p.Resolve, Options: p.optionsOrEmpty()}, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PluginActivation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*p = Bare(id)
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("plugin must be an identifier or a {resolve, options} object")
	}
	var obj activationObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*p = Activate(obj.Resolve, obj.Options)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p PluginActivation) MarshalJSON() ([]byte, error) {
	if p.bare {
		return json.Marshal(p.Resolve)
	}
	return json.Marshal(activationObject{Resolve: p.Resolve, Options: p.optionsOrEmpty()})
}

func (p PluginActivation) optionsOrEmpty() map[string]any {
	if p.Options == nil {
		return map[string]any{}
	}
	return p.Options
}
