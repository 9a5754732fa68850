package filter

import (
	"fmt"
	"slices"

	"github.com/zero-day-ai/provgraph"
	"github.com/zero-day-ai/provgraph/annotation"
	"github.com/zero-day-ai/provgraph/component"
)

const opInit = "DropKeys.Init"

// DropKeysConfig configures the key-drop filter.
type DropKeysConfig struct {
	// EdgeDropKeys are removed from every edge.
	EdgeDropKeys []string

	// VertexDropKeys are removed from every vertex, including edge endpoints.
	VertexDropKeys []string

	// KeepOriginalID keeps the incoming "id" values instead of recomputing them.
	KeepOriginalID bool
}

// ParseDropKeysConfig builds a configuration from argument values keyed by
// component.ArgEdgeDropKeys, component.ArgVertexDropKeys and
// component.ArgKeepOriginalID. All three are required.
func ParseDropKeysConfig(values map[string]string) (DropKeysConfig, error) {
	var cfg DropKeysConfig

	edgeKeys, err := parseKeyList(values, component.ArgEdgeDropKeys)
	if err != nil {
		return cfg, err
	}
	vertexKeys, err := parseKeyList(values, component.ArgVertexDropKeys)
	if err != nil {
		return cfg, err
	}

	raw, ok := values[component.ArgKeepOriginalID]
	if !ok {
		return cfg, missing(component.ArgKeepOriginalID)
	}
	switch raw {
	case "true":
		cfg.KeepOriginalID = true
	case "false":
		cfg.KeepOriginalID = false
	default:
		return cfg, provgraph.NewConfigError(opInit,
			fmt.Sprintf("%s must be true or false, got %q", component.ArgKeepOriginalID, raw)).
			WithContext(map[string]any{"argument": component.ArgKeepOriginalID})
	}

	cfg.EdgeDropKeys = edgeKeys
	cfg.VertexDropKeys = vertexKeys
	return cfg, nil
}

// Validate checks that both key lists are non-empty, contain no empty key
// and do not name the "type" annotation.
func (c DropKeysConfig) Validate() error {
	if err := validateKeys(component.ArgEdgeDropKeys, c.EdgeDropKeys); err != nil {
		return err
	}
	return validateKeys(component.ArgVertexDropKeys, c.VertexDropKeys)
}

func parseKeyList(values map[string]string, name string) ([]string, error) {
	raw, ok := values[name]
	if !ok || raw == "" {
		return nil, missing(name)
	}
	keys, hasEmpty := component.SplitKeys(raw)
	if hasEmpty {
		return nil, provgraph.NewConfigError(opInit, fmt.Sprintf("%s contains an empty key", name)).
			WithContext(map[string]any{"argument": name})
	}
	if err := validateKeys(name, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func validateKeys(name string, keys []string) error {
	if len(keys) == 0 {
		return missing(name)
	}
	if slices.Contains(keys, "") {
		return provgraph.NewConfigError(opInit, fmt.Sprintf("%s contains an empty key", name)).
			WithContext(map[string]any{"argument": name})
	}
	if slices.Contains(keys, annotation.KeyType) {
		return provgraph.NewConfigError(opInit, fmt.Sprintf("%s must not contain %q", name, annotation.KeyType)).
			WithContext(map[string]any{"argument": name})
	}
	return nil
}

func missing(name string) error {
	return provgraph.NewConfigError(opInit, fmt.Sprintf("%s is required", name)).
		WithContext(map[string]any{"argument": name})
}
