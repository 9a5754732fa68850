// Package annotation provides the ordered key/value map attached to every
// vertex and edge of a provenance graph.
//
// A Map keeps its keys unique and remembers the order in which they were
// first inserted. Iteration, JSON encoding and Keys all follow that order, so
// a map built from the same sequence of Set calls always looks the same.
// Content hashing does not rely on this order; see package graph/id.
package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved annotation keys.
const (
	// KeyID holds the content-derived identity of a vertex or edge.
	KeyID = "id"

	// KeyType holds the vertex or edge type. It may never be dropped by configuration.
	KeyType = "type"
)

// IsReserved reports whether key is one of the reserved keys.
func IsReserved(key string) bool {
	return key == KeyID || key == KeyType
}

// Map is an insertion-ordered string map. The zero value is an empty map
// ready to use. A Map is not safe for concurrent mutation.
type Map struct {
	keys   []string
	values map[string]string
}

// New returns an empty map.
func New() *Map {
	return &Map{values: make(map[string]string)}
}

// FromPairs builds a map from alternating key, value arguments.
// It panics if given an odd number of arguments.
//
//	m := annotation.FromPairs("type", "Process", "name", "bash")
func FromPairs(kv ...string) *Map {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("annotation: odd number of arguments to FromPairs: %d", len(kv)))
	}
	m := New()
	for i := 0; i < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

// FromMap builds a map from a Go map. Keys are inserted in sorted order
// since Go map iteration order is unspecified.
func FromMap(src map[string]string) *Map {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := New()
	for _, k := range keys {
		m.Set(k, src[k])
	}
	return m
}

// Len returns the number of annotations.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns the value for key, or "" when absent.
func (m *Map) Get(key string) string {
	v, _ := m.Lookup(key)
	return v
}

// Lookup returns the value for key and whether it was present.
func (m *Map) Lookup(key string) (string, bool) {
	if m == nil || m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Lookup(key)
	return ok
}

// Set stores value under key. A new key is appended to the iteration order;
// an existing key keeps its position.
func (m *Map) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// SetAll copies every annotation of other into m, in other's order.
func (m *Map) SetAll(other *Map) {
	other.Range(func(k, v string) bool {
		m.Set(k, v)
		return true
	})
}

// Remove deletes key and returns the removed value and whether it existed.
func (m *Map) Remove(key string) (string, bool) {
	if m == nil || m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	if !ok {
		return "", false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Keys returns the keys in insertion order. The returned slice is a copy.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// SortedKeys returns the keys in lexical order.
func (m *Map) SortedKeys() []string {
	out := m.Keys()
	sort.Strings(out)
	return out
}

// Range calls fn for every annotation in insertion order until fn returns false.
// Mutating the map from inside fn is not supported.
func (m *Map) Range(fn func(key, value string) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns an independent copy of the map.
func (m *Map) Clone() *Map {
	out := &Map{values: make(map[string]string, m.Len())}
	if m == nil {
		return out
	}
	out.keys = make([]string, len(m.keys))
	copy(out.keys, m.keys)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// Without returns a copy of the map lacking the given keys.
func (m *Map) Without(keys ...string) *Map {
	skip := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		skip[k] = struct{}{}
	}
	out := New()
	m.Range(func(k, v string) bool {
		if _, drop := skip[k]; !drop {
			out.Set(k, v)
		}
		return true
	})
	return out
}

// ToMap returns the annotations as a plain Go map.
func (m *Map) ToMap() map[string]string {
	out := make(map[string]string, m.Len())
	m.Range(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}

// Equal reports whether both maps hold the same annotations, ignoring order.
func (m *Map) Equal(other *Map) bool {
	if m.Len() != other.Len() {
		return false
	}
	equal := true
	m.Range(func(k, v string) bool {
		ov, ok := other.Lookup(k)
		if !ok || ov != v {
			equal = false
			return false
		}
		return true
	})
	return equal
}

// String renders the map as {k=v, k=v} in insertion order.
func (m *Map) String() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	m.Range(func(k, v string) bool {
		if !first {
			buf.WriteString(", ")
		}
		first = false
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(v)
		return true
	})
	buf.WriteByte('}')
	return buf.String()
}

// MarshalJSON encodes the map as a JSON object with keys in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var err error
	first := true
	m.Range(func(k, v string) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		var kb, vb []byte
		if kb, err = json.Marshal(k); err != nil {
			return false
		}
		if vb, err = json.Marshal(v); err != nil {
			return false
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal annotations: %w", err)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string values, keeping the key order
// found in the document.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read annotations: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("annotations must be a JSON object, got %v", tok)
	}

	*m = Map{values: make(map[string]string)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read annotation key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("annotation key must be a string, got %v", tok)
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("annotation %q must be a string: %w", key, err)
		}
		m.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read end of annotations: %w", err)
	}
	return nil
}
