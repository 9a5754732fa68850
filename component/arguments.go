package component

import (
	"fmt"
	"strings"
)

// Argument names understood by the key-drop filter.
const (
	ArgEdgeDropKeys   = "EdgeDropKeys"
	ArgVertexDropKeys = "VertexDropKeys"
	ArgKeepOriginalID = "KeepOriginalID"
)

// ParseArguments parses whitespace-separated key=value pairs such as
//
//	EdgeDropKeys=seq,jiffies VertexDropKeys=pid KeepOriginalID=false
//
// Values may be wrapped in double quotes to contain spaces. A token without
// "=" or with an empty key is an error. Later duplicates win.
func ParseArguments(arguments string) (map[string]string, error) {
	out := make(map[string]string)

	tokens, err := splitArguments(arguments)
	if err != nil {
		return nil, err
	}
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return nil, fmt.Errorf("argument %q is not a key=value pair", tok)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("argument %q has an empty key", tok)
		}
		out[key] = strings.Trim(value, `"`)
	}
	return out, nil
}

// MergeArguments overlays the parsed argument string on top of base values
// (typically read from pipeline.yaml). Arguments take precedence.
func MergeArguments(base map[string]string, arguments string) (map[string]string, error) {
	parsed, err := ParseArguments(arguments)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(base)+len(parsed))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range parsed {
		out[k] = v
	}
	return out, nil
}

// SplitKeys splits a comma-separated key list, trimming whitespace around
// each key. Empty tokens are reported through the second return value.
func SplitKeys(list string) (keys []string, hasEmpty bool) {
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			hasEmpty = true
			continue
		}
		keys = append(keys, tok)
	}
	return keys, hasEmpty
}

func splitArguments(s string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case !quoted && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote in arguments %q", s)
	}
	flush()
	return tokens, nil
}
