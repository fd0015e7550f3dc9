package main

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

var jsonUnmarshaler = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()

// yamlToJSON re-encodes a YAML document as JSON shaped for target. YAML infers
// scalar types on its own, so an unquoted bucket such as `duration: 12` would
// otherwise reach a string field as a number. Scalars are typed from the Go
// field they land in, and mapping keys are always strings.
func yamlToJSON(raw []byte, target reflect.Type) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return []byte("null"), nil
	}
	v, err := nodeValue(&doc, target)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func nodeValue(n *yaml.Node, t reflect.Type) (any, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0], t)
	case yaml.AliasNode:
		return nodeValue(n.Alias, t)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			v, err := nodeValue(n.Content[i+1], memberType(t, key))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = v
		}
		return out, nil
	case yaml.SequenceNode:
		var elem reflect.Type
		if t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
			elem = t.Elem()
		}
		out := make([]any, 0, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeValue(c, elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return scalarValue(n, t)
	}
}

func scalarValue(n *yaml.Node, t reflect.Type) (any, error) {
	if n.ShortTag() == "!!null" {
		return nil, nil
	}
	switch {
	case t == nil || t.Kind() == reflect.Interface:
		var v any
		err := n.Decode(&v)
		return v, err
	case reflect.PointerTo(t).Implements(jsonUnmarshaler):
		// Amounts keep their literal text; decimal parses quoted numbers.
		return n.Value, nil
	case t.Kind() == reflect.String:
		return n.Value, nil
	case t.Kind() == reflect.Bool:
		var b bool
		err := n.Decode(&b)
		return b, err
	default:
		var f float64
		err := n.Decode(&f)
		return f, err
	}
}

// memberType resolves the Go type stored under key in a struct or map type.
func memberType(t reflect.Type, key string) reflect.Type {
	if t == nil {
		return nil
	}
	switch t.Kind() {
	case reflect.Map:
		return t.Elem()
	case reflect.Struct:
		var folded reflect.Type
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
			if name == key {
				return f.Type
			}
			if folded == nil && strings.EqualFold(name, key) {
				folded = f.Type
			}
		}
		return folded
	default:
		return nil
	}
}
