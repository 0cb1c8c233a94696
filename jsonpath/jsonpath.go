package jsonpath

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/zqlite/zqlite-go/core"
)

// step is one path component: a field name or an array index.
type step struct {
	field string
	index int
	isIdx bool
}

func parsePath(path string) ([]step, error) {
	s := strings.TrimPrefix(path, "$")
	var steps []step
	for len(s) > 0 {
		switch s[0] {
		case '.':
			s = s[1:]
			end := strings.IndexAny(s, ".[")
			if end == -1 {
				end = len(s)
			}
			if end == 0 {
				return nil, core.Errorf(core.KindSyntax, "invalid path: empty field name")
			}
			steps = append(steps, step{field: s[:end]})
			s = s[end:]
		case '[':
			end := strings.IndexByte(s, ']')
			if end == -1 {
				return nil, core.Errorf(core.KindSyntax, "invalid path: unclosed index")
			}
			index, err := strconv.Atoi(s[1:end])
			if err != nil || index < 0 {
				return nil, core.Errorf(core.KindSyntax, "invalid path: bad index %q", s[1:end])
			}
			steps = append(steps, step{index: index, isIdx: true})
			s = s[end+1:]
		default:
			// a bare leading field, as in "items[0]"
			if len(steps) > 0 {
				return nil, core.Errorf(core.KindSyntax, "invalid path near %q", s)
			}
			end := strings.IndexAny(s, ".[")
			if end == -1 {
				end = len(s)
			}
			steps = append(steps, step{field: s[:end]})
			s = s[end:]
		}
	}
	return steps, nil
}

// parseDoc decodes a document keeping numbers as json.Number so integer
// and real survive the round trip.
func parseDoc(doc string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, core.Errorf(core.KindSyntax, "malformed JSON: %v", err)
	}
	// trailing garbage is malformed too
	if dec.More() {
		return nil, core.NewError(core.KindSyntax, "malformed JSON: trailing data")
	}
	return root, nil
}

func lookup(root any, steps []step) (any, error) {
	node := root
	for _, st := range steps {
		if st.isIdx {
			arr, ok := node.([]any)
			if !ok || st.index >= len(arr) {
				return nil, core.NewError(core.KindNotFound, "path not found")
			}
			node = arr[st.index]
			continue
		}
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, core.NewError(core.KindNotFound, "path not found")
		}
		child, ok := obj[st.field]
		if !ok {
			return nil, core.NewError(core.KindNotFound, "path not found")
		}
		node = child
	}
	return node, nil
}

// Extract returns the value a path addresses. Scalars come back as
// engine values; objects and arrays come back as their JSON text.
func Extract(doc, path string) (core.Value, error) {
	root, err := parseDoc(doc)
	if err != nil {
		return core.Null(), err
	}
	steps, err := parsePath(path)
	if err != nil {
		return core.Null(), err
	}
	node, err := lookup(root, steps)
	if err != nil {
		return core.Null(), err
	}
	return toValue(node)
}

func toValue(node any) (core.Value, error) {
	switch v := node.(type) {
	case nil:
		return core.Null(), nil
	case bool:
		if v {
			return core.Integer(1), nil
		}
		return core.Integer(0), nil
	case string:
		return core.Text(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return core.Integer(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return core.Null(), core.Errorf(core.KindSyntax, "malformed number %q", v)
		}
		return core.Real(f), nil
	default:
		text, err := marshal(node)
		if err != nil {
			return core.Null(), err
		}
		return core.Text(text), nil
	}
}

// Set returns the document with the addressed value replaced. Missing
// containers along the path are created: objects for field steps,
// arrays for index steps, arrays padded with nulls up to the index. A
// step that lands on an existing non-container fails.
func Set(doc, path string, value core.Value) (string, error) {
	steps, err := parsePath(path)
	if err != nil {
		return "", err
	}
	if len(steps) == 0 {
		return "", core.NewError(core.KindSyntax, "invalid path: no steps")
	}

	var root any
	if strings.TrimSpace(doc) == "" {
		root = nil // autovivified by the first step
	} else {
		root, err = parseDoc(doc)
		if err != nil {
			return "", err
		}
	}

	root, err = setIn(root, steps, toJSON(value))
	if err != nil {
		return "", err
	}
	return marshal(root)
}

func setIn(node any, steps []step, value any) (any, error) {
	if len(steps) == 0 {
		return value, nil
	}
	st := steps[0]

	if st.isIdx {
		var arr []any
		switch v := node.(type) {
		case nil:
			arr = nil
		case []any:
			arr = v
		default:
			return nil, core.NewError(core.KindMismatch, "path step is not an array")
		}
		for len(arr) <= st.index {
			arr = append(arr, nil)
		}
		child, err := setIn(arr[st.index], steps[1:], value)
		if err != nil {
			return nil, err
		}
		arr[st.index] = child
		return arr, nil
	}

	var obj map[string]any
	switch v := node.(type) {
	case nil:
		obj = make(map[string]any)
	case map[string]any:
		obj = v
	default:
		return nil, core.NewError(core.KindMismatch, "path step is not an object")
	}
	child, err := setIn(obj[st.field], steps[1:], value)
	if err != nil {
		return nil, err
	}
	obj[st.field] = child
	return obj, nil
}

func toJSON(value core.Value) any {
	switch value.Type() {
	case core.TypeInteger:
		i, _ := value.Int()
		return json.Number(strconv.FormatInt(i, 10))
	case core.TypeReal:
		f, _ := value.Float()
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
	case core.TypeText:
		s, _ := value.Text()
		return s
	case core.TypeBlob:
		b, _ := value.Blob()
		return string(b)
	default:
		return nil
	}
}

// TypeOf names the addressed value: object, array, string, integer,
// real, true, false or null.
func TypeOf(doc, path string) (string, error) {
	root, err := parseDoc(doc)
	if err != nil {
		return "", err
	}
	steps, err := parsePath(path)
	if err != nil {
		return "", err
	}
	node, err := lookup(root, steps)
	if err != nil {
		return "", err
	}

	switch v := node.(type) {
	case nil:
		return "null", nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case string:
		return "string", nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return "integer", nil
		}
		return "real", nil
	case []any:
		return "array", nil
	default:
		return "object", nil
	}
}

// marshal renders without HTML escaping and without a trailing newline.
func marshal(node any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(node); err != nil {
		return "", core.Errorf(core.KindInternal, "encode JSON: %v", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
