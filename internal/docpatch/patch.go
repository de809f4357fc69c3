// Package docpatch applies key-path operations to the agent's JSON
// configuration document and persists the result atomically.
package docpatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrStructure is matched by every *StructureError
	ErrStructure = errors.New("document structure does not match patch path")

	// ErrNotObject indicates the document root is not a JSON object
	ErrNotObject = errors.New("document root is not an object")

	// ErrNotFound indicates a lookup path does not exist in the document
	ErrNotFound = errors.New("path not found")
)

// OpKind selects what an Op does at its path
type OpKind int

const (
	// OpSet creates missing intermediate mappings and overwrites the leaf
	OpSet OpKind = iota
	// OpAppend adds Value to the sequence at Path unless an equal element
	// is already present
	OpAppend
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpAppend:
		return "append"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is a single patch operation
type Op struct {
	Kind  OpKind
	Path  []string
	Value Value
}

// Set returns an upsert operation
func Set(path []string, v Value) Op {
	return Op{Kind: OpSet, Path: path, Value: v}
}

// Append returns an append-if-absent operation
func Append(path []string, v Value) Op {
	return Op{Kind: OpAppend, Path: path, Value: v}
}

func (o Op) String() string {
	return fmt.Sprintf("%s %s = %s", o.Kind, FormatPath(o.Path), o.Value)
}

// StructureError reports a patch path that runs through a node of the
// wrong type.
type StructureError struct {
	Op    Op
	At    []string // path of the offending node
	Found string   // JSON type found there
	Want  string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("cannot %s %s: %s is a %s, not a %s",
		e.Op.Kind, FormatPath(e.Op.Path), FormatPath(e.At), e.Found, e.Want)
}

// Is makes errors.Is(err, ErrStructure) hold for every StructureError
func (e *StructureError) Is(target error) bool {
	return target == ErrStructure
}

// Apply applies ops in order to a copy of doc and returns the copy. The
// input is never modified. When any operation fails the whole batch is
// abandoned and a *StructureError is returned.
func Apply(doc map[string]any, ops []Op) (map[string]any, error) {
	out, _ := deepCopy(doc).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}

	for _, op := range ops {
		if len(op.Path) == 0 {
			return nil, fmt.Errorf("%s: empty path", op.Kind)
		}
		if err := applyOne(out, op); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOne(root map[string]any, op Op) error {
	parent := root
	last := len(op.Path) - 1

	for i, key := range op.Path[:last] {
		child, ok := parent[key]
		if !ok {
			next := map[string]any{}
			parent[key] = next
			parent = next
			continue
		}
		next, ok := child.(map[string]any)
		if !ok {
			return &StructureError{
				Op:    op,
				At:    op.Path[:i+1],
				Found: typeName(child),
				Want:  "mapping",
			}
		}
		parent = next
	}

	leaf := op.Path[last]
	switch op.Kind {
	case OpSet:
		parent[leaf] = op.Value.Any()
	case OpAppend:
		want := op.Value.Any()
		existing, ok := parent[leaf]
		if !ok {
			parent[leaf] = []any{want}
			return nil
		}
		seq, ok := existing.([]any)
		if !ok {
			return &StructureError{
				Op:    op,
				At:    op.Path,
				Found: typeName(existing),
				Want:  "sequence",
			}
		}
		for _, item := range seq {
			if reflect.DeepEqual(item, want) {
				return nil
			}
		}
		parent[leaf] = append(seq, want)
	default:
		return fmt.Errorf("unknown operation %s", op.Kind)
	}
	return nil
}

// Lookup returns the node at path. An empty path returns the whole document.
func Lookup(doc map[string]any, path []string) (any, error) {
	var node any = doc
	for i, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s is a %s: %w", FormatPath(path[:i]), typeName(node), ErrNotFound)
		}
		node, ok = m[key]
		if !ok {
			return nil, fmt.Errorf("%s: %w", FormatPath(path[:i+1]), ErrNotFound)
		}
	}
	return node, nil
}

// ParsePath splits a dotted path. A backslash escapes the next character,
// so `models.providers.DeepSeek-V2\.5` names a key containing a dot.
func ParsePath(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}

	var (
		parts   []string
		current strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			if current.Len() == 0 {
				return nil, fmt.Errorf("invalid path %q: empty key", s)
			}
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		return nil, fmt.Errorf("invalid path %q: trailing backslash", s)
	}
	if current.Len() == 0 {
		return nil, fmt.Errorf("invalid path %q: empty key", s)
	}
	return append(parts, current.String()), nil
}

// FormatPath is the inverse of ParsePath
func FormatPath(path []string) string {
	if len(path) == 0 {
		return "<root>"
	}
	escaped := make([]string, len(path))
	for i, key := range path {
		key = strings.ReplaceAll(key, `\`, `\\`)
		escaped[i] = strings.ReplaceAll(key, ".", `\.`)
	}
	return strings.Join(escaped, ".")
}

func deepCopy(x any) any {
	switch t := x.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = deepCopy(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = deepCopy(v)
		}
		return out
	default:
		return x
	}
}

func typeName(x any) string {
	switch x.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "mapping"
	case []any:
		return "sequence"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", x)
	}
}
