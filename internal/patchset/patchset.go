// Package patchset loads batches of document operations from TOML files
// and provides the built-in presets.
package patchset

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pders01/clawkeep/internal/docpatch"
)

//go:embed presets/*.toml
var presetFS embed.FS

type entry struct {
	Path  []string `toml:"path"`
	Value any      `toml:"value"`
}

type file struct {
	Set    []entry `toml:"set"`
	Append []entry `toml:"append"`
}

// Load decodes a patch file. All [[set]] entries come first, in file
// order, followed by all [[append]] entries.
func Load(r io.Reader) ([]docpatch.Op, error) {
	var f file
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse patch file: %w", err)
	}
	var unknown []string
	for _, k := range md.Undecoded() {
		// keys nested in a value are free-form
		if len(k) > 2 && k[1] == "value" {
			continue
		}
		unknown = append(unknown, k.String())
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown keys in patch file: %s", strings.Join(unknown, ", "))
	}

	ops := make([]docpatch.Op, 0, len(f.Set)+len(f.Append))
	for i, e := range f.Set {
		op, err := e.op(docpatch.OpSet)
		if err != nil {
			return nil, fmt.Errorf("set #%d: %w", i+1, err)
		}
		ops = append(ops, op)
	}
	for i, e := range f.Append {
		op, err := e.op(docpatch.OpAppend)
		if err != nil {
			return nil, fmt.Errorf("append #%d: %w", i+1, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// LoadFile reads the patch file at filename
func LoadFile(filename string) ([]docpatch.Op, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open patch file: %w", err)
	}
	defer f.Close()

	ops, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return ops, nil
}

// Preset returns the operations of a built-in preset
func Preset(name string) ([]docpatch.Op, error) {
	f, err := presetFS.Open(path.Join("presets", name+".toml"))
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(Presets(), ", "))
	}
	defer f.Close()

	ops, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	return ops, nil
}

// Presets lists the built-in preset names
func Presets() []string {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".toml"))
	}
	sort.Strings(names)
	return names
}

func (e entry) op(kind docpatch.OpKind) (docpatch.Op, error) {
	if len(e.Path) == 0 {
		return docpatch.Op{}, fmt.Errorf("path is required")
	}
	for _, key := range e.Path {
		if key == "" {
			return docpatch.Op{}, fmt.Errorf("path %q contains an empty key", e.Path)
		}
	}
	if e.Value == nil {
		return docpatch.Op{}, fmt.Errorf("value is required for %s", docpatch.FormatPath(e.Path))
	}

	v, err := docpatch.FromAny(e.Value)
	if err != nil {
		return docpatch.Op{}, fmt.Errorf("%s: %w", docpatch.FormatPath(e.Path), err)
	}
	return docpatch.Op{Kind: kind, Path: e.Path, Value: v}, nil
}
