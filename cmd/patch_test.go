package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pders01/clawkeep/internal/docpatch"
)

func resetPatchFlags() {
	patchPresets = []string{}
	patchSets = []string{}
	patchAppends = []string{}
	patchDryRun = false
}

func decodeDocument(t *testing.T, content string) map[string]any {
	t.Helper()
	doc, err := docpatch.Decode([]byte(content))
	if err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}
	return doc
}

func TestPatchSetsValues(t *testing.T) {
	setupWorkspace(t)
	writeDocument(t, `{"a":{"x":1}}`)
	resetPatchFlags()
	defer resetPatchFlags()

	patchSets = []string{"a.y=2", "b.z=hello"}
	if err := runPatch(nil, []string{}); err != nil {
		t.Fatalf("patch command failed: %v", err)
	}

	got := decodeDocument(t, readDocument(t))
	want := decodeDocument(t, `{"a":{"x":1,"y":2},"b":{"z":"hello"}}`)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// a second run leaves the document byte-identical
	before := readDocument(t)
	if err := runPatch(nil, []string{}); err != nil {
		t.Fatalf("second patch failed: %v", err)
	}
	if after := readDocument(t); after != before {
		t.Errorf("patch is not idempotent:\n%s\n---\n%s", before, after)
	}
}

func TestPatchSetsNullAtAbsentPath(t *testing.T) {
	setupWorkspace(t)
	writeDocument(t, `{"x":1}`)
	resetPatchFlags()
	defer resetPatchFlags()

	patchSets = []string{"a.b=null"}
	if err := runPatch(nil, []string{}); err != nil {
		t.Fatalf("patch command failed: %v", err)
	}

	got := decodeDocument(t, readDocument(t))
	want := decodeDocument(t, `{"x":1,"a":{"b":null}}`)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOpChanged(t *testing.T) {
	before := decodeDocument(t, `{"x":1,"n":null}`)
	after := decodeDocument(t, `{"x":1,"n":null,"a":{"b":null}}`)

	if !opChanged(before, after, []string{"a", "b"}) {
		t.Error("a null written at an absent path should count as a change")
	}
	if opChanged(before, after, []string{"n"}) {
		t.Error("an existing null left alone should not count as a change")
	}
	if opChanged(before, after, []string{"x"}) {
		t.Error("an untouched key should not count as a change")
	}
}

func TestPatchStructureErrorLeavesDocument(t *testing.T) {
	setupWorkspace(t)
	original := `{"a": "not an object"}`
	writeDocument(t, original)
	resetPatchFlags()
	defer resetPatchFlags()

	patchSets = []string{"keep=1", "a.b=1"}
	err := runPatch(nil, []string{})
	if !errors.Is(err, docpatch.ErrStructure) {
		t.Fatalf("expected structure error, got %v", err)
	}
	if got := readDocument(t); got != original {
		t.Errorf("document changed after a failed patch: %s", got)
	}
}

func TestPatchDryRun(t *testing.T) {
	setupWorkspace(t)
	original := `{"a":{"x":1}}`
	writeDocument(t, original)
	resetPatchFlags()
	defer resetPatchFlags()

	patchSets = []string{"a.x=5"}
	patchDryRun = true
	if err := runPatch(nil, []string{}); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if got := readDocument(t); got != original {
		t.Errorf("dry run wrote the document: %s", got)
	}
}

func TestPatchPresetAndFile(t *testing.T) {
	setupWorkspace(t)
	writeDocument(t, `{"agents":{"defaults":{"model":{"primary":"x","fallbacks":["y"]}}}}`)
	resetPatchFlags()
	defer resetPatchFlags()

	patchFile := filepath.Join(t.TempDir(), "extra.toml")
	content := `[[append]]
path = ["agents", "defaults", "model", "fallbacks"]
value = "z"
`
	if err := os.WriteFile(patchFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write patch file: %v", err)
	}

	patchPresets = []string{"safe-hooks"}
	patchAppends = []string{"agents.defaults.model.fallbacks=\"y\""}
	if err := runPatch(nil, []string{patchFile}); err != nil {
		t.Fatalf("patch command failed: %v", err)
	}

	doc := decodeDocument(t, readDocument(t))
	enabled, err := docpatch.Lookup(doc, []string{"hooks", "internal", "entries", "soul-evil", "enabled"})
	if err != nil || enabled != false {
		t.Errorf("preset not applied: %v, %v", enabled, err)
	}
	fallbacks, _ := docpatch.Lookup(doc, []string{"agents", "defaults", "model", "fallbacks"})
	if !reflect.DeepEqual(fallbacks, []any{"y", "z"}) {
		t.Errorf("expected [y z], got %v", fallbacks)
	}
}

func TestPatchRequiresOperations(t *testing.T) {
	setupWorkspace(t)
	writeDocument(t, `{}`)
	resetPatchFlags()

	if err := runPatch(nil, []string{}); err == nil {
		t.Error("expected an error with nothing to apply")
	}
}

func TestPatchUnknownPreset(t *testing.T) {
	setupWorkspace(t)
	writeDocument(t, `{}`)
	resetPatchFlags()
	defer resetPatchFlags()

	patchPresets = []string{"nope"}
	if err := runPatch(nil, []string{}); err == nil {
		t.Error("expected an error for an unknown preset")
	}
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		arg      string
		wantPath []string
		wantVal  string
		wantErr  bool
	}{
		{arg: "a.b=1", wantPath: []string{"a", "b"}, wantVal: "1"},
		{arg: `models.DeepSeek-V2\.5=true`, wantPath: []string{"models", "DeepSeek-V2.5"}, wantVal: "true"},
		{arg: "a=b=c", wantPath: []string{"a"}, wantVal: `"b=c"`},
		{arg: `a\=b=c`, wantPath: []string{"a=b"}, wantVal: `"c"`},
		{arg: `a={"k":[1,2]}`, wantPath: []string{"a"}, wantVal: `{"k":[1,2]}`},
		{arg: "a=", wantPath: []string{"a"}, wantVal: `""`},
		{arg: "novalue", wantErr: true},
		{arg: "a..b=1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			op, err := parseAssignment(docpatch.OpSet, tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", op)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(op.Path, tt.wantPath) {
				t.Errorf("expected path %v, got %v", tt.wantPath, op.Path)
			}
			if got := op.Value.String(); got != tt.wantVal {
				t.Errorf("expected value %s, got %s", tt.wantVal, got)
			}
		})
	}
}

func TestGetCommand(t *testing.T) {
	setupWorkspace(t)
	writeDocument(t, `{"a":{"x":1}}`)

	if err := runGet(nil, []string{"a.x"}); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := runGet(nil, []string{}); err != nil {
		t.Fatalf("get of the whole document failed: %v", err)
	}
	if err := runGet(nil, []string{"a.missing"}); !errors.Is(err, docpatch.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
