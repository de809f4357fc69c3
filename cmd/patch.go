package cmd

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pders01/clawkeep/internal/config"
	"github.com/pders01/clawkeep/internal/docpatch"
	"github.com/pders01/clawkeep/internal/patchset"
	"github.com/spf13/cobra"
)

var (
	patchPresets []string
	patchSets    []string
	patchAppends []string
	patchDryRun  bool
)

var patchCmd = &cobra.Command{
	Use:   "patch [FILE...]",
	Short: "Apply key-path updates to the agent configuration",
	Long: `Apply a batch of updates to the agent's JSON configuration document
(document.path) and write it back atomically.

Operations are collected in this order: presets, patch files, --set,
--append. They apply in that order and each one sees the keys created by
the ones before it. Missing intermediate objects are created; a path that
runs through a non-object value aborts the whole batch and leaves the
document untouched. Applying the same batch twice changes nothing.

Paths are dot-separated; escape a literal dot as \. and a backslash as \\.
Values are JSON literals, or plain strings when they do not parse as JSON.

Patch files are TOML:
  [[set]]
  path = ["agents", "defaults", "heartbeat"]
  value = { every = "30m" }

  [[append]]
  path = ["agents", "defaults", "model", "fallbacks"]
  value = "siliconflow/deepseek-ai/DeepSeek-V2.5"

Examples:
  clawkeep patch --preset optimizations
  clawkeep patch --set agents.defaults.maxConcurrent=4 --dry-run
  clawkeep patch ./providers.toml`,
	RunE: runPatch,
}

func init() {
	rootCmd.AddCommand(patchCmd)

	patchCmd.Flags().StringSliceVar(&patchPresets, "preset", []string{},
		"Built-in patch set to apply ("+strings.Join(patchset.Presets(), ", ")+")")
	patchCmd.Flags().StringArrayVar(&patchSets, "set", []string{}, "Set PATH=VALUE")
	patchCmd.Flags().StringArrayVar(&patchAppends, "append", []string{}, "Append VALUE to the list at PATH unless present")
	patchCmd.Flags().BoolVar(&patchDryRun, "dry-run", false, "Show what would change without writing")
}

func runPatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ops, err := collectOps(args)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return fmt.Errorf("nothing to apply (give patch files, --preset, --set or --append)")
	}

	store := docpatch.NewStore(cfg.DocumentPath)
	doc, err := store.Load()
	if err != nil {
		return err
	}

	patched, err := docpatch.Apply(doc, ops)
	if err != nil {
		return fmt.Errorf("patch aborted, %s left unchanged: %w", store.Path(), err)
	}

	changed := 0
	for _, op := range ops {
		state := "unchanged"
		if opChanged(doc, patched, op.Path) {
			state = "changed"
			changed++
		}
		fmt.Printf("  %-9s %s\n", state, op)
	}
	fmt.Println()

	if patchDryRun {
		fmt.Printf("Dry run: %d of %d operation(s) would change %s\n", changed, len(ops), store.Path())
		return nil
	}
	if reflect.DeepEqual(doc, patched) {
		fmt.Printf("✓ %s is already up to date\n", store.Path())
		return nil
	}

	if err := store.Save(patched); err != nil {
		return err
	}
	fmt.Printf("✓ Applied %d operation(s) to %s\n", len(ops), store.Path())
	return nil
}

// opChanged compares the node at path before and after the batch. An absent
// node differs from a present null.
func opChanged(before, after map[string]any, path []string) bool {
	old, errBefore := docpatch.Lookup(before, path)
	cur, errAfter := docpatch.Lookup(after, path)
	if (errBefore == nil) != (errAfter == nil) {
		return true
	}
	return !reflect.DeepEqual(old, cur)
}

func collectOps(files []string) ([]docpatch.Op, error) {
	var ops []docpatch.Op

	for _, name := range patchPresets {
		preset, err := patchset.Preset(name)
		if err != nil {
			return nil, err
		}
		ops = append(ops, preset...)
	}

	for _, file := range files {
		fileOps, err := patchset.LoadFile(file)
		if err != nil {
			return nil, err
		}
		ops = append(ops, fileOps...)
	}

	for _, arg := range patchSets {
		op, err := parseAssignment(docpatch.OpSet, arg)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	for _, arg := range patchAppends {
		op, err := parseAssignment(docpatch.OpAppend, arg)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	return ops, nil
}

// parseAssignment parses PATH=VALUE. The first unescaped = separates the
// path from the value.
func parseAssignment(kind docpatch.OpKind, arg string) (docpatch.Op, error) {
	idx := -1
	for i := 0; i < len(arg); i++ {
		if arg[i] == '\\' {
			i++
			continue
		}
		if arg[i] == '=' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return docpatch.Op{}, fmt.Errorf("invalid assignment %q (expected PATH=VALUE)", arg)
	}

	path, err := docpatch.ParsePath(arg[:idx])
	if err != nil {
		return docpatch.Op{}, fmt.Errorf("invalid path in %q: %w", arg, err)
	}
	return docpatch.Op{Kind: kind, Path: path, Value: docpatch.ParseLiteral(arg[idx+1:])}, nil
}
