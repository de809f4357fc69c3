package cmd

import (
	"fmt"

	"github.com/pders01/clawkeep/internal/config"
	"github.com/pders01/clawkeep/internal/docpatch"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [PATH]",
	Short: "Print a value from the agent configuration",
	Long: `Print the JSON value at PATH in the agent's configuration document, or
the whole document when PATH is omitted.

Examples:
  clawkeep get agents.defaults.model
  clawkeep get 'models.providers.siliconflow.models'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var path []string
	if len(args) > 0 {
		if path, err = docpatch.ParsePath(args[0]); err != nil {
			return err
		}
	}

	doc, err := docpatch.NewStore(cfg.DocumentPath).Load()
	if err != nil {
		return err
	}

	value, err := docpatch.Lookup(doc, path)
	if err != nil {
		return err
	}

	output, err := docpatch.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	fmt.Print(string(output))
	return nil
}
