package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
)

var (
	initSystemd bool
	initForce   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration and scheduler units",
	Long: `Create the configuration file for clawkeep if it doesn't exist.

With --systemd, also install a user service and a daily timer that run
"clawkeep backup". Enable them with:
  systemctl --user daemon-reload
  systemctl --user enable --now clawkeep-backup.timer

The timer is the only retry mechanism: a cycle that fails to push is
picked up by the next run.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initSystemd, "systemd", false, "Install systemd user service and timer units")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

const defaultConfig = `[workspace]
path = "~/.openclaw/workspace"
remote = "origin"
mainline = "working"

[document]
path = "~/.openclaw/openclaw.json"

[backup]
retention = 7
prefix = "backup-"
command_timeout = "2m"

[log]
file = "~/.config/clawkeep/backup.log"
level = "info"
journal = false

[history]
enabled = true
path = "~/.config/clawkeep/history.db"
`

var serviceUnit = template.Must(template.New("service").Parse(`[Unit]
Description=Back up the agent workspace
Wants=network-online.target
After=network-online.target

[Service]
Type=oneshot
ExecStart={{.Binary}} backup{{if .Config}} --config {{.Config}}{{end}}
Environment=CLAWKEEP_LOG_JOURNAL=true
# 2 means the backup completed with issues
SuccessExitStatus=2
`))

const timerUnit = `[Unit]
Description=Daily backup of the agent workspace

[Timer]
OnCalendar=daily
Persistent=true
RandomizedDelaySec=15m

[Install]
WantedBy=timers.target
`

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cfgFile
	if configPath == "" {
		configDir, err := defaultConfigDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(configDir, "config.toml")
	}

	wrote, err := writeIfMissing(configPath, []byte(defaultConfig), 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if wrote {
		fmt.Printf("✓ Created default config: %s\n", configPath)
	} else {
		fmt.Printf("Config already exists: %s\n", configPath)
	}

	if initSystemd {
		if err := installUnits(cfgFile); err != nil {
			return err
		}
	}

	fmt.Println("\n✓ clawkeep initialized successfully!")
	fmt.Println("  Review the config, then run: clawkeep status")

	return nil
}

func installUnits(config string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	unitDir := filepath.Join(home, ".config", "systemd", "user")

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate clawkeep binary: %w", err)
	}
	if config != "" {
		if config, err = filepath.Abs(config); err != nil {
			return err
		}
	}

	var service bytes.Buffer
	if err := serviceUnit.Execute(&service, struct{ Binary, Config string }{binary, config}); err != nil {
		return fmt.Errorf("failed to render service unit: %w", err)
	}

	units := []struct {
		name    string
		content []byte
	}{
		{"clawkeep-backup.service", service.Bytes()},
		{"clawkeep-backup.timer", []byte(timerUnit)},
	}
	for _, unit := range units {
		path := filepath.Join(unitDir, unit.name)
		wrote, err := writeIfMissing(path, unit.content, 0644)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", unit.name, err)
		}
		if wrote {
			fmt.Printf("✓ Installed %s\n", path)
		} else {
			fmt.Printf("Unit already exists: %s\n", path)
		}
	}

	fmt.Println("  Enable with: systemctl --user daemon-reload && systemctl --user enable --now clawkeep-backup.timer")
	return nil
}

// writeIfMissing writes content to path unless it exists and --force is
// not set. It reports whether the file was written.
func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil && !initForce {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, err
	}
	return true, nil
}
