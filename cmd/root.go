package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pders01/clawkeep/internal/backup"
	"github.com/pders01/clawkeep/internal/config"
	"github.com/pders01/clawkeep/internal/git"
	"github.com/pders01/clawkeep/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes
const (
	ExitOK       = 0
	ExitFailed   = 1
	ExitDegraded = 2
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "clawkeep",
	Short: "Keep an agent workspace patched and backed up",
	Long: `clawkeep maintains a local AI-agent installation:
  - patches the agent's JSON configuration with idempotent key-path upserts
  - backs up the version-controlled workspace to a remote
  - keeps a bounded number of snapshot branches

Run "clawkeep backup" from a scheduler (see "clawkeep init --systemd").`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries the process exit code of a failed command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func Execute() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/clawkeep/config.toml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := defaultConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(ExitFailed)
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("clawkeep")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "clawkeep"), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// openWorkspace loads the configuration and opens the workspace repository
func openWorkspace(ctx context.Context) (*config.Config, *git.Repo, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	repo, err := openRepo(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, repo, nil
}

func openRepo(ctx context.Context, cfg *config.Config) (*git.Repo, error) {
	repo := git.Open(cfg.WorkspacePath, cfg.CommandTimeout)
	if !repo.IsRepo(ctx) {
		return nil, fmt.Errorf("not a git repository: %s", cfg.WorkspacePath)
	}
	return repo, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return newLoggerTo(cfg, nil)
}

// newLoggerTo is newLogger with the terminal output replaced by stdout.
// Interactive commands pass io.Discard so records only reach the log file.
func newLoggerTo(cfg *config.Config, stdout io.Writer) (*logging.Logger, error) {
	return logging.New(logging.Options{
		File:    cfg.LogFile,
		Level:   cfg.LogLevel,
		Journal: cfg.LogJournal,
		Stdout:  stdout,
	})
}

func newRotator(cfg *config.Config, repo *git.Repo, logger *slog.Logger) (*backup.Rotator, error) {
	return backup.NewRotator(repo, backup.Options{
		Remote:    cfg.Remote,
		Mainline:  cfg.Mainline,
		Prefix:    cfg.Prefix,
		Retention: cfg.Retention,
	}, logger)
}
