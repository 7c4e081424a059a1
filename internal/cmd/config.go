package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/partvault/partvault/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View Partvault configuration",
	Long: `View Partvault configuration.

Without arguments, displays the current configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/partvault/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if used := viper.ConfigFileUsed(); used != "" {
		cmd.Printf("# config file: %s\n", used)
	} else {
		cmd.Println("# config file: (none - using defaults)")
	}

	out, err := yaml.Marshal(configMap(cfg))
	if err != nil {
		return err
	}
	cmd.Print(string(out))
	return nil
}

// configMap renders a Config with the same keys viper reads, so the output
// of show and init round-trips as a config file.
func configMap(cfg *config.Config) map[string]any {
	return map[string]any{
		"repo": map[string]any{
			"path":   cfg.Repo.Path,
			"remote": cfg.Repo.Remote,
			"branch": cfg.Repo.Branch,
		},
		"publish": map[string]any{
			"timeout_seconds": cfg.Publish.TimeoutSeconds,
		},
		"retry": map[string]any{
			"max_attempts": cfg.Retry.MaxAttempts,
			"backoff_ms":   cfg.Retry.BackoffMs,
		},
		"logging": map[string]any{
			"level":       cfg.Logging.Level,
			"dir":         cfg.Logging.Dir,
			"max_size_mb": cfg.Logging.MaxSizeMB,
			"max_backups": cfg.Logging.MaxBackups,
			"compress":    cfg.Logging.Compress,
		},
		"notify": map[string]any{
			"enabled":         cfg.Notify.Enabled,
			"urls":            cfg.Notify.URLs,
			"timeout_seconds": cfg.Notify.TimeoutSeconds,
		},
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.ConfigFile()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	out, err := yaml.Marshal(configMap(config.Default()))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	cmd.Printf("Created %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cmd.Println(config.ConfigFile())
	return nil
}
