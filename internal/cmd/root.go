package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/partvault/partvault/internal/config"
	"github.com/partvault/partvault/internal/errors"
	"github.com/partvault/partvault/internal/event"
	"github.com/partvault/partvault/internal/gitrepo"
	"github.com/partvault/partvault/internal/identity"
	"github.com/partvault/partvault/internal/logging"
	"github.com/partvault/partvault/internal/notify"
	"github.com/partvault/partvault/internal/store"
	"github.com/partvault/partvault/internal/vault"
)

var rootCmd = &cobra.Command{
	Use:   "partvault",
	Short: "Multi-user document check-out coordination over git",
	Long: `Partvault coordinates exclusive document check-out, metadata edits and
part revision tracking for a team sharing one git repository. Every
operation synchronizes with the shared remote, applies its change
together with an audit entry, and publishes the result as one commit.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/partvault/config.yaml)")
	rootCmd.PersistentFlags().String("repo", "", "managed repository path (default from config)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting username (default $PARTVAULT_USER)")
	rootCmd.PersistentFlags().String("role", "", "acting role: user, admin or supervisor")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("repo.path", rootCmd.PersistentFlags().Lookup("repo"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()
	viper.SetDefault("role", string(identity.RoleUser))

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PARTVAULT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., PARTVAULT_REPO_REMOTE for repo.remote
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// currentIdentity builds the acting identity from flags and environment.
func currentIdentity() (identity.Identity, error) {
	role, err := identity.ParseRole(viper.GetString("role"))
	if err != nil {
		return identity.Identity{}, err
	}
	return identity.New(viper.GetString("user"), role)
}

// services holds everything a command needs to run one operation.
type services struct {
	vault *vault.Service
	cfg   *config.Config
	log   *logging.Logger
}

// Close releases resources held by the services.
func (s *services) Close() {
	if s.log != nil {
		_ = s.log.Close()
	}
}

// newServices assembles the service stack from configuration.
func newServices() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.NewLogger(cfg.LogDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}

	repo := gitrepo.New(cfg.Repo.Path, cfg.Repo.Remote, cfg.Repo.Branch,
		gitrepo.WithTimeout(cfg.Publish.PublishTimeout()),
		gitrepo.WithLogger(log))
	st := store.New(repo,
		store.WithMaxAttempts(cfg.Retry.MaxAttempts),
		store.WithBackoff(cfg.Retry.Backoff()),
		store.WithLogger(log))

	bus := event.NewBus()
	svc := vault.New(st, bus, log)

	if cfg.Notify.Enabled {
		notifier, err := notify.NewShoutrrr(cfg.Notify.URLs, cfg.Notify.Timeout())
		if err != nil {
			_ = log.Close()
			return nil, fmt.Errorf("configuring notifications: %w", err)
		}
		notify.NewDispatcher(notifier, log).Attach(bus)
	}

	return &services{vault: svc, cfg: cfg, log: log}, nil
}

// userMessage renders an error for the terminal. Internal detail stays in
// the log; user-facing errors print as-is.
func userMessage(err error) string {
	if errors.IsUserFacing(err) {
		return err.Error()
	}
	return fmt.Sprintf("operation failed: %v", err)
}
