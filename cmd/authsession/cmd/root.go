package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsession/internal/config"
)

// options are the persistent flags plus the configuration they resolve to.
type options struct {
	configPath string
	logLevel   string
	backend    string

	cfg *config.Config
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "authsession",
		Short: "Client-side session manager for a register/login API",
		Long: `authsession logs in against a register/login API, keeps the session record in a
local store and ends the session when the access token expires.

Configuration is read from ~/.authsession/config.toml (see "authsession config init").`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if opts.backend != "" {
				cfg.Store.Backend = opts.backend
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the TOML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.backend, "store", "", "Session store backend: memory, redis, bolt")

	root.AddCommand(
		newRegisterCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newDevAPICmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// Execute runs the CLI with SIGINT/SIGTERM cancelling the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
