package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/workspace/config"
	"github.com/isdmx/workspace/logger"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "workspace-launcher",
		Short: "Run commands under the workspace process supervisor",
		Long: `workspace-launcher starts a command, optionally confined in the platform
sandbox, relays its output and exits with its status.

On Linux the sandbox is a bubblewrap container with an empty root, a
read-only allow-list of host paths, no capabilities and, unless allowed,
no network. On Windows it is an AppContainer derived from --id.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file (default: ./config.yaml or ./config/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level")
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newPolicyCmd(opts))

	return cmd
}

// load reads the configuration and builds the launcher logger.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.NewFromFile(o.configPath)
	} else {
		cfg, err = config.New()
	}
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}

	log, err := logger.New(cfg.Logging.Mode, level,
		logger.WithFields(map[string]any{"component": "launcher"}))
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
