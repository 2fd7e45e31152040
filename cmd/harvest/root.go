package main

import (
	"github.com/Pericles001/Reverse-engineering-challenge/internal/infrastructure/config"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/spf13/cobra"
)

// globals are the persistent flags shared by every subcommand
type globals struct {
	configFile string
	logLevel   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest users from the challenge site through a signed session",
		Long: `harvest logs in with an interactive session (headless Chrome or a plain
form POST), copies the session cookies to every configured origin, fetches
the user listing and the signed current-user record, and writes both to a
single JSON or YAML document.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "TOML file overriding HARVEST_* variables")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newRunCmd(g), newSignCmd(g))
	return root
}

// loadConfig reads the environment and then the --config file, if any.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if g.configFile != "" {
		if err := cfg.Overlay(g.configFile); err != nil {
			return nil, err
		}
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func (g *globals) logger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
}
