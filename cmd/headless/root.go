package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/headless/internal/cli"
	"github.com/aretw0/headless/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "headless",
	Short: "Headless is a stateful chat client with bot to agent handoff",
	Long: `Headless talks to a chat bot API, keeps the conversation state across restarts
and hands the conversation off to a live agent desk when the bot asks for it.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (.yaml, .toml or .json)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("debug", false, "Log lifecycle events at debug level")
	rootCmd.PersistentFlags().String("storage", "", "Storage backend: file, sqlite, redis, memory, none")
}

// loadConfig reads the config file and applies the persistent flags over it.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, bool, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, false, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("storage") {
		cfg.Storage.Backend, _ = cmd.Flags().GetString("storage")
		if err := cfg.Validate(); err != nil {
			return nil, nil, false, err
		}
	}
	debug, _ := cmd.Flags().GetBool("debug")

	logger, err := cli.NewLogger(cfg.Log, debug)
	if err != nil {
		return nil, nil, false, err
	}
	return cfg, logger, debug, nil
}
