package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/headless"
	"github.com/aretw0/headless/internal/cli"
	"github.com/aretw0/headless/internal/presentation/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the bot in the terminal",
	Long: `Starts an interactive conversation. The saved conversation is restored and a
saved agent session is resumed. Lines starting with "/" are commands, see /help.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, debug, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		stream, _ := cmd.Flags().GetBool("stream")
		quiet, _ := cmd.Flags().GetBool("quiet")
		jsonMode, _ := cmd.Flags().GetBool("json")

		interactive := cli.IsTerminal(os.Stdin) && cli.IsTerminal(os.Stdout)
		if interactive && !quiet && !jsonMode {
			tui.PrintBanner(os.Stdout, strings.TrimSpace(headless.Version))
		}

		h, closeFn, err := cli.NewChat(cli.ChatOptions{Config: cfg, Logger: logger, Debug: debug})
		if err != nil {
			return err
		}
		defer func() {
			if err := closeFn(); err != nil {
				logger.Warn("Failed to release resources", "err", err)
			}
		}()

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		repl := cli.NewREPL(h, cli.REPLOptions{
			In:          os.Stdin,
			Out:         os.Stdout,
			Interactive: interactive,
			Stream:      stream,
			JSON:        jsonMode,
			Logger:      logger,
		})
		return cli.HandleExecutionError(repl.Run(sigCtx))
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Bool("stream", false, "Stream bot replies token by token")
	chatCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
	chatCmd.Flags().Bool("json", false, "Read and write JSON-Lines instead of text")
}
