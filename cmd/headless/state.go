package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/headless/internal/cli"
	"github.com/aretw0/headless/pkg/persistence"
	"github.com/aretw0/headless/pkg/ports"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage persisted conversations",
	Long:  `List, inspect, and remove conversations and agent credentials kept in the durable store.`,
}

var stateLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List persisted keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.KeyValueStore) error {
			keys, err := store.List(cmd.Context(), "")
			if err != nil {
				return fmt.Errorf("error listing keys: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintln(out, "No persisted conversations found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAMESPACE\tHOST\tBOT\tKEY")
			for _, k := range keys {
				ns, host, bot, ok := persistence.ParseKey(k)
				if !ok {
					ns, host, bot = "-", "-", "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ns, host, bot, k)
			}
			return w.Flush()
		})
	},
}

var stateInspectCmd = &cobra.Command{
	Use:   "inspect <key>",
	Short: "Print a persisted value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.KeyValueStore) error {
			data, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("error loading '%s': %w", args[0], err)
			}

			// Pretty print JSON
			var buf bytes.Buffer
			if err := json.Indent(&buf, data, "", "  "); err != nil {
				buf.Reset()
				buf.Write(data)
			}
			fmt.Fprintln(cmd.OutOrStdout(), buf.String())
			return nil
		})
	},
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Remove one or more persisted values",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return errors.New("requires at least one key, or --all")
		}

		return withStore(cmd, func(store ports.KeyValueStore) error {
			keys := args
			if all {
				var err error
				if keys, err = store.List(cmd.Context(), ""); err != nil {
					return fmt.Errorf("error listing keys: %w", err)
				}
			}

			var errs []error
			for _, k := range keys {
				if err := store.Remove(cmd.Context(), k); err != nil {
					errs = append(errs, fmt.Errorf("error removing '%s': %w", k, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed '%s'\n", k)
			}
			return errors.Join(errs...)
		})
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateLsCmd)
	stateCmd.AddCommand(stateInspectCmd)
	stateCmd.AddCommand(stateRmCmd)
	stateRmCmd.Flags().Bool("all", false, "Remove every persisted value")
}

// withStore opens the configured durable store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ports.KeyValueStore) error) error {
	cfg, logger, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	storage, err := cli.OpenStorage(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	store := storage.Wrapped()
	if store == nil {
		return errors.New("no durable store configured")
	}
	return fn(store)
}
