package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sparklabs/sparkshell/internal/config"
	"github.com/sparklabs/sparkshell/internal/store"
	"github.com/sparklabs/sparkshell/internal/viewstate"
)

var (
	stateDBOverride string
	stateJSONOutput bool
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and reset persisted shell state",
	Long:  "Show or reset the persisted navigation state without running the gateway.",
}

func init() {
	stateCmd.PersistentFlags().StringVar(&stateDBOverride, "db", "",
		"State database path (overrides config and SPARKSHELL_DB_PATH)")
	stateCmd.PersistentFlags().BoolVar(&stateJSONOutput, "json", false,
		"Output in JSON format")

	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
	rootCmd.AddCommand(stateCmd)
}

// resolveStateStore opens the state database with optional --db override.
func resolveStateStore() (*store.SQLiteStore, error) {
	dbPath := stateDBOverride
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		dbPath = cfg.Storage.Path
	}
	return store.NewSQLiteStore(dbPath)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all persisted state keys",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

func runStateShow(cmd *cobra.Command, args []string) error {
	db, err := resolveStateStore()
	if err != nil {
		return err
	}
	defer db.Close()

	values, err := db.ListValues(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if stateJSONOutput {
		return printJSON(out, values)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, values[k])
	}
	return tw.Flush()
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset navigation state, keeping credentials",
	Args:  cobra.NoArgs,
	RunE:  runStateReset,
}

func runStateReset(cmd *cobra.Command, args []string) error {
	db, err := resolveStateStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	navKeys := []string{
		viewstate.KeyCurrentView,
		viewstate.KeyActiveTab,
		viewstate.KeySelectedMissionID,
		viewstate.KeyLastActiveTab,
		viewstate.KeyScrollPositions,
	}
	for _, key := range navKeys {
		if err := db.DeleteValue(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Navigation state reset (%d keys cleared)\n", len(navKeys))
	return nil
}
