// Package cli implements the call-screen CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/call-screen/internal/config"
	"github.com/rcliao/call-screen/internal/store"
)

var (
	dbPath     string
	configPath string
	formatFlag string
	verbose    bool

	cfg config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "call-screen",
	Short: "Screen incoming calls against a caller reputation store",
	Long: "Decides whether each incoming call is allowed or blocked based on a local " +
		"reputation store, and keeps a live log of processed calls. SQLite-backed, single binary.",
	PersistentPreRunE: setup,
	SilenceUsage:      true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $CALL_SCREEN_DB or ~/.call-screen/callers.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CALL_SCREEN_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}
	if formatFlag != "json" && formatFlag != "text" {
		return fmt.Errorf("invalid --format %q (valid: json, text)", formatFlag)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func getDBPath() string {
	return cfg.DB
}

// openStore opens the configured database, creating and seeding it on
// first use.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	return store.NewOpener(getDBPath(), nil).Open(ctx)
}

func textOutput() bool {
	return formatFlag == "text"
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
