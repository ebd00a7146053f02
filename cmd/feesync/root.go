// feesync is the operator CLI: queue inspection, manual sync, conflict
// resolution and bundle export/import against the local store.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openbursar/feesync/internal/config"
	"github.com/openbursar/feesync/internal/db"
	"github.com/openbursar/feesync/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DataDir string
	JSON    bool
}

// NewRootCommand creates the root command for the feesync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "feesync",
		Short: "Offline-first sync tooling for the fee dashboard",
		Long: `feesync inspects and operates the local fee store: the outbox,
conflicts, sync passes and full data bundles. All commands work against
the local SQLite database; only sync and anchoring touch the network.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			if opts.DataDir == "" {
				opts.DataDir = cfg.DataDir
			}
			logging.Init(os.Stderr, logging.ParseLevel(cfg.LogLevel))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (default from DATA_DIR)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "machine-readable output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// openStore opens the local database, applies pending migrations and wraps
// it in a Store. The returned cleanup closes both.
func openStore(opts *RootOptions) (*db.Store, func(), error) {
	database, err := db.Open(opts.DataDir)
	if err != nil {
		return nil, nil, err
	}
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		database.Close()
		return nil, nil, err
	}
	store := db.NewStore(database.DB)
	cleanup := func() {
		store.Close()
		database.Close()
	}
	return store, cleanup, nil
}

// emit prints v as indented JSON when --json is set, otherwise through the
// supplied plain-text printer.
func emit(opts *RootOptions, v interface{}, plain func()) error {
	if opts.JSON {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	plain()
	return nil
}
