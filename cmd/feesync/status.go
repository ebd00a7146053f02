package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openbursar/feesync/internal/db"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(opts.DataDir)
			if err != nil {
				return err
			}
			defer database.Close()

			migrator := db.NewMigrator(database.DB)
			if err := migrator.Up(); err != nil {
				return err
			}
			version, err := migrator.CurrentVersion()
			if err != nil {
				return err
			}
			fmt.Printf("schema at version %d\n", version)
			return nil
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show outbox and conflict state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.QueueStats()
			if err != nil {
				return err
			}
			conflicts, err := store.UnresolvedConflictCount()
			if err != nil {
				return err
			}

			out := map[string]interface{}{
				"queue":                stats,
				"unresolved_conflicts": conflicts,
			}
			return emit(opts, out, func() {
				fmt.Println("Outbox:")
				for _, status := range []string{"pending", "syncing", "failed", "conflict", "synced"} {
					fmt.Printf("  %-10s %d\n", status, stats[status])
				}
				fmt.Printf("Unresolved conflicts: %d\n", conflicts)
			})
		},
	}
}
