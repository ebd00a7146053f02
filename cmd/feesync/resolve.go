package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openbursar/feesync/internal/sync/conflict"
	"github.com/openbursar/feesync/internal/sync/outbox"
)

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts awaiting resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := store.ListUnresolvedConflicts()
			if err != nil {
				return err
			}
			return emit(opts, map[string]interface{}{"conflicts": records}, func() {
				if len(records) == 0 {
					fmt.Println("no unresolved conflicts")
					return
				}
				for _, rec := range records {
					fmt.Printf("%s  %s/%s  detected %s\n", rec.ID, rec.EntityType,
						rec.EntityID, time.Unix(rec.DetectedAt, 0).Format(time.RFC3339))
					fmt.Printf("  local:  %s\n", rec.LocalData)
					fmt.Printf("  server: %s\n", rec.ServerData)
				}
			})
		},
	}
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	var resolution, mergedFile string

	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Apply a resolution to a parked conflict",
		Long: `Resolve a conflict by keeping the local version, adopting the
server version, or supplying a merged payload:

  feesync resolve <id> --resolution keep-local
  feesync resolve <id> --resolution keep-server
  feesync resolve <id> --resolution merge --merged merged.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			var merged json.RawMessage
			if mergedFile != "" {
				data, err := os.ReadFile(mergedFile)
				if err != nil {
					return fmt.Errorf("failed to read merged payload: %w", err)
				}
				merged = json.RawMessage(data)
			}

			resolver := conflict.NewResolver(store, outbox.NewManager(store))
			if err := resolver.Resolve(args[0], resolution, merged); err != nil {
				return err
			}
			fmt.Printf("conflict %s resolved as %s\n", args[0], resolution)
			return nil
		},
	}

	cmd.Flags().StringVar(&resolution, "resolution", "", "keep-local, keep-server or merge")
	cmd.Flags().StringVar(&mergedFile, "merged", "", "path to merged payload JSON (merge only)")
	_ = cmd.MarkFlagRequired("resolution")
	return cmd
}
