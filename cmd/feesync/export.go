package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openbursar/feesync/internal/models"
)

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write all entity data to a checksummed bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			bundle, err := store.ExportBundle()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(bundle, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0o600); err != nil {
				return err
			}
			fmt.Printf("exported %d tables to %s (checksum %s)\n",
				len(bundle.Tables), args[0], bundle.Checksum)
			return nil
		},
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Replace all entity data from a bundle",
		Long: `Import verifies the bundle's checksum before touching the store,
then replaces every entity table in one transaction. The outbox is not
part of bundles and is left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var bundle models.Bundle
			if err := json.Unmarshal(data, &bundle); err != nil {
				return fmt.Errorf("bundle is not valid JSON: %w", err)
			}
			if err := store.ImportBundle(&bundle); err != nil {
				return err
			}
			fmt.Printf("imported %d tables from %s\n", len(bundle.Tables), args[0])
			return nil
		},
	}
}
