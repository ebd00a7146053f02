package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openbursar/feesync/internal/anchor"
	"github.com/openbursar/feesync/internal/config"
	"github.com/openbursar/feesync/internal/connectivity"
	syncengine "github.com/openbursar/feesync/internal/sync"
	"github.com/openbursar/feesync/internal/sync/conflict"
	"github.com/openbursar/feesync/internal/sync/outbox"
)

// NewSyncCommand creates the sync command: one pass, right now.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			queue := outbox.NewManager(store)
			monitor := connectivity.NewMonitor(cfg.DebounceWindow)
			resolver := conflict.NewResolver(store, queue)
			remote := syncengine.NewHTTPRemote(cfg.RemoteBaseURL, cfg.RequestTimeout)

			var sink syncengine.AnchorNotifier
			if notifier := anchor.NewNotifier(cfg.AnchorURL, cfg.RequestTimeout); notifier != nil {
				sink = notifier
			}
			engine := syncengine.NewEngine(store, queue, remote, resolver, monitor, sink,
				syncengine.Options{GraceWindow: cfg.GraceWindow})

			if err := engine.Recover(); err != nil {
				return err
			}
			res, err := engine.Sync(cmd.Context())
			if err != nil {
				return err
			}
			return emit(opts, res, func() {
				fmt.Printf("synced %d, failed %d, conflicts %d, skipped %d in %s\n",
					res.Synced, res.Failed, res.Conflicts, res.Skipped, res.Duration)
			})
		},
	}
}
