package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openbursar/feesync/internal/sync/outbox"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the outbox",
	}
	cmd.AddCommand(newQueueListCommand(opts))
	cmd.AddCommand(newQueueRetryCommand(opts))
	cmd.AddCommand(newQueueDiscardCommand(opts))
	return cmd
}

func newQueueListCommand(opts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := store.ListQueueItems(status)
			if err != nil {
				return err
			}

			return emit(opts, map[string]interface{}{"items": items}, func() {
				if len(items) == 0 {
					fmt.Println("queue is empty")
					return
				}
				fmt.Printf("%-6s %-18s %-8s %-10s %-8s %s\n",
					"SEQ", "ENTITY", "OP", "STATUS", "ATTEMPTS", "ENQUEUED")
				for _, item := range items {
					fmt.Printf("%-6d %-18s %-8s %-10s %d/%-6d %s\n",
						item.Seq, item.EntityType, item.Operation, item.Status,
						item.Attempts, item.MaxAttempts,
						time.Unix(item.EnqueuedAt, 0).Format(time.RFC3339))
				}
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|syncing|synced|failed|conflict)")
	return cmd
}

func newQueueRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset failed items for another round of attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := outbox.NewManager(store).RetryAllFailed()
			if err != nil {
				return err
			}
			fmt.Printf("requeued %d failed items\n", n)
			return nil
		},
	}
}

func newQueueDiscardCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <item-id>",
		Short: "Drop a queue item without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			item, err := store.GetQueueItem(args[0])
			if err != nil {
				return fmt.Errorf("queue item not found: %w", err)
			}
			if rec, err := store.GetConflictByQueueItem(item.ID); err == nil {
				return fmt.Errorf("item has unresolved conflict %s, resolve it instead", rec.ID)
			}
			if err := store.DiscardItem(item.ID); err != nil {
				return err
			}
			fmt.Printf("discarded item %s (%s %s)\n", item.ID, item.Operation, item.EntityType)
			return nil
		},
	}
}
