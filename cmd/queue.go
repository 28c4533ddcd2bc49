package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var queueListLimit int

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the review queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending review-queue entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQueueList(cmd.Context())
	},
}

var queueResolveCmd = &cobra.Command{
	Use:   "resolve <id> <answer>",
	Short: "Resolve a queue entry and promote it into the knowledge base",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQueueResolve(cmd.Context(), args[0], args[1])
	},
}

func init() {
	queueListCmd.Flags().IntVar(&queueListLimit, "limit", 100, "maximum entries to list")
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueResolveCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueList(ctx context.Context) error {
	stores, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	entries, err := stores.queue.ListPending(ctx, queueListLimit)
	if err != nil {
		return fmt.Errorf("listing queue entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("Review queue is empty.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s  %s  %s\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.Question)
	}
	fmt.Printf("\n%d pending\n", len(entries))
	return nil
}

func runQueueResolve(ctx context.Context, rawID, answer string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid entry ID: %s", rawID)
	}

	stores, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	entry, err := stores.queue.Resolve(ctx, id)
	if err != nil {
		return fmt.Errorf("resolving queue entry: %w", err)
	}

	promoted, err := stores.knowledge.Add(ctx, entry.Question, answer)
	if err != nil {
		// The queue entry is already resolved; surface the failure so the
		// operator can add the pair manually.
		return fmt.Errorf("entry resolved but knowledge promotion failed: %w", err)
	}

	fmt.Printf("Resolved %s, promoted as %s\n", entry.ID, promoted.ID)
	return nil
}
