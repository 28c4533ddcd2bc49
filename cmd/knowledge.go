package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var knowledgeListLimit int

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the knowledge base",
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add <question> <answer>",
	Short: "Add a question/answer pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKnowledgeAdd(cmd.Context(), args[0], args[1])
	},
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKnowledgeList(cmd.Context())
	},
}

var knowledgeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a knowledge entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKnowledgeDelete(cmd.Context(), args[0])
	},
}

func init() {
	knowledgeListCmd.Flags().IntVar(&knowledgeListLimit, "limit", 100, "maximum entries to list")
	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeListCmd)
	knowledgeCmd.AddCommand(knowledgeDeleteCmd)
	rootCmd.AddCommand(knowledgeCmd)
}

func runKnowledgeAdd(ctx context.Context, question, answer string) error {
	stores, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	entry, err := stores.knowledge.Add(ctx, question, answer)
	if err != nil {
		return fmt.Errorf("adding knowledge entry: %w", err)
	}

	fmt.Printf("Added %s\n", entry.ID)
	return nil
}

func runKnowledgeList(ctx context.Context) error {
	stores, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	entries, err := stores.knowledge.List(ctx, knowledgeListLimit)
	if err != nil {
		return fmt.Errorf("listing knowledge entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No knowledge entries.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s  %s\n", e.ID, e.Question)
	}
	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}

func runKnowledgeDelete(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid entry ID: %s", rawID)
	}

	stores, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	if err := stores.knowledge.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting knowledge entry: %w", err)
	}

	fmt.Printf("Deleted %s\n", id)
	return nil
}
