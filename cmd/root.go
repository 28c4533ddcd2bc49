// Package cmd implements the answerdesk command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "answerdesk",
	Short: "answerdesk - retrieval-augmented helpdesk assistant",
	Long: `Answerdesk answers questions from a curated knowledge base of
question/answer pairs, searched by vector similarity. Questions the
knowledge base cannot answer fall back to live web search and are queued
for human review.

Run "answerdesk serve" to start the HTTP API.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
