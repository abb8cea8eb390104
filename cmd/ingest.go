package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var flagIngestClear bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [folder]",
	Short: "Index course documents from a folder",
	Long: `Parses every course document in the folder and indexes it into the
semantic store. Courses that are already indexed are skipped; use --clear to
rebuild the index from scratch.

Without an argument the configured docs folder is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&flagIngestClear, "clear", false, "clear the index before ingesting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, args []string) error {
	logger := newLogger()

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.DocsDir
	if len(args) == 1 {
		dir = args[0]
	}

	courses, chunks, err := a.system.AddCourseFolder(ctx, dir, flagIngestClear)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}

	fmt.Printf("Indexed %d courses (%d chunks) from %s\n", courses, chunks, dir)
	return nil
}
