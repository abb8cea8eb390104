package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the indexed course corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context) error {
	logger := newLogger()

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.system.GetStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Courses: %d\n", stats.TotalCourses)
	for _, title := range stats.CourseTitles {
		fmt.Printf("  - %s\n", title)
	}
	return nil
}
