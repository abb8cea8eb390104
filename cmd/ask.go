package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question about the indexed courses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, question string) error {
	logger := newLogger()

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.system.Query(ctx, question, "")
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range answer.Sources {
			if s.Link != "" {
				fmt.Printf("  - %s (%s)\n", s.Text, s.Link)
			} else {
				fmt.Printf("  - %s\n", s.Text)
			}
		}
	}
	return nil
}
