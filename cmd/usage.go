package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shortmark/shortmark/internal/store"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show model usage and spend",
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().Duration("since", 0, "Only count requests within this window (0 = all time)")
}

func runUsage(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	dbPath, err := resolveDBPath(v)
	if err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	var cutoff time.Time
	if d := v.GetDuration("since"); d > 0 {
		cutoff = time.Now().Add(-d)
	}

	totals, err := s.Usage(cmd.Context(), cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("Requests:      %d\n", totals.Requests)
	fmt.Printf("Input tokens:  %d\n", totals.InputTokens)
	fmt.Printf("Output tokens: %d\n", totals.OutputTokens)
	fmt.Printf("Cost:          $%.4f\n", totals.CostUSD)
	return nil
}
