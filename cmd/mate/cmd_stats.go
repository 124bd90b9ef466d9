package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"deskmate/internal/usage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show account and local usage statistics",
	RunE:  runStats,
}

var statsLocal bool

func init() {
	statsCmd.Flags().BoolVar(&statsLocal, "local", false, "show only local usage, skip the backend")
}

func runStats(cmd *cobra.Command, args []string) error {
	if !statsLocal {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		stats, err := client.Stats(context.Background())
		if err != nil {
			return err
		}

		fmt.Println("account:")
		fmt.Printf("  documents:     %d\n", stats.DocumentCount)
		fmt.Printf("  chat messages: %d\n", stats.ChatMessageCount)
		fmt.Printf("  storage used:  %d bytes\n", stats.StorageUsedBytes)
		if !stats.LastActivity.IsZero() {
			fmt.Printf("  last activity: %s\n", stats.LastActivity.Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}

	t, err := usage.NewTracker(workspaceDir())
	if err != nil {
		return err
	}
	agg := t.Stats()

	fmt.Println("local usage:")
	fmt.Printf("  requests:       %d (%d failed)\n", agg.Total.Requests, agg.Total.Failures)
	fmt.Printf("  token refreshes:%d\n", agg.Total.Refreshes)
	fmt.Printf("  bytes uploaded: %d\n", agg.Total.BytesUploaded)
	fmt.Printf("  messages sent:  %d\n", agg.Total.Messages)

	if len(agg.ByOperation) > 0 {
		fmt.Println("  by operation:")
		ops := make([]string, 0, len(agg.ByOperation))
		for op := range agg.ByOperation {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			c := agg.ByOperation[op]
			fmt.Printf("    %-8s %d requests, %d failed\n", op, c.Requests, c.Failures)
		}
	}
	return nil
}
