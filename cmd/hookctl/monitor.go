package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// monitorCmd tails the human queue, printing newly pending decisions as
// they appear, from cli/monitor.rs. Decision-store JSONL files are
// append-only, so "tailing" them is the same poll-for-new-entries idea
// applied to the pending queue, which is what an operator actually watches
// in practice while triaging Tier 4 escalations.
func monitorCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch the human queue and print new pending decisions as they appear",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}

			seen := make(map[string]bool)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				pending, err := a.queue.List()
				if err != nil {
					return err
				}
				for _, pd := range pending {
					if seen[pd.ID] {
						continue
					}
					seen[pd.ID] = true
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] new pending decision\n", time.Now().Format(time.RFC3339))
					_ = enc.Encode(pd)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval")
	return cmd
}
