package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seagrayinc/scopeselect/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent selection sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(a.cfg.HistoryPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions recorded")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.EndedAt.Local().Format(time.DateTime),
					e.Outcome,
					dash(e.DeviceID),
					dash(e.Model),
					e.Duration().Round(time.Millisecond).String(),
					e.SessionID,
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"ENDED", "OUTCOME", "DEVICE", "MODEL", "DURATION", "SESSION"}, rows)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show (0 for all)")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
