package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"subflow/internal/api"
	"subflow/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			views := api.HistoryViews(entries)
			if jsonOutput {
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				state := v.State
				if v.Degraded {
					state += " (degraded)"
				}
				rows = append(rows, []string{
					v.ShortID,
					v.StartedAt,
					state,
					v.MediaPath,
					strconv.Itoa(v.Segments),
					v.Languages,
					yesNo(v.Cached),
					v.Duration,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Started", "State", "Media", "Segments", "Languages", "Cached", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := historyStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs from history\n", removed)
			return nil
		},
	})
	return cmd
}

func historyStore(ctx *commandContext) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := api.OpenHistory(cfg)
	if errors.Is(err, api.ErrHistoryNotConfigured) {
		return nil, errors.New("run history is not configured (set [paths] history_db in config.toml)")
	}
	return store, err
}
