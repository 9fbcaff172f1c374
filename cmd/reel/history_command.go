package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded renders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlag)
			if err != nil {
				return err
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit, statuses...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if records == nil {
					records = []*history.Record{}
				}
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No renders recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistoryTable(records))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Comma-separated statuses to include")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <render-id>",
		Short: "Show one recorded render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("render %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDetails(recordDetails(rec)))
			return nil
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished renders older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d render(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of the oldest finished render to keep")
	return cmd
}

func (c *commandContext) openHistory() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg)
}

func parseStatuses(value string) ([]history.Status, error) {
	var statuses []history.Status
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		status, ok := history.ParseStatus(part)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func renderHistoryTable(records []*history.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			shortID(rec.ID),
			rec.CompositionID,
			rec.Codec,
			strconv.Itoa(rec.Frames()),
			string(rec.Status),
			formatElapsed(rec.ElapsedMs),
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			recordSummary(rec),
		})
	}
	return renderTable(
		[]string{"ID", "Composition", "Codec", "Frames", "Status", "Elapsed", "Created", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func recordSummary(rec *history.Record) string {
	switch {
	case rec.ErrorMessage != "":
		return truncate(rec.ErrorMessage, 60)
	case rec.OutputPath != "":
		return rec.OutputPath
	default:
		return ""
	}
}

func recordDetails(rec *history.Record) [][2]string {
	pairs := [][2]string{
		{"ID", rec.ID},
		{"Composition", rec.CompositionID},
		{"Codec", rec.Codec},
		{"Size", fmt.Sprintf("%dx%d @ %s fps", rec.Width, rec.Height, strconv.FormatFloat(rec.FPS, 'f', -1, 64))},
		{"Frames", fmt.Sprintf("%d-%d (%d)", rec.FrameStart, rec.FrameEnd, rec.Frames())},
		{"Concurrency", strconv.Itoa(rec.Concurrency)},
		{"Status", string(rec.Status)},
		{"Output", rec.OutputPath},
		{"Published", rec.PublishedTo},
		{"Error kind", rec.ErrorKind},
		{"Error", rec.ErrorMessage},
		{"Created", rec.CreatedAt.Local().Format(time.RFC3339)},
	}
	if rec.SizeBytes > 0 {
		pairs = append(pairs, [2]string{"Bytes", strconv.FormatInt(rec.SizeBytes, 10)})
	}
	if rec.StartedAt != nil {
		pairs = append(pairs, [2]string{"Started", rec.StartedAt.Local().Format(time.RFC3339)})
	}
	if rec.FinishedAt != nil {
		pairs = append(pairs, [2]string{"Finished", rec.FinishedAt.Local().Format(time.RFC3339)})
		pairs = append(pairs, [2]string{"Elapsed", formatElapsed(rec.ElapsedMs)})
	}
	return pairs
}

func formatElapsed(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
