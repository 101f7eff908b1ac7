package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subclean/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				entries, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable("",
					[]string{"Run", "Started", "Duration", "Result", "Exit", "Source", "Frames", "Stage 1", "Stage 2"},
					historyRows(entries),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				entry, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				printHistoryEntry(cmd.OutOrStdout(), *entry)
				return nil
			})
		},
	}
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		return errors.New("configuration unavailable")
	}
	store, err := history.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func historyRows(entries []history.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			shortRunID(e.RunID),
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Duration().Round(time.Second).String(),
			displayLabel(e.Classification),
			strconv.Itoa(e.ExitCode),
			displayLabel(e.Strategy),
			strconv.Itoa(e.Frames),
			displayLabel(e.Stage1Status),
			displayLabel(e.Stage2Status),
		})
	}
	return rows
}

func printHistoryEntry(out io.Writer, e history.Entry) {
	rows := [][]string{
		{"Run", e.RunID},
		{"Started", e.StartedAt.Local().Format(time.RFC3339)},
		{"Finished", e.FinishedAt.Local().Format(time.RFC3339)},
		{"Duration", e.Duration().Round(time.Millisecond).String()},
		{"Result", fmt.Sprintf("%s (exit %d)", e.Classification, e.ExitCode)},
		{"Compute", dash(e.Compute)},
		{"Source", dash(e.Strategy)},
		{"Frames", strconv.Itoa(e.Frames)},
		{"Stage 1", dash(e.Stage1Status)},
		{"Stage 2", dash(e.Stage2Status)},
		{"Container", dash(e.Container)},
		{"Uploaded", dash(e.ContainerURL)},
		{"Warnings", strconv.Itoa(e.Warnings)},
	}
	if e.ErrorMessage != "" {
		rows = append(rows, []string{"Error", e.ErrorMessage})
	}
	fmt.Fprintln(out, renderTable("", []string{"Field", "Value"}, rows, nil))
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
