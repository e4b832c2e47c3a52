package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		runs       int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show validation metrics and recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, runs)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&runs, "runs", "n", 5, "number of recent sync runs to list")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string, runs int) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	m, err := a.store.Metrics(ctx)
	if err != nil {
		return err
	}
	counts, err := a.store.Counts(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOBS\t")
	fmt.Fprintf(w, "  Total\t%s\n", formatCount(m.TotalJobs))
	fmt.Fprintf(w, "  Missing NetSuite ID\t%s\n", formatCount(m.MissingNetsuite))
	fmt.Fprintf(w, "  Parts without line items\t%s\n", formatCount(m.PartsNoLineItems))
	fmt.Fprintf(w, "  Passing\t%s\n", formatCount(m.PassingJobs))
	fmt.Fprintf(w, "  Resolved flags\t%s\n", formatCount(m.ResolvedFlags))
	fmt.Fprintln(w, "ROWS\t")
	fmt.Fprintf(w, "  Line items\t%s\n", formatCount(counts.LineItems))
	fmt.Fprintf(w, "  Checklist parts\t%s\n", formatCount(counts.ChecklistParts))
	fmt.Fprintf(w, "  Notifications\t%s\n", formatCount(counts.Notifications))
	w.Flush()

	last, err := a.store.LastCompletedSync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	if last == nil || last.CompletedAt == nil {
		fmt.Fprintln(out, "Last sync: never")
	} else {
		fmt.Fprintf(out, "Last sync: %s (%s)\n", last.CompletedAt.Local().Format("2006-01-02 15:04:05"), last.Mode)
	}

	if runs <= 0 {
		return nil
	}
	logs, err := a.store.RecentSyncRuns(ctx, runs)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tMODE\tSTATUS\tPROCESSED\tSKIPPED\tFAILED\tFLAGS")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			l.StartedAt.Local().Format("2006-01-02 15:04"), l.Mode, l.Status,
			l.JobsProcessed, l.JobsSkipped, l.JobsFailed, l.FlagsCreated)
	}
	return w.Flush()
}
