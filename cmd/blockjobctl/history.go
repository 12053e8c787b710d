package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/storage"
)

func newHistoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded job history",
	}
	cmd.AddCommand(
		newHistoryListCmd(c),
		newHistoryShowCmd(c),
		newHistoryStatsCmd(c),
		newHistoryPruneCmd(c),
	)
	return cmd
}

func newHistoryListCmd(c *cli) *cobra.Command {
	var filter storage.Filter
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			recs, total, err := store.SearchJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"total": total, "jobs": recs})
			}
			return printJobs(cmd.OutOrStdout(), recs, total)
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.Status, "status", "", "Only jobs in this status")
	f.StringVar(&filter.Type, "type", "", "Only jobs of this type")
	f.StringVar(&filter.JobID, "id", "", "Only jobs with this ID")
	f.DurationVar(&since, "since", 0, "Only jobs created within this duration")
	f.IntVar(&filter.Limit, "limit", storage.DefaultListLimit, "Maximum number of jobs")
	f.IntVar(&filter.Offset, "offset", 0, "Number of jobs to skip")
	return cmd
}

func printJobs(w io.Writer, recs []*core.JobRecord, total int64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tID\tTYPE\tSTATUS\tPROGRESS\tCREATED\tERROR")
	for _, r := range recs {
		id := r.JobID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			r.Handle, id, r.Type, r.Status, r.ProgressCur, r.ProgressEnd,
			r.CreatedAt.Format(time.RFC3339), r.LastError)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d jobs\n", len(recs), total)
	return err
}

func newHistoryShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <handle|job-id>",
		Short: "Show one job and its status transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store)

			rec, err := store.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				if rec, err = store.GetJobByID(ctx, args[0]); err != nil {
					return err
				}
			}
			if rec == nil {
				return fmt.Errorf("%w: %s", core.ErrJobNotFound, args[0])
			}
			trs, err := store.Transitions(ctx, rec.Handle)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, map[string]any{"job": rec, "transitions": trs})
			}
			fmt.Fprintf(out, "Handle:    %s\n", rec.Handle)
			fmt.Fprintf(out, "ID:        %s\n", rec.JobID)
			fmt.Fprintf(out, "Type:      %s\n", rec.Type)
			fmt.Fprintf(out, "Status:    %s\n", rec.Status)
			fmt.Fprintf(out, "Progress:  %d/%d\n", rec.ProgressCur, rec.ProgressEnd)
			fmt.Fprintf(out, "Cancelled: %t\n", rec.Cancelled)
			if rec.LastError != "" {
				fmt.Fprintf(out, "Error:     %s\n", rec.LastError)
			}
			fmt.Fprintln(out, "\nTransitions:")
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, tr := range trs {
				fmt.Fprintf(tw, "  %s\t%s -> %s\n", tr.At.Format(time.RFC3339Nano), tr.FromState, tr.ToState)
			}
			return tw.Flush()
		},
	}
}

func newHistoryStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count jobs by type and outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tACTIVE\tSUCCEEDED\tFAILED\tCANCELLED")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Type, s.Active, s.Succeeded, s.Failed, s.Cancelled)
			}
			return tw.Flush()
		},
	}
}

func newHistoryPruneCmd(c *cli) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete concluded jobs older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			n, err := store.PruneConcluded(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d jobs\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Minimum age of pruned jobs")
	return cmd
}
