package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func count(n int) string {
	return humanize.Comma(int64(n))
}

func seconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Millisecond).String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBatch(cmd *cobra.Command, r *models.BatchResult) error {
	w := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(w, r)
	}

	fmt.Fprintln(w, "Status poller batch")
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "  Checked:       %s\n", count(r.Checked))
	fmt.Fprintf(w, "  Completed:     %s\n", count(r.Completed))
	fmt.Fprintf(w, "  Failed:        %s\n", count(r.Failed))
	fmt.Fprintf(w, "  Still pending: %s\n", count(r.StillPending))
	fmt.Fprintf(w, "  Errors:        %s\n", count(r.Errors))
	fmt.Fprintf(w, "  Votes created: %s\n", count(r.VotesCreated))
	fmt.Fprintf(w, "  Took:          %s\n", seconds(r.ExecutionTime))
	if r.TimedOut {
		fmt.Fprintln(w, "  Run ceiling reached; the rest is left for the next run")
	}
	for _, e := range r.ErrorDetails {
		fmt.Fprintf(w, "  ! %s: %s\n", e.Reference, e.Error)
	}
	return nil
}

func printReport(cmd *cobra.Command, r *models.RecoveryReport) error {
	w := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(w, r)
	}

	title := "Recovery"
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 40))

	if len(r.Items) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REFERENCE\tSTATUS\tVOTES\tACTION\tNOTE")
		for _, item := range r.Items {
			fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n", item.Reference, item.Status,
				item.VotesBefore+item.VotesCreated, item.VoteCount, item.Action, item.Error)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Examined %s, completed %s, failed %s, still pending %s, materialized %s, partial %s, errors %s\n",
		count(r.Examined), count(r.Completed), count(r.Failed), count(r.StillPending),
		count(r.Materialized), count(r.Partial), count(r.Errors))
	fmt.Fprintf(w, "%s votes created in %s\n", count(r.VotesCreated), seconds(r.ExecutionTime))
	return nil
}

func printMismatches(cmd *cobra.Command, mismatches []models.VoteMismatch) error {
	w := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(w, mismatches)
	}
	if len(mismatches) == 0 {
		fmt.Fprintln(w, "No vote mismatches found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REFERENCE\tVOTE COUNT\tVOTES FOUND\tCOMPLETED")
	for _, m := range mismatches {
		completed := "-"
		if !m.CompletedAt.IsZero() {
			completed = humanize.Time(m.CompletedAt)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", m.Reference, m.VoteCount, m.VotesFound, completed)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%s mismatched transactions\n", count(len(mismatches)))
	return nil
}

func printStatement(cmd *cobra.Command, r *models.StatementResult) error {
	w := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(w, r)
	}

	title := "Settlement statement"
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "  Rows:            %s\n", count(r.TotalRows))
	fmt.Fprintf(w, "  Completed:       %s\n", count(r.Completed))
	fmt.Fprintf(w, "  Failed:          %s\n", count(r.Failed))
	fmt.Fprintf(w, "  Pending:         %s\n", count(r.Pending))
	fmt.Fprintf(w, "  Already settled: %s\n", count(r.AlreadySettled))
	fmt.Fprintf(w, "  Mismatched:      %s\n", count(r.Mismatched))
	fmt.Fprintf(w, "  Votes created:   %s\n", count(r.VotesCreated))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  ! %s\n", e)
	}
	return nil
}
