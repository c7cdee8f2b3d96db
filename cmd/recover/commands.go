package main

import (
	"fmt"
	"strings"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/handlers"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/importer"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/spf13/cobra"
)

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one status poller batch against the payment provider",
		Long: `Checks stale pending and processing transactions with the provider,
oldest first, and applies what it reports. Batch size is clamped to 1..100.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			batchSize := a.Poller.DefaultBatchSize()
			if cmd.Flags().Changed("batch-size") {
				batchSize, _ = cmd.Flags().GetInt("batch-size")
			}

			result, err := a.Poller.RunBatch(cmd.Context(), batchSize)
			if result != nil {
				if perr := printBatch(cmd, result); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().IntP("batch-size", "b", 0, "Transactions to check (default from config)")
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Recover transactions in a time window",
		Long: `Re-checks unconfirmed transactions in the window with the provider
regardless of age, and reports completed transactions with missing votes.
With --force-materialize the missing votes are created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}
			filter.ForceMaterialize, _ = cmd.Flags().GetBool("force-materialize")
			filter.DryRun, _ = cmd.Flags().GetBool("dry-run")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Recovery.Recover(cmd.Context(), filter)
			if report != nil {
				if perr := printReport(cmd, report); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	addFilterFlags(cmd)
	cmd.Flags().StringSlice("status", nil, "Statuses to include (pending, processing, completed)")
	cmd.Flags().Bool("force-materialize", false, "Create missing votes for completed transactions")
	cmd.Flags().Bool("dry-run", false, "Report what would change without writing")
	return cmd
}

func materializeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "materialize [reference...]",
		Short: "Fill in missing votes for completed transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			failed := 0
			for _, ref := range args {
				created, err := a.Materializer.Materialize(cmd.Context(), ref)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\terror: %v\n", ref, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s votes created\n", ref, count(created))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d references failed", failed, len(args))
			}
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List completed transactions whose votes don't match their vote count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			mismatches, err := a.Recovery.Audit(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printMismatches(cmd, mismatches)
		},
	}

	addFilterFlags(cmd)
	return cmd
}

func settleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle <statement.csv>",
		Short: "Apply a provider settlement statement",
		Long: `Reads a MoMo settlement statement export and applies each row's status.
Rows whose payer or amount disagree with the recorded transaction are skipped
and reported. Replaying a statement is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := importer.NewStatementImporter(a.Transactions).ImportFile(cmd.Context(), args[0], dryRun)
			if result != nil {
				if perr := printStatement(cmd, result); perr != nil {
					return perr
				}
			}
			if err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d statement rows could not be applied", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Report what would change without writing")
	return cmd
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("since", "", "Window start, RFC3339 or YYYY-MM-DD (default 24h before until)")
	cmd.Flags().String("until", "", "Window end, RFC3339 or YYYY-MM-DD (default now)")
	cmd.Flags().String("ref", "", "Limit to one transaction reference")
	cmd.Flags().IntP("limit", "n", 0, "Maximum transactions to examine (default 500)")
}

func filterFromFlags(cmd *cobra.Command) (models.RecoveryFilter, error) {
	var filter models.RecoveryFilter
	var err error

	if raw, _ := cmd.Flags().GetString("since"); raw != "" {
		if filter.Since, err = handlers.ParseTime(raw); err != nil {
			return filter, fmt.Errorf("invalid --since %q", raw)
		}
	}
	if raw, _ := cmd.Flags().GetString("until"); raw != "" {
		if filter.Until, err = handlers.ParseTime(raw); err != nil {
			return filter, fmt.Errorf("invalid --until %q", raw)
		}
	}
	filter.Reference, _ = cmd.Flags().GetString("ref")
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	if cmd.Flags().Lookup("status") != nil {
		statuses, _ := cmd.Flags().GetStringSlice("status")
		for _, s := range statuses {
			filter.Statuses = append(filter.Statuses, models.TransactionStatus(strings.ToLower(strings.TrimSpace(s))))
		}
	}
	return filter, nil
}
