package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/services"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

// StatementImporter settles transactions from a provider settlement statement
// (the CSV export of the MoMo partner portal). Every row goes through the
// transaction state machine, so a statement can be replayed safely.
type StatementImporter struct {
	transactionService services.TransactionService
}

// NewStatementImporter creates a new StatementImporter
func NewStatementImporter(transactionService services.TransactionService) *StatementImporter {
	return &StatementImporter{transactionService: transactionService}
}

type columns struct {
	reference, status, financialID, msisdn, amount, reason int
}

// ImportFile imports the statement at filePath
func (i *StatementImporter) ImportFile(ctx context.Context, filePath string, dryRun bool) (*models.StatementResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return i.Import(ctx, file, dryRun)
}

// Import reads a statement from r. Row problems are collected in the result;
// only an unreadable header or a cancelled ctx return an error.
func (i *StatementImporter) Import(ctx context.Context, r io.Reader, dryRun bool) (*models.StatementResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := columns{
		reference:   findColumnIndex(header, []string{"External ID", "ExternalId", "Reference", "Transaction Reference"}),
		status:      findColumnIndex(header, []string{"Status", "Transaction Status"}),
		financialID: findColumnIndex(header, []string{"Financial Transaction ID", "FinancialTransactionId", "Provider Transaction ID", "Transaction ID"}),
		msisdn:      findColumnIndex(header, []string{"MSISDN", "Payer", "Phone Number"}),
		amount:      findColumnIndex(header, []string{"Amount", "Transaction Amount"}),
		reason:      findColumnIndex(header, []string{"Reason", "Failure Reason"}),
	}
	if cols.reference == -1 {
		return nil, errors.New("reference column not found in statement")
	}
	if cols.status == -1 {
		return nil, errors.New("status column not found in statement")
	}

	result := &models.StatementResult{DryRun: dryRun, Errors: []string{}}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		result.TotalRows++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", result.TotalRows, err))
			continue
		}

		if err := i.applyRow(ctx, cols, row, dryRun, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", result.TotalRows, err))
		}
	}

	slog.Info("Statement imported", "rows", result.TotalRows, "completed", result.Completed,
		"failed", result.Failed, "mismatched", result.Mismatched, "errors", len(result.Errors), "dryRun", dryRun)
	return result, nil
}

func (i *StatementImporter) applyRow(ctx context.Context, cols columns, row []string, dryRun bool, result *models.StatementResult) error {
	reference := field(row, cols.reference)
	status := field(row, cols.status)
	if reference == "" {
		return errors.New("no reference")
	}
	if status == "" {
		return fmt.Errorf("%s: no status", reference)
	}

	detail, err := i.transactionService.GetByReference(ctx, reference)
	if err != nil {
		return fmt.Errorf("%s: %w", reference, err)
	}
	txn := detail.Transaction

	if raw := field(row, cols.msisdn); raw != "" && cleanMSISDN(raw) != cleanMSISDN(txn.VoterPhone) {
		result.Mismatched++
		return fmt.Errorf("%s: payer %s does not match transaction", reference, raw)
	}
	if raw := field(row, cols.amount); raw != "" {
		amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return fmt.Errorf("%s: invalid amount %q", reference, raw)
		}
		if !amount.Equal(txn.Amount) {
			result.Mismatched++
			return fmt.Errorf("%s: amount %s does not match transaction amount %s", reference, amount, txn.Amount)
		}
	}

	outcome := services.MapProviderStatus(status)
	if dryRun {
		tally(result, outcome, !txn.Status.IsTerminal())
		return nil
	}

	var res *services.TransitionResult
	switch outcome {
	case models.ProviderOutcomePaid:
		res, err = i.transactionService.MarkCompleted(ctx, reference, field(row, cols.financialID))
	case models.ProviderOutcomeFailed:
		reason := field(row, cols.reason)
		if reason == "" {
			reason = "statement reported " + status
		}
		res, err = i.transactionService.MarkFailed(ctx, reference, reason)
	default:
		res, err = i.transactionService.MarkProcessing(ctx, reference, field(row, cols.financialID))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", reference, err)
	}

	result.VotesCreated += res.VotesCreated
	tally(result, outcome, res.Applied)

	want := models.TransactionStatusFailed
	if outcome == models.ProviderOutcomePaid {
		want = models.TransactionStatusCompleted
	}
	if outcome != models.ProviderOutcomePending && res.Transaction.Status != want {
		return fmt.Errorf("%s: statement reports %s but transaction is %s", reference, status, res.Transaction.Status)
	}
	return nil
}

func tally(result *models.StatementResult, outcome models.ProviderOutcome, applied bool) {
	switch {
	case outcome == models.ProviderOutcomePending:
		result.Pending++
	case !applied:
		result.AlreadySettled++
	case outcome == models.ProviderOutcomePaid:
		result.Completed++
	default:
		result.Failed++
	}
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// findColumnIndex finds the index of a column by possible names
func findColumnIndex(header []string, possibleNames []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, name := range possibleNames {
			if strings.ToLower(name) == h {
				return i
			}
		}
	}
	return -1
}

// cleanMSISDN strips formatting and normalizes local numbers to the 233 prefix
func cleanMSISDN(msisdn string) string {
	msisdn = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, msisdn)

	if len(msisdn) == 10 && msisdn[0] == '0' {
		msisdn = "233" + msisdn[1:]
	}
	return msisdn
}
