package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"golang.org/x/exp/slog"
)

// Recovery window limits
const (
	DefaultRecoveryWindow = 24 * time.Hour
	DefaultRecoveryLimit  = 500
	MaxRecoveryLimit      = 5000
)

// Compile-time check to ensure RecoveryServiceImpl implements RecoveryService
var _ RecoveryService = (*RecoveryServiceImpl)(nil)

// RecoveryServiceImpl is the operator repair path. It goes through the same
// state machine and materializer as the webhook and poller.
type RecoveryServiceImpl struct {
	store        repositories.Store
	transactions TransactionService
	materializer Materializer
	poller       *StatusPoller
	now          func() time.Time
}

// NewRecoveryService creates a new RecoveryServiceImpl
func NewRecoveryService(store repositories.Store, transactions TransactionService, materializer Materializer, poller *StatusPoller) *RecoveryServiceImpl {
	return &RecoveryServiceImpl{
		store:        store,
		transactions: transactions,
		materializer: materializer,
		poller:       poller,
		now:          time.Now,
	}
}

// normalizeFilter fills in the default window, statuses and limit. A lookup
// by reference gets no default window.
func (s *RecoveryServiceImpl) normalizeFilter(filter models.RecoveryFilter) (repositories.TransactionFilter, error) {
	since, until := filter.Since, filter.Until
	if filter.Reference == "" {
		if until.IsZero() {
			until = s.now()
		}
		if since.IsZero() {
			since = until.Add(-DefaultRecoveryWindow)
		}
	}
	if !since.IsZero() && !until.IsZero() && !since.Before(until) {
		return repositories.TransactionFilter{}, fmt.Errorf("%w: since must be before until", ErrInvalidFilter)
	}

	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []models.TransactionStatus{
			models.TransactionStatusPending,
			models.TransactionStatusProcessing,
			models.TransactionStatusCompleted,
		}
	}
	for _, st := range statuses {
		if !st.Valid() {
			return repositories.TransactionFilter{}, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, st)
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultRecoveryLimit
	}
	if limit > MaxRecoveryLimit {
		limit = MaxRecoveryLimit
	}

	return repositories.TransactionFilter{
		Since:     since.UTC(),
		Until:     until.UTC(),
		Statuses:  statuses,
		Reference: filter.Reference,
		Limit:     limit,
	}, nil
}

// Recover walks the transactions matching filter. Unconfirmed ones are checked
// against the provider regardless of age; completed ones with missing votes
// are reported and, with ForceMaterialize, filled in. DryRun never writes.
func (s *RecoveryServiceImpl) Recover(ctx context.Context, filter models.RecoveryFilter) (*models.RecoveryReport, error) {
	start := time.Now()
	report := &models.RecoveryReport{DryRun: filter.DryRun, Items: []models.RecoveryItem{}}

	query, err := s.normalizeFilter(filter)
	if err != nil {
		return report, err
	}

	needsProvider := false
	for _, st := range query.Statuses {
		if !st.IsTerminal() {
			needsProvider = true
		}
	}
	if needsProvider {
		if err := checkProvider(s.poller.provider); err != nil {
			slog.Error("Recovery aborted", "error", err)
			return report, err
		}
	}

	txns, err := s.store.Transactions().Find(ctx, query)
	if err != nil {
		return report, fmt.Errorf("failed to select transactions: %w", err)
	}

	slog.Info("Recovery started", "since", query.Since, "until", query.Until, "statuses", query.Statuses,
		"selected", len(txns), "forceMaterialize", filter.ForceMaterialize, "dryRun", filter.DryRun)

	for _, txn := range txns {
		if ctx.Err() != nil {
			break
		}
		item, err := s.recoverOne(ctx, txn, filter)
		if IsConfigurationError(err) {
			report.ExecutionTime = time.Since(start).Seconds()
			return report, err
		}
		report.Examined++
		report.VotesCreated += item.VotesCreated
		switch item.Action {
		case models.RecoveryActionCompleted:
			report.Completed++
		case models.RecoveryActionFailed:
			report.Failed++
		case models.RecoveryActionPending:
			report.StillPending++
		case models.RecoveryActionMaterialize:
			report.Materialized++
		case models.RecoveryActionPartial:
			report.Partial++
		case models.RecoveryActionError:
			report.Errors++
		}
		if item.Action != models.RecoveryActionNone {
			report.Items = append(report.Items, item)
		}
	}

	report.Success = ctx.Err() == nil
	report.ExecutionTime = time.Since(start).Seconds()
	slog.Info("Recovery finished", "examined", report.Examined, "completed", report.Completed,
		"failed", report.Failed, "materialized", report.Materialized, "partial", report.Partial,
		"votesCreated", report.VotesCreated, "errors", report.Errors, "dryRun", report.DryRun)
	return report, ctx.Err()
}

func (s *RecoveryServiceImpl) recoverOne(ctx context.Context, txn *models.Transaction, filter models.RecoveryFilter) (models.RecoveryItem, error) {
	item := models.RecoveryItem{
		Reference: txn.Reference,
		Status:    txn.Status,
		VoteCount: txn.VoteCount,
		Action:    models.RecoveryActionNone,
	}

	switch txn.Status {
	case models.TransactionStatusPending, models.TransactionStatusProcessing:
		if filter.DryRun {
			return s.previewProvider(ctx, txn, item)
		}
		action, created, err := s.poller.reconcile(ctx, txn)
		if err != nil {
			item.Action = models.RecoveryActionError
			item.Error = err.Error()
			return item, err
		}
		item.Action = action
		item.VotesCreated = created
		if action == models.RecoveryActionCompleted {
			item.Status = models.TransactionStatusCompleted
		} else if action == models.RecoveryActionFailed {
			item.Status = models.TransactionStatusFailed
		}
		return item, nil

	case models.TransactionStatusCompleted:
		found, err := s.store.Votes().CountByReference(ctx, txn.Reference)
		if err != nil {
			item.Action = models.RecoveryActionError
			item.Error = err.Error()
			return item, nil
		}
		item.VotesBefore = found
		if found == txn.VoteCount {
			return item, nil
		}
		if found > txn.VoteCount {
			// extra votes are never deleted automatically
			item.Action = models.RecoveryActionError
			item.Error = fmt.Sprintf("%d votes found for vote count %d", found, txn.VoteCount)
			slog.Warn("Over-materialized transaction needs manual review", "reference", txn.Reference,
				"voteCount", txn.VoteCount, "votesFound", found)
			return item, nil
		}
		if !filter.ForceMaterialize || filter.DryRun {
			item.Action = models.RecoveryActionPartial
			item.Error = fmt.Sprintf("%v: %d of %d votes", ErrMaterializationPartial, found, txn.VoteCount)
			return item, nil
		}

		created, err := s.materializer.Materialize(ctx, txn.Reference)
		if err != nil {
			item.Action = models.RecoveryActionError
			item.Error = err.Error()
			return item, nil
		}
		item.Action = models.RecoveryActionMaterialize
		item.VotesCreated = created
		return item, nil
	}

	return item, nil
}

// previewProvider reports what reconcile would do without writing anything
func (s *RecoveryServiceImpl) previewProvider(ctx context.Context, txn *models.Transaction, item models.RecoveryItem) (models.RecoveryItem, error) {
	status, err := queryProvider(ctx, s.poller.provider, s.poller.settings, txn.Reference)
	if err != nil {
		item.Action = models.RecoveryActionError
		item.Error = err.Error()
		if IsConfigurationError(err) {
			return item, err
		}
		return item, nil
	}
	switch MapProviderStatus(status.Status) {
	case models.ProviderOutcomePaid:
		item.Action = models.RecoveryActionCompleted
	case models.ProviderOutcomeFailed:
		item.Action = models.RecoveryActionFailed
	default:
		item.Action = models.RecoveryActionPending
	}
	return item, nil
}

// Audit lists completed transactions in the filter window whose vote rows
// don't add up to their vote count
func (s *RecoveryServiceImpl) Audit(ctx context.Context, filter models.RecoveryFilter) ([]models.VoteMismatch, error) {
	filter.Statuses = []models.TransactionStatus{models.TransactionStatusCompleted}
	query, err := s.normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	txns, err := s.store.Transactions().Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select transactions: %w", err)
	}

	mismatches := []models.VoteMismatch{}
	for _, txn := range txns {
		found, err := s.store.Votes().CountByReference(ctx, txn.Reference)
		if err != nil {
			return nil, fmt.Errorf("failed to count votes for %s: %w", txn.Reference, err)
		}
		if found == txn.VoteCount {
			continue
		}
		m := models.VoteMismatch{Reference: txn.Reference, VoteCount: txn.VoteCount, VotesFound: found}
		if txn.CompletedAt != nil {
			m.CompletedAt = *txn.CompletedAt
		}
		mismatches = append(mismatches, m)
	}

	slog.Info("Vote audit finished", "examined", len(txns), "mismatches", len(mismatches))
	return mismatches, nil
}

// IsRecoveryInputError reports whether err came from a bad filter
func IsRecoveryInputError(err error) bool {
	return errors.Is(err, ErrInvalidFilter)
}
