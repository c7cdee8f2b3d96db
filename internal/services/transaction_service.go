package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure TransactionServiceImpl implements TransactionService
var _ TransactionService = (*TransactionServiceImpl)(nil)

// legalSources lists, per target status, the statuses it may be entered from
var legalSources = map[models.TransactionStatus][]models.TransactionStatus{
	models.TransactionStatusProcessing: {models.TransactionStatusPending},
	models.TransactionStatusCompleted:  {models.TransactionStatusPending, models.TransactionStatusProcessing},
	models.TransactionStatusFailed:     {models.TransactionStatusPending, models.TransactionStatusProcessing},
}

// TransactionServiceImpl is the transaction state machine. Every transition is
// a compare-and-set in the store, so webhook, poller and recovery can race on
// the same reference and exactly one of them wins.
type TransactionServiceImpl struct {
	store        repositories.Store
	materializer *VoteMaterializer
	currency     string
	now          func() time.Time
}

// NewTransactionService creates a new TransactionServiceImpl
func NewTransactionService(store repositories.Store, materializer *VoteMaterializer, settings ReconcilerSettings) *TransactionServiceImpl {
	return &TransactionServiceImpl{
		store:        store,
		materializer: materializer,
		currency:     settings.withDefaults().Currency,
		now:          time.Now,
	}
}

// Create records a new pending transaction
func (s *TransactionServiceImpl) Create(ctx context.Context, req *models.CreateTransactionRequest) (*models.Transaction, error) {
	reference := strings.TrimSpace(req.Reference)
	switch {
	case reference == "":
		return nil, fmt.Errorf("%w: reference is required", ErrInvalidTransaction)
	case req.VoteCount < 1:
		return nil, fmt.Errorf("%w: vote count must be at least 1", ErrInvalidTransaction)
	case !req.Amount.IsPositive():
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	case req.NomineeID == "":
		return nil, fmt.Errorf("%w: nominee is required", ErrInvalidTransaction)
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}

	txn := &models.Transaction{
		Reference:  reference,
		EventID:    req.EventID,
		CategoryID: req.CategoryID,
		NomineeID:  req.NomineeID,
		VoterPhone: req.VoterPhone,
		VoteCount:  req.VoteCount,
		Amount:     req.Amount,
		Currency:   strings.ToUpper(currency),
		Status:     models.TransactionStatusPending,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.store.Transactions().Create(ctx, txn); err != nil {
		if errors.Is(err, repositories.ErrDuplicateReference) {
			return nil, ErrDuplicateReference
		}
		slog.Error("Failed to create transaction", "error", err, "reference", reference)
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("Transaction created", "reference", reference, "nomineeId", txn.NomineeID,
		"voteCount", txn.VoteCount, "amount", txn.Amount.String(), "msisdn", maskMsisdn(txn.VoterPhone))
	return txn, nil
}

// MarkProcessing moves a pending transaction to processing
func (s *TransactionServiceImpl) MarkProcessing(ctx context.Context, reference, providerTransactionID string) (*TransitionResult, error) {
	return s.transition(ctx, reference, models.TransactionStatusProcessing, repositories.TransitionUpdate{
		ProviderTransactionID: providerTransactionID,
	})
}

// MarkCompleted terminalizes the transaction as completed and materializes its
// votes before returning
func (s *TransactionServiceImpl) MarkCompleted(ctx context.Context, reference, providerTransactionID string) (*TransitionResult, error) {
	completedAt := s.now().UTC()
	return s.transition(ctx, reference, models.TransactionStatusCompleted, repositories.TransitionUpdate{
		ProviderTransactionID: providerTransactionID,
		CompletedAt:           &completedAt,
	})
}

// MarkFailed terminalizes the transaction as failed
func (s *TransactionServiceImpl) MarkFailed(ctx context.Context, reference, reason string) (*TransitionResult, error) {
	if reason == "" {
		reason = "payment failed"
	}
	return s.transition(ctx, reference, models.TransactionStatusFailed, repositories.TransitionUpdate{
		FailureReason: reason,
	})
}

// transition applies the guarded status change. A change into completed and
// the resulting votes commit as one unit. A call that loses the race, or that
// targets a terminal transaction, returns Applied=false and no error.
func (s *TransactionServiceImpl) transition(ctx context.Context, reference string, to models.TransactionStatus, update repositories.TransitionUpdate) (*TransitionResult, error) {
	from, ok := legalSources[to]
	if !ok {
		return nil, fmt.Errorf("%w: no transition into %s", ErrInvalidTransition, to)
	}

	var result *TransitionResult
	var err error
	// one retry: a duplicate-vote clash rolls the whole unit back, and the
	// second attempt observes whatever the other caller committed
	for attempt := 0; attempt < 2; attempt++ {
		result, err = s.transitionOnce(ctx, reference, from, to, update)
		if !errors.Is(err, repositories.ErrDuplicateVote) {
			break
		}
		slog.Warn("Vote clash while completing transaction, retrying", "reference", reference)
	}
	if err != nil {
		if !errors.Is(err, ErrTransactionNotFound) {
			slog.Error("Failed to transition transaction", "error", err, "reference", reference, "to", to)
		}
		return nil, err
	}

	if !result.Applied {
		slog.Info("Ignoring status change", "reference", reference, "to", to,
			"current", result.Transaction.Status, "reason", ErrInvalidTransition)
		return result, nil
	}

	slog.Info("Transaction status changed", "reference", reference, "status", to, "votesCreated", result.VotesCreated)
	return result, nil
}

func (s *TransactionServiceImpl) transitionOnce(ctx context.Context, reference string, from []models.TransactionStatus, to models.TransactionStatus, update repositories.TransitionUpdate) (*TransitionResult, error) {
	result := &TransitionResult{}
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Store) error {
		applied, err := tx.Transactions().Transition(ctx, reference, from, to, update)
		if err != nil {
			return fmt.Errorf("failed to update transaction status: %w", err)
		}
		result.Applied = applied

		if applied && to == models.TransactionStatusCompleted {
			created, err := s.materializer.materializeWithin(ctx, tx, reference)
			if err != nil {
				return err
			}
			result.VotesCreated = created
		}

		txn, err := tx.Transactions().FindByReference(ctx, reference)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("failed to reload transaction: %w", err)
		}
		result.Transaction = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetByReference returns a transaction together with its votes
func (s *TransactionServiceImpl) GetByReference(ctx context.Context, reference string) (*TransactionDetail, error) {
	txn, err := s.store.Transactions().FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	votes, err := s.store.Votes().FindByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}

	detail := &TransactionDetail{Transaction: txn, Votes: votes}
	if txn.Status == models.TransactionStatusCompleted {
		detail.VoteGap = txn.VoteCount - len(votes)
	}
	return detail, nil
}

// maskMsisdn keeps the last four digits of a phone number for logs
func maskMsisdn(msisdn string) string {
	if len(msisdn) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(msisdn)-4) + msisdn[len(msisdn)-4:]
}
