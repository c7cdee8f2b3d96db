package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Compile-time check to ensure StatusPoller implements BatchRunner
var _ BatchRunner = (*StatusPoller)(nil)

// StatusPoller chases transactions whose confirmation never arrived
type StatusPoller struct {
	store        repositories.Store
	transactions TransactionService
	provider     PaymentStatusProvider
	settings     ReconcilerSettings
	now          func() time.Time
}

// NewStatusPoller creates a new StatusPoller
func NewStatusPoller(store repositories.Store, transactions TransactionService, provider PaymentStatusProvider, settings ReconcilerSettings) *StatusPoller {
	return &StatusPoller{
		store:        store,
		transactions: transactions,
		provider:     provider,
		settings:     settings.withDefaults(),
		now:          time.Now,
	}
}

// DefaultBatchSize is used when a caller does not name a batch size
func (p *StatusPoller) DefaultBatchSize() int {
	return p.settings.DefaultBatchSize
}

// RunBatch checks up to batchSize stale unconfirmed transactions against the
// provider, oldest first. batchSize is clamped to [1, 100]. Per-item failures
// are counted in the result; only a ConfigError aborts the batch, and it does
// so before anything is read or written.
func (p *StatusPoller) RunBatch(ctx context.Context, batchSize int) (*models.BatchResult, error) {
	start := time.Now()
	result := &models.BatchResult{}

	if err := checkProvider(p.provider); err != nil {
		slog.Error("Status poller aborted", "error", err)
		return result, err
	}

	runCtx, cancel := context.WithTimeout(ctx, p.settings.RunTimeout)
	defer cancel()

	size := ClampBatchSize(batchSize)
	cutoff := p.now().Add(-p.settings.StaleAfter)
	txns, err := p.store.Transactions().FindStale(runCtx, cutoff, size)
	if err != nil {
		result.ExecutionTime = time.Since(start).Seconds()
		return result, fmt.Errorf("failed to select stale transactions: %w", err)
	}

	slog.Info("Status poller batch started", "batchSize", size, "selected", len(txns), "cutoff", cutoff)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.settings.Concurrency)

	for _, txn := range txns {
		if gctx.Err() != nil {
			break
		}
		txn := txn
		g.Go(func() error {
			action, created, err := p.reconcile(gctx, txn)
			if IsConfigurationError(err) {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			result.Checked++
			result.VotesCreated += created
			switch action {
			case models.RecoveryActionCompleted:
				result.Completed++
			case models.RecoveryActionFailed:
				result.Failed++
			case models.RecoveryActionPending:
				result.StillPending++
			default:
				result.Errors++
				if err != nil {
					result.ErrorDetails = append(result.ErrorDetails, models.ItemError{Reference: txn.Reference, Error: err.Error()})
				}
			}
			return nil
		})
	}

	waitErr := g.Wait()
	result.ExecutionTime = time.Since(start).Seconds()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.TimedOut = true
		slog.Warn("Status poller hit its run ceiling; remaining work is left for the next run",
			"runTimeout", p.settings.RunTimeout, "checked", result.Checked, "selected", len(txns))
	}
	if waitErr != nil {
		slog.Error("Status poller aborted", "error", waitErr)
		return result, waitErr
	}

	result.Success = true
	slog.Info("Status poller batch finished", "checked", result.Checked, "completed", result.Completed,
		"failed", result.Failed, "stillPending", result.StillPending, "errors", result.Errors,
		"votesCreated", result.VotesCreated, "executionTime", result.ExecutionTime)
	return result, nil
}

// reconcile queries the provider for one transaction and applies the outcome
// through the state machine. The action reflects the transaction's status
// after the call, so a race lost to a webhook still reports what happened.
func (p *StatusPoller) reconcile(ctx context.Context, txn *models.Transaction) (models.RecoveryAction, int, error) {
	status, err := queryProvider(ctx, p.provider, p.settings, txn.Reference)
	if err != nil {
		if !IsConfigurationError(err) {
			slog.Warn("Provider status query failed", "reference", txn.Reference, "error", err)
		}
		return models.RecoveryActionError, 0, err
	}

	var res *TransitionResult
	switch MapProviderStatus(status.Status) {
	case models.ProviderOutcomePaid:
		res, err = p.transactions.MarkCompleted(ctx, txn.Reference, status.FinancialTransactionID)
	case models.ProviderOutcomeFailed:
		reason := status.Reason()
		if reason == "" {
			reason = "provider reported " + status.Status
		}
		res, err = p.transactions.MarkFailed(ctx, txn.Reference, reason)
	default:
		return models.RecoveryActionPending, 0, nil
	}
	if err != nil {
		return models.RecoveryActionError, 0, err
	}
	return actionFor(res.Transaction.Status), res.VotesCreated, nil
}

func actionFor(status models.TransactionStatus) models.RecoveryAction {
	switch status {
	case models.TransactionStatusCompleted:
		return models.RecoveryActionCompleted
	case models.TransactionStatusFailed:
		return models.RecoveryActionFailed
	default:
		return models.RecoveryActionPending
	}
}
