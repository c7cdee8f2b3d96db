package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories/sqlstore"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/testutil"
	"github.com/ArowuTest/mtn-vote-reconciler/pkg/mtnapi"
	"github.com/shopspring/decimal"
)

func testSettings() ReconcilerSettings {
	s := DefaultReconcilerSettings()
	s.RetryBackoff = time.Millisecond
	s.ProviderTimeout = 2 * time.Second
	s.RunTimeout = 10 * time.Second
	return s
}

func newTestPoller(t *testing.T, settings ReconcilerSettings) (*StatusPoller, *sqlstore.Store, *testutil.FakeProvider) {
	t.Helper()
	store := testutil.SetupTestStore(t)
	provider := testutil.NewFakeProvider()
	materializer := NewVoteMaterializer(store, settings)
	transactions := NewTransactionService(store, materializer, settings)
	return NewStatusPoller(store, transactions, provider, settings), store, provider
}

func TestClampBatchSize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{20, 20},
		{100, 100},
		{150, 100},
	}
	for _, tt := range tests {
		if got := ClampBatchSize(tt.in); got != tt.want {
			t.Errorf("ClampBatchSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMapProviderStatus(t *testing.T) {
	tests := map[string]models.ProviderOutcome{
		"SUCCESSFUL": models.ProviderOutcomePaid,
		"successful": models.ProviderOutcomePaid,
		"PAID":       models.ProviderOutcomePaid,
		"FAILED":     models.ProviderOutcomeFailed,
		"REJECTED":   models.ProviderOutcomeFailed,
		"TIMEOUT":    models.ProviderOutcomeFailed,
		"PENDING":    models.ProviderOutcomePending,
		"NOT_FOUND":  models.ProviderOutcomePending,
		"":           models.ProviderOutcomePending,
		"WEIRD":      models.ProviderOutcomePending,
	}
	for raw, want := range tests {
		if got := MapProviderStatus(raw); got != want {
			t.Errorf("MapProviderStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestRunBatchEndToEnd(t *testing.T) {
	poller, store, provider := newTestPoller(t, testSettings())
	ctx := context.Background()

	testutil.CreateTestTransaction(t, store, "TXN1", 4, "4.00")
	provider.SetStatus("TXN1", mtnapi.StatusSuccessful)

	result, err := poller.RunBatch(ctx, 20)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if !result.Success || result.Checked != 1 || result.Completed != 1 || result.VotesCreated != 4 {
		t.Fatalf("Unexpected batch result: %+v", result)
	}

	votes, err := store.Votes().FindByReference(ctx, "TXN1")
	if err != nil {
		t.Fatalf("Failed to load votes: %v", err)
	}
	if len(votes) != 4 {
		t.Fatalf("Expected 4 votes, got %d", len(votes))
	}
	for _, v := range votes {
		if !v.Amount.Equal(decimal.RequireFromString("1.00")) {
			t.Errorf("Expected vote amount 1.00, got %s", v.Amount)
		}
	}
	txn := testutil.GetTransaction(t, store, "TXN1")
	if txn.Status != models.TransactionStatusCompleted || txn.ProviderTransactionID != "fin-TXN1" {
		t.Errorf("Unexpected transaction after batch: %+v", txn)
	}

	// A second pass no longer selects the completed transaction
	result, err = poller.RunBatch(ctx, 20)
	if err != nil {
		t.Fatalf("Second RunBatch failed: %v", err)
	}
	if result.Checked != 0 || result.VotesCreated != 0 {
		t.Errorf("Expected second pass to change nothing, got %+v", result)
	}
	if n := testutil.CountVotes(t, store, "TXN1"); n != 4 {
		t.Errorf("Expected 4 votes after second pass, got %d", n)
	}
	if calls := provider.Calls("TXN1"); calls != 1 {
		t.Errorf("Expected provider to be queried once, got %d", calls)
	}
}

func TestRunBatchOutcomes(t *testing.T) {
	poller, store, provider := newTestPoller(t, testSettings())

	testutil.CreateTestTransaction(t, store, "PAID-1", 2, "2.00")
	testutil.CreateTestTransaction(t, store, "FAIL-1", 1, "1.00", testutil.WithStatus(models.TransactionStatusProcessing))
	testutil.CreateTestTransaction(t, store, "WAIT-1", 1, "1.00")
	testutil.CreateTestTransaction(t, store, "GONE-1", 1, "1.00")
	testutil.CreateTestTransaction(t, store, "ERR-1", 1, "1.00")

	provider.SetStatus("PAID-1", mtnapi.StatusSuccessful)
	provider.SetStatus("FAIL-1", mtnapi.StatusFailed)
	provider.SetReason("FAIL-1", "PAYER_LIMIT_REACHED")
	provider.SetStatus("WAIT-1", mtnapi.StatusPending)
	provider.SetStatus("GONE-1", mtnapi.StatusNotFound)
	provider.FailNext("ERR-1", errors.New("unexpected response"))

	result, err := poller.RunBatch(context.Background(), 20)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	if result.Checked != 5 {
		t.Errorf("Expected 5 checked, got %d", result.Checked)
	}
	if result.Completed != 1 || result.Failed != 1 || result.StillPending != 2 || result.Errors != 1 {
		t.Errorf("Unexpected counts: %+v", result)
	}
	if len(result.ErrorDetails) != 1 || result.ErrorDetails[0].Reference != "ERR-1" {
		t.Errorf("Expected error detail for ERR-1, got %+v", result.ErrorDetails)
	}

	if txn := testutil.GetTransaction(t, store, "FAIL-1"); txn.Status != models.TransactionStatusFailed || txn.FailureReason != "PAYER_LIMIT_REACHED" {
		t.Errorf("Unexpected failed transaction: %+v", txn)
	}
	for _, ref := range []string{"WAIT-1", "GONE-1", "ERR-1"} {
		if txn := testutil.GetTransaction(t, store, ref); txn.Status != models.TransactionStatusPending {
			t.Errorf("Expected %s to stay pending, got %s", ref, txn.Status)
		}
	}
}

func TestRunBatchBoundsSelection(t *testing.T) {
	poller, store, provider := newTestPoller(t, testSettings())

	for i := 0; i < 150; i++ {
		ref := fmt.Sprintf("BULK-%03d", i)
		testutil.CreateTestTransaction(t, store, ref, 1, "1.00", testutil.CreatedAgo(time.Duration(200-i)*time.Minute))
	}

	result, err := poller.RunBatch(context.Background(), 150)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.Checked != 100 {
		t.Errorf("Expected batch clamped to 100, got %d checked", result.Checked)
	}

	result, err = poller.RunBatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.Checked != 1 {
		t.Errorf("Expected batch size 0 to be clamped to 1, got %d checked", result.Checked)
	}
	if provider.Calls("BULK-000") != 2 {
		t.Errorf("Expected oldest transaction to be checked in both runs, got %d calls", provider.Calls("BULK-000"))
	}
	if provider.Calls("BULK-149") != 0 {
		t.Errorf("Expected newest transaction to be outside both batches")
	}
}

func TestRunBatchSkipsFreshTransactions(t *testing.T) {
	poller, store, provider := newTestPoller(t, testSettings())

	testutil.CreateTestTransaction(t, store, "FRESH", 1, "1.00", testutil.CreatedAgo(time.Minute))
	testutil.CreateTestTransaction(t, store, "STALE", 1, "1.00", testutil.CreatedAgo(time.Hour))

	result, err := poller.RunBatch(context.Background(), 20)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.Checked != 1 {
		t.Errorf("Expected only the stale transaction to be checked, got %d", result.Checked)
	}
	if provider.Calls("FRESH") != 0 {
		t.Error("Expected fresh transaction to be left alone")
	}
}

func TestRunBatchRetriesUnavailableProvider(t *testing.T) {
	poller, store, provider := newTestPoller(t, testSettings())

	testutil.CreateTestTransaction(t, store, "FLAKY", 1, "1.00")
	provider.SetStatus("FLAKY", mtnapi.StatusSuccessful)
	provider.FailNext("FLAKY", fmt.Errorf("%w: status endpoint returned 503", mtnapi.ErrUnavailable))

	result, err := poller.RunBatch(context.Background(), 20)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.Completed != 1 {
		t.Errorf("Expected retry to complete the transaction, got %+v", result)
	}
	if calls := provider.Calls("FLAKY"); calls != 2 {
		t.Errorf("Expected 2 provider calls, got %d", calls)
	}
}

func TestRunBatchGivesUpAfterRetryBudget(t *testing.T) {
	settings := testSettings()
	settings.ProviderRetries = 1
	poller, store, provider := newTestPoller(t, settings)

	testutil.CreateTestTransaction(t, store, "DOWN", 1, "1.00")
	provider.FailNext("DOWN", mtnapi.ErrUnavailable, mtnapi.ErrUnavailable, mtnapi.ErrUnavailable)

	result, err := poller.RunBatch(context.Background(), 20)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.Errors != 1 || result.Checked != 1 {
		t.Errorf("Expected one errored item, got %+v", result)
	}
	if calls := provider.Calls("DOWN"); calls != 2 {
		t.Errorf("Expected 2 provider calls, got %d", calls)
	}
	if txn := testutil.GetTransaction(t, store, "DOWN"); txn.Status != models.TransactionStatusPending {
		t.Errorf("Expected transaction unchanged, got %s", txn.Status)
	}
}

func TestRunBatchConfigErrorAbortsBeforeWork(t *testing.T) {
	poller, store, provider := newTestPoller(t, testSettings())

	testutil.CreateTestTransaction(t, store, "CFG-1", 1, "1.00")
	provider.SetStatus("CFG-1", mtnapi.StatusSuccessful)
	provider.Invalid = fmt.Errorf("%w: API key", mtnapi.ErrMissingCredentials)

	result, err := poller.RunBatch(context.Background(), 20)
	if !IsConfigurationError(err) {
		t.Fatalf("Expected a configuration error, got %v", err)
	}
	if result.Success {
		t.Error("Expected Success=false on abort")
	}
	if provider.TotalCalls() != 0 {
		t.Errorf("Expected no provider calls, got %d", provider.TotalCalls())
	}
	if txn := testutil.GetTransaction(t, store, "CFG-1"); txn.Status != models.TransactionStatusPending {
		t.Errorf("Expected transaction untouched, got %s", txn.Status)
	}
}

func TestRunBatchCredentialRejectionIsConfigError(t *testing.T) {
	poller, store, provider := newTestPoller(t, testSettings())

	testutil.CreateTestTransaction(t, store, "CRED-1", 1, "1.00")
	provider.FailNext("CRED-1", mtnapi.ErrMissingCredentials)

	_, err := poller.RunBatch(context.Background(), 20)
	if !IsConfigurationError(err) {
		t.Fatalf("Expected a configuration error, got %v", err)
	}
	if calls := provider.Calls("CRED-1"); calls != 1 {
		t.Errorf("Expected credential errors not to be retried, got %d calls", calls)
	}
}

func TestRunBatchTimesOut(t *testing.T) {
	settings := testSettings()
	settings.RunTimeout = 100 * time.Millisecond
	settings.ProviderRetries = 0
	poller, store, provider := newTestPoller(t, settings)
	provider.Delay = 2 * time.Second

	testutil.CreateTestTransaction(t, store, "SLOW-1", 1, "1.00")
	provider.SetStatus("SLOW-1", mtnapi.StatusSuccessful)

	start := time.Now()
	result, err := poller.RunBatch(context.Background(), 20)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected batch to stop at its ceiling, took %s", elapsed)
	}
	if !result.TimedOut {
		t.Errorf("Expected TimedOut, got %+v", result)
	}
	if result.Completed != 0 {
		t.Errorf("Expected nothing completed, got %d", result.Completed)
	}
	if txn := testutil.GetTransaction(t, store, "SLOW-1"); txn.Status != models.TransactionStatusPending {
		t.Errorf("Expected transaction left for the next run, got %s", txn.Status)
	}
}

func TestRunBatchLosesRaceToWebhook(t *testing.T) {
	poller, store, provider := newTestPoller(t, testSettings())

	testutil.CreateTestTransaction(t, store, "RACE-1", 2, "2.00")
	provider.SetStatus("RACE-1", mtnapi.StatusFailed)

	// Webhook completes the transaction between selection and the poller's update
	txn := testutil.GetTransaction(t, store, "RACE-1")
	if _, err := poller.transactions.MarkCompleted(context.Background(), "RACE-1", "hook"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	action, created, err := poller.reconcile(context.Background(), txn)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if action != models.RecoveryActionCompleted || created != 0 {
		t.Errorf("Expected final status completed with no new votes, got %s/%d", action, created)
	}
	if n := testutil.CountVotes(t, store, "RACE-1"); n != 2 {
		t.Errorf("Expected 2 votes, got %d", n)
	}
}
