package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories/sqlstore"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/testutil"
	"github.com/ArowuTest/mtn-vote-reconciler/pkg/mtnapi"
)

func newTestRecovery(t *testing.T) (*RecoveryServiceImpl, *sqlstore.Store, *testutil.FakeProvider) {
	t.Helper()
	poller, store, provider := newTestPoller(t, testSettings())
	return NewRecoveryService(store, poller.transactions, NewVoteMaterializer(store, testSettings()), poller), store, provider
}

func findItem(report *models.RecoveryReport, reference string) *models.RecoveryItem {
	for i := range report.Items {
		if report.Items[i].Reference == reference {
			return &report.Items[i]
		}
	}
	return nil
}

func TestRecoverGapFill(t *testing.T) {
	recovery, store, _ := newTestRecovery(t)

	txn := testutil.CreateTestTransaction(t, store, "GAP-5", 5, "5.00", testutil.WithStatus(models.TransactionStatusCompleted))
	testutil.InsertTestVotes(t, store, txn, 1, 2)

	report, err := recovery.Recover(context.Background(), models.RecoveryFilter{ForceMaterialize: true})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report.Materialized != 1 || report.VotesCreated != 3 {
		t.Errorf("Unexpected report: %+v", report)
	}
	item := findItem(report, "GAP-5")
	if item == nil || item.VotesBefore != 2 || item.VotesCreated != 3 || item.Action != models.RecoveryActionMaterialize {
		t.Errorf("Unexpected item: %+v", item)
	}
	if n := testutil.CountVotes(t, store, "GAP-5"); n != 5 {
		t.Errorf("Expected 5 votes, got %d", n)
	}
}

func TestRecoverReportsPartialWithoutForce(t *testing.T) {
	recovery, store, _ := newTestRecovery(t)

	txn := testutil.CreateTestTransaction(t, store, "GAP-3", 3, "3.00", testutil.WithStatus(models.TransactionStatusCompleted))
	testutil.InsertTestVotes(t, store, txn, 1)
	full := testutil.CreateTestTransaction(t, store, "FULL-1", 1, "1.00", testutil.WithStatus(models.TransactionStatusCompleted))
	testutil.InsertTestVotes(t, store, full, 1)

	report, err := recovery.Recover(context.Background(), models.RecoveryFilter{})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report.Partial != 1 || report.Examined != 2 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if findItem(report, "FULL-1") != nil {
		t.Error("Expected consistent transaction to be left out of the items")
	}
	if n := testutil.CountVotes(t, store, "GAP-3"); n != 1 {
		t.Errorf("Expected votes unchanged without force, got %d", n)
	}
}

func TestRecoverSettlesUnconfirmedRegardlessOfAge(t *testing.T) {
	recovery, store, provider := newTestRecovery(t)

	testutil.CreateTestTransaction(t, store, "NEW-PAID", 2, "2.00", testutil.CreatedAgo(30*time.Second))
	testutil.CreateTestTransaction(t, store, "NEW-FAIL", 1, "1.00", testutil.CreatedAgo(30*time.Second))
	provider.SetStatus("NEW-PAID", mtnapi.StatusSuccessful)
	provider.SetStatus("NEW-FAIL", mtnapi.StatusFailed)

	report, err := recovery.Recover(context.Background(), models.RecoveryFilter{})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report.Completed != 1 || report.Failed != 1 || report.VotesCreated != 2 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if n := testutil.CountVotes(t, store, "NEW-PAID"); n != 2 {
		t.Errorf("Expected 2 votes, got %d", n)
	}
}

func TestRecoverDryRunWritesNothing(t *testing.T) {
	recovery, store, provider := newTestRecovery(t)

	testutil.CreateTestTransaction(t, store, "DRY-PAID", 2, "2.00")
	provider.SetStatus("DRY-PAID", mtnapi.StatusSuccessful)
	txn := testutil.CreateTestTransaction(t, store, "DRY-GAP", 4, "4.00", testutil.WithStatus(models.TransactionStatusCompleted))
	testutil.InsertTestVotes(t, store, txn, 1)

	report, err := recovery.Recover(context.Background(), models.RecoveryFilter{DryRun: true, ForceMaterialize: true})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if !report.DryRun {
		t.Error("Expected report to be marked as dry run")
	}
	if item := findItem(report, "DRY-PAID"); item == nil || item.Action != models.RecoveryActionCompleted {
		t.Errorf("Expected dry run to predict completion, got %+v", item)
	}
	if item := findItem(report, "DRY-GAP"); item == nil || item.Action != models.RecoveryActionPartial {
		t.Errorf("Expected dry run to report the gap, got %+v", item)
	}

	if got := testutil.GetTransaction(t, store, "DRY-PAID"); got.Status != models.TransactionStatusPending {
		t.Errorf("Expected no status change in dry run, got %s", got.Status)
	}
	if n := testutil.CountVotes(t, store, "DRY-PAID"); n != 0 {
		t.Errorf("Expected no votes in dry run, got %d", n)
	}
	if n := testutil.CountVotes(t, store, "DRY-GAP"); n != 1 {
		t.Errorf("Expected gap untouched in dry run, got %d", n)
	}
}

func TestRecoverRespectsWindowAndStatuses(t *testing.T) {
	recovery, store, provider := newTestRecovery(t)

	testutil.CreateTestTransaction(t, store, "OLD", 1, "1.00", testutil.CreatedAgo(72*time.Hour))
	testutil.CreateTestTransaction(t, store, "IN-WINDOW", 1, "1.00", testutil.WithStatus(models.TransactionStatusProcessing))
	provider.SetStatus("OLD", mtnapi.StatusSuccessful)
	provider.SetStatus("IN-WINDOW", mtnapi.StatusSuccessful)

	report, err := recovery.Recover(context.Background(), models.RecoveryFilter{
		Statuses: []models.TransactionStatus{models.TransactionStatusProcessing},
	})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report.Examined != 1 || report.Completed != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if provider.Calls("OLD") != 0 {
		t.Error("Expected transaction outside the window to be skipped")
	}
}

func TestRecoverByReferenceIgnoresDefaultWindow(t *testing.T) {
	recovery, store, provider := newTestRecovery(t)

	testutil.CreateTestTransaction(t, store, "OLD-REF", 2, "2.00", testutil.CreatedAgo(72*time.Hour))
	provider.SetStatus("OLD-REF", mtnapi.StatusSuccessful)

	report, err := recovery.Recover(context.Background(), models.RecoveryFilter{Reference: "OLD-REF"})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report.Examined != 1 || report.Completed != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if n := testutil.CountVotes(t, store, "OLD-REF"); n != 2 {
		t.Errorf("Expected 2 votes, got %d", n)
	}

	// An explicit window still applies to a reference lookup
	report, err = recovery.Recover(context.Background(), models.RecoveryFilter{
		Reference: "OLD-REF",
		Since:     time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report.Examined != 0 {
		t.Errorf("Expected explicit window to exclude OLD-REF, examined %d", report.Examined)
	}
}

func TestRecoverRejectsBadFilter(t *testing.T) {
	recovery, _, _ := newTestRecovery(t)
	now := time.Now()

	_, err := recovery.Recover(context.Background(), models.RecoveryFilter{Since: now, Until: now.Add(-time.Hour)})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("Expected ErrInvalidFilter for inverted window, got %v", err)
	}

	_, err = recovery.Recover(context.Background(), models.RecoveryFilter{Statuses: []models.TransactionStatus{"bogus"}})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("Expected ErrInvalidFilter for unknown status, got %v", err)
	}
}

func TestRecoverConfigErrorAborts(t *testing.T) {
	recovery, store, provider := newTestRecovery(t)

	testutil.CreateTestTransaction(t, store, "CFG", 1, "1.00")
	provider.Invalid = mtnapi.ErrMissingCredentials

	if _, err := recovery.Recover(context.Background(), models.RecoveryFilter{}); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error, got %v", err)
	}

	// Completed-only recovery never needs the provider
	report, err := recovery.Recover(context.Background(), models.RecoveryFilter{
		Statuses: []models.TransactionStatus{models.TransactionStatusCompleted},
	})
	if err != nil {
		t.Errorf("Expected completed-only recovery to run without provider, got %v", err)
	}
	if report != nil && !report.Success {
		t.Errorf("Expected success, got %+v", report)
	}
}

func TestRecoverFlagsOverMaterialized(t *testing.T) {
	recovery, store, _ := newTestRecovery(t)

	txn := testutil.CreateTestTransaction(t, store, "OVER", 2, "2.00", testutil.WithStatus(models.TransactionStatusCompleted))
	testutil.InsertTestVotes(t, store, txn, 1, 2, 3)

	report, err := recovery.Recover(context.Background(), models.RecoveryFilter{ForceMaterialize: true})
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	item := findItem(report, "OVER")
	if item == nil || item.Action != models.RecoveryActionError || item.VotesBefore != 3 {
		t.Errorf("Expected over-materialized item flagged as error, got %+v", item)
	}
	if n := testutil.CountVotes(t, store, "OVER"); n != 3 {
		t.Errorf("Expected extra votes left for manual review, got %d", n)
	}
}

func TestAudit(t *testing.T) {
	recovery, store, _ := newTestRecovery(t)

	short := testutil.CreateTestTransaction(t, store, "AUD-SHORT", 3, "3.00", testutil.WithStatus(models.TransactionStatusCompleted))
	testutil.InsertTestVotes(t, store, short, 1)
	ok := testutil.CreateTestTransaction(t, store, "AUD-OK", 1, "1.00", testutil.WithStatus(models.TransactionStatusCompleted))
	testutil.InsertTestVotes(t, store, ok, 1)
	testutil.CreateTestTransaction(t, store, "AUD-PENDING", 2, "2.00")

	mismatches, err := recovery.Audit(context.Background(), models.RecoveryFilter{})
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("Expected 1 mismatch, got %d: %+v", len(mismatches), mismatches)
	}
	m := mismatches[0]
	if m.Reference != "AUD-SHORT" || m.VoteCount != 3 || m.VotesFound != 1 {
		t.Errorf("Unexpected mismatch: %+v", m)
	}
	if m.CompletedAt.IsZero() {
		t.Error("Expected CompletedAt on mismatch")
	}
}
