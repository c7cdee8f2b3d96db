// Package testutil provides a throwaway SQLite store, fixtures and a fake
// payment provider for package tests
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories/sqlstore"
	"github.com/ArowuTest/mtn-vote-reconciler/pkg/mtnapi"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SetupTestStore creates a fresh SQLite store with the full schema
func SetupTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "reconciler.db") + "?_time_format=sqlite&_pragma=busy_timeout(5000)"
	store, err := sqlstore.Open(context.Background(), "sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		store.Close(context.Background())
	})
	return store
}

// TxnOption customizes a fixture transaction
type TxnOption func(*models.Transaction)

// WithStatus sets the fixture's status
func WithStatus(status models.TransactionStatus) TxnOption {
	return func(txn *models.Transaction) {
		txn.Status = status
		if status == models.TransactionStatusCompleted && txn.CompletedAt == nil {
			completed := txn.CreatedAt.Add(time.Minute)
			txn.CompletedAt = &completed
		}
	}
}

// CreatedAgo backdates the fixture
func CreatedAgo(d time.Duration) TxnOption {
	return func(txn *models.Transaction) {
		txn.CreatedAt = time.Now().UTC().Add(-d)
	}
}

// CreateTestTransaction inserts a transaction for reference with voteCount
// votes paid for by amount (a decimal string). It defaults to pending and
// created ten minutes ago, so the poller sees it as stale.
func CreateTestTransaction(t *testing.T, store *sqlstore.Store, reference string, voteCount int, amount string, opts ...TxnOption) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		ID:         uuid.NewString(),
		Reference:  reference,
		EventID:    "event-1",
		CategoryID: "category-1",
		NomineeID:  "nominee-1",
		VoterPhone: "233240000001",
		VoteCount:  voteCount,
		Amount:     decimal.RequireFromString(amount),
		Currency:   "GHS",
		Status:     models.TransactionStatusPending,
		CreatedAt:  time.Now().UTC().Add(-10 * time.Minute),
	}
	for _, opt := range opts {
		opt(txn)
	}

	if err := store.Transactions().Create(context.Background(), txn); err != nil {
		t.Fatalf("Failed to create test transaction: %v", err)
	}
	return txn
}

// InsertTestVotes writes votes for the given sequences of txn directly,
// bypassing the materializer
func InsertTestVotes(t *testing.T, store *sqlstore.Store, txn *models.Transaction, sequences ...int) {
	t.Helper()

	share := txn.Amount.Div(decimal.NewFromInt(int64(txn.VoteCount))).Round(2)
	votes := make([]*models.Vote, 0, len(sequences))
	for _, seq := range sequences {
		votes = append(votes, &models.Vote{
			ID:               uuid.NewString(),
			EventID:          txn.EventID,
			CategoryID:       txn.CategoryID,
			NomineeID:        txn.NomineeID,
			VoterPhone:       txn.VoterPhone,
			TransactionID:    txn.ID,
			PaymentReference: txn.Reference,
			Sequence:         seq,
			Amount:           share,
			VotedAt:          time.Now().UTC(),
		})
	}
	if err := store.Votes().InsertMany(context.Background(), votes); err != nil {
		t.Fatalf("Failed to insert test votes: %v", err)
	}
}

// CountVotes returns the number of votes stored for reference
func CountVotes(t *testing.T, store *sqlstore.Store, reference string) int {
	t.Helper()

	n, err := store.Votes().CountByReference(context.Background(), reference)
	if err != nil {
		t.Fatalf("Failed to count votes: %v", err)
	}
	return n
}

// GetTransaction loads a transaction or fails the test
func GetTransaction(t *testing.T, store *sqlstore.Store, reference string) *models.Transaction {
	t.Helper()

	txn, err := store.Transactions().FindByReference(context.Background(), reference)
	if err != nil {
		t.Fatalf("Failed to load transaction %s: %v", reference, err)
	}
	return txn
}

// FakeProvider is a scripted payment provider. Unscripted references report
// PENDING.
type FakeProvider struct {
	mu       sync.Mutex
	statuses map[string]string
	reasons  map[string]string
	errs     map[string][]error
	calls    map[string]int
	Delay    time.Duration
	Invalid  error
}

// NewFakeProvider creates an empty FakeProvider
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		statuses: make(map[string]string),
		reasons:  make(map[string]string),
		errs:     make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// SetStatus scripts the provider status for reference
func (f *FakeProvider) SetStatus(reference, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[reference] = status
}

// SetReason scripts the failure reason for reference
func (f *FakeProvider) SetReason(reference, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons[reference] = reason
}

// FailNext queues errors returned, in order, before the scripted status
func (f *FakeProvider) FailNext(reference string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[reference] = append(f.errs[reference], errs...)
}

// Calls returns how many times reference was queried
func (f *FakeProvider) Calls(reference string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[reference]
}

// TotalCalls returns the number of queries across all references
func (f *FakeProvider) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Validate reports the scripted credential problem, if any
func (f *FakeProvider) Validate() error {
	return f.Invalid
}

// GetPaymentStatus implements the provider interface used by the poller
func (f *FakeProvider) GetPaymentStatus(ctx context.Context, reference string) (*mtnapi.PaymentStatus, error) {
	f.mu.Lock()
	f.calls[reference]++
	var err error
	if queued := f.errs[reference]; len(queued) > 0 {
		err = queued[0]
		f.errs[reference] = queued[1:]
	}
	status, ok := f.statuses[reference]
	reason := f.reasons[reference]
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", mtnapi.ErrUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		status = mtnapi.StatusPending
	}

	ps := &mtnapi.PaymentStatus{
		Reference:              reference,
		FinancialTransactionID: "fin-" + reference,
		Status:                 status,
	}
	if reason != "" {
		ps.RawReason = []byte(`"` + reason + `"`)
	}
	return ps, nil
}
