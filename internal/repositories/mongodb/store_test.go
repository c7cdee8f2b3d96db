package mongodb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// setupTestStore connects to MONGODB_TEST_URI and returns a store on a
// throwaway database. Tests are skipped when the variable is unset.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	db := client.Database("reconciler_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	store := NewStore(db, os.Getenv("MONGODB_TEST_TRANSACTIONS") == "true")
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}
	return store
}

func newTransaction(reference string, voteCount int) *models.Transaction {
	return &models.Transaction{
		Reference:  reference,
		EventID:    "event-1",
		CategoryID: "category-1",
		NomineeID:  "nominee-1",
		VoterPhone: "233240000001",
		VoteCount:  voteCount,
		Amount:     decimal.RequireFromString("10.00"),
		Currency:   "GHS",
		CreatedAt:  time.Now().UTC().Add(-10 * time.Minute),
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	in := decimal.RequireFromString("3.34")
	d128, err := toDecimal128(in)
	if err != nil {
		t.Fatalf("toDecimal128 failed: %v", err)
	}
	out, err := fromDecimal128(d128)
	if err != nil {
		t.Fatalf("fromDecimal128 failed: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("Expected %s, got %s", in, out)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	repo := store.Transactions()

	txn := newTransaction("MONGO-1", 3)
	if err := repo.Create(ctx, txn); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, newTransaction("MONGO-1", 1)); !errors.Is(err, repositories.ErrDuplicateReference) {
		t.Errorf("Expected ErrDuplicateReference, got %v", err)
	}

	stale, err := repo.FindStale(ctx, time.Now().Add(-5*time.Minute), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("Expected 1 stale transaction, got %d (err=%v)", len(stale), err)
	}

	from := []models.TransactionStatus{models.TransactionStatusPending, models.TransactionStatusProcessing}
	now := time.Now().UTC()
	applied, err := repo.Transition(ctx, "MONGO-1", from, models.TransactionStatusCompleted, repositories.TransitionUpdate{CompletedAt: &now})
	if err != nil || !applied {
		t.Fatalf("Expected transition to apply, got applied=%v err=%v", applied, err)
	}
	applied, err = repo.Transition(ctx, "MONGO-1", from, models.TransactionStatusFailed, repositories.TransitionUpdate{})
	if err != nil || applied {
		t.Errorf("Expected second transition to be rejected, got applied=%v err=%v", applied, err)
	}

	got, err := repo.FindByReference(ctx, "MONGO-1")
	if err != nil {
		t.Fatalf("FindByReference failed: %v", err)
	}
	if got.Status != models.TransactionStatusCompleted || !got.Amount.Equal(txn.Amount) {
		t.Errorf("Unexpected transaction: %+v", got)
	}
}

func TestVoteUniqueness(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	txn := newTransaction("MONGO-VOTES", 2)
	if err := store.Transactions().Create(ctx, txn); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	vote := func(seq int) *models.Vote {
		return &models.Vote{
			TransactionID: txn.ID, PaymentReference: txn.Reference, Sequence: seq,
			EventID: txn.EventID, CategoryID: txn.CategoryID, NomineeID: txn.NomineeID, VoterPhone: txn.VoterPhone,
			Amount: decimal.RequireFromString("5.00"), VotedAt: time.Now().UTC(),
		}
	}
	if err := store.Votes().InsertMany(ctx, []*models.Vote{vote(1), vote(2)}); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}
	if err := store.Votes().InsertMany(ctx, []*models.Vote{vote(2)}); !errors.Is(err, repositories.ErrDuplicateVote) {
		t.Errorf("Expected ErrDuplicateVote, got %v", err)
	}

	n, err := store.Votes().CountByReference(ctx, txn.Reference)
	if err != nil || n != 2 {
		t.Errorf("Expected 2 votes, got %d (err=%v)", n, err)
	}
}
