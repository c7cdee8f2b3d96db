package services

import (
	"context"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
)

// TransactionService defines the payment transaction state machine
type TransactionService interface {
	// Create records a new transaction in pending
	Create(ctx context.Context, req *models.CreateTransactionRequest) (*models.Transaction, error)

	// MarkProcessing records provider acknowledgment (pending -> processing)
	MarkProcessing(ctx context.Context, reference, providerTransactionID string) (*TransitionResult, error)

	// MarkCompleted terminalizes as completed and materializes votes in the same unit of work
	MarkCompleted(ctx context.Context, reference, providerTransactionID string) (*TransitionResult, error)

	// MarkFailed terminalizes as failed
	MarkFailed(ctx context.Context, reference, reason string) (*TransitionResult, error)

	// GetByReference returns a transaction together with its votes
	GetByReference(ctx context.Context, reference string) (*TransactionDetail, error)
}

// Materializer turns a completed transaction into its votes
type Materializer interface {
	Materialize(ctx context.Context, reference string) (int, error)
}

// BatchRunner runs one status poller batch
type BatchRunner interface {
	RunBatch(ctx context.Context, batchSize int) (*models.BatchResult, error)
	DefaultBatchSize() int
}

// RecoveryService defines operator-driven recovery
type RecoveryService interface {
	Recover(ctx context.Context, filter models.RecoveryFilter) (*models.RecoveryReport, error)
	Audit(ctx context.Context, filter models.RecoveryFilter) ([]models.VoteMismatch, error)
}

// AuthService defines operator authentication
type AuthService interface {
	Login(ctx context.Context, req *models.LoginRequest) (string, error) // Returns JWT token
}

// TransitionResult reports what a mark* call did
type TransitionResult struct {
	Transaction  *models.Transaction `json:"transaction"`
	Applied      bool                `json:"applied"` // false when the call was an idempotent no-op
	VotesCreated int                 `json:"votesCreated"`
}

// TransactionDetail is a transaction with its materialized votes
type TransactionDetail struct {
	Transaction *models.Transaction `json:"transaction"`
	Votes       []*models.Vote      `json:"votes"`
	VoteGap     int                 `json:"voteGap"` // VoteCount - len(Votes) for completed transactions
}
