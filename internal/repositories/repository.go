package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateReference is returned when a transaction reference already exists
	ErrDuplicateReference = errors.New("duplicate transaction reference")
	// ErrDuplicateVote is returned when a (transaction, sequence) vote already exists
	ErrDuplicateVote = errors.New("duplicate vote sequence")
)

// TransitionUpdate carries the fields written alongside a status change
type TransitionUpdate struct {
	ProviderTransactionID string
	FailureReason         string
	CompletedAt           *time.Time
}

// TransactionFilter selects transactions for operator tooling
type TransactionFilter struct {
	Since     time.Time
	Until     time.Time
	Statuses  []models.TransactionStatus
	Reference string
	Limit     int
}

// TransactionRepository defines the interface for payment transaction operations
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	// FindByReferenceForUpdate loads the transaction and, where the backend
	// supports it, holds a row lock until the surrounding unit of work ends.
	FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error)
	// Transition moves reference to status `to` only if its current status is
	// one of `from`. It reports whether this call performed the change.
	Transition(ctx context.Context, reference string, from []models.TransactionStatus, to models.TransactionStatus, update TransitionUpdate) (bool, error)
	FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error)
	Find(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error)
}

// VoteRepository defines the interface for vote operations
type VoteRepository interface {
	// InsertMany writes all votes or none. A clash on (transaction, sequence)
	// yields ErrDuplicateVote.
	InsertMany(ctx context.Context, votes []*models.Vote) error
	FindByReference(ctx context.Context, reference string) ([]*models.Vote, error)
	CountByReference(ctx context.Context, reference string) (int, error)
}

// Store groups the repositories and the unit-of-work boundary they share
type Store interface {
	Transactions() TransactionRepository
	Votes() VoteRepository
	// WithTransaction runs fn inside one atomic unit. The Store handed to fn is
	// bound to that unit; fn must use it (and the ctx it is given) for every
	// read and write that belongs to the unit.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Close(ctx context.Context) error
}
