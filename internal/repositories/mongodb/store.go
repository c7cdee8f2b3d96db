package mongodb

import (
	"context"
	"fmt"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	transactionsCollection = "transactions"
	votesCollection        = "votes"
)

// Store implements repositories.Store on MongoDB
type Store struct {
	db              *mongo.Database
	useTransactions bool
}

var _ repositories.Store = (*Store)(nil)

// NewStore creates a Store. useTransactions needs a replica set; without it
// each unit of work relies on the unique vote index alone.
func NewStore(db *mongo.Database, useTransactions bool) *Store {
	return &Store{db: db, useTransactions: useTransactions}
}

// Transactions returns the transaction repository
func (s *Store) Transactions() repositories.TransactionRepository {
	return NewTransactionRepository(s.db)
}

// Votes returns the vote repository
func (s *Store) Votes() repositories.VoteRepository {
	return NewVoteRepository(s)
}

// WithTransaction runs fn inside a multi-document transaction. The session
// travels in ctx, so repositories pick it up without extra plumbing.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Store) error) error {
	if !s.useTransactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s)
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

// Close is a no-op; the client owner disconnects
func (s *Store) Close(ctx context.Context) error {
	return nil
}

// EnsureIndexes creates the indexes the reconciler depends on. The two unique
// indexes are load-bearing: reference uniqueness and one vote per sequence.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(transactionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_reference"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("ix_status_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create transaction indexes: %w", err)
	}

	_, err = s.db.Collection(votesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "transactionId", Value: 1}, {Key: "sequence", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_transaction_sequence"),
		},
		{
			Keys:    bson.D{{Key: "paymentReference", Value: 1}},
			Options: options.Index().SetName("ix_payment_reference"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create vote indexes: %w", err)
	}
	return nil
}
