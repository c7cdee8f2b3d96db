package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TransactionRepository implements the repositories.TransactionRepository interface
type TransactionRepository struct {
	collection *mongo.Collection
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *mongo.Database) repositories.TransactionRepository {
	return &TransactionRepository{
		collection: db.Collection(transactionsCollection),
	}
}

// Create creates a new transaction
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	txn.UpdatedAt = txn.CreatedAt
	if txn.Status == "" {
		txn.Status = models.TransactionStatusPending
	}

	doc, err := newTransactionDocument(txn)
	if err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repositories.ErrDuplicateReference
		}
		return err
	}
	return nil
}

// FindByReference finds a transaction by reference
func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var doc transactionDocument
	err := r.collection.FindOne(ctx, bson.M{"reference": reference}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return doc.model()
}

// FindByReferenceForUpdate takes a write lock on the document when running
// inside a session transaction: the lock-counter bump makes a concurrent
// transaction touching the same reference hit a write conflict and retry.
func (r *TransactionRepository) FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error) {
	if mongo.SessionFromContext(ctx) == nil {
		return r.FindByReference(ctx, reference)
	}

	var doc transactionDocument
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"reference": reference},
		bson.M{"$inc": bson.M{"lockVersion": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return doc.model()
}

// Transition updates the status only when the current status is one of from
func (r *TransactionRepository) Transition(ctx context.Context, reference string, from []models.TransactionStatus, to models.TransactionStatus, update repositories.TransitionUpdate) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s needs at least one source status", to)
	}

	set := bson.M{
		"status":    string(to),
		"updatedAt": time.Now().UTC(),
	}
	if update.ProviderTransactionID != "" {
		set["providerTransactionId"] = update.ProviderTransactionID
	}
	if update.FailureReason != "" {
		set["failureReason"] = update.FailureReason
	}
	if update.CompletedAt != nil {
		set["completedAt"] = update.CompletedAt.UTC()
	}

	filter := bson.M{
		"reference": reference,
		"status":    bson.M{"$in": statusStrings(from)},
	}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// FindStale finds unconfirmed transactions created before olderThan, oldest first
func (r *TransactionRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	return r.Find(ctx, repositories.TransactionFilter{
		Until:    olderThan,
		Statuses: models.UnconfirmedStatuses,
		Limit:    limit,
	})
}

// Find finds transactions by filter, oldest first
func (r *TransactionRepository) Find(ctx context.Context, filter repositories.TransactionFilter) ([]*models.Transaction, error) {
	query := bson.M{}
	createdAt := bson.M{}
	if !filter.Since.IsZero() {
		createdAt["$gte"] = filter.Since.UTC()
	}
	if !filter.Until.IsZero() {
		createdAt["$lt"] = filter.Until.UTC()
	}
	if len(createdAt) > 0 {
		query["createdAt"] = createdAt
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": statusStrings(filter.Statuses)}
	}
	if filter.Reference != "" {
		query["reference"] = filter.Reference
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []transactionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	txns := make([]*models.Transaction, 0, len(docs))
	for i := range docs {
		txn, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func statusStrings(statuses []models.TransactionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
