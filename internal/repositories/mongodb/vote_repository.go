package mongodb

import (
	"context"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// VoteRepository implements the repositories.VoteRepository interface
type VoteRepository struct {
	store      *Store
	collection *mongo.Collection
}

// NewVoteRepository creates a new VoteRepository
func NewVoteRepository(store *Store) repositories.VoteRepository {
	return &VoteRepository{
		store:      store,
		collection: store.db.Collection(votesCollection),
	}
}

// InsertMany inserts votes as one unit
func (r *VoteRepository) InsertMany(ctx context.Context, votes []*models.Vote) error {
	if len(votes) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(votes))
	for _, vote := range votes {
		if vote.ID == "" {
			vote.ID = uuid.NewString()
		}
		doc, err := newVoteDocument(vote)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	return r.store.WithTransaction(ctx, func(ctx context.Context, _ repositories.Store) error {
		_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return repositories.ErrDuplicateVote
			}
			return err
		}
		return nil
	})
}

// FindByReference finds the votes of a payment, in sequence order
func (r *VoteRepository) FindByReference(ctx context.Context, reference string) ([]*models.Vote, error) {
	opts := options.Find().SetSort(bson.M{"sequence": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"paymentReference": reference}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []voteDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	votes := make([]*models.Vote, 0, len(docs))
	for i := range docs {
		vote, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	return votes, nil
}

// CountByReference counts the votes of a payment
func (r *VoteRepository) CountByReference(ctx context.Context, reference string) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"paymentReference": reference})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
