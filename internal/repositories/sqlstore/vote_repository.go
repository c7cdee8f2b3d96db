package sqlstore

import (
	"context"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"github.com/google/uuid"
)

const voteColumns = `id, transaction_id, payment_reference, sequence, event_id, category_id,
	nominee_id, voter_phone, amount, voted_at`

// VoteRepository implements repositories.VoteRepository
type VoteRepository struct {
	store *Store
}

var _ repositories.VoteRepository = (*VoteRepository)(nil)

// InsertMany inserts votes in one database transaction
func (r *VoteRepository) InsertMany(ctx context.Context, votes []*models.Vote) error {
	if len(votes) == 0 {
		return nil
	}

	return r.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Store) error {
		s := tx.(*Store)
		query := s.rebind(`INSERT INTO votes (` + voteColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, vote := range votes {
			if vote.ID == "" {
				vote.ID = uuid.NewString()
			}
			_, err := s.q.ExecContext(ctx, query,
				vote.ID, vote.TransactionID, vote.PaymentReference, vote.Sequence, vote.EventID, vote.CategoryID,
				vote.NomineeID, vote.VoterPhone, vote.Amount, vote.VotedAt.UTC(),
			)
			if err != nil {
				if isUniqueViolation(err) {
					return repositories.ErrDuplicateVote
				}
				return err
			}
		}
		return nil
	})
}

// FindByReference returns the votes of one payment, in sequence order
func (r *VoteRepository) FindByReference(ctx context.Context, reference string) ([]*models.Vote, error) {
	query := r.store.rebind(`SELECT ` + voteColumns + ` FROM votes WHERE payment_reference = ? ORDER BY sequence ASC`)
	rows, err := r.store.q.QueryContext(ctx, query, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		var vote models.Vote
		if err := rows.Scan(
			&vote.ID, &vote.TransactionID, &vote.PaymentReference, &vote.Sequence, &vote.EventID, &vote.CategoryID,
			&vote.NomineeID, &vote.VoterPhone, &vote.Amount, &vote.VotedAt,
		); err != nil {
			return nil, err
		}
		votes = append(votes, &vote)
	}
	return votes, rows.Err()
}

// CountByReference counts the votes of one payment
func (r *VoteRepository) CountByReference(ctx context.Context, reference string) (int, error) {
	var count int
	query := r.store.rebind(`SELECT COUNT(*) FROM votes WHERE payment_reference = ?`)
	if err := r.store.q.QueryRowContext(ctx, query, reference).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
