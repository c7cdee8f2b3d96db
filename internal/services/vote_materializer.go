package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

// Compile-time check to ensure VoteMaterializer implements Materializer
var _ Materializer = (*VoteMaterializer)(nil)

// VoteMaterializer converts a completed transaction into exactly VoteCount votes
type VoteMaterializer struct {
	store  repositories.Store
	places int32
	now    func() time.Time
}

// NewVoteMaterializer creates a new VoteMaterializer
func NewVoteMaterializer(store repositories.Store, settings ReconcilerSettings) *VoteMaterializer {
	return &VoteMaterializer{
		store:  store,
		places: settings.withDefaults().MinorUnitPlaces,
		now:    time.Now,
	}
}

// Materialize fills in whatever votes reference is missing and returns how
// many it created. Non-completed transactions and fully materialized ones are
// no-ops. All writes of one call commit together.
func (m *VoteMaterializer) Materialize(ctx context.Context, reference string) (int, error) {
	var created int
	err := m.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Store) error {
		n, err := m.materializeWithin(ctx, tx, reference)
		created = n
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateVote) {
			// A concurrent caller committed the same sequences first
			slog.Info("Votes already materialized by a concurrent caller", "reference", reference)
			return 0, nil
		}
		return 0, err
	}
	return created, nil
}

// materializeWithin does the work of Materialize inside an existing unit of work
func (m *VoteMaterializer) materializeWithin(ctx context.Context, tx repositories.Store, reference string) (int, error) {
	txn, err := tx.Transactions().FindByReferenceForUpdate(ctx, reference)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, ErrTransactionNotFound
		}
		return 0, fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn.Status != models.TransactionStatusCompleted {
		return 0, nil
	}

	existing, err := tx.Votes().FindByReference(ctx, reference)
	if err != nil {
		return 0, fmt.Errorf("failed to load existing votes: %w", err)
	}
	if len(existing) >= txn.VoteCount {
		if len(existing) > txn.VoteCount {
			slog.Warn("Transaction has more votes than paid for", "reference", reference,
				"voteCount", txn.VoteCount, "votesFound", len(existing))
		}
		return 0, nil
	}

	votes := m.buildMissingVotes(txn, existing)
	if err := tx.Votes().InsertMany(ctx, votes); err != nil {
		if errors.Is(err, repositories.ErrDuplicateVote) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to insert votes: %w", err)
	}

	slog.Info("Votes materialized", "reference", reference, "nomineeId", txn.NomineeID,
		"created", len(votes), "existing", len(existing), "voteCount", txn.VoteCount)
	return len(votes), nil
}

// buildMissingVotes creates votes for the lowest free sequence numbers until
// the transaction has VoteCount votes. Each sequence always gets the same share,
// so the total matches the amount whichever call wrote which sequences.
func (m *VoteMaterializer) buildMissingVotes(txn *models.Transaction, existing []*models.Vote) []*models.Vote {
	taken := make(map[int]bool, len(existing))
	for _, v := range existing {
		taken[v.Sequence] = true
	}

	votedAt := m.now().UTC()
	if txn.CompletedAt != nil {
		votedAt = txn.CompletedAt.UTC()
	}

	shares := SplitAmount(txn.Amount, txn.VoteCount, m.places)
	need := txn.VoteCount - len(existing)
	votes := make([]*models.Vote, 0, need)
	for seq := 1; seq <= txn.VoteCount && len(votes) < need; seq++ {
		if taken[seq] {
			continue
		}
		votes = append(votes, &models.Vote{
			ID:               uuid.NewString(),
			EventID:          txn.EventID,
			CategoryID:       txn.CategoryID,
			NomineeID:        txn.NomineeID,
			VoterPhone:       txn.VoterPhone,
			TransactionID:    txn.ID,
			PaymentReference: txn.Reference,
			Sequence:         seq,
			Amount:           shares[seq-1],
			VotedAt:          votedAt,
		})
	}
	return votes
}

// SplitAmount divides amount into count shares truncated to places decimal
// places. The last share absorbs the remainder, so the shares always sum to
// amount exactly and none is negative.
func SplitAmount(amount decimal.Decimal, count int, places int32) []decimal.Decimal {
	if count <= 0 {
		return nil
	}

	shares := make([]decimal.Decimal, count)
	share := amount.Div(decimal.NewFromInt(int64(count))).Truncate(places)
	for i := 0; i < count-1; i++ {
		shares[i] = share
	}
	shares[count-1] = amount.Sub(share.Mul(decimal.NewFromInt(int64(count - 1))))
	return shares
}
