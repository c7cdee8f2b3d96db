package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"github.com/google/uuid"
)

const transactionColumns = `id, reference, provider_transaction_id, event_id, category_id, nominee_id,
	voter_phone, vote_count, amount, currency, status, failure_reason, created_at, updated_at, completed_at`

// TransactionRepository implements repositories.TransactionRepository
type TransactionRepository struct {
	store *Store
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn         models.Transaction
		status      string
		completedAt sql.NullTime
	)
	err := row.Scan(
		&txn.ID, &txn.Reference, &txn.ProviderTransactionID, &txn.EventID, &txn.CategoryID, &txn.NomineeID,
		&txn.VoterPhone, &txn.VoteCount, &txn.Amount, &txn.Currency, &status, &txn.FailureReason,
		&txn.CreatedAt, &txn.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Status = models.TransactionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		txn.CompletedAt = &t
	}
	return &txn, nil
}

// Create inserts a new transaction. A zero CreatedAt is set to now and an
// empty Status defaults to pending.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.UpdatedAt = txn.CreatedAt
	if txn.Status == "" {
		txn.Status = models.TransactionStatusPending
	}

	var completedAt any
	if txn.CompletedAt != nil {
		completedAt = txn.CompletedAt.UTC()
	}

	query := r.store.rebind(`INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.store.q.ExecContext(ctx, query,
		txn.ID, txn.Reference, txn.ProviderTransactionID, txn.EventID, txn.CategoryID, txn.NomineeID,
		txn.VoterPhone, txn.VoteCount, txn.Amount, txn.Currency, string(txn.Status), txn.FailureReason,
		txn.CreatedAt, txn.UpdatedAt, completedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repositories.ErrDuplicateReference
		}
		return err
	}
	return nil
}

// FindByReference finds a transaction by its payment reference
func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return r.findByReference(ctx, reference, false)
}

// FindByReferenceForUpdate finds a transaction and row-locks it on PostgreSQL.
// SQLite already serializes writers through the single connection.
func (r *TransactionRepository) FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error) {
	return r.findByReference(ctx, reference, r.store.inTx && r.store.dialect == DialectPostgres)
}

func (r *TransactionRepository) findByReference(ctx context.Context, reference string, lock bool) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = ?`
	if lock {
		query += ` FOR UPDATE`
	}

	txn, err := scanTransaction(r.store.q.QueryRowContext(ctx, r.store.rebind(query), reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Transition performs a guarded status change; only a row whose status is in
// from is touched
func (r *TransactionRepository) Transition(ctx context.Context, reference string, from []models.TransactionStatus, to models.TransactionStatus, update repositories.TransitionUpdate) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s needs at least one source status", to)
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), time.Now().UTC()}
	if update.ProviderTransactionID != "" {
		sets = append(sets, "provider_transaction_id = ?")
		args = append(args, update.ProviderTransactionID)
	}
	if update.FailureReason != "" {
		sets = append(sets, "failure_reason = ?")
		args = append(args, update.FailureReason)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, update.CompletedAt.UTC())
	}

	args = append(args, reference)
	for _, status := range from {
		args = append(args, string(status))
	}

	query := `UPDATE transactions SET ` + strings.Join(sets, ", ") +
		` WHERE reference = ? AND status IN (` + placeholders(len(from)) + `)`
	res, err := r.store.q.ExecContext(ctx, r.store.rebind(query), args...)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// FindStale returns unconfirmed transactions created before olderThan, oldest first
func (r *TransactionRepository) FindStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	return r.Find(ctx, repositories.TransactionFilter{
		Until:    olderThan,
		Statuses: models.UnconfirmedStatuses,
		Limit:    limit,
	})
}

// Find returns transactions matching filter, oldest first
func (r *TransactionRepository) Find(ctx context.Context, filter repositories.TransactionFilter) ([]*models.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, filter.Until.UTC())
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.Reference != "" {
		where = append(where, "reference = ?")
		args = append(args, filter.Reference)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.store.q.QueryContext(ctx, r.store.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
