package sqlstore

import (
	"context"
	"fmt"
)

type columnTypes struct {
	money     string
	timestamp string
}

func (s *Store) columnTypes() columnTypes {
	if s.dialect == DialectPostgres {
		return columnTypes{money: "NUMERIC(18,4)", timestamp: "TIMESTAMPTZ"}
	}
	// TIMESTAMP lets the sqlite driver hand back time.Time on scan
	return columnTypes{money: "TEXT", timestamp: "TIMESTAMP"}
}

// Migrate creates the transactions and votes tables.
// Safe to call multiple times - uses IF NOT EXISTS.
func (s *Store) Migrate(ctx context.Context) error {
	t := s.columnTypes()

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			reference TEXT NOT NULL UNIQUE,
			provider_transaction_id TEXT NOT NULL DEFAULT '',
			event_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			nominee_id TEXT NOT NULL,
			voter_phone TEXT NOT NULL,
			vote_count INTEGER NOT NULL CHECK (vote_count >= 1),
			amount %[1]s NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at %[2]s NOT NULL,
			updated_at %[2]s NOT NULL,
			completed_at %[2]s
		)`, t.money, t.timestamp),
		`CREATE INDEX IF NOT EXISTS idx_transactions_status_created ON transactions(status, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS votes (
			id TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL REFERENCES transactions(id),
			payment_reference TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			event_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			nominee_id TEXT NOT NULL,
			voter_phone TEXT NOT NULL,
			amount %[1]s NOT NULL,
			voted_at %[2]s NOT NULL,
			UNIQUE (transaction_id, sequence)
		)`, t.money, t.timestamp),
		`CREATE INDEX IF NOT EXISTS idx_votes_payment_reference ON votes(payment_reference)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
