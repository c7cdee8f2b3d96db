// Package storage opens the configured transaction store
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/config"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	mongorepo "github.com/ArowuTest/mtn-vote-reconciler/internal/repositories/mongodb"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories/sqlstore"
	mongodb "github.com/ArowuTest/mtn-vote-reconciler/pkg/mongodb"
	"golang.org/x/exp/slog"
)

// Open connects to the backend named by cfg.Storage.Driver, prepares its
// schema or indexes, and returns the store with a function that releases it
func Open(ctx context.Context, cfg *config.Config) (repositories.Store, func(), error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "mongodb", "mongo":
		client, err := mongodb.NewClient(ctx, cfg.MongoDB.URI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		store := mongorepo.NewStore(client.Database(cfg.MongoDB.Database), cfg.MongoDB.UseTransactions)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		slog.Info("Transaction store ready", "driver", "mongodb", "database", cfg.MongoDB.Database,
			"transactions", cfg.MongoDB.UseTransactions)
		return store, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Error("Error disconnecting from MongoDB", "error", err)
			}
		}, nil

	case "postgres", "postgresql", "sqlite", "sqlite3":
		dsn := cfg.Storage.DSN
		dialect, err := sqlstore.ParseDialect(cfg.Storage.Driver)
		if err != nil {
			return nil, nil, err
		}
		if dialect == sqlstore.DialectSQLite {
			dsn = SQLiteDSN(dsn)
		}
		store, err := sqlstore.Open(ctx, cfg.Storage.Driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, nil, err
		}
		slog.Info("Transaction store ready", "driver", dialect)
		return store, func() {
			if err := store.Close(context.Background()); err != nil {
				slog.Error("Error closing database", "error", err)
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
}

// SQLiteDSN makes modernc.org/sqlite write times in a format it can scan back
// into time.Time. Query parameters need the file: URI form.
func SQLiteDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "_time_format=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_time_format=sqlite"
	}
	return dsn + "?_time_format=sqlite"
}
