// Package app wires the reconciler services for the API server and the
// operator CLI
package app

import (
	"context"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/config"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/repositories"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/services"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/storage"
	"github.com/ArowuTest/mtn-vote-reconciler/pkg/mtnapi"
	"golang.org/x/exp/slog"
)

// App holds the constructed services
type App struct {
	Config       *config.Config
	Store        repositories.Store
	Transactions *services.TransactionServiceImpl
	Materializer *services.VoteMaterializer
	Poller       *services.StatusPoller
	Recovery     *services.RecoveryServiceImpl
	Auth         services.AuthService

	closeStore func()
}

// New opens the store and builds every service from cfg. Settings are read
// once here and passed down.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return Build(cfg, store, NewProvider(cfg), closeStore), nil
}

// NewProvider builds the MoMo client from cfg. Missing credentials are not an
// error here; the poller reports them as a configuration error when it runs.
func NewProvider(cfg *config.Config) *mtnapi.Client {
	if cfg.MTN.MockAPI {
		slog.Warn("Using the mock payment provider", "targetEnvironment", cfg.MTN.TargetEnvironment)
	}
	return mtnapi.NewClient(mtnapi.Options{
		BaseURL:           cfg.MTN.BaseURL,
		APIKey:            cfg.MTN.APIKey,
		APISecret:         cfg.MTN.APISecret,
		SubscriptionKey:   cfg.MTN.SubscriptionKey,
		TargetEnvironment: cfg.MTN.TargetEnvironment,
		MockAPI:           cfg.MTN.MockAPI,
		Timeout:           cfg.MTN.Timeout,
	})
}

// Build wires services over an already opened store and provider
func Build(cfg *config.Config, store repositories.Store, provider services.PaymentStatusProvider, closeStore func()) *App {
	settings := services.NewReconcilerSettings(cfg.Reconciler)
	materializer := services.NewVoteMaterializer(store, settings)
	transactions := services.NewTransactionService(store, materializer, settings)
	poller := services.NewStatusPoller(store, transactions, provider, settings)

	return &App{
		Config:       cfg,
		Store:        store,
		Transactions: transactions,
		Materializer: materializer,
		Poller:       poller,
		Recovery:     services.NewRecoveryService(store, transactions, materializer, poller),
		Auth:         services.NewAuthService(cfg.Operators, cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiresIn)*time.Second),
		closeStore:   closeStore,
	}
}

// Close releases the store
func (a *App) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
}
