package services

import (
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/config"
)

// Batch size bounds for the status poller
const (
	MinBatchSize     = 1
	MaxBatchSize     = 100
	DefaultBatchSize = 20
)

// ReconcilerSettings is built once at startup and handed to the materializer,
// poller and recovery service. Nothing reads settings mid-operation.
type ReconcilerSettings struct {
	StaleAfter       time.Duration
	DefaultBatchSize int
	ProviderTimeout  time.Duration
	ProviderRetries  int
	RetryBackoff     time.Duration
	RunTimeout       time.Duration
	Concurrency      int
	MinorUnitPlaces  int32
	Currency         string
}

// DefaultReconcilerSettings returns the production defaults
func DefaultReconcilerSettings() ReconcilerSettings {
	return ReconcilerSettings{
		StaleAfter:       5 * time.Minute,
		DefaultBatchSize: DefaultBatchSize,
		ProviderTimeout:  10 * time.Second,
		ProviderRetries:  2,
		RetryBackoff:     250 * time.Millisecond,
		RunTimeout:       55 * time.Second,
		Concurrency:      4,
		MinorUnitPlaces:  2,
		Currency:         "GHS",
	}
}

// NewReconcilerSettings builds settings from loaded configuration
func NewReconcilerSettings(cfg config.ReconcilerConfig) ReconcilerSettings {
	return ReconcilerSettings{
		StaleAfter:       cfg.StaleAfter,
		DefaultBatchSize: cfg.DefaultBatchSize,
		ProviderTimeout:  cfg.ProviderTimeout,
		ProviderRetries:  cfg.ProviderRetries,
		RetryBackoff:     cfg.RetryBackoff,
		RunTimeout:       cfg.RunTimeout,
		Concurrency:      cfg.Concurrency,
		MinorUnitPlaces:  cfg.MinorUnitPlaces,
		Currency:         cfg.Currency,
	}.withDefaults()
}

// withDefaults fills zero or out-of-range fields from DefaultReconcilerSettings
func (s ReconcilerSettings) withDefaults() ReconcilerSettings {
	d := DefaultReconcilerSettings()
	if s.StaleAfter <= 0 {
		s.StaleAfter = d.StaleAfter
	}
	if s.DefaultBatchSize < MinBatchSize || s.DefaultBatchSize > MaxBatchSize {
		s.DefaultBatchSize = d.DefaultBatchSize
	}
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = d.ProviderTimeout
	}
	if s.ProviderRetries < 0 {
		s.ProviderRetries = 0
	}
	if s.RetryBackoff < 0 {
		s.RetryBackoff = 0
	}
	if s.RunTimeout <= 0 {
		s.RunTimeout = d.RunTimeout
	}
	if s.Concurrency <= 0 {
		s.Concurrency = d.Concurrency
	}
	if s.MinorUnitPlaces < 0 {
		s.MinorUnitPlaces = d.MinorUnitPlaces
	}
	if s.Currency == "" {
		s.Currency = d.Currency
	}
	return s
}

// ClampBatchSize bounds a requested batch size to [MinBatchSize, MaxBatchSize]
func ClampBatchSize(n int) int {
	if n < MinBatchSize {
		return MinBatchSize
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}
