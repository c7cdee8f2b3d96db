package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/pkg/mtnapi"
	"golang.org/x/exp/slog"
)

// PaymentStatusProvider answers "what is the status of reference X"
type PaymentStatusProvider interface {
	GetPaymentStatus(ctx context.Context, reference string) (*mtnapi.PaymentStatus, error)
}

// credentialChecker is implemented by providers that can tell up front
// whether they are configured
type credentialChecker interface {
	Validate() error
}

// MapProviderStatus normalizes a raw provider status. Anything unrecognized
// maps to pending: an unknown answer must never count as paid.
func MapProviderStatus(raw string) models.ProviderOutcome {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESSFUL", "SUCCESS", "SUCCEEDED", "PAID", "COMPLETED":
		return models.ProviderOutcomePaid
	case "FAILED", "FAILURE", "REJECTED", "DECLINED", "TIMEOUT", "EXPIRED", "CANCELLED", "CANCELED":
		return models.ProviderOutcomeFailed
	default:
		return models.ProviderOutcomePending
	}
}

// checkProvider turns missing provider credentials into a ConfigError
func checkProvider(provider PaymentStatusProvider) error {
	if provider == nil {
		return &ConfigError{Component: "payment provider", Err: errors.New("no provider client configured")}
	}
	if checker, ok := provider.(credentialChecker); ok {
		if err := checker.Validate(); err != nil {
			return &ConfigError{Component: "payment provider", Err: err}
		}
	}
	return nil
}

// queryProvider asks the provider for the status of reference, bounding each
// attempt by settings.ProviderTimeout and retrying only transient failures
func queryProvider(ctx context.Context, provider PaymentStatusProvider, settings ReconcilerSettings, reference string) (*mtnapi.PaymentStatus, error) {
	attempts := settings.ProviderRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, settings.ProviderTimeout)
		status, err := provider.GetPaymentStatus(callCtx, reference)
		cancel()
		if err == nil {
			return status, nil
		}
		if errors.Is(err, mtnapi.ErrMissingCredentials) {
			return nil, &ConfigError{Component: "payment provider", Err: err}
		}

		lastErr = err
		if ctx.Err() != nil || !isTransient(err) || attempt == attempts {
			break
		}

		slog.Debug("Retrying provider status query", "reference", reference, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
		case <-time.After(settings.RetryBackoff * time.Duration(attempt)):
		}
	}

	if isTransient(lastErr) {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
	}
	return nil, fmt.Errorf("provider status query failed: %w", lastErr)
}

func isTransient(err error) bool {
	return errors.Is(err, mtnapi.ErrUnavailable) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
