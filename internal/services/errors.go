package services

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is transient; the transaction stays put and the
	// next poller run picks it up again
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrInvalidTransition marks an illegal status change. It is logged and
	// treated as an idempotent no-op, never returned from the mark* calls.
	ErrInvalidTransition = errors.New("invalid transaction status transition")
	// ErrMaterializationPartial marks a completed transaction whose vote rows
	// fall short of its vote count
	ErrMaterializationPartial = errors.New("vote materialization partial")
	// ErrTransactionNotFound is returned when no transaction has the reference
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrDuplicateReference is returned when creating a reference that exists
	ErrDuplicateReference = errors.New("transaction reference already exists")
	// ErrInvalidTransaction is returned when a create request fails validation
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrInvalidFilter is returned for an unusable recovery window
	ErrInvalidFilter = errors.New("invalid recovery filter")
	// ErrInvalidCredentials is returned on a failed operator login
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ConfigError is fatal for a batch: it aborts before any side effect
type ConfigError struct {
	Component string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is, or wraps, a ConfigError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
