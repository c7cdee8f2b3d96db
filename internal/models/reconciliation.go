package models

import (
	"time"
)

// ProviderOutcome is the normalized answer from the payment provider
type ProviderOutcome string

const (
	ProviderOutcomePaid    ProviderOutcome = "paid"
	ProviderOutcomeFailed  ProviderOutcome = "failed"
	ProviderOutcomePending ProviderOutcome = "pending"
)

// ItemError describes one transaction a batch could not settle
type ItemError struct {
	Reference string `json:"reference"`
	Error     string `json:"error"`
}

// BatchResult is the aggregate outcome of one status poller run
type BatchResult struct {
	Success       bool        `json:"success"`
	Checked       int         `json:"checked"`
	Completed     int         `json:"completed"`
	Failed        int         `json:"failed"`
	StillPending  int         `json:"still_pending"`
	Errors        int         `json:"errors"`
	VotesCreated  int         `json:"votes_created"`
	TimedOut      bool        `json:"timed_out,omitempty"`
	ExecutionTime float64     `json:"execution_time"` // seconds
	ErrorDetails  []ItemError `json:"error_details,omitempty"`
}

// RecoveryFilter narrows the transactions an operator recovery run touches
type RecoveryFilter struct {
	Since            time.Time           `json:"since"`
	Until            time.Time           `json:"until"`
	Statuses         []TransactionStatus `json:"statuses,omitempty"`
	Reference        string              `json:"reference,omitempty"`
	Limit            int                 `json:"limit,omitempty"`
	ForceMaterialize bool                `json:"force_materialize"`
	DryRun           bool                `json:"dry_run"`
}

// RecoveryAction names what recovery did (or would do) for one transaction
type RecoveryAction string

const (
	RecoveryActionNone        RecoveryAction = "none"
	RecoveryActionCompleted   RecoveryAction = "completed"
	RecoveryActionFailed      RecoveryAction = "failed"
	RecoveryActionPending     RecoveryAction = "still_pending"
	RecoveryActionMaterialize RecoveryAction = "materialized"
	RecoveryActionPartial     RecoveryAction = "materialization_partial"
	RecoveryActionError       RecoveryAction = "error"
)

// RecoveryItem is the per-transaction line of a recovery report
type RecoveryItem struct {
	Reference    string            `json:"reference"`
	Status       TransactionStatus `json:"status"`
	VoteCount    int               `json:"vote_count"`
	VotesBefore  int               `json:"votes_before"`
	VotesCreated int               `json:"votes_created"`
	Action       RecoveryAction    `json:"action"`
	Error        string            `json:"error,omitempty"`
}

// RecoveryReport is returned by operator recovery runs
type RecoveryReport struct {
	Success       bool           `json:"success"`
	DryRun        bool           `json:"dry_run"`
	Examined      int            `json:"examined"`
	Completed     int            `json:"completed"`
	Failed        int            `json:"failed"`
	StillPending  int            `json:"still_pending"`
	Materialized  int            `json:"materialized"`
	Partial       int            `json:"partial"`
	VotesCreated  int            `json:"votes_created"`
	Errors        int            `json:"errors"`
	Items         []RecoveryItem `json:"items"`
	ExecutionTime float64        `json:"execution_time"`
}

// VoteMismatch is a completed transaction whose vote rows don't match VoteCount
type VoteMismatch struct {
	Reference   string    `json:"reference"`
	VoteCount   int       `json:"vote_count"`
	VotesFound  int       `json:"votes_found"`
	CompletedAt time.Time `json:"completed_at"`
}
