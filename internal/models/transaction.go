package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a payment attempt
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// IsTerminal reports whether no further transition is legal from s
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Valid reports whether s is one of the known statuses
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}

// UnconfirmedStatuses are the statuses the poller and recovery tool chase
var UnconfirmedStatuses = []TransactionStatus{TransactionStatusPending, TransactionStatusProcessing}

// Transaction represents one mobile-money payment attempt for votes
type Transaction struct {
	ID                    string            `json:"id"`
	Reference             string            `json:"reference"`
	ProviderTransactionID string            `json:"providerTransactionId,omitempty"`
	EventID               string            `json:"eventId"`
	CategoryID            string            `json:"categoryId"`
	NomineeID             string            `json:"nomineeId"`
	VoterPhone            string            `json:"voterPhone"`
	VoteCount             int               `json:"voteCount"`
	Amount                decimal.Decimal   `json:"amount"`
	Currency              string            `json:"currency"`
	Status                TransactionStatus `json:"status"`
	FailureReason         string            `json:"failureReason,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
	CompletedAt           *time.Time        `json:"completedAt,omitempty"`
}

// CreateTransactionRequest is the payload the USSD flow submits once a charge
// has been initiated with the provider
type CreateTransactionRequest struct {
	Reference  string          `json:"reference" binding:"required"`
	EventID    string          `json:"eventId" binding:"required"`
	CategoryID string          `json:"categoryId" binding:"required"`
	NomineeID  string          `json:"nomineeId" binding:"required"`
	VoterPhone string          `json:"voterPhone" binding:"required"`
	VoteCount  int             `json:"voteCount" binding:"required,min=1"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}
