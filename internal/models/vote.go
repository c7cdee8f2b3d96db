package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vote is a single vote materialized from a completed Transaction.
// Votes are never updated after insert.
type Vote struct {
	ID               string          `json:"id"`
	EventID          string          `json:"eventId"`
	CategoryID       string          `json:"categoryId"`
	NomineeID        string          `json:"nomineeId"`
	VoterPhone       string          `json:"voterPhone"`
	TransactionID    string          `json:"transactionId"`
	PaymentReference string          `json:"paymentReference"`
	Sequence         int             `json:"sequence"` // 1..VoteCount, unique per transaction
	Amount           decimal.Decimal `json:"amount"`
	VotedAt          time.Time       `json:"votedAt"`
}
