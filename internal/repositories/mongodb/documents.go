package mongodb

import (
	"fmt"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// transactionDocument is the BSON shape of models.Transaction
type transactionDocument struct {
	ID                    string               `bson:"_id"`
	Reference             string               `bson:"reference"`
	ProviderTransactionID string               `bson:"providerTransactionId"`
	EventID               string               `bson:"eventId"`
	CategoryID            string               `bson:"categoryId"`
	NomineeID             string               `bson:"nomineeId"`
	VoterPhone            string               `bson:"voterPhone"`
	VoteCount             int                  `bson:"voteCount"`
	Amount                primitive.Decimal128 `bson:"amount"`
	Currency              string               `bson:"currency"`
	Status                string               `bson:"status"`
	FailureReason         string               `bson:"failureReason"`
	CreatedAt             time.Time            `bson:"createdAt"`
	UpdatedAt             time.Time            `bson:"updatedAt"`
	CompletedAt           *time.Time           `bson:"completedAt,omitempty"`
}

// voteDocument is the BSON shape of models.Vote
type voteDocument struct {
	ID               string               `bson:"_id"`
	TransactionID    string               `bson:"transactionId"`
	PaymentReference string               `bson:"paymentReference"`
	Sequence         int                  `bson:"sequence"`
	EventID          string               `bson:"eventId"`
	CategoryID       string               `bson:"categoryId"`
	NomineeID        string               `bson:"nomineeId"`
	VoterPhone       string               `bson:"voterPhone"`
	Amount           primitive.Decimal128 `bson:"amount"`
	VotedAt          time.Time            `bson:"votedAt"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("invalid amount %s: %w", d.String(), err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %s: %w", v.String(), err)
	}
	return d, nil
}

func newTransactionDocument(txn *models.Transaction) (*transactionDocument, error) {
	amount, err := toDecimal128(txn.Amount)
	if err != nil {
		return nil, err
	}
	return &transactionDocument{
		ID:                    txn.ID,
		Reference:             txn.Reference,
		ProviderTransactionID: txn.ProviderTransactionID,
		EventID:               txn.EventID,
		CategoryID:            txn.CategoryID,
		NomineeID:             txn.NomineeID,
		VoterPhone:            txn.VoterPhone,
		VoteCount:             txn.VoteCount,
		Amount:                amount,
		Currency:              txn.Currency,
		Status:                string(txn.Status),
		FailureReason:         txn.FailureReason,
		CreatedAt:             txn.CreatedAt,
		UpdatedAt:             txn.UpdatedAt,
		CompletedAt:           txn.CompletedAt,
	}, nil
}

func (d *transactionDocument) model() (*models.Transaction, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, err
	}
	return &models.Transaction{
		ID:                    d.ID,
		Reference:             d.Reference,
		ProviderTransactionID: d.ProviderTransactionID,
		EventID:               d.EventID,
		CategoryID:            d.CategoryID,
		NomineeID:             d.NomineeID,
		VoterPhone:            d.VoterPhone,
		VoteCount:             d.VoteCount,
		Amount:                amount,
		Currency:              d.Currency,
		Status:                models.TransactionStatus(d.Status),
		FailureReason:         d.FailureReason,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
		CompletedAt:           d.CompletedAt,
	}, nil
}

func newVoteDocument(vote *models.Vote) (*voteDocument, error) {
	amount, err := toDecimal128(vote.Amount)
	if err != nil {
		return nil, err
	}
	return &voteDocument{
		ID:               vote.ID,
		TransactionID:    vote.TransactionID,
		PaymentReference: vote.PaymentReference,
		Sequence:         vote.Sequence,
		EventID:          vote.EventID,
		CategoryID:       vote.CategoryID,
		NomineeID:        vote.NomineeID,
		VoterPhone:       vote.VoterPhone,
		Amount:           amount,
		VotedAt:          vote.VotedAt,
	}, nil
}

func (d *voteDocument) model() (*models.Vote, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, err
	}
	return &models.Vote{
		ID:               d.ID,
		TransactionID:    d.TransactionID,
		PaymentReference: d.PaymentReference,
		Sequence:         d.Sequence,
		EventID:          d.EventID,
		CategoryID:       d.CategoryID,
		NomineeID:        d.NomineeID,
		VoterPhone:       d.VoterPhone,
		Amount:           amount,
		VotedAt:          d.VotedAt,
	}, nil
}
