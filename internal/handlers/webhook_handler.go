package handlers

import (
	"errors"
	"net/http"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/services"
	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

// PaymentCallback is the provider's asynchronous status notification. MoMo
// sends externalId/financialTransactionId; the snake_case names are accepted
// from the aggregator.
type PaymentCallback struct {
	Reference              string `json:"reference"`
	ExternalID             string `json:"externalId"`
	Status                 string `json:"status" binding:"required"`
	ProviderTransactionID  string `json:"provider_transaction_id"`
	FinancialTransactionID string `json:"financialTransactionId"`
	Reason                 string `json:"reason"`
}

func (p *PaymentCallback) reference() string {
	if p.Reference != "" {
		return p.Reference
	}
	return p.ExternalID
}

func (p *PaymentCallback) providerTransactionID() string {
	if p.ProviderTransactionID != "" {
		return p.ProviderTransactionID
	}
	return p.FinancialTransactionID
}

// WebhookHandler receives provider callbacks
type WebhookHandler struct {
	transactionService services.TransactionService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(transactionService services.TransactionService) *WebhookHandler {
	return &WebhookHandler{
		transactionService: transactionService,
	}
}

// HandlePaymentCallback handles POST /webhooks/momo. Repeated or late
// callbacks for a settled transaction are acknowledged with 200 so the
// provider stops retrying.
func (h *WebhookHandler) HandlePaymentCallback(c *gin.Context) {
	var cb PaymentCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reference := cb.reference()
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required"})
		return
	}

	ctx := c.Request.Context()
	outcome := services.MapProviderStatus(cb.Status)

	var res *services.TransitionResult
	var err error
	switch outcome {
	case models.ProviderOutcomePaid:
		res, err = h.transactionService.MarkCompleted(ctx, reference, cb.providerTransactionID())
	case models.ProviderOutcomeFailed:
		reason := cb.Reason
		if reason == "" {
			reason = "provider reported " + cb.Status
		}
		res, err = h.transactionService.MarkFailed(ctx, reference, reason)
	default:
		res, err = h.transactionService.MarkProcessing(ctx, reference, cb.providerTransactionID())
	}

	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			slog.Warn("Callback for unknown reference", "reference", reference, "status", cb.Status)
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply callback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reference":    reference,
		"outcome":      outcome,
		"status":       res.Transaction.Status,
		"applied":      res.Applied,
		"votesCreated": res.VotesCreated,
	})
}
