package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/models"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/services"
	"github.com/gin-gonic/gin"
)

// ReconcileRequest is the operator batch request body
type ReconcileRequest struct {
	BatchSize *int `json:"batch_size"`
}

// ReconciliationHandler exposes the status poller and recovery tool to operators
type ReconciliationHandler struct {
	poller   services.BatchRunner
	recovery services.RecoveryService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(poller services.BatchRunner, recovery services.RecoveryService) *ReconciliationHandler {
	return &ReconciliationHandler{
		poller:   poller,
		recovery: recovery,
	}
}

// RunBatch handles POST /operator/reconcile
func (h *ReconciliationHandler) RunBatch(c *gin.Context) {
	var req ReconcileRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.BatchSize == nil {
		if raw := c.Query("batch_size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "batch_size must be an integer"})
				return
			}
			req.BatchSize = &n
		}
	}

	batchSize := h.poller.DefaultBatchSize()
	if req.BatchSize != nil {
		batchSize = *req.BatchSize
	}

	result, err := h.poller.RunBatch(c.Request.Context(), batchSize)
	if err != nil {
		status := http.StatusInternalServerError
		if services.IsConfigurationError(err) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error(), "result": result})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Recover handles POST /operator/recover
func (h *ReconciliationHandler) Recover(c *gin.Context) {
	var filter models.RecoveryFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.recovery.Recover(c.Request.Context(), filter)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidFilter):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case services.IsConfigurationError(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error(), "report": report})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "report": report})
		}
		return
	}

	c.JSON(http.StatusOK, report)
}

// Audit handles GET /operator/audit?since=...&until=...&limit=...
func (h *ReconciliationHandler) Audit(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mismatches, err := h.recovery.Audit(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, services.ErrInvalidFilter) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to audit votes: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(mismatches), "mismatches": mismatches})
}

// filterFromQuery reads since/until as RFC3339 or YYYY-MM-DD
func filterFromQuery(c *gin.Context) (models.RecoveryFilter, error) {
	var filter models.RecoveryFilter
	var err error
	if raw := c.Query("since"); raw != "" {
		if filter.Since, err = ParseTime(raw); err != nil {
			return filter, errors.New("invalid since (RFC3339 or YYYY-MM-DD)")
		}
	}
	if raw := c.Query("until"); raw != "" {
		if filter.Until, err = ParseTime(raw); err != nil {
			return filter, errors.New("invalid until (RFC3339 or YYYY-MM-DD)")
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			return filter, errors.New("limit must be an integer")
		}
	}
	filter.Reference = c.Query("reference")
	return filter, nil
}

// ParseTime accepts RFC3339 timestamps and plain dates (UTC midnight)
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
