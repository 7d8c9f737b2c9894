package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"marketplace-service/internal/middleware"
	"marketplace-service/internal/webhook"
)

// Notifier schedules outbound webhooks.
type Notifier interface {
	JobMatch(req webhook.JobMatchRequest)
	ProfileCompleted(event webhook.ProfileCompleted)
}

// WebhookHandler forwards marketplace events to the matching and automation
// services.
type WebhookHandler struct {
	notifier Notifier
	validate *validator.Validate
}

// NewWebhookHandler builds a WebhookHandler.
func NewWebhookHandler(notifier Notifier) *WebhookHandler {
	return &WebhookHandler{notifier: notifier, validate: validator.New()}
}

// RequestJobMatch asks the matching service to rank candidates for a job.
func (h *WebhookHandler) RequestJobMatch(c *gin.Context) {
	var req webhook.JobMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.JobID = c.Param("job_id")
	req.RequestedBy = c.GetString(middleware.ContextUserID)
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.notifier.JobMatch(req)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// ProfileCompleted reports that the caller finished their profile.
func (h *WebhookHandler) ProfileCompleted(c *gin.Context) {
	account, ok := middleware.AccountFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	h.notifier.ProfileCompleted(webhook.ProfileCompleted{
		UserID:      account.AccountID(),
		Name:        account.DisplayName(),
		Role:        string(account.AccountRole()),
		CompletedAt: time.Now().UTC(),
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
