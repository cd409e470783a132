package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/services"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles marketplace webhook endpoints
type WebhookHandler struct {
	service *services.WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// Receive accepts a delivery for /webhooks/:marketplace/:connectionId
func (h *WebhookHandler) Receive(c *gin.Context) {
	marketplaceType := models.MarketplaceType(strings.ToUpper(c.Param("marketplace")))
	if !marketplaceType.IsValid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown marketplace"})
		return
	}
	connectionID, ok := parseID(c, "connectionId")
	if !ok {
		return
	}

	// Signatures are computed over the raw body
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	receipt, err := h.service.Receive(c.Request.Context(), marketplaceType, connectionID, &clients.WebhookRequest{
		Headers: c.Request.Header.Clone(),
		Body:    payload,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// ListEvents returns a connection's recent webhook deliveries
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	events, err := h.service.ListEvents(c.Request.Context(), middleware.GetTenantID(c), id, listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}
