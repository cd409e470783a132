package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
	"marketplace-sync-service/internal/services"
)

// ConflictHandler handles conflict review endpoints
type ConflictHandler struct {
	service *services.ConflictService
}

// NewConflictHandler creates a new conflict handler
func NewConflictHandler(service *services.ConflictService) *ConflictHandler {
	return &ConflictHandler{service: service}
}

type settleRequest struct {
	Note string `json:"note"`
}

// List returns the tenant's conflicts, optionally by status or product
func (h *ConflictHandler) List(c *gin.Context) {
	productID, ok := parseOptionalID(c, "productId")
	if !ok {
		return
	}

	filter := repository.ConflictFilter{
		Status:      models.ConflictStatus(c.Query("status")),
		ProductID:   productID,
		ListOptions: listOptions(c),
	}
	conflicts, total, err := h.service.List(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  conflicts,
		"total": total,
	})
}

// Get returns a single conflict
func (h *ConflictHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	conflict, err := h.service.Get(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": conflict})
}

// Resolve marks a pending conflict resolved
func (h *ConflictHandler) Resolve(c *gin.Context) {
	h.settle(c, h.service.Resolve)
}

// Ignore marks a pending conflict ignored
func (h *ConflictHandler) Ignore(c *gin.Context) {
	h.settle(c, h.service.Ignore)
}

type settleFunc func(ctx context.Context, tenantID string, id uuid.UUID, by, note string) (*models.Conflict, error)

func (h *ConflictHandler) settle(c *gin.Context, fn settleFunc) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req settleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	conflict, err := fn(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUserID(c), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": conflict})
}
