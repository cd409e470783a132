package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
	"marketplace-sync-service/internal/services"
)

// SyncHandler handles ingestion and sync run endpoints
type SyncHandler struct {
	service *services.SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service *services.SyncService) *SyncHandler {
	return &SyncHandler{service: service}
}

// Ingest ingests pushed native records, or syncs the connection when the
// body carries none
func (h *SyncHandler) Ingest(c *gin.Context) {
	var req services.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.service.Ingest(c.Request.Context(), middleware.GetTenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Run runs one sync cycle over the tenant's connections. With a
// connectionId query parameter only that connection is synced.
func (h *SyncHandler) Run(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	connectionID, ok := parseOptionalID(c, "connectionId")
	if !ok {
		return
	}
	if connectionID != nil {
		run, err := h.service.SyncConnection(c.Request.Context(), tenantID, *connectionID, models.TriggerManual)
		if err != nil && run == nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": run})
		return
	}

	summary, err := h.service.RunCycleForTenant(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// ListRuns returns the tenant's sync history
func (h *SyncHandler) ListRuns(c *gin.Context) {
	connectionID, ok := parseOptionalID(c, "connectionId")
	if !ok {
		return
	}

	filter := repository.RunFilter{
		ConnectionID: connectionID,
		Status:       models.SyncRunStatus(c.Query("status")),
		ListOptions:  listOptions(c),
	}
	runs, total, err := h.service.ListRuns(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  runs,
		"total": total,
	})
}

// GetRun returns a single sync run
func (h *SyncHandler) GetRun(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": run})
}
