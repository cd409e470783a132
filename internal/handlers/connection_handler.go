package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/secrets"
	"marketplace-sync-service/internal/services"
)

// ConnectionHandler handles marketplace connection endpoints
type ConnectionHandler struct {
	service *services.ConnectionService
	configs *services.SyncConfigService
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(service *services.ConnectionService, configs *services.SyncConfigService) *ConnectionHandler {
	return &ConnectionHandler{service: service, configs: configs}
}

// List returns all connections for a tenant
func (h *ConnectionHandler) List(c *gin.Context) {
	connections, total, err := h.service.List(c.Request.Context(), middleware.GetTenantID(c), listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  connections,
		"total": total,
	})
}

// Create validates the credentials and creates a connection
func (h *ConnectionHandler) Create(c *gin.Context) {
	var req services.CreateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.TenantID = middleware.GetTenantID(c)
	req.CreatedBy = middleware.GetUserID(c)

	connection, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": connection})
}

// Get returns a single connection
func (h *ConnectionHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	connection, err := h.service.Get(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": connection})
}

// Update updates a connection's settings
func (h *ConnectionHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	connection, err := h.service.Update(c.Request.Context(), middleware.GetTenantID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": connection})
}

// Delete deletes a connection
func (h *ConnectionHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.GetTenantID(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "connection deleted"})
}

// TestConnection checks the stored credentials against the marketplace
func (h *ConnectionHandler) TestConnection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.Test(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// UpdateCredentials replaces the credentials for a connection
func (h *ConnectionHandler) UpdateCredentials(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Credentials secrets.Credentials `json:"credentials" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	connection, err := h.service.UpdateCredentials(c.Request.Context(), middleware.GetTenantID(c), id, req.Credentials)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": connection, "message": "credentials updated"})
}

// GetSyncConfig returns the connection's sync policy
func (h *ConnectionHandler) GetSyncConfig(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	cfg, err := h.configs.Get(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

// PutSyncConfig updates the connection's sync policy
func (h *ConnectionHandler) PutSyncConfig(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.SyncConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.configs.Put(c.Request.Context(), middleware.GetTenantID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}
