package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/services"
)

// ProductHandler pushes canonical product changes to marketplaces
type ProductHandler struct {
	push *services.ProductPushService
}

// NewProductHandler creates a new product handler
func NewProductHandler(push *services.ProductPushService) *ProductHandler {
	return &ProductHandler{push: push}
}

// Push sends price, rrp, stock or status to one linked marketplace
func (h *ProductHandler) Push(c *gin.Context) {
	productID, ok := parseID(c, "productId")
	if !ok {
		return
	}
	connectionID, ok := parseID(c, "connectionId")
	if !ok {
		return
	}

	var req services.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.push.Push(c.Request.Context(), middleware.GetTenantID(c), productID, connectionID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
