package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/domain/order"
)

// OrderPlacer reconciles one inbound destination order against the source
// marketplace. Implemented by the ordersync reconciler.
type OrderPlacer interface {
	PlaceSourceOrders(ctx context.Context, inbound *order.InboundOrder) (*order.PlacementResult, error)
}

// OrderWebhookHandler receives destination-platform order events and hands
// them to the order reconciler.
type OrderWebhookHandler struct {
	placer OrderPlacer
	logger *zap.Logger
}

// NewOrderWebhookHandler creates an OrderWebhookHandler.
func NewOrderWebhookHandler(placer OrderPlacer, logger *zap.Logger) *OrderWebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderWebhookHandler{placer: placer, logger: logger}
}

// RegisterRoutes registers the webhook routes.
func (h *OrderWebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/orders", h.HandleOrderCreated)
}

// HandleOrderCreated processes one order-created event. Per-item placement
// failures still return 200: the outcome is recorded on the destination
// order and a webhook retry would be redundant. Only malformed payloads
// (400) and reconciler-level failures (500, safe to redeliver) differ.
func (h *OrderWebhookHandler) HandleOrderCreated(c *gin.Context) {
	var inbound order.InboundOrder
	if err := c.ShouldBindJSON(&inbound); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "malformed order event: " + err.Error(),
		})
		return
	}

	result, err := h.placer.PlaceSourceOrders(c.Request.Context(), &inbound)
	switch {
	case errors.Is(err, order.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	case errors.Is(err, order.ErrDuplicateOrder):
		// Redelivery of a processed event is acknowledged, not re-run.
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"duplicate": true,
		})
		return
	case err != nil:
		h.logger.Error("Order reconciliation failed",
			zap.Int64("order_id", inbound.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "order reconciliation failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"succeeded":        result.Succeeded,
		"source_order_ids": result.SourceOrderIDs,
	})
}
