package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Order Errors
// ---------------------------------------------------------------------------

var (
	// ErrInvalidOrder indicates an inbound order event without line items or identity
	ErrInvalidOrder = errors.New("order: invalid inbound order")
	// ErrDuplicateOrder indicates the inbound order was already processed
	ErrDuplicateOrder = errors.New("order: already processed")
)

// ---------------------------------------------------------------------------
// Linked SKU Convention
// ---------------------------------------------------------------------------

// LinkedSKUPrefix marks destination SKUs that embed a source marketplace
// product ID. The convention is deliberately explicit: encode and decode
// live here so the prefix can be tested and, if ever needed, swapped.
const LinkedSKUPrefix = "BJ-"

// EncodeLinkedSKU builds the destination SKU for a source product ID.
func EncodeLinkedSKU(sourceProductID string) string {
	return LinkedSKUPrefix + sourceProductID
}

// DecodeLinkedSKU extracts the source product ID from a destination SKU.
// It returns ("", false) for SKUs outside the convention.
func DecodeLinkedSKU(sku string) (string, bool) {
	if !strings.HasPrefix(sku, LinkedSKUPrefix) {
		return "", false
	}
	id := sku[len(LinkedSKUPrefix):]
	if id == "" {
		return "", false
	}
	return id, true
}

// ---------------------------------------------------------------------------
// Inbound Order Event
// ---------------------------------------------------------------------------

// LineItem is one line of an inbound destination order event.
type LineItem struct {
	// SKU is the destination SKU string; linked items carry LinkedSKUPrefix
	SKU string `json:"sku" validate:"required"`
	// Title is the line item title
	Title string `json:"title"`
	// Quantity is the ordered quantity
	Quantity int `json:"quantity" validate:"gte=1"`
	// Price is the destination unit price as a fixed-point string
	Price string `json:"price" validate:"required"`
}

// InboundOrder is the destination-platform order event the webhook layer
// hands to the order reconciler.
type InboundOrder struct {
	// ID is the destination order's unique numeric identifier
	ID int64 `json:"id" validate:"required"`
	// AdminGraphQLAPIID is the destination platform's global order ID
	AdminGraphQLAPIID string `json:"admin_graphql_api_id" validate:"required"`
	// Name is the human-facing order number
	Name string `json:"name"`
	// LineItems are the ordered lines; at least one is required
	LineItems []LineItem `json:"line_items" validate:"required,min=1,dive"`
	// CreatedAt is the destination order creation time
	CreatedAt time.Time `json:"created_at"`
}

// LinkedItem is a line item whose SKU decoded to a source product ID.
type LinkedItem struct {
	// SourceProductID is the marketplace product embedded in the SKU
	SourceProductID string
	// Item is the originating line item
	Item LineItem
}

// LinkedItems filters the order's lines to those carrying the linked-SKU
// convention, preserving order.
func (o *InboundOrder) LinkedItems() []LinkedItem {
	linked := make([]LinkedItem, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		if id, ok := DecodeLinkedSKU(item.SKU); ok {
			linked = append(linked, LinkedItem{SourceProductID: id, Item: item})
		}
	}
	return linked
}

// ---------------------------------------------------------------------------
// Placement Result
// ---------------------------------------------------------------------------

// ItemOutcome records what happened to one linked line item.
type ItemOutcome struct {
	// SourceProductID is the marketplace product the item referenced
	SourceProductID string
	// SourceOrderID is the placed order's ID; empty on failure
	SourceOrderID string
	// ItemPrice is the marketplace price snapshot at order time
	ItemPrice decimal.Decimal
	// ActualShippingFee is the true marketplace shipping fee, retained as
	// metadata while the delivery price sent upstream is forced to zero
	ActualShippingFee decimal.Decimal
	// Err is the failure for this item; nil on success
	Err error
}

// PlacementResult is the overall outcome of reconciling one inbound order.
type PlacementResult struct {
	// Succeeded is true iff at least one linked item placed a source order
	Succeeded bool
	// SourceOrderIDs are the marketplace order IDs created
	SourceOrderIDs []string
	// Outcomes records per-item detail, visible externally only via the
	// destination order's tags
	Outcomes []ItemOutcome
}

// ---------------------------------------------------------------------------
// Idempotency Port
// ---------------------------------------------------------------------------

// IdempotencyStore guards against redelivered inbound order events placing
// duplicate marketplace orders. Keys are the inbound order's unique ID.
type IdempotencyStore interface {
	// MarkProcessed atomically marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether the key was already processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases the store's resources
	Close() error
}
