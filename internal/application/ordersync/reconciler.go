// Package ordersync reconciles inbound destination orders against the
// source marketplace: linked line items place real marketplace orders, and
// the outcome is written back onto the destination order as tags and
// structured metadata.
package ordersync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/domain/order"
	"github.com/bridgesync/backend/internal/domain/sync"
	"github.com/bridgesync/backend/internal/infrastructure/retry"
)

// Destination order tag vocabulary. Tags are the only externally visible
// per-item outcome record.
const (
	// TagOrdered marks a destination order with at least one placed source order
	TagOrdered = "source-ordered"
	// orderTagPrefix prefixes the per-item source order ID tag
	orderTagPrefix = "source-order:"
	// errorTagPrefix prefixes the per-item failure tag, naming the source product
	errorTagPrefix = "source-order-error:"
)

// metafieldNamespace scopes the order metadata written back to the
// destination platform.
const metafieldNamespace = "bridgesync"

// defaultIdempotencyTTL bounds how long a processed inbound order ID is
// remembered. Redeliveries arrive within hours; days of margin is plenty.
const defaultIdempotencyTTL = 72 * time.Hour

// ---------------------------------------------------------------------------
// Reconciler
// ---------------------------------------------------------------------------

// Config holds the order reconciler's knobs.
type Config struct {
	// IdempotencyTTL is how long processed inbound order IDs are remembered
	IdempotencyTTL time.Duration
}

// Reconciler places source marketplace orders for linked line items of
// inbound destination orders.
type Reconciler struct {
	source      sync.SourceClient
	destination sync.DestinationClient
	store       order.IdempotencyStore
	retrier     *retry.Retrier
	validate    *validator.Validate
	cfg         Config
	logger      *zap.Logger
}

// Option is a functional option for Reconciler configuration.
type Option func(*Reconciler)

// WithLogger sets the reconciler's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler creates a Reconciler over the given clients and
// idempotency store.
func NewReconciler(source sync.SourceClient, destination sync.DestinationClient, store order.IdempotencyStore, retrier *retry.Retrier, cfg Config, opts ...Option) *Reconciler {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	r := &Reconciler{
		source:      source,
		destination: destination,
		store:       store,
		retrier:     retrier,
		validate:    validator.New(),
		cfg:         cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PlaceSourceOrders reconciles one inbound destination order. Per-item
// failures are converted into error tags on the destination order and never
// propagate; the result succeeds iff at least one linked item placed a
// source order. A redelivered order returns order.ErrDuplicateOrder without
// touching the marketplace.
func (r *Reconciler) PlaceSourceOrders(ctx context.Context, inbound *order.InboundOrder) (*order.PlacementResult, error) {
	if inbound == nil {
		return nil, order.ErrInvalidOrder
	}
	if err := r.validate.Struct(inbound); err != nil {
		return nil, fmt.Errorf("%w: %v", order.ErrInvalidOrder, err)
	}

	log := r.logger.With(
		zap.Int64("order_id", inbound.ID),
		zap.String("order_name", inbound.Name),
	)

	// Claim the inbound order before any marketplace call; a lost claim
	// means another delivery of the same event already ran.
	key := strconv.FormatInt(inbound.ID, 10)
	fresh, err := r.store.MarkProcessed(ctx, key, r.cfg.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("ordersync: idempotency claim failed: %w", err)
	}
	if !fresh {
		log.Info("Skipping redelivered order")
		return nil, order.ErrDuplicateOrder
	}

	linked := inbound.LinkedItems()
	if len(linked) == 0 {
		log.Debug("Order carries no linked items")
		return &order.PlacementResult{}, nil
	}

	result := &order.PlacementResult{
		Outcomes: make([]order.ItemOutcome, 0, len(linked)),
	}
	for _, item := range linked {
		outcome := r.placeOne(ctx, item, log)
		if outcome.Err == nil {
			result.Succeeded = true
			result.SourceOrderIDs = append(result.SourceOrderIDs, outcome.SourceOrderID)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	r.writeBack(ctx, inbound, result, log)

	log.Info("Order reconciled",
		zap.Bool("succeeded", result.Succeeded),
		zap.Int("linked_items", len(linked)),
		zap.Int("placed", len(result.SourceOrderIDs)),
	)
	return result, nil
}

// placeOne places a source order for one linked item. Every failure is
// captured in the outcome rather than returned.
func (r *Reconciler) placeOne(ctx context.Context, item order.LinkedItem, log *zap.Logger) order.ItemOutcome {
	outcome := order.ItemOutcome{SourceProductID: item.SourceProductID}

	product, err := retry.Do(ctx, r.retrier, "source product lookup", func(ctx context.Context) (*sync.SourceProduct, error) {
		return r.source.GetProductDetails(ctx, item.SourceProductID)
	})
	if err != nil {
		log.Warn("Source product lookup failed",
			zap.String("source_product_id", item.SourceProductID),
			zap.Error(err),
		)
		outcome.Err = err
		return outcome
	}
	if product == nil {
		log.Warn("Source product no longer exists",
			zap.String("source_product_id", item.SourceProductID),
		)
		outcome.Err = fmt.Errorf("ordersync: source product %s not found", item.SourceProductID)
		return outcome
	}

	outcome.ItemPrice = product.Price
	outcome.ActualShippingFee = product.ShippingFee

	// Delivery price goes upstream as zero; shipping is invoiced
	// out-of-band and the true fee survives only as order metadata.
	placed, err := retry.Do(ctx, r.retrier, "source order create", func(ctx context.Context) (*sync.SourceOrder, error) {
		return r.source.CreateOrder(ctx, sync.SourceOrderRequest{
			ProductID:     item.SourceProductID,
			Price:         product.Price,
			DeliveryPrice: decimal.Zero,
		})
	})
	if err != nil {
		log.Warn("Source order placement failed",
			zap.String("source_product_id", item.SourceProductID),
			zap.Error(err),
		)
		outcome.Err = err
		return outcome
	}

	outcome.SourceOrderID = placed.ID
	log.Info("Source order placed",
		zap.String("source_product_id", item.SourceProductID),
		zap.String("source_order_id", placed.ID),
		zap.String("item_price", product.Price.StringFixed(2)),
	)
	return outcome
}

// writeBack pushes the per-item outcomes onto the destination order as one
// batched tags-plus-metafields update. Best effort: the source orders are
// already placed, so a failed write-back is logged and swallowed.
func (r *Reconciler) writeBack(ctx context.Context, inbound *order.InboundOrder, result *order.PlacementResult, log *zap.Logger) {
	update := sync.OrderUpdate{
		ID:         inbound.AdminGraphQLAPIID,
		Tags:       buildTags(result),
		Metafields: buildMetafields(result),
	}
	if len(update.Tags) == 0 && len(update.Metafields) == 0 {
		return
	}

	_, err := retry.Do(ctx, r.retrier, "order write-back", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.destination.UpdateOrder(ctx, update)
	})
	if err != nil {
		log.Error("Order write-back failed", zap.Error(err))
	}
}

// buildTags assembles the destination order tags from the per-item
// outcomes: one success tag per placed order, one error tag per failure,
// plus the overall marker when anything placed.
func buildTags(result *order.PlacementResult) []string {
	tags := make([]string, 0, len(result.Outcomes)+1)
	if result.Succeeded {
		tags = append(tags, TagOrdered)
	}
	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			tags = append(tags, errorTagPrefix+outcome.SourceProductID)
			continue
		}
		tags = append(tags, orderTagPrefix+outcome.SourceOrderID)
	}
	return tags
}

// itemMetadata is the JSON payload persisted per placed item.
type itemMetadata struct {
	SourceOrderID     string `json:"source_order_id"`
	SourceProductID   string `json:"source_product_id"`
	ItemPrice         string `json:"item_price"`
	DeliveryCharged   string `json:"delivery_charged"`
	ActualShippingFee string `json:"actual_shipping_fee"`
}

// buildMetafields serializes each placed item's cost detail into one
// metafield, keyed by the source product ID.
func buildMetafields(result *order.PlacementResult) []sync.Metafield {
	fields := make([]sync.Metafield, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			continue
		}
		value, err := json.Marshal(itemMetadata{
			SourceOrderID:     outcome.SourceOrderID,
			SourceProductID:   outcome.SourceProductID,
			ItemPrice:         outcome.ItemPrice.StringFixed(2),
			DeliveryCharged:   "0.00",
			ActualShippingFee: outcome.ActualShippingFee.StringFixed(2),
		})
		if err != nil {
			continue
		}
		fields = append(fields, sync.Metafield{
			Namespace: metafieldNamespace,
			Key:       "source_order_" + outcome.SourceProductID,
			Type:      "json",
			Value:     string(value),
		})
	}
	return fields
}
