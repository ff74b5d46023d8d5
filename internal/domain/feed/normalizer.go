package feed

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Feed column names. The feed schema is fixed; header names arrive exactly
// as below.
const (
	ColumnExternalID   = "id"
	ColumnName         = "name"
	ColumnDescription  = "description"
	ColumnQuantity     = "quantity"
	ColumnPrice        = "price"
	ColumnShippingFee  = "shipping_fee"
	ColumnCondition    = "condition"
	ColumnStatus       = "status"
	ColumnKeywords     = "keywords"
	ColumnImageURL     = "image_url"
	ColumnCategoryID   = "category_id"
	ColumnCategoryName = "category_name"
	ColumnOptions      = "options"
	ColumnUpdatedAt    = "updated_at"
)

// RequiredColumns are the headers a feed file must carry.
var RequiredColumns = []string{
	ColumnExternalID, ColumnName, ColumnPrice, ColumnStatus, ColumnUpdatedAt,
}

// timestampLayouts are the accepted layouts for feed timestamps, tried in
// order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// defaultImageResolution substitutes the image template placeholder when no
// resolution is configured.
const defaultImageResolution = "600"

// ---------------------------------------------------------------------------
// Normalizer
// ---------------------------------------------------------------------------

// Normalizer coerces raw feed rows into CatalogRecords and applies the
// inclusion policy. It keeps no per-row state beyond the running counters,
// so a single Normalizer handles feeds of any length in constant memory.
type Normalizer struct {
	categoryAllowList map[string]struct{}
	imageResolution   string
	logger            *zap.Logger

	rowsSeen     int
	rowsAccepted int
}

// NormalizerOption is a functional option for Normalizer configuration.
type NormalizerOption func(*Normalizer)

// WithCategoryAllowList restricts accepted rows to the given category IDs.
// An empty list disables category filtering.
func WithCategoryAllowList(categoryIDs []string) NormalizerOption {
	return func(n *Normalizer) {
		for _, id := range categoryIDs {
			if id = strings.TrimSpace(id); id != "" {
				n.categoryAllowList[id] = struct{}{}
			}
		}
	}
}

// WithImageResolution sets the resolution substituted into image URL
// templates.
func WithImageResolution(res string) NormalizerOption {
	return func(n *Normalizer) {
		if res != "" {
			n.imageResolution = res
		}
	}
}

// WithLogger sets the logger used for per-row drop diagnostics.
func WithLogger(logger *zap.Logger) NormalizerOption {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// NewNormalizer creates a Normalizer with the given options.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		categoryAllowList: make(map[string]struct{}),
		imageResolution:   defaultImageResolution,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize coerces one raw row into a CatalogRecord. It returns nil when
// the row is dropped by the inclusion policy; the returned error names the
// drop reason and is diagnostic only (a dropped row never fails the batch).
func (n *Normalizer) Normalize(values map[string]string, rowNum int) (*CatalogRecord, error) {
	n.rowsSeen++

	rec, err := n.normalize(values)
	if err != nil {
		n.logger.Debug("Dropping feed row",
			zap.Int("row", rowNum),
			zap.String("external_id", values[ColumnExternalID]),
			zap.Error(err),
		)
		return nil, err
	}

	n.rowsAccepted++
	return rec, nil
}

// RowsSeen returns the number of rows this normalizer has examined.
func (n *Normalizer) RowsSeen() int { return n.rowsSeen }

// RowsAccepted returns the number of rows that passed the filter.
func (n *Normalizer) RowsAccepted() int { return n.rowsAccepted }

func (n *Normalizer) normalize(values map[string]string) (*CatalogRecord, error) {
	status := SaleStatus(strings.ToUpper(strings.TrimSpace(values[ColumnStatus])))
	if !status.ForSale() {
		return nil, ErrNotForSale
	}

	externalID := strings.TrimSpace(values[ColumnExternalID])
	if externalID == "" {
		return nil, ErrMissingExternalID
	}

	name := strings.TrimSpace(values[ColumnName])
	if name == "" {
		return nil, ErrMissingName
	}

	price, err := decimal.NewFromString(strings.TrimSpace(values[ColumnPrice]))
	if err != nil {
		return nil, ErrInvalidPrice
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}

	// Quantity defaults to zero when absent; zero is sellable (it maps to a
	// no-backorder inventory policy downstream), negative is not.
	quantity := 0
	if raw := strings.TrimSpace(values[ColumnQuantity]); raw != "" {
		quantity, err = strconv.Atoi(raw)
		if err != nil || quantity < 0 {
			return nil, ErrInvalidQuantity
		}
	}

	// Shipping fee is optional; malformed values degrade to zero rather
	// than dropping the row, the listing price does not depend on it.
	shippingFee := decimal.Zero
	if raw := strings.TrimSpace(values[ColumnShippingFee]); raw != "" {
		if fee, feeErr := decimal.NewFromString(raw); feeErr == nil && !fee.IsNegative() {
			shippingFee = fee
		}
	}

	// The last-updated timestamp is load-bearing for idempotency: a row
	// without one can never be compared against stored sync state.
	updatedAt := parseTimestamp(values[ColumnUpdatedAt])
	if updatedAt == nil {
		return nil, ErrInvalidTimestamp
	}

	categoryID := strings.TrimSpace(values[ColumnCategoryID])
	if len(n.categoryAllowList) > 0 {
		if _, ok := n.categoryAllowList[categoryID]; !ok {
			return nil, ErrCategoryExcluded
		}
	}

	return &CatalogRecord{
		ExternalID:    externalID,
		Name:          name,
		Description:   values[ColumnDescription],
		Quantity:      quantity,
		Price:         price,
		ShippingFee:   shippingFee,
		Condition:     strings.TrimSpace(values[ColumnCondition]),
		SaleStatus:    status,
		Keywords:      SplitKeywords(values[ColumnKeywords]),
		ImageURLs:     ExpandImageRefs(values[ColumnImageURL], n.imageResolution),
		CategoryID:    categoryID,
		CategoryName:  strings.TrimSpace(values[ColumnCategoryName]),
		OptionPayload: values[ColumnOptions],
		LastUpdated:   updatedAt,
	}, nil
}

// parseTimestamp tries the accepted feed layouts in order. It returns nil
// on failure; callers decide whether a nil timestamp drops the row.
func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
