package feed

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Feed Errors
// ---------------------------------------------------------------------------

var (
	// ErrMissingExternalID indicates a row without a usable external product ID
	ErrMissingExternalID = errors.New("feed: missing external product ID")
	// ErrMissingName indicates a row without a product name
	ErrMissingName = errors.New("feed: missing product name")
	// ErrInvalidPrice indicates a malformed or negative price field
	ErrInvalidPrice = errors.New("feed: invalid price")
	// ErrInvalidQuantity indicates a malformed or negative quantity field
	ErrInvalidQuantity = errors.New("feed: invalid quantity")
	// ErrInvalidTimestamp indicates an unparsable last-updated timestamp
	ErrInvalidTimestamp = errors.New("feed: invalid last-updated timestamp")
	// ErrNotForSale indicates the row's sale status is not SELLING
	ErrNotForSale = errors.New("feed: product not available for sale")
	// ErrCategoryExcluded indicates the row's category is outside the allow-list
	ErrCategoryExcluded = errors.New("feed: category not in allow-list")
)

// ---------------------------------------------------------------------------
// SaleStatus
// ---------------------------------------------------------------------------

// SaleStatus is the marketplace's sale-status value for a catalog row.
type SaleStatus string

const (
	// SaleStatusSelling is the only status eligible for listing
	SaleStatusSelling SaleStatus = "SELLING"
	// SaleStatusSoldOut indicates the item is no longer purchasable
	SaleStatusSoldOut SaleStatus = "SOLD_OUT"
	// SaleStatusSuspended indicates the listing is suspended by the marketplace
	SaleStatusSuspended SaleStatus = "SUSPENDED"
)

// ForSale reports whether the status is the single sellable value.
func (s SaleStatus) ForSale() bool {
	return s == SaleStatusSelling
}

// String returns the string representation of SaleStatus.
func (s SaleStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// CatalogRecord
// ---------------------------------------------------------------------------

// ImageResolutionPlaceholder is the token marketplace image templates embed
// where a concrete resolution belongs. Raw image references containing it
// are expanded before the record leaves the normalizer.
const ImageResolutionPlaceholder = "{size}"

// CatalogRecord is one validated row of the marketplace catalog feed.
// Records are ephemeral: constructed during a single parse pass, consumed
// by the reconciliation orchestrator, then discarded.
type CatalogRecord struct {
	// ExternalID is the marketplace product ID, the reconciliation key
	ExternalID string
	// Name is the product title
	Name string
	// Description is the free-text product description
	Description string
	// Quantity is the sellable quantity, always >= 0
	Quantity int
	// Price is the item price in the source currency
	Price decimal.Decimal
	// ShippingFee is the marketplace shipping fee in the source currency
	ShippingFee decimal.Decimal
	// Condition is the marketplace condition label (e.g. "new", "used")
	Condition string
	// SaleStatus is the row's sale status; only SELLING rows survive the filter
	SaleStatus SaleStatus
	// Keywords carries the ordered free-text keyword list
	Keywords []string
	// ImageURLs are the expanded image URLs for the row
	ImageURLs []string
	// CategoryID is the marketplace category ID
	CategoryID string
	// CategoryName is the marketplace category name
	CategoryName string
	// OptionPayload is the raw option blob, passed through opaquely
	OptionPayload string
	// LastUpdated is the marketplace's last-modified timestamp for the row.
	// Load-bearing for idempotency: rows without it are dropped upstream.
	LastUpdated *time.Time
}

// ExpandImageRefs splits a raw image reference (single URL or comma list)
// and substitutes the resolution placeholder. Empty entries are skipped.
func ExpandImageRefs(raw, resolution string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		u := strings.TrimSpace(p)
		if u == "" {
			continue
		}
		if strings.Contains(u, ImageResolutionPlaceholder) {
			u = strings.ReplaceAll(u, ImageResolutionPlaceholder, resolution)
		}
		urls = append(urls, u)
	}
	return urls
}

// SplitKeywords splits the raw keyword field preserving order and dropping
// empty entries.
func SplitKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}
