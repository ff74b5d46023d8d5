package sync

import (
	"context"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Repository Ports
// ---------------------------------------------------------------------------

// StateReader defines read access to persisted sync state.
type StateReader interface {
	// FindByExternalID returns the state for an external product ID, or
	// ErrStateNotFound
	FindByExternalID(ctx context.Context, externalID string) (*SyncedProduct, error)
}

// StateWriter defines write access to persisted sync state.
type StateWriter interface {
	// UpsertAttempt registers an attempt for the external ID: the record is
	// created as PENDING when absent, the snapshot is applied, and the
	// result is persisted. Returns the current state after the write.
	UpsertAttempt(ctx context.Context, externalID string, snapshot Snapshot) (*SyncedProduct, error)

	// Save persists the current entity state (outcome recording)
	Save(ctx context.Context, product *SyncedProduct) error
}

// StateRepository is the full persistence port for the sync state store.
type StateRepository interface {
	StateReader
	StateWriter
}

// ---------------------------------------------------------------------------
// Destination Storefront Port
// ---------------------------------------------------------------------------

// InventoryPolicy controls overselling on the destination storefront.
type InventoryPolicy string

const (
	// InventoryPolicyDeny blocks purchases once inventory reaches zero
	InventoryPolicyDeny InventoryPolicy = "DENY"
	// InventoryPolicyContinue allows backorders
	InventoryPolicyContinue InventoryPolicy = "CONTINUE"
)

// ProductInput is the create/update payload for a destination product.
type ProductInput struct {
	// ID is the destination product ID; empty for creates
	ID string
	// Title is the listing title
	Title string
	// DescriptionHTML is the listing body
	DescriptionHTML string
	// Tags carries listing tags, including the external-ID linkage tag
	Tags []string
	// CategoryID is the destination taxonomy category, when known
	CategoryID string
}

// VariantInput sets the single variant's commercial fields.
type VariantInput struct {
	// Price is the listing price as a fixed-point string
	Price string
	// SKU is the linked SKU encoding the external product ID
	SKU string
	// InventoryPolicy controls backorders for the variant
	InventoryPolicy InventoryPolicy
}

// Product is a destination product as returned by the storefront API.
type Product struct {
	// ID is the destination product ID
	ID string
	// Handle is the storefront URL handle
	Handle string
	// VariantID is the default variant ID
	VariantID string
	// InventoryItemID is the inventory item behind the default variant
	InventoryItemID string
}

// MediaItem is one image to attach to a destination product.
type MediaItem struct {
	// URL is the externally hosted image URL
	URL string
	// Alt is the accessibility text
	Alt string
}

// UserError is a field-level rejection inside an otherwise successful
// storefront mutation response.
type UserError struct {
	Field   string
	Message string
}

// MediaResult reports the outcome of a media attach call.
type MediaResult struct {
	// AttachedCount is the number of media items accepted
	AttachedCount int
	// UserErrors carries per-item rejections
	UserErrors []UserError
}

// Metafield is one structured metadata entry on a destination resource.
type Metafield struct {
	Namespace string
	Key       string
	Type      string
	Value     string
}

// OrderUpdate is the batched tags/metadata write-back onto a destination
// order.
type OrderUpdate struct {
	// ID is the destination order's global ID
	ID string
	// Tags are appended to the order's tag set
	Tags []string
	// Metafields are written onto the order
	Metafields []Metafield
}

// externalIDTagPrefix prefixes the linkage tag carrying the source
// marketplace product ID.
const externalIDTagPrefix = "external-id:"

// ExternalIDTag returns the destination tag that links a product back to
// its source marketplace product ID.
func ExternalIDTag(externalID string) string {
	return externalIDTagPrefix + externalID
}

// DestinationClient is the port for the destination storefront's GraphQL
// product/order API. Implementations classify failures per the platform
// error set so the retry layer can tell transient from fatal.
type DestinationClient interface {
	// CreateProduct creates a product with its default variant
	CreateProduct(ctx context.Context, input ProductInput, variant VariantInput) (*Product, error)

	// UpdateProduct updates an existing product's listing fields
	UpdateProduct(ctx context.Context, input ProductInput) (*Product, error)

	// UpdateVariant sets price, SKU, and inventory policy on a variant
	UpdateVariant(ctx context.Context, variantID string, variant VariantInput) error

	// SetInventoryLevel sets the available quantity at a location
	SetInventoryLevel(ctx context.Context, inventoryItemID, locationID string, quantity int) error

	// AttachMedia attaches images to a product; user errors do not fail the call
	AttachMedia(ctx context.Context, productID string, media []MediaItem) (*MediaResult, error)

	// PublishProduct publishes the product to the given sales channels
	PublishProduct(ctx context.Context, productID string, channelIDs []string) error

	// FindProductByExternalIDTag looks a product up by its external-ID tag.
	// Returns (nil, nil) when no product carries the tag.
	FindProductByExternalIDTag(ctx context.Context, externalID string) (*Product, error)

	// UpdateOrder writes tags and metafields onto an order in one call
	UpdateOrder(ctx context.Context, update OrderUpdate) error
}

// ---------------------------------------------------------------------------
// Source Marketplace Port
// ---------------------------------------------------------------------------

// SourceProduct is the live pricing detail for a marketplace product.
type SourceProduct struct {
	// ID is the marketplace product ID
	ID string
	// Name is the current product name
	Name string
	// Price is the current item price in the source currency
	Price decimal.Decimal
	// ShippingFee is the current shipping fee in the source currency
	ShippingFee decimal.Decimal
	// SaleStatus is the marketplace's current sale status
	SaleStatus string
}

// SourceOrderRequest is the payload for placing one marketplace order.
type SourceOrderRequest struct {
	// ProductID is the marketplace product to order
	ProductID string
	// Price is the item price snapshot at order time
	Price decimal.Decimal
	// DeliveryPrice is the shipping fee sent to the marketplace. The order
	// reconciler forces this to zero; shipping is invoiced out-of-band.
	DeliveryPrice decimal.Decimal
}

// SourceOrder is a placed marketplace order.
type SourceOrder struct {
	// ID is the marketplace order ID
	ID string
}

// SourceClient is the port for the source marketplace's order API.
type SourceClient interface {
	// GetProductDetails returns live pricing for a product, or (nil, nil)
	// when the product no longer exists.
	GetProductDetails(ctx context.Context, productID string) (*SourceProduct, error)

	// CreateOrder places an order on the marketplace
	CreateOrder(ctx context.Context, req SourceOrderRequest) (*SourceOrder, error)
}
