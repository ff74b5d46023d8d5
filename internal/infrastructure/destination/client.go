package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/domain/sync"
)

// maxResponseSize caps storefront API responses (10MB).
const maxResponseSize = 10 * 1024 * 1024

// throttledErrorCode is the error extension code the storefront returns
// when a query exceeds the rate budget despite an HTTP 200.
const throttledErrorCode = "THROTTLED"

// Config holds the storefront GraphQL endpoint settings.
type Config struct {
	Endpoint    string
	AccessToken string
	Timeout     time.Duration
}

// Client implements sync.DestinationClient against the storefront's
// GraphQL admin API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

var _ sync.DestinationClient = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a storefront client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------------------------------------------------------------------------
// Product Operations
// ---------------------------------------------------------------------------

const productCreateMutation = `
mutation productCreate($input: ProductInput!, $variant: ProductVariantInput!) {
  productCreate(input: $input, variants: [$variant]) {
    product {
      id
      handle
      variants(first: 1) { nodes { id inventoryItem { id } } }
    }
    userErrors { field message }
  }
}`

// CreateProduct creates a product with its default variant.
func (c *Client) CreateProduct(ctx context.Context, input sync.ProductInput, variant sync.VariantInput) (*sync.Product, error) {
	vars := map[string]any{
		"input":   productInputVars(input),
		"variant": variantInputVars(variant),
	}

	var data productCreateData
	if err := c.execute(ctx, productCreateMutation, vars, &data); err != nil {
		return nil, err
	}
	if err := userErrorsToError("productCreate", data.ProductCreate.UserErrors); err != nil {
		return nil, err
	}
	product := data.ProductCreate.Product
	if product == nil || product.ID == "" {
		return nil, fmt.Errorf("%w: product create returned no product ID", sync.ErrDataIntegrity)
	}
	return toDomainProduct(product), nil
}

const productUpdateMutation = `
mutation productUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      id
      handle
      variants(first: 1) { nodes { id inventoryItem { id } } }
    }
    userErrors { field message }
  }
}`

// UpdateProduct updates an existing product's listing fields.
func (c *Client) UpdateProduct(ctx context.Context, input sync.ProductInput) (*sync.Product, error) {
	vars := map[string]any{"input": productInputVars(input)}

	var data productUpdateData
	if err := c.execute(ctx, productUpdateMutation, vars, &data); err != nil {
		return nil, err
	}
	if err := userErrorsToError("productUpdate", data.ProductUpdate.UserErrors); err != nil {
		return nil, err
	}
	product := data.ProductUpdate.Product
	if product == nil || product.ID == "" {
		return nil, fmt.Errorf("%w: product update returned no product ID", sync.ErrDataIntegrity)
	}
	return toDomainProduct(product), nil
}

const variantUpdateMutation = `
mutation variantUpdate($input: ProductVariantInput!) {
  productVariantUpdate(input: $input) {
    userErrors { field message }
  }
}`

// UpdateVariant sets price, SKU, and inventory policy on a variant.
func (c *Client) UpdateVariant(ctx context.Context, variantID string, variant sync.VariantInput) error {
	vars := map[string]any{
		"input": map[string]any{
			"id":              variantID,
			"price":           variant.Price,
			"sku":             variant.SKU,
			"inventoryPolicy": string(variant.InventoryPolicy),
		},
	}

	var data variantUpdateData
	if err := c.execute(ctx, variantUpdateMutation, vars, &data); err != nil {
		return err
	}
	return userErrorsToError("variantUpdate", data.ProductVariantUpdate.UserErrors)
}

const inventorySetMutation = `
mutation inventorySet($input: InventorySetQuantitiesInput!) {
  inventorySetQuantities(input: $input) {
    userErrors { field message }
  }
}`

// SetInventoryLevel sets the available quantity at a location.
func (c *Client) SetInventoryLevel(ctx context.Context, inventoryItemID, locationID string, quantity int) error {
	vars := map[string]any{
		"input": map[string]any{
			"name":   "available",
			"reason": "correction",
			"quantities": []map[string]any{{
				"inventoryItemId": inventoryItemID,
				"locationId":      locationID,
				"quantity":        quantity,
			}},
		},
	}

	var data inventorySetData
	if err := c.execute(ctx, inventorySetMutation, vars, &data); err != nil {
		return err
	}
	return userErrorsToError("inventorySet", data.InventorySetQuantities.UserErrors)
}

const mediaCreateMutation = `
mutation mediaCreate($productId: ID!, $media: [CreateMediaInput!]!) {
  productCreateMedia(productId: $productId, media: $media) {
    media { id }
    mediaUserErrors { field message }
  }
}`

// AttachMedia attaches images to a product. Per-item rejections are
// reported in the result, not as an error.
func (c *Client) AttachMedia(ctx context.Context, productID string, media []sync.MediaItem) (*sync.MediaResult, error) {
	if len(media) == 0 {
		return &sync.MediaResult{}, nil
	}

	items := make([]map[string]any, 0, len(media))
	for _, m := range media {
		items = append(items, map[string]any{
			"originalSource":   m.URL,
			"alt":              m.Alt,
			"mediaContentType": "IMAGE",
		})
	}
	vars := map[string]any{"productId": productID, "media": items}

	var data mediaCreateData
	if err := c.execute(ctx, mediaCreateMutation, vars, &data); err != nil {
		return nil, err
	}

	result := &sync.MediaResult{AttachedCount: len(data.ProductCreateMedia.Media)}
	for _, ue := range data.ProductCreateMedia.MediaUserErrors {
		result.UserErrors = append(result.UserErrors, sync.UserError{
			Field:   strings.Join(ue.Field, "."),
			Message: ue.Message,
		})
	}
	return result, nil
}

const publishMutation = `
mutation publish($id: ID!, $input: [PublicationInput!]!) {
  publishablePublish(id: $id, input: $input) {
    userErrors { field message }
  }
}`

// PublishProduct publishes the product to the given sales channels.
func (c *Client) PublishProduct(ctx context.Context, productID string, channelIDs []string) error {
	input := make([]map[string]any, 0, len(channelIDs))
	for _, id := range channelIDs {
		input = append(input, map[string]any{"publicationId": id})
	}
	vars := map[string]any{"id": productID, "input": input}

	var data publishData
	if err := c.execute(ctx, publishMutation, vars, &data); err != nil {
		return err
	}
	return userErrorsToError("publish", data.PublishablePublish.UserErrors)
}

const productSearchQuery = `
query findByTag($query: String!) {
  products(first: 1, query: $query) {
    nodes {
      id
      handle
      variants(first: 1) { nodes { id inventoryItem { id } } }
    }
  }
}`

// FindProductByExternalIDTag looks a product up by its external-ID tag.
// Returns (nil, nil) when no product carries the tag.
func (c *Client) FindProductByExternalIDTag(ctx context.Context, externalID string) (*sync.Product, error) {
	vars := map[string]any{
		"query": fmt.Sprintf("tag:'%s'", sync.ExternalIDTag(externalID)),
	}

	var data productSearchData
	if err := c.execute(ctx, productSearchQuery, vars, &data); err != nil {
		return nil, err
	}
	if len(data.Products.Nodes) == 0 {
		return nil, nil
	}
	return toDomainProduct(&data.Products.Nodes[0]), nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

const orderUpdateMutation = `
mutation orderUpdate($input: OrderInput!, $metafields: [MetafieldsSetInput!]!) {
  orderUpdate(input: $input) {
    userErrors { field message }
  }
  metafieldsSet(metafields: $metafields) {
    userErrors { field message }
  }
}`

// UpdateOrder writes tags and metafields onto an order in one call.
func (c *Client) UpdateOrder(ctx context.Context, update sync.OrderUpdate) error {
	metafields := make([]map[string]any, 0, len(update.Metafields))
	for _, mf := range update.Metafields {
		metafields = append(metafields, map[string]any{
			"ownerId":   update.ID,
			"namespace": mf.Namespace,
			"key":       mf.Key,
			"type":      mf.Type,
			"value":     mf.Value,
		})
	}
	vars := map[string]any{
		"input": map[string]any{
			"id":   update.ID,
			"tags": update.Tags,
		},
		"metafields": metafields,
	}

	var data orderUpdateData
	if err := c.execute(ctx, orderUpdateMutation, vars, &data); err != nil {
		return err
	}
	if err := userErrorsToError("orderUpdate", data.OrderUpdate.UserErrors); err != nil {
		return err
	}
	return userErrorsToError("metafieldsSet", data.MetafieldsSet.UserErrors)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// execute posts one GraphQL document and decodes data into out. Failures
// are classified per the platform error set.
func (c *Client) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("destination: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("destination: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Token", c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sync.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("destination: failed to read response: %w", err)
	}

	if err := classifyStatus(resp, raw); err != nil {
		return err
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", sync.ErrPlatformInvalidResponse, err)
	}
	if err := classifyGraphQLErrors(envelope.Errors); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("%w: failed to parse data: %v", sync.ErrPlatformInvalidResponse, err)
		}
	}
	return nil
}

func classifyStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			retryAfter = time.Duration(secs * float64(time.Second))
		}
		return &sync.RateLimitError{RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", sync.ErrPlatformUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", sync.ErrPlatformRequestFailed, resp.StatusCode, truncate(body, 200))
	}
}

func classifyGraphQLErrors(errs []graphqlError) error {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Extensions.Code == throttledErrorCode {
			return &sync.RateLimitError{}
		}
		messages = append(messages, e.Message)
	}
	return fmt.Errorf("%w: %s", sync.ErrPlatformRequestFailed, strings.Join(messages, "; "))
}

func userErrorsToError(operation string, errs []userErrorPayload) error {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, fmt.Sprintf("%s: %s", strings.Join(e.Field, "."), e.Message))
	}
	return fmt.Errorf("%w: %s: %s", sync.ErrPlatformRequestFailed, operation, strings.Join(messages, "; "))
}

func productInputVars(input sync.ProductInput) map[string]any {
	vars := map[string]any{
		"title":           input.Title,
		"descriptionHtml": input.DescriptionHTML,
		"tags":            input.Tags,
	}
	if input.ID != "" {
		vars["id"] = input.ID
	}
	if input.CategoryID != "" {
		vars["category"] = input.CategoryID
	}
	return vars
}

func variantInputVars(variant sync.VariantInput) map[string]any {
	return map[string]any{
		"price":           variant.Price,
		"sku":             variant.SKU,
		"inventoryPolicy": string(variant.InventoryPolicy),
	}
}

func toDomainProduct(p *productPayload) *sync.Product {
	product := &sync.Product{ID: p.ID, Handle: p.Handle}
	if len(p.Variants.Nodes) > 0 {
		product.VariantID = p.Variants.Nodes[0].ID
		product.InventoryItemID = p.Variants.Nodes[0].InventoryItem.ID
	}
	return product
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}
