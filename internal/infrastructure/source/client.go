package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bridgesync/backend/internal/domain/sync"
)

// maxResponseSize caps marketplace API responses (10MB).
const maxResponseSize = 10 * 1024 * 1024

// Config holds the marketplace API settings.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client implements sync.SourceClient against the marketplace's REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

var _ sync.SourceClient = (*Client)(nil)

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

// NewClient builds a marketplace client.
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

// productResponse is the marketplace's product detail payload.
type productResponse struct {
	Product struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Price       string `json:"price"`
		ShippingFee string `json:"shipping_fee"`
		Status      string `json:"status"`
	} `json:"product"`
}

// GetProductDetails returns live pricing for a product. A missing product
// is not an error: the caller decides what a gone product means.
func (c *Client) GetProductDetails(ctx context.Context, productID string) (*sync.SourceProduct, error) {
	body, status, err := c.doRequest(ctx, http.MethodGet, "/api/products/"+productID, nil)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp productResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse product: %v", sync.ErrPlatformInvalidResponse, err)
	}
	if resp.Product.ID == "" {
		return nil, fmt.Errorf("%w: product payload missing ID", sync.ErrPlatformInvalidResponse)
	}

	price, err := decimal.NewFromString(resp.Product.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: bad price %q", sync.ErrPlatformInvalidResponse, resp.Product.Price)
	}
	shipping := decimal.Zero
	if resp.Product.ShippingFee != "" {
		shipping, err = decimal.NewFromString(resp.Product.ShippingFee)
		if err != nil {
			return nil, fmt.Errorf("%w: bad shipping fee %q", sync.ErrPlatformInvalidResponse, resp.Product.ShippingFee)
		}
	}

	return &sync.SourceProduct{
		ID:          resp.Product.ID,
		Name:        resp.Product.Name,
		Price:       price,
		ShippingFee: shipping,
		SaleStatus:  resp.Product.Status,
	}, nil
}

// orderRequest is the order creation payload.
type orderRequest struct {
	ProductID     string `json:"product_id"`
	Price         string `json:"price"`
	DeliveryPrice string `json:"delivery_price"`
}

// orderResponse is the order creation result.
type orderResponse struct {
	Order struct {
		ID string `json:"id"`
	} `json:"order"`
}

// CreateOrder places an order on the marketplace.
func (c *Client) CreateOrder(ctx context.Context, req sync.SourceOrderRequest) (*sync.SourceOrder, error) {
	payload, err := json.Marshal(orderRequest{
		ProductID:     req.ProductID,
		Price:         req.Price.StringFixed(2),
		DeliveryPrice: req.DeliveryPrice.StringFixed(2),
	})
	if err != nil {
		return nil, fmt.Errorf("source: failed to encode order: %w", err)
	}

	body, _, err := c.doRequest(ctx, http.MethodPost, "/api/orders", payload)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse order: %v", sync.ErrPlatformInvalidResponse, err)
	}
	if resp.Order.ID == "" {
		return nil, fmt.Errorf("%w: order payload missing ID", sync.ErrPlatformInvalidResponse)
	}

	c.logger.Info("marketplace order placed",
		zap.String("product_id", req.ProductID),
		zap.String("order_id", resp.Order.ID))
	return &sync.SourceOrder{ID: resp.Order.ID}, nil
}

// doRequest executes one API call and classifies HTTP failures. The status
// code is returned alongside the error so 404 handling stays with callers.
func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("source: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", sync.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("source: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode < 400:
		return body, resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return body, resp.StatusCode, &sync.RateLimitError{RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		return body, resp.StatusCode, fmt.Errorf("%w: HTTP %d", sync.ErrPlatformUnavailable, resp.StatusCode)
	default:
		return body, resp.StatusCode, fmt.Errorf("%w: HTTP %d: %s", sync.ErrPlatformRequestFailed, resp.StatusCode, truncate(body, 200))
	}
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}
