package destination

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgesync/backend/internal/domain/sync"
)

// graphqlServer serves one canned JSON body and records the last request.
type graphqlServer struct {
	*httptest.Server
	lastQuery string
	lastVars  map[string]any
}

func newGraphQLServer(t *testing.T, status int, body string, header http.Header) *graphqlServer {
	t.Helper()
	gs := &graphqlServer{}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gs.lastQuery = req.Query
		gs.lastVars = req.Variables

		for k, vals := range header {
			for _, v := range vals {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(gs.Close)
	return gs
}

func testClient(srv *graphqlServer) *Client {
	return NewClient(Config{Endpoint: srv.URL, AccessToken: "token"})
}

const createdProductBody = `{"data":{"productCreate":{"product":{
  "id":"gid://product/1","handle":"widget",
  "variants":{"nodes":[{"id":"gid://variant/2","inventoryItem":{"id":"gid://inv/3"}}]}
},"userErrors":[]}}}`

func TestClient_CreateProduct(t *testing.T) {
	t.Run("returns the created product with variant IDs", func(t *testing.T) {
		srv := newGraphQLServer(t, http.StatusOK, createdProductBody, nil)
		client := testClient(srv)

		product, err := client.CreateProduct(context.Background(),
			sync.ProductInput{Title: "Widget", Tags: []string{sync.ExternalIDTag("100")}},
			sync.VariantInput{Price: "11.00", SKU: "BJ-100", InventoryPolicy: sync.InventoryPolicyDeny})
		require.NoError(t, err)

		assert.Equal(t, "gid://product/1", product.ID)
		assert.Equal(t, "widget", product.Handle)
		assert.Equal(t, "gid://variant/2", product.VariantID)
		assert.Equal(t, "gid://inv/3", product.InventoryItemID)
	})

	t.Run("user errors fail the create", func(t *testing.T) {
		body := `{"data":{"productCreate":{"product":null,
		  "userErrors":[{"field":["title"],"message":"can't be blank"}]}}}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		_, err := client.CreateProduct(context.Background(), sync.ProductInput{}, sync.VariantInput{})
		assert.ErrorIs(t, err, sync.ErrPlatformRequestFailed)
		assert.Contains(t, err.Error(), "can't be blank")
	})

	t.Run("missing product ID is a data integrity failure", func(t *testing.T) {
		body := `{"data":{"productCreate":{"product":{"id":""},"userErrors":[]}}}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		_, err := client.CreateProduct(context.Background(), sync.ProductInput{Title: "Widget"}, sync.VariantInput{})
		assert.ErrorIs(t, err, sync.ErrDataIntegrity)
	})
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Run("HTTP 429 maps to a rate limit with retry-after", func(t *testing.T) {
		header := http.Header{}
		header.Set("Retry-After", "2.5")
		srv := newGraphQLServer(t, http.StatusTooManyRequests, `{}`, header)
		client := testClient(srv)

		_, err := client.UpdateProduct(context.Background(), sync.ProductInput{ID: "gid://product/1"})
		assert.True(t, sync.IsRetryable(err))
		assert.Equal(t, 2500*time.Millisecond, sync.RetryAfterHint(err))
	})

	t.Run("HTTP 5xx maps to platform unavailable", func(t *testing.T) {
		srv := newGraphQLServer(t, http.StatusServiceUnavailable, ``, nil)
		client := testClient(srv)

		_, err := client.UpdateProduct(context.Background(), sync.ProductInput{ID: "gid://product/1"})
		assert.ErrorIs(t, err, sync.ErrPlatformUnavailable)
		assert.True(t, sync.IsRetryable(err))
	})

	t.Run("THROTTLED extension code maps to a rate limit", func(t *testing.T) {
		body := `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		_, err := client.UpdateProduct(context.Background(), sync.ProductInput{ID: "gid://product/1"})
		assert.True(t, sync.IsRetryable(err))
	})

	t.Run("other graphql errors are not retryable", func(t *testing.T) {
		body := `{"errors":[{"message":"Field 'bogus' doesn't exist","extensions":{"code":"GRAPHQL_ERROR"}}]}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		_, err := client.UpdateProduct(context.Background(), sync.ProductInput{ID: "gid://product/1"})
		assert.ErrorIs(t, err, sync.ErrPlatformRequestFailed)
		assert.False(t, sync.IsRetryable(err))
	})

	t.Run("malformed body maps to invalid response", func(t *testing.T) {
		srv := newGraphQLServer(t, http.StatusOK, `not json`, nil)
		client := testClient(srv)

		_, err := client.UpdateProduct(context.Background(), sync.ProductInput{ID: "gid://product/1"})
		assert.ErrorIs(t, err, sync.ErrPlatformInvalidResponse)
	})
}

func TestClient_FindProductByExternalIDTag(t *testing.T) {
	t.Run("returns nil when no product carries the tag", func(t *testing.T) {
		body := `{"data":{"products":{"nodes":[]}}}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		product, err := client.FindProductByExternalIDTag(context.Background(), "100")
		require.NoError(t, err)
		assert.Nil(t, product)
		assert.Equal(t, "tag:'external-id:100'", srv.lastVars["query"])
	})

	t.Run("returns the tagged product", func(t *testing.T) {
		body := `{"data":{"products":{"nodes":[{"id":"gid://product/9","handle":"found",
		  "variants":{"nodes":[{"id":"gid://variant/10","inventoryItem":{"id":"gid://inv/11"}}]}}]}}}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		product, err := client.FindProductByExternalIDTag(context.Background(), "100")
		require.NoError(t, err)
		require.NotNil(t, product)
		assert.Equal(t, "gid://product/9", product.ID)
		assert.Equal(t, "gid://variant/10", product.VariantID)
	})
}

func TestClient_AttachMedia(t *testing.T) {
	t.Run("user errors are reported without failing", func(t *testing.T) {
		body := `{"data":{"productCreateMedia":{
		  "media":[{"id":"gid://media/1"}],
		  "mediaUserErrors":[{"field":["media","1"],"message":"unsupported format"}]}}}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		result, err := client.AttachMedia(context.Background(), "gid://product/1", []sync.MediaItem{
			{URL: "https://img.example/a.jpg"},
			{URL: "https://img.example/b.tiff"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.AttachedCount)
		require.Len(t, result.UserErrors, 1)
		assert.Equal(t, "unsupported format", result.UserErrors[0].Message)
	})

	t.Run("no media is a no-op", func(t *testing.T) {
		srv := newGraphQLServer(t, http.StatusOK, `{}`, nil)
		client := testClient(srv)

		result, err := client.AttachMedia(context.Background(), "gid://product/1", nil)
		require.NoError(t, err)
		assert.Zero(t, result.AttachedCount)
		assert.Empty(t, srv.lastQuery, "no request should be sent")
	})
}

func TestClient_UpdateOrder(t *testing.T) {
	t.Run("sends tags and metafields in one call", func(t *testing.T) {
		body := `{"data":{"orderUpdate":{"userErrors":[]},"metafieldsSet":{"userErrors":[]}}}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		err := client.UpdateOrder(context.Background(), sync.OrderUpdate{
			ID:   "gid://order/5",
			Tags: []string{"source-ordered"},
			Metafields: []sync.Metafield{
				{Namespace: "bridge", Key: "source_order_ids", Type: "single_line_text_field", Value: "900"},
			},
		})
		require.NoError(t, err)

		input := srv.lastVars["input"].(map[string]any)
		assert.Equal(t, "gid://order/5", input["id"])
		metafields := srv.lastVars["metafields"].([]any)
		require.Len(t, metafields, 1)
		assert.Equal(t, "gid://order/5", metafields[0].(map[string]any)["ownerId"])
	})

	t.Run("metafield user errors fail the update", func(t *testing.T) {
		body := `{"data":{"orderUpdate":{"userErrors":[]},
		  "metafieldsSet":{"userErrors":[{"field":["metafields"],"message":"invalid type"}]}}}`
		srv := newGraphQLServer(t, http.StatusOK, body, nil)
		client := testClient(srv)

		err := client.UpdateOrder(context.Background(), sync.OrderUpdate{ID: "gid://order/5"})
		assert.ErrorIs(t, err, sync.ErrPlatformRequestFailed)
	})
}
