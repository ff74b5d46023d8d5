package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the webhook payload's HMAC signature.
const SignatureHeader = "X-Webhook-Signature"

// VerifySignature returns a middleware that checks the request body's
// HMAC-SHA256 signature against the shared secret. An empty secret disables
// verification (local development). The body is restored for downstream
// handlers.
func VerifySignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "failed to read request body",
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		provided := c.GetHeader(SignatureHeader)
		if provided == "" || !validSignature(secret, body, provided) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid webhook signature",
			})
			return
		}

		c.Next()
	}
}

// validSignature compares the provided base64 signature against the
// computed HMAC in constant time.
func validSignature(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	decoded, err := base64.StdEncoding.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, decoded)
}

// ComputeSignature returns the base64 HMAC-SHA256 signature for a payload.
// Exported for tests and local tooling.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
