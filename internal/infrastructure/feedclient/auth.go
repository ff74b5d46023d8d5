package feedclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuthHeaderFunc produces the Authorization header value for one feed
// request. Tokens are single-use: each call embeds a fresh nonce and issue
// time.
type AuthHeaderFunc func() (string, error)

// NewSignedAuthHeader returns an AuthHeaderFunc producing bearer tokens
// signed over the access key, a random nonce, and the issue time:
//
//	payload = accessKey:nonce:issuedAtEpochSeconds
//	token   = base64url(payload) "." hex(hmac-sha256(secret, payload))
func NewSignedAuthHeader(accessKey, secretKey string) AuthHeaderFunc {
	return func() (string, error) {
		if accessKey == "" || secretKey == "" {
			return "", fmt.Errorf("feedclient: missing feed credentials")
		}
		payload := fmt.Sprintf("%s:%s:%d", accessKey, uuid.NewString(), time.Now().Unix())

		mac := hmac.New(sha256.New, []byte(secretKey))
		mac.Write([]byte(payload))
		sig := hex.EncodeToString(mac.Sum(nil))

		token := base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig
		return "Bearer " + token, nil
	}
}
