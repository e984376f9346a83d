package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Paystack signs webhook deliveries with HMAC-SHA512 of the raw request
// body, hex-encoded in the x-paystack-signature header. The webhook
// endpoint is shared by all shops, so the sender is identified by which
// shop's secret key reproduces the signature.

// ShopSecret is one candidate for the webhook tenant scan.
type ShopSecret struct {
	ShopID    uint
	SecretKey string
}

// VerifyWebhookSignature checks a signature against a single secret key.
// The comparison must run over the exact raw body bytes; any re-serialized
// parse would break the HMAC.
func VerifyWebhookSignature(body []byte, signatureHeader, secretKey string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(secretKey)
	if sig == "" || secret == "" {
		return false
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// IdentifyShop scans the candidate shops in order and returns the ID of
// the first one whose secret reproduces the signature. Candidates with an
// empty secret (e.g. a credential that failed to decrypt) are skipped.
func IdentifyShop(body []byte, signatureHeader string, candidates []ShopSecret) (uint, bool) {
	for _, candidate := range candidates {
		if candidate.SecretKey == "" {
			continue
		}
		if VerifyWebhookSignature(body, signatureHeader, candidate.SecretKey) {
			return candidate.ShopID, true
		}
	}
	return 0, false
}
