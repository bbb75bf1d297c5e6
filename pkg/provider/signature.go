/**
 * @description
 * Shared HMAC webhook signature verification. Providers present their
 * signatures in different encodings (hex, base64, prefixed pairs), so the
 * helpers here compute the expected HMAC-SHA256 digest once and compare it
 * against the supplied header in constant time across the accepted encodings.
 */
package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

func computeHMACSHA256(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// matchesHMACSHA256 reports whether the signature header matches the expected
// HMAC-SHA256 digest of the payload, accepting hex or base64 encodings and
// comma-separated multi-signature headers.
func matchesHMACSHA256(secret string, payload []byte, signatureHeader string) bool {
	header := strings.TrimSpace(signatureHeader)
	if secret == "" || header == "" {
		return false
	}

	expected := computeHMACSHA256(secret, payload)

	for _, part := range strings.Split(header, ",") {
		candidate := strings.TrimSpace(part)
		candidate = strings.TrimPrefix(strings.ToLower(candidate), "sha256=")

		if decoded, err := hex.DecodeString(candidate); err == nil && hmac.Equal(decoded, expected) {
			return true
		}
		if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(part)); err == nil && hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// matchesStripeSignature verifies a Stripe-style signature header of the form
// "t=<unix>,v1=<hex hmac of '<t>.<payload>'>". Multiple v1 entries are
// accepted; any match passes.
func matchesStripeSignature(secret string, payload []byte, signatureHeader string) bool {
	header := strings.TrimSpace(signatureHeader)
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	signed := append([]byte(timestamp+"."), payload...)
	expected := computeHMACSHA256(secret, signed)

	for _, candidate := range candidates {
		if decoded, err := hex.DecodeString(candidate); err == nil && hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}
