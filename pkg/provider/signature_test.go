package provider

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"
)

func TestMatchesHMACSHA256_AcceptedEncodings(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"event_id":"evt_1"}`)
	digest := computeHMACSHA256(secret, payload)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"hex", hex.EncodeToString(digest), true},
		{"hex with sha256 prefix", "sha256=" + hex.EncodeToString(digest), true},
		{"base64", base64.StdEncoding.EncodeToString(digest), true},
		{"second of comma-separated parts", "deadbeef," + hex.EncodeToString(digest), true},
		{"tampered", hex.EncodeToString(computeHMACSHA256(secret, []byte("other"))), false},
		{"wrong secret", hex.EncodeToString(computeHMACSHA256("whsec_other", payload)), false},
		{"empty header", "", false},
		{"garbage", "not-a-signature", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesHMACSHA256(secret, payload, tt.header); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}

func TestMatchesHMACSHA256_EmptySecretNeverMatches(t *testing.T) {
	payload := []byte("{}")
	header := hex.EncodeToString(computeHMACSHA256("", payload))
	if matchesHMACSHA256("", payload, header) {
		t.Fatal("an unset secret must reject every signature")
	}
}

func stripeHeader(secret, timestamp string, payload []byte) string {
	digest := computeHMACSHA256(secret, append([]byte(timestamp+"."), payload...))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(digest))
}

func TestMatchesStripeSignature(t *testing.T) {
	secret := "whsec_stripe"
	payload := []byte(`{"id":"evt_2","type":"payment_intent.succeeded"}`)

	if !matchesStripeSignature(secret, payload, stripeHeader(secret, "1693305600", payload)) {
		t.Fatal("expected a well-formed signature to verify")
	}
	if matchesStripeSignature(secret, payload, stripeHeader("whsec_other", "1693305600", payload)) {
		t.Fatal("expected a signature under the wrong secret to fail")
	}
	if matchesStripeSignature(secret, []byte("tampered"), stripeHeader(secret, "1693305600", payload)) {
		t.Fatal("expected a tampered payload to fail")
	}
	if matchesStripeSignature(secret, payload, "v1=abcdef") {
		t.Fatal("expected a header without a timestamp to fail")
	}
	if matchesStripeSignature(secret, payload, "t=1693305600") {
		t.Fatal("expected a header without v1 entries to fail")
	}

	// The timestamp is part of the signed string; swapping it must fail.
	header := stripeHeader(secret, "1693305600", payload)
	swapped := "t=1693305601," + header[len("t=1693305600,"):]
	if matchesStripeSignature(secret, payload, swapped) {
		t.Fatal("expected a replayed v1 under a different timestamp to fail")
	}
}
