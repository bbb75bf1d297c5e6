package provider

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStripeCreateIntent_ForwardsIntentIDInMetadata(t *testing.T) {
	var captured stripeIntentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Fatalf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "pi_123",
			"status":        "requires_payment_method",
			"client_secret": "pi_123_secret",
		})
	}))
	defer server.Close()

	adapter := NewStripe(server.URL, "sk_test", "whsec", time.Second)
	ref, err := adapter.CreateIntent(context.Background(), CreateIntentRequest{
		IntentID:     "11111111-1111-1111-1111-111111111111",
		Amount:       2500,
		Currency:     "USD",
		RecipientRef: "tok_visa",
	})
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}
	if ref.ProviderRef != "pi_123" || ref.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if captured.Metadata["intent_id"] != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("expected intent id in metadata, got %v", captured.Metadata)
	}
	if captured.Currency != "usd" || captured.Amount != 2500 {
		t.Fatalf("unexpected request: %+v", captured)
	}
}

func TestCreateIntent_ServerErrorIsNetworkKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"upstream unavailable"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := NewCashApp(server.URL, "ca_key", "whsec", "", time.Second)
	_, err := adapter.CreateIntent(context.Background(), CreateIntentRequest{Amount: 2500, Currency: "USD", RecipientRef: "$alice"})

	var provErr *Error
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if provErr.Kind != ErrKindNetwork || provErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error: %+v", provErr)
	}
	if provErr.Message != "upstream unavailable" {
		t.Fatalf("expected extracted message, got %q", provErr.Message)
	}
}

func TestCreateIntent_ClientErrorIsRejectedKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"message":"recipient cannot receive payments"}}`))
	}))
	defer server.Close()

	adapter := NewVenmo(server.URL, "v_key", "whsec", time.Second)
	_, err := adapter.CreateIntent(context.Background(), CreateIntentRequest{Amount: 2500, Currency: "USD", RecipientRef: "user-1"})

	var provErr *Error
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if provErr.Kind != ErrKindRejected {
		t.Fatalf("expected rejected, got %s", provErr.Kind)
	}
	if provErr.Message != "recipient cannot receive payments" {
		t.Fatalf("expected nested message extracted, got %q", provErr.Message)
	}
}

func TestCreateIntent_MissingCredentialsIsMisconfigured(t *testing.T) {
	adapter := NewChime("", "", "whsec", time.Second)
	_, err := adapter.CreateIntent(context.Background(), CreateIntentRequest{Amount: 100, Currency: "USD", RecipientRef: "a@b.c"})

	var provErr *Error
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if provErr.Kind != ErrKindMisconfigured {
		t.Fatalf("expected misconfigured, got %s", provErr.Kind)
	}
}

func TestCashAppVerifyWebhook_MapsEventTypes(t *testing.T) {
	secret := "whsec_ca"
	adapter := NewCashApp("https://api.cash.app", "key", secret, "", time.Second)

	tests := []struct {
		name    string
		payload string
		outcome string
	}{
		{"completed", `{"event_id":"evt_1","event_type":"payment.completed","payment":{"id":"pay_1"}}`, OutcomeSucceeded},
		{"failed", `{"event_id":"evt_2","event_type":"payment.failed","payment":{"id":"pay_2","failure_reason":"insufficient_funds"}}`, OutcomeFailed},
		{"unrelated", `{"event_id":"evt_3","event_type":"payment.updated","payment":{"id":"pay_3"}}`, OutcomeIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.payload)
			sig := hex.EncodeToString(computeHMACSHA256(secret, payload))
			event, err := adapter.VerifyWebhook(payload, sig)
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if event.Outcome != tt.outcome {
				t.Fatalf("expected %s, got %s", tt.outcome, event.Outcome)
			}
		})
	}

	if _, err := adapter.VerifyWebhook([]byte(`{}`), "bad-signature"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestStripeVerifyWebhook_ExtractsIntentHint(t *testing.T) {
	secret := "whsec_st"
	adapter := NewStripe("https://api.stripe.com", "sk", secret, time.Second)

	payload := []byte(`{"id":"evt_9","type":"payment_intent.succeeded","data":{"object":{"id":"pi_9","metadata":{"intent_id":"22222222-2222-2222-2222-222222222222"}}}}`)
	event, err := adapter.VerifyWebhook(payload, stripeHeader(secret, "1693305600", payload))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if event.Outcome != OutcomeSucceeded || event.ProviderRef != "pi_9" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.IntentHint != "22222222-2222-2222-2222-222222222222" {
		t.Fatalf("expected intent hint from metadata, got %q", event.IntentHint)
	}
}

func TestRegistry_LookupIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry(NewStripe("https://api.stripe.com", "sk", "whsec", time.Second))

	if _, ok := registry.Get("Stripe"); !ok {
		t.Fatal("expected case-insensitive lookup to succeed")
	}
	if _, ok := registry.Get("zelle"); ok {
		t.Fatal("expected unknown provider lookup to fail")
	}
	if names := registry.Names(); len(names) != 1 || names[0] != "stripe" {
		t.Fatalf("unexpected names: %v", names)
	}
}
