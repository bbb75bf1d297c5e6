/**
 * @description
 * Stripe adapter. Opens a PaymentIntent via Stripe's REST API and verifies
 * Stripe webhook callbacks (Stripe-Signature header, t/v1 HMAC scheme).
 */
package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Stripe is the Adapter implementation for Stripe card payments.
type Stripe struct {
	transport     *httpTransport
	webhookSecret string
}

// NewStripe creates a Stripe adapter.
func NewStripe(baseURL, apiKey, webhookSecret string, timeout time.Duration) *Stripe {
	return &Stripe{
		transport:     newHTTPTransport("stripe", baseURL, apiKey, timeout),
		webhookSecret: webhookSecret,
	}
}

func (s *Stripe) Name() string { return "stripe" }

type stripeIntentRequest struct {
	Amount                  int64             `json:"amount"`
	Currency                string            `json:"currency"`
	PaymentMethodTypes      []string          `json:"payment_method_types"`
	AutomaticPaymentMethods struct {
		Enabled bool `json:"enabled"`
	} `json:"automatic_payment_methods"`
	Metadata map[string]string `json:"metadata"`
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// CreateIntent opens a Stripe PaymentIntent. Our intent id travels in the
// metadata so a webhook can be correlated even if the provider ref is lost.
func (s *Stripe) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentRef, error) {
	payload := stripeIntentRequest{
		Amount:             req.Amount,
		Currency:           strings.ToLower(req.Currency),
		PaymentMethodTypes: []string{"card"},
		Metadata:           map[string]string{"platform": "payeazy", "type": "deposit", "intent_id": req.IntentID},
	}
	payload.AutomaticPaymentMethods.Enabled = true
	for k, v := range req.Metadata {
		payload.Metadata[k] = v
	}

	var resp stripeIntentResponse
	if err := s.transport.postJSON(ctx, "/v1/payment_intents", payload, &resp); err != nil {
		return nil, err
	}
	return &IntentRef{
		ProviderRef:  resp.ID,
		RawStatus:    resp.Status,
		ClientSecret: resp.ClientSecret,
	}, nil
}

type stripeWebhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				IntentID string `json:"intent_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhook authenticates a Stripe event and maps its type to an outcome.
func (s *Stripe) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if !matchesStripeSignature(s.webhookSecret, payload, signatureHeader) {
		return nil, ErrInvalidSignature
	}

	var event stripeWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	outcome := OutcomeIgnored
	reason := ""
	switch event.Type {
	case "payment_intent.succeeded":
		outcome = OutcomeSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		outcome = OutcomeFailed
		reason = event.Type
	}

	return &Event{
		ProviderEventID: event.ID,
		ProviderRef:     event.Data.Object.ID,
		IntentHint:      event.Data.Object.Metadata.IntentID,
		Outcome:         outcome,
		Reason:          reason,
	}, nil
}
