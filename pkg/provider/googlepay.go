/**
 * @description
 * Google Pay adapter. Google Pay deposits are settled through Stripe's card
 * rails (the tokenized payment data is exchanged for a Stripe payment), so
 * this adapter shares the Stripe transport shape while carrying its own
 * credentials and webhook secret.
 */
package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// GooglePay is the Adapter implementation for Google Pay deposits.
type GooglePay struct {
	transport     *httpTransport
	webhookSecret string
}

// NewGooglePay creates a Google Pay adapter.
func NewGooglePay(baseURL, apiKey, webhookSecret string, timeout time.Duration) *GooglePay {
	return &GooglePay{
		transport:     newHTTPTransport("googlepay", baseURL, apiKey, timeout),
		webhookSecret: webhookSecret,
	}
}

func (g *GooglePay) Name() string { return "googlepay" }

type googlePayChargeRequest struct {
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	Confirm       bool              `json:"confirm"`
	Metadata      map[string]string `json:"metadata"`
}

type googlePayChargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateIntent charges a tokenized Google Pay payment method. The token
// reference arrives as the recipient ref from the client.
func (g *GooglePay) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentRef, error) {
	payload := googlePayChargeRequest{
		Amount:        req.Amount,
		Currency:      strings.ToLower(req.Currency),
		PaymentMethod: req.RecipientRef,
		Confirm:       true,
		Metadata:      map[string]string{"platform": "payeazy", "type": "deposit", "intent_id": req.IntentID},
	}
	for k, v := range req.Metadata {
		payload.Metadata[k] = v
	}

	var resp googlePayChargeResponse
	if err := g.transport.postJSON(ctx, "/v1/payment_intents", payload, &resp); err != nil {
		return nil, err
	}
	return &IntentRef{
		ProviderRef: resp.ID,
		RawStatus:   resp.Status,
	}, nil
}

// VerifyWebhook authenticates a Google Pay settlement event. The callbacks use
// the Stripe t/v1 signature scheme since settlement rides Stripe's rails.
func (g *GooglePay) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if !matchesStripeSignature(g.webhookSecret, payload, signatureHeader) {
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
