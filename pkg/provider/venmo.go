/**
 * @description
 * Venmo adapter. Opens a payment to a Venmo user id and verifies the
 * HMAC-signed webhook callbacks.
 */
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Venmo is the Adapter implementation for Venmo payments.
type Venmo struct {
	transport     *httpTransport
	webhookSecret string
}

// NewVenmo creates a Venmo adapter.
func NewVenmo(baseURL, apiKey, webhookSecret string, timeout time.Duration) *Venmo {
	return &Venmo{
		transport:     newHTTPTransport("venmo", baseURL, apiKey, timeout),
		webhookSecret: webhookSecret,
	}
}

func (v *Venmo) Name() string { return "venmo" }

type venmoPaymentRequest struct {
	UserID   string `json:"user_id"`
	Amount   int64  `json:"amount"`
	Note     string `json:"note,omitempty"`
	Audience string `json:"audience"`
	IntentID string `json:"external_id,omitempty"`
}

type venmoPaymentResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// CreateIntent opens a Venmo payment to the recipient user id.
func (v *Venmo) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentRef, error) {
	payload := venmoPaymentRequest{
		UserID:   req.RecipientRef,
		Amount:   req.Amount,
		Note:     req.Note,
		Audience: "private",
		IntentID: req.IntentID,
	}

	var resp venmoPaymentResponse
	if err := v.transport.postJSON(ctx, "/v1/payments", payload, &resp); err != nil {
		return nil, err
	}
	return &IntentRef{
		ProviderRef: resp.Data.ID,
		RawStatus:   resp.Data.Status,
	}, nil
}

type venmoWebhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	} `json:"data"`
}

// VerifyWebhook authenticates a Venmo event and maps its type to an outcome.
func (v *Venmo) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if !matchesHMACSHA256(v.webhookSecret, payload, signatureHeader) {
		return nil, ErrInvalidSignature
	}

	var event venmoWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	outcome := OutcomeIgnored
	reason := ""
	switch event.Type {
	case "payment.completed":
		outcome = OutcomeSucceeded
	case "payment.failed", "payment.canceled":
		outcome = OutcomeFailed
		reason = event.Data.Reason
		if reason == "" {
			reason = event.Type
		}
	}

	return &Event{
		ProviderEventID: event.ID,
		ProviderRef:     event.Data.ID,
		Outcome:         outcome,
		Reason:          reason,
	}, nil
}
