/**
 * @description
 * Chime adapter. Opens an instant transfer to a recipient email and verifies
 * the HMAC-signed webhook callbacks.
 */
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Chime is the Adapter implementation for Chime instant transfers.
type Chime struct {
	transport     *httpTransport
	webhookSecret string
}

// NewChime creates a Chime adapter.
func NewChime(baseURL, apiKey, webhookSecret string, timeout time.Duration) *Chime {
	return &Chime{
		transport:     newHTTPTransport("chime", baseURL, apiKey, timeout),
		webhookSecret: webhookSecret,
	}
}

func (c *Chime) Name() string { return "chime" }

type chimeTransferRequest struct {
	Amount    int64  `json:"amount"`
	Recipient struct {
		Email string `json:"email"`
	} `json:"recipient"`
	Memo     string `json:"memo,omitempty"`
	Type     string `json:"type"`
	IntentID string `json:"external_id,omitempty"`
}

type chimeTransferResponse struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
}

// CreateIntent opens a Chime instant transfer to the recipient email.
func (c *Chime) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentRef, error) {
	payload := chimeTransferRequest{
		Amount:   req.Amount,
		Memo:     req.Note,
		Type:     "instant",
		IntentID: req.IntentID,
	}
	payload.Recipient.Email = req.RecipientRef

	var resp chimeTransferResponse
	if err := c.transport.postJSON(ctx, "/v1/transfers", payload, &resp); err != nil {
		return nil, err
	}
	return &IntentRef{
		ProviderRef: resp.TransferID,
		RawStatus:   resp.Status,
	}, nil
}

type chimeWebhookPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Transfer  struct {
		ID     string `json:"id"`
		Reason string `json:"failure_reason"`
	} `json:"transfer"`
}

// VerifyWebhook authenticates a Chime event and maps its type to an outcome.
func (c *Chime) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if !matchesHMACSHA256(c.webhookSecret, payload, signatureHeader) {
		return nil, ErrInvalidSignature
	}

	var event chimeWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	outcome := OutcomeIgnored
	reason := ""
	switch event.EventType {
	case "transfer.completed":
		outcome = OutcomeSucceeded
	case "transfer.failed", "transfer.returned":
		outcome = OutcomeFailed
		reason = event.Transfer.Reason
		if reason == "" {
			reason = event.EventType
		}
	}

	return &Event{
		ProviderEventID: event.EventID,
		ProviderRef:     event.Transfer.ID,
		Outcome:         outcome,
		Reason:          reason,
	}, nil
}
