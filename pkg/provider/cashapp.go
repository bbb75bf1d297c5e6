/**
 * @description
 * Cash App adapter. Opens a payment to a cashtag via the Cash App REST API and
 * verifies the HMAC-signed webhook callbacks.
 */
package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// CashApp is the Adapter implementation for Cash App payments.
type CashApp struct {
	transport     *httpTransport
	webhookSecret string
	redirectURL   string
}

// NewCashApp creates a Cash App adapter.
func NewCashApp(baseURL, apiKey, webhookSecret, redirectURL string, timeout time.Duration) *CashApp {
	return &CashApp{
		transport:     newHTTPTransport("cashapp", baseURL, apiKey, timeout),
		webhookSecret: webhookSecret,
		redirectURL:   redirectURL,
	}
}

func (c *CashApp) Name() string { return "cashapp" }

type cashAppPaymentRequest struct {
	Amount struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Recipient struct {
		Cashtag string `json:"cashtag"`
	} `json:"recipient"`
	Note        string            `json:"note,omitempty"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type cashAppPaymentResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PaymentURL string `json:"payment_url"`
}

// CreateIntent opens a Cash App payment to the recipient cashtag.
func (c *CashApp) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentRef, error) {
	payload := cashAppPaymentRequest{
		Note:        req.Note,
		RedirectURL: c.redirectURL,
		Metadata:    map[string]string{"intent_id": req.IntentID},
	}
	payload.Amount.Amount = req.Amount
	payload.Amount.Currency = strings.ToUpper(req.Currency)
	payload.Recipient.Cashtag = req.RecipientRef

	var resp cashAppPaymentResponse
	if err := c.transport.postJSON(ctx, "/v1/payments", payload, &resp); err != nil {
		return nil, err
	}
	return &IntentRef{
		ProviderRef: resp.ID,
		RawStatus:   resp.Status,
		PaymentURL:  resp.PaymentURL,
	}, nil
}

type cashAppWebhookPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Payment   struct {
		ID     string `json:"id"`
		Reason string `json:"failure_reason"`
	} `json:"payment"`
}

// VerifyWebhook authenticates a Cash App event and maps its type to an outcome.
func (c *CashApp) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if !matchesHMACSHA256(c.webhookSecret, payload, signatureHeader) {
		return nil, ErrInvalidSignature
	}

	var event cashAppWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	outcome := OutcomeIgnored
	reason := ""
	switch event.EventType {
	case "payment.completed":
		outcome = OutcomeSucceeded
	case "payment.failed", "payment.declined":
		outcome = OutcomeFailed
		reason = event.Payment.Reason
		if reason == "" {
			reason = event.EventType
		}
	}

	return &Event{
		ProviderEventID: event.EventID,
		ProviderRef:     event.Payment.ID,
		Outcome:         outcome,
		Reason:          reason,
	}, nil
}
