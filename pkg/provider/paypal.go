/**
 * @description
 * PayPal adapter. Opens an order capture via the PayPal REST API and verifies
 * the HMAC-signed webhook callbacks.
 */
package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// PayPal is the Adapter implementation for PayPal payments.
type PayPal struct {
	transport     *httpTransport
	webhookSecret string
}

// NewPayPal creates a PayPal adapter.
func NewPayPal(baseURL, apiKey, webhookSecret string, timeout time.Duration) *PayPal {
	return &PayPal{
		transport:     newHTTPTransport("paypal", baseURL, apiKey, timeout),
		webhookSecret: webhookSecret,
	}
}

func (p *PayPal) Name() string { return "paypal" }

type paypalPurchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Amount      struct {
		CurrencyCode string `json:"currency_code"`
		ValueMinor   int64  `json:"value_minor"`
	} `json:"amount"`
	Description string `json:"description,omitempty"`
	Payee       struct {
		EmailAddress string `json:"email_address,omitempty"`
	} `json:"payee"`
}

type paypalOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateIntent opens a PayPal capture order.
func (p *PayPal) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentRef, error) {
	unit := paypalPurchaseUnit{
		ReferenceID: req.IntentID,
		Description: req.Note,
	}
	unit.Amount.CurrencyCode = strings.ToUpper(req.Currency)
	unit.Amount.ValueMinor = req.Amount
	unit.Payee.EmailAddress = req.RecipientRef

	payload := paypalOrderRequest{
		Intent:        "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{unit},
	}

	var resp paypalOrderResponse
	if err := p.transport.postJSON(ctx, "/v2/checkout/orders", payload, &resp); err != nil {
		return nil, err
	}
	return &IntentRef{
		ProviderRef: resp.ID,
		RawStatus:   resp.Status,
	}, nil
}

type paypalWebhookPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID            string `json:"id"`
		StatusDetails struct {
			Reason string `json:"reason"`
		} `json:"status_details"`
	} `json:"resource"`
}

// VerifyWebhook authenticates a PayPal event and maps its type to an outcome.
func (p *PayPal) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if !matchesHMACSHA256(p.webhookSecret, payload, signatureHeader) {
		return nil, ErrInvalidSignature
	}

	var event paypalWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	outcome := OutcomeIgnored
	reason := ""
	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		outcome = OutcomeSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED", "CHECKOUT.ORDER.VOIDED":
		outcome = OutcomeFailed
		reason = event.Resource.StatusDetails.Reason
		if reason == "" {
			reason = event.EventType
		}
	}

	return &Event{
		ProviderEventID: event.ID,
		ProviderRef:     event.Resource.ID,
		Outcome:         outcome,
		Reason:          reason,
	}, nil
}
