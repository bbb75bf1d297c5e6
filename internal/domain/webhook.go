/**
 * @description
 * Webhook-related domain models. A WebhookEvent is the durable record of one
 * inbound provider callback; events that verify but cannot be correlated to a
 * known intent are retained as DeadLetterWebhook rows for manual reconciliation
 * instead of being discarded.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records one inbound provider callback. The pair
// (provider, provider_event_id) is unique, which is what makes replayed
// deliveries observable as no-ops.
type WebhookEvent struct {
	ID              uuid.UUID  `json:"id"`
	Provider        Provider   `json:"provider"`
	ProviderEventID string     `json:"provider_event_id"`
	ProviderRef     string     `json:"provider_ref"`
	RawPayload      []byte     `json:"-"`
	Signature       string     `json:"-"`
	Verified        bool       `json:"verified"`
	IntentID        *uuid.UUID `json:"intent_id,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
}

// DeadLetterWebhook is a verified event that matched no known intent.
type DeadLetterWebhook struct {
	ID              uuid.UUID `json:"id"`
	Provider        Provider  `json:"provider"`
	ProviderEventID string    `json:"provider_event_id"`
	ProviderRef     string    `json:"provider_ref"`
	Outcome         string    `json:"outcome"`
	RawPayload      []byte    `json:"raw_payload"`
	Resolved        bool      `json:"resolved"`
	ReceivedAt      time.Time `json:"received_at"`
}

// IntentFinalizedEvent is the message payload published to RabbitMQ when an
// intent reaches a terminal state. The ledger projector consumes the
// succeeded variant.
type IntentFinalizedEvent struct {
	IntentID  uuid.UUID `json:"intent_id"`
	AccountID uuid.UUID `json:"account_id"`
	Provider  Provider  `json:"provider"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}
