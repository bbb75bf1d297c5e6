/**
 * @description
 * This file defines the core domain models for the payment-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (cents), which avoids floating-point inaccuracies with financial data.
 * - Intent status transitions are monotonic: created -> pending -> a terminal
 *   state. The only permitted terminal rewrite is the audited correction of a
 *   locally recorded timeout failure by a verified provider success event.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider identifies one of the supported payment providers.
type Provider string

const (
	ProviderStripe    Provider = "stripe"
	ProviderCashApp   Provider = "cashapp"
	ProviderVenmo     Provider = "venmo"
	ProviderChime     Provider = "chime"
	ProviderGooglePay Provider = "googlepay"
	ProviderPayPal    Provider = "paypal"
)

// Providers lists every supported provider, in display order.
var Providers = []Provider{
	ProviderStripe,
	ProviderCashApp,
	ProviderVenmo,
	ProviderChime,
	ProviderGooglePay,
	ProviderPayPal,
}

// ParseProvider normalizes a raw provider string into a Provider.
// The boolean result reports whether the value is one of the supported providers.
func ParseProvider(raw string) (Provider, bool) {
	candidate := Provider(strings.ToLower(strings.TrimSpace(raw)))
	for _, p := range Providers {
		if p == candidate {
			return p, true
		}
	}
	return "", false
}

// Intent status values.
const (
	IntentStatusCreated   = "created"
	IntentStatusPending   = "pending"
	IntentStatusSucceeded = "succeeded"
	IntentStatusFailed    = "failed"
	IntentStatusCanceled  = "canceled"
)

// IsTerminalIntentStatus reports whether a status admits no further transitions.
func IsTerminalIntentStatus(status string) bool {
	switch status {
	case IntentStatusSucceeded, IntentStatusFailed, IntentStatusCanceled:
		return true
	}
	return false
}

// PaymentIntent is the central record for a tracked request to move money via a
// specific provider. This struct maps directly to the `payment_intents` table.
type PaymentIntent struct {
	ID             uuid.UUID         `json:"id"`
	AccountID      uuid.UUID         `json:"account_id"`
	Provider       Provider          `json:"provider"`
	ProviderRef    *string           `json:"provider_ref,omitempty"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"` // in minor units
	Currency       string            `json:"currency"`
	RecipientRef   string            `json:"recipient_ref"`
	Note           string            `json:"note,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	FailureReason  *string           `json:"failure_reason,omitempty"`
	FailureSource  *string           `json:"failure_source,omitempty"`
	Projected      bool              `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`

	// ClientSecret and PaymentURL are handed back once at creation so the
	// client can complete the payment with the provider. Never persisted.
	ClientSecret string `json:"-"`
	PaymentURL   string `json:"-"`
}

// CreateIntentRequest is the DTO for incoming intent creation API requests.
type CreateIntentRequest struct {
	Amount         int64             `json:"amount"` // in minor units
	Currency       string            `json:"currency"`
	Provider       string            `json:"provider"`
	RecipientRef   string            `json:"recipient_ref"`
	Note           string            `json:"note,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TerminalOutcome captures the result a provider reported for an intent.
type TerminalOutcome string

const (
	OutcomeSucceeded TerminalOutcome = "succeeded"
	OutcomeFailed    TerminalOutcome = "failed"
)

// IntentAudit is an append-only record of material lifecycle interventions:
// contradictory terminal outcomes held for manual review and timeout-failure
// corrections applied when a verified success event arrives late.
type IntentAudit struct {
	ID         uuid.UUID `json:"id"`
	IntentID   uuid.UUID `json:"intent_id"`
	PriorState string    `json:"prior_state"`
	NextState  string    `json:"next_state"`
	Source     string    `json:"source"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit sources recorded against intent interventions.
const (
	AuditSourceWebhook  = "webhook"
	AuditSourceOperator = "operator"
	AuditSourceClient   = "client"
)

// FailureSourceProviderCall marks a failure recorded by the local provider
// call (outage, rejection, timeout). Only failures with this provenance may
// later be corrected by a verified provider success event; failures reported
// by a webhook or an operator are authoritative and stay put.
const FailureSourceProviderCall = "provider_call"

// LocallyRecordedFailure reports whether the intent's failed status was
// recorded by the local provider call rather than by a webhook or operator.
func (p *PaymentIntent) LocallyRecordedFailure() bool {
	return p.Status == IntentStatusFailed &&
		p.FailureSource != nil && *p.FailureSource == FailureSourceProviderCall
}
