/**
 * @description
 * This package provides clients for the third-party payment provider APIs
 * (Stripe, Cash App, Venmo, Chime, Google Pay, PayPal). Every provider is
 * exposed through the common Adapter contract: one outbound HTTP call to open
 * a payment, and signature verification plus normalization for the provider's
 * webhook callbacks. Retries and timeout policy belong to the orchestrator,
 * not to the adapters.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Webhook outcomes after normalization.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
)

// ErrorKind classifies adapter failures for the orchestrator.
type ErrorKind string

const (
	// ErrKindNetwork covers transport errors, timeouts and provider 5xx.
	ErrKindNetwork ErrorKind = "network"
	// ErrKindRejected covers provider 4xx responses: the request was
	// delivered and explicitly refused.
	ErrKindRejected ErrorKind = "rejected"
	// ErrKindMisconfigured covers missing or invalid local credentials.
	ErrKindMisconfigured ErrorKind = "misconfigured"
)

// Error is the normalized adapter failure.
type Error struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s adapter error (%s, status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s adapter error (%s): %s", e.Provider, e.Kind, e.Message)
}

// ErrInvalidSignature is returned by VerifyWebhook when the payload cannot be
// authenticated against the provider's configured secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CreateIntentRequest carries the normalized inputs for opening a payment with
// a provider.
type CreateIntentRequest struct {
	IntentID     string // our intent id, forwarded for correlation
	Amount       int64  // in minor units
	Currency     string
	RecipientRef string
	Note         string
	Metadata     map[string]string
}

// IntentRef is the normalized acknowledgment a provider returns for a newly
// opened payment.
type IntentRef struct {
	ProviderRef  string // provider-native payment id
	RawStatus    string // provider-native status, informational only
	ClientSecret string // present for card-tokenizing providers
	PaymentURL   string // present for redirect-style providers
}

// Event is a verified, normalized webhook callback.
type Event struct {
	ProviderEventID string
	ProviderRef     string
	// IntentHint is the platform intent id echoed back by providers that
	// round-trip request metadata. Empty when the provider does not echo it.
	IntentHint string
	Outcome    string
	Reason     string
}

// Adapter is the common contract every payment provider client implements.
type Adapter interface {
	Name() string
	// CreateIntent performs exactly one outbound HTTP call. Failures are
	// normalized to *Error; the adapter never retries.
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentRef, error)
	// VerifyWebhook authenticates a raw callback payload against the
	// provider's webhook secret and maps it to a normalized Event.
	// Unverifiable payloads return ErrInvalidSignature.
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}

// Registry maps provider names to their adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters, keyed by Name().
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		m[strings.ToLower(a.Name())] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a provider name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// httpTransport is the shared HTTP plumbing for all adapters: one bearer-token
// authenticated JSON POST per call, bounded by the client timeout.
type httpTransport struct {
	provider   string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newHTTPTransport(provider, baseURL, apiKey string, timeout time.Duration) *httpTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpTransport{
		provider:   provider,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (t *httpTransport) configured() bool {
	return strings.TrimSpace(t.baseURL) != "" && strings.TrimSpace(t.apiKey) != ""
}

func (t *httpTransport) misconfigured(msg string) *Error {
	return &Error{Provider: t.provider, Kind: ErrKindMisconfigured, Message: msg}
}

// postJSON executes the single outbound call and decodes a 2xx body into out.
// Non-2xx responses and transport failures are normalized to *Error.
func (t *httpTransport) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	if !t.configured() {
		return t.misconfigured("api base url or key not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", t.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", t.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &Error{Provider: t.provider, Kind: ErrKindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Provider: t.provider, Kind: ErrKindNetwork, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := ErrKindRejected
		if resp.StatusCode >= 500 {
			kind = ErrKindNetwork
		}
		return &Error{
			Provider: t.provider,
			Kind:     kind,
			Status:   resp.StatusCode,
			Message:  extractErrorMessage(bodyBytes),
		}
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", t.provider, err)
		}
	}
	return nil
}

// extractErrorMessage pulls a human-readable message out of common provider
// error body shapes, falling back to the raw body.
func extractErrorMessage(body []byte) string {
	var shape struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shape); err == nil {
		if shape.Message != "" {
			return shape.Message
		}
		if len(shape.Error) > 0 {
			var errStr string
			if json.Unmarshal(shape.Error, &errStr) == nil && errStr != "" {
				return errStr
			}
			var errObj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(shape.Error, &errObj) == nil && errObj.Message != "" {
				return errObj.Message
			}
		}
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	if trimmed == "" {
		trimmed = "no error detail"
	}
	return trimmed
}
