/**
 * @description
 * This file contains the webhook reconciler. It turns raw provider callbacks
 * into verified, de-duplicated terminal transitions on payment intents.
 *
 * Pipeline per delivery:
 * 1. Verify the signature through the provider adapter. Unverified payloads
 *    are recorded for forensics and dropped; they never touch intent state.
 * 2. Short-circuit replays: a Redis guard first (fast path, fail-open), the
 *    unique (provider, provider_event_id) index as the durable authority.
 * 3. Correlate to an intent by provider reference, falling back to the
 *    round-tripped intent id for providers that echo request metadata.
 * 4. Apply the terminal outcome via the service (CAS, audited conflicts),
 *    then durably record the event and mark the replay guard.
 *
 * Verified events that match no intent are retained in the dead-letter store
 * for manual reconciliation, never discarded.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/domain"
	"github.com/payeazy/payment-service/internal/store"
	"github.com/payeazy/payment-service/pkg/provider"
)

// IngestResult describes how one webhook delivery was handled, for logging
// and tests. The HTTP layer acknowledges regardless.
type IngestResult struct {
	Provider        domain.Provider
	ProviderEventID string
	Verified        bool
	Duplicate       bool
	Matched         bool
	Conflict        bool
	IntentID        *uuid.UUID
}

// Reconciler verifies and applies provider webhooks.
type Reconciler struct {
	repo      store.Repository
	providers *provider.Registry
	service   *Service
	guard     *RedisWebhookGuard
}

// NewReconciler creates a webhook reconciler. The guard may be nil when Redis
// is not configured; the durable unique index still rejects replays.
func NewReconciler(repo store.Repository, providers *provider.Registry, service *Service, guard *RedisWebhookGuard) *Reconciler {
	return &Reconciler{
		repo:      repo,
		providers: providers,
		service:   service,
		guard:     guard,
	}
}

// Ingest processes one raw webhook delivery. A nil error means the delivery
// reached a stable state (applied, replayed, ignored, dead-lettered or
// dropped); a non-nil error means a transient persistence failure and the
// provider should redeliver.
func (r *Reconciler) Ingest(ctx context.Context, providerName string, payload []byte, signatureHeader string) (*IngestResult, error) {
	result := &IngestResult{}

	prov, ok := domain.ParseProvider(providerName)
	if !ok {
		log.Printf("level=warn component=reconciler op=ingest outcome=dropped msg=\"unknown provider path\" provider=%q", providerName)
		return result, nil
	}
	result.Provider = prov

	adapter, ok := r.providers.Get(string(prov))
	if !ok {
		log.Printf("level=warn component=reconciler op=ingest outcome=dropped msg=\"provider not configured\" provider=%s", prov)
		return result, nil
	}

	event, err := adapter.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidSignature) {
			r.recordUnverified(ctx, prov, payload, signatureHeader)
			log.Printf("level=warn component=reconciler op=ingest outcome=rejected msg=\"signature verification failed\" provider=%s", prov)
			return result, nil
		}
		log.Printf("level=warn component=reconciler op=ingest outcome=dropped msg=\"malformed payload\" provider=%s err=%v", prov, err)
		return result, nil
	}
	result.Verified = true
	result.ProviderEventID = event.ProviderEventID

	// Fast-path replay check; the durable insert below remains authoritative.
	if r.guard.Seen(ctx, string(prov), event.ProviderEventID) {
		result.Duplicate = true
		log.Printf("level=info component=reconciler op=ingest outcome=replay source=guard provider=%s event_id=%s", prov, event.ProviderEventID)
		return result, nil
	}

	if event.Outcome == provider.OutcomeIgnored {
		if err := r.recordEvent(ctx, prov, event, payload, signatureHeader, nil); err != nil {
			if errors.Is(err, store.ErrWebhookEventSeen) {
				result.Duplicate = true
				return result, nil
			}
			return result, err
		}
		r.guard.MarkSeen(ctx, string(prov), event.ProviderEventID)
		log.Printf("level=info component=reconciler op=ingest outcome=ignored provider=%s event_id=%s", prov, event.ProviderEventID)
		return result, nil
	}

	intent, err := r.correlate(ctx, prov, event)
	if err != nil {
		if !errors.Is(err, store.ErrIntentNotFound) {
			return result, fmt.Errorf("intent correlation failed: %w", err)
		}
		return r.deadLetter(ctx, prov, event, payload, signatureHeader, result)
	}
	result.Matched = true
	result.IntentID = &intent.ID

	outcome := domain.OutcomeSucceeded
	if event.Outcome == provider.OutcomeFailed {
		outcome = domain.OutcomeFailed
	}

	// Apply the transition before recording the event: MarkTerminal is
	// idempotent, so a crash between the two is healed by provider
	// redelivery instead of losing the transition.
	if _, err := r.service.MarkTerminal(ctx, intent.ID, outcome, domain.AuditSourceWebhook, event.Reason); err != nil {
		if errors.Is(err, ErrTerminalConflict) {
			result.Conflict = true
		} else {
			return result, fmt.Errorf("terminal transition failed: %w", err)
		}
	}

	if err := r.recordEvent(ctx, prov, event, payload, signatureHeader, &intent.ID); err != nil {
		if errors.Is(err, store.ErrWebhookEventSeen) {
			result.Duplicate = true
			return result, nil
		}
		return result, err
	}
	r.guard.MarkSeen(ctx, string(prov), event.ProviderEventID)

	log.Printf("level=info component=reconciler op=ingest outcome=applied provider=%s event_id=%s intent_id=%s status=%s conflict=%t", prov, event.ProviderEventID, intent.ID, outcome, result.Conflict)
	return result, nil
}

// correlate resolves the intent a verified event refers to. The provider
// reference is authoritative; the metadata intent id covers intents whose
// provider call timed out before a reference could be stored.
func (r *Reconciler) correlate(ctx context.Context, prov domain.Provider, event *provider.Event) (*domain.PaymentIntent, error) {
	if event.ProviderRef != "" {
		intent, err := r.repo.FindIntentByProviderRef(ctx, prov, event.ProviderRef)
		if err == nil || !errors.Is(err, store.ErrIntentNotFound) {
			return intent, err
		}
	}
	if event.IntentHint != "" {
		intentID, err := uuid.Parse(event.IntentHint)
		if err == nil {
			intent, err := r.repo.FindIntentByID(ctx, intentID)
			if err == nil && intent.Provider == prov {
				return intent, nil
			}
			if err != nil && !errors.Is(err, store.ErrIntentNotFound) {
				return nil, err
			}
		}
	}
	return nil, store.ErrIntentNotFound
}

// deadLetter retains a verified-but-unmatched event for manual reconciliation.
func (r *Reconciler) deadLetter(ctx context.Context, prov domain.Provider, event *provider.Event, payload []byte, signatureHeader string, result *IngestResult) (*IngestResult, error) {
	if err := r.recordEvent(ctx, prov, event, payload, signatureHeader, nil); err != nil {
		if errors.Is(err, store.ErrWebhookEventSeen) {
			result.Duplicate = true
			return result, nil
		}
		return result, err
	}

	letter := &domain.DeadLetterWebhook{
		ID:              uuid.New(),
		Provider:        prov,
		ProviderEventID: event.ProviderEventID,
		ProviderRef:     event.ProviderRef,
		Outcome:         event.Outcome,
		RawPayload:      payload,
	}
	if err := r.repo.CreateDeadLetterWebhook(ctx, letter); err != nil {
		return result, fmt.Errorf("dead-letter insert failed: %w", err)
	}
	r.guard.MarkSeen(ctx, string(prov), event.ProviderEventID)

	log.Printf("level=warn component=reconciler op=ingest outcome=dead_letter provider=%s event_id=%s provider_ref=%s", prov, event.ProviderEventID, event.ProviderRef)
	return result, nil
}

// recordEvent durably stores a verified event. ErrWebhookEventSeen signals a
// replay.
func (r *Reconciler) recordEvent(ctx context.Context, prov domain.Provider, event *provider.Event, payload []byte, signatureHeader string, intentID *uuid.UUID) error {
	record := &domain.WebhookEvent{
		ID:              uuid.New(),
		Provider:        prov,
		ProviderEventID: event.ProviderEventID,
		ProviderRef:     event.ProviderRef,
		RawPayload:      payload,
		Signature:       signatureHeader,
		Verified:        true,
		IntentID:        intentID,
	}
	return r.repo.RecordWebhookEvent(ctx, record)
}

// recordUnverified keeps a forensic trail of rejected deliveries. The event id
// inside an unverified payload cannot be trusted, so a synthetic id keeps the
// uniqueness constraint out of the way. Failures here are log-only.
func (r *Reconciler) recordUnverified(ctx context.Context, prov domain.Provider, payload []byte, signatureHeader string) {
	record := &domain.WebhookEvent{
		ID:              uuid.New(),
		Provider:        prov,
		ProviderEventID: "unverified-" + uuid.NewString(),
		RawPayload:      payload,
		Signature:       signatureHeader,
		Verified:        false,
	}
	if err := r.repo.RecordWebhookEvent(ctx, record); err != nil {
		log.Printf("level=warn component=reconciler op=record_unverified msg=\"failed to persist rejected delivery\" provider=%s err=%v", prov, err)
	}
}
