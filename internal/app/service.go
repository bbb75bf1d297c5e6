/**
 * @description
 * This file contains the core business logic for the payment-service. The `Service`
 * struct owns the PaymentIntent lifecycle: it validates and creates intents through
 * the provider adapters, applies terminal state transitions exactly once, and
 * publishes finalized-intent events for downstream ledger projection.
 *
 * Key features:
 * - Exactly-once intent creation keyed on the client-supplied idempotency key.
 * - Compare-and-swap status transitions; conflicting terminal outcomes are
 *   audited for manual review, never overwritten.
 * - A verified provider success event overrides a locally recorded timeout
 *   failure, with an audit record of the correction.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/provider, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/domain"
	"github.com/payeazy/payment-service/internal/store"
	"github.com/payeazy/payment-service/pkg/provider"
	"github.com/payeazy/payment-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount       = errors.New("amount is outside the allowed bounds")
	ErrInvalidCurrency     = errors.New("currency is not supported")
	ErrUnknownProvider     = errors.New("unknown payment provider")
	ErrInvalidRecipient    = errors.New("recipient reference is required")
	ErrMissingIdempotency  = errors.New("idempotency key is required")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment rejected by provider")
	ErrTerminalConflict    = errors.New("conflicting terminal outcome requires manual review")
	ErrNotCancelable       = errors.New("intent can no longer be canceled")
)

// Service provides the core business logic for payment intents.
type Service struct {
	repo          store.Repository
	providers     *provider.Registry
	eventProducer rabbitmq.Publisher
	projector     *Projector

	minAmount     int64
	maxAmount     int64
	currencies    map[string]struct{}
	callTimeout   time.Duration
}

// NewService creates a new payment service instance.
func NewService(repo store.Repository, providers *provider.Registry, producer rabbitmq.Publisher, minAmount, maxAmount int64, allowedCurrencies []string, providerCallTimeout time.Duration) *Service {
	currencies := make(map[string]struct{}, len(allowedCurrencies))
	for _, c := range allowedCurrencies {
		currencies[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	if providerCallTimeout <= 0 {
		providerCallTimeout = 15 * time.Second
	}
	return &Service{
		repo:          repo,
		providers:     providers,
		eventProducer: producer,
		projector:     NewProjector(repo),
		minAmount:     minAmount,
		maxAmount:     maxAmount,
		currencies:    currencies,
		callTimeout:   providerCallTimeout,
	}
}

// Projector exposes the ledger projector wired into this service, for use by
// the finalized-event consumer.
func (s *Service) Projector() *Projector {
	return s.projector
}

// validateCreateRequest checks amount bounds, currency, provider and the
// idempotency key before any provider interaction.
func (s *Service) validateCreateRequest(req domain.CreateIntentRequest) (domain.Provider, error) {
	if req.Amount < s.minAmount || req.Amount > s.maxAmount {
		return "", fmt.Errorf("%w: got %d, allowed %d-%d", ErrInvalidAmount, req.Amount, s.minAmount, s.maxAmount)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if _, ok := s.currencies[currency]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, req.Currency)
	}
	prov, ok := domain.ParseProvider(req.Provider)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}
	if _, ok := s.providers.Get(string(prov)); !ok {
		return "", fmt.Errorf("%w: %q is not configured", ErrUnknownProvider, req.Provider)
	}
	if strings.TrimSpace(req.RecipientRef) == "" {
		return "", ErrInvalidRecipient
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return "", ErrMissingIdempotency
	}
	return prov, nil
}

// CreateIntent validates the request and opens a payment with the matching
// provider. A repeated call with the same idempotency key returns the prior
// intent unchanged and performs no second provider call.
// The returned bool reports whether a new intent was opened; a replayed
// idempotency key returns the existing intent with false.
func (s *Service) CreateIntent(ctx context.Context, accountID uuid.UUID, req domain.CreateIntentRequest) (*domain.PaymentIntent, bool, error) {
	prov, err := s.validateCreateRequest(req)
	if err != nil {
		return nil, false, err
	}

	// Exactly-once creation: an existing intent for this key is returned as-is.
	existing, err := s.repo.FindIntentByIdempotencyKey(ctx, accountID, req.IdempotencyKey)
	if err == nil {
		log.Printf("level=info component=service op=create_intent outcome=idempotent_replay account_id=%s idempotency_key=%s intent_id=%s", accountID, req.IdempotencyKey, existing.ID)
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrIntentNotFound) {
		return nil, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	intent := &domain.PaymentIntent{
		ID:             uuid.New(),
		AccountID:      accountID,
		Provider:       prov,
		Status:         domain.IntentStatusCreated,
		Amount:         req.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		RecipientRef:   strings.TrimSpace(req.RecipientRef),
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	}
	if err := s.repo.CreateIntent(ctx, intent); err != nil {
		if errors.Is(err, store.ErrDuplicateIntentKey) {
			// Lost a creation race for the same key; return the winner.
			winner, findErr := s.repo.FindIntentByIdempotencyKey(ctx, accountID, req.IdempotencyKey)
			return winner, false, findErr
		}
		return nil, false, fmt.Errorf("failed to create intent record: %w", err)
	}

	adapter, _ := s.providers.Get(string(prov))
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	ref, err := adapter.CreateIntent(callCtx, provider.CreateIntentRequest{
		IntentID:     intent.ID.String(),
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		RecipientRef: intent.RecipientRef,
		Note:         intent.Note,
		Metadata:     intent.Metadata,
	})
	if err != nil {
		failed, failErr := s.recordCreateFailure(ctx, intent, err)
		return failed, true, failErr
	}

	providerRef := strings.TrimSpace(ref.ProviderRef)
	var refPtr *string
	if providerRef != "" {
		refPtr = &providerRef
	}
	intent.ClientSecret = ref.ClientSecret
	intent.PaymentURL = ref.PaymentURL

	won, err := s.repo.TransitionIntentStatus(ctx, intent.ID, []string{domain.IntentStatusCreated}, domain.IntentStatusPending, refPtr, nil, nil)
	if err != nil {
		return nil, true, fmt.Errorf("failed to mark intent pending: %w", err)
	}
	if !won {
		// A webhook for this provider ref cannot have landed before the ref was
		// stored, so the only way to get here is a concurrent client cancel.
		log.Printf("level=warn component=service op=create_intent msg=\"intent left created state concurrently\" intent_id=%s", intent.ID)
		current, findErr := s.repo.FindIntentByID(ctx, intent.ID)
		return current, true, findErr
	}

	intent.Status = domain.IntentStatusPending
	intent.ProviderRef = refPtr
	log.Printf("level=info component=service op=create_intent outcome=pending intent_id=%s provider=%s provider_ref=%s amount=%d", intent.ID, intent.Provider, providerRef, intent.Amount)
	return intent, true, nil
}

// recordCreateFailure persists a failed provider call and converts the adapter
// error into the service taxonomy. The intent stays resubmittable: the client
// may retry with the same idempotency key once the record is terminal, but a
// late success webhook for the same attempt can still correct it.
func (s *Service) recordCreateFailure(ctx context.Context, intent *domain.PaymentIntent, callErr error) (*domain.PaymentIntent, error) {
	reason := callErr.Error()
	taxonomyErr := ErrProviderUnavailable

	var provErr *provider.Error
	if errors.As(callErr, &provErr) {
		switch provErr.Kind {
		case provider.ErrKindRejected:
			taxonomyErr = ErrProviderRejected
		case provider.ErrKindNetwork, provider.ErrKindMisconfigured:
			taxonomyErr = ErrProviderUnavailable
		}
	}

	source := domain.FailureSourceProviderCall
	if _, err := s.repo.TransitionIntentStatus(ctx, intent.ID, []string{domain.IntentStatusCreated}, domain.IntentStatusFailed, nil, &reason, &source); err != nil {
		log.Printf("level=error component=service op=create_intent msg=\"failed to persist provider failure\" intent_id=%s err=%v", intent.ID, err)
	}
	intent.Status = domain.IntentStatusFailed
	intent.FailureReason = &reason
	intent.FailureSource = &source

	log.Printf("level=warn component=service op=create_intent outcome=failed intent_id=%s provider=%s err=%v", intent.ID, intent.Provider, callErr)
	return intent, fmt.Errorf("%w: %v", taxonomyErr, callErr)
}

// MarkTerminal applies a terminal outcome to a pending intent. Repeated calls
// with the same outcome are no-ops. Contradictory terminal outcomes are
// audited and rejected, with one policy exception: a verified success event
// overrides a failure the provider call recorded locally (late success after
// timeout), also leaving an audit trail. Failures reported by a webhook or an
// operator are never rewritten.
func (s *Service) MarkTerminal(ctx context.Context, intentID uuid.UUID, outcome domain.TerminalOutcome, source, reason string) (*domain.PaymentIntent, error) {
	intent, err := s.repo.FindIntentByID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	target := string(outcome)
	if intent.Status == target {
		return intent, nil
	}

	var reasonPtr *string
	if strings.TrimSpace(reason) != "" {
		reasonPtr = &reason
	}

	if !domain.IsTerminalIntentStatus(intent.Status) {
		var sourcePtr *string
		if outcome == domain.OutcomeFailed {
			sourcePtr = &source
		}
		won, err := s.repo.TransitionIntentStatus(ctx, intentID, []string{domain.IntentStatusCreated, domain.IntentStatusPending}, target, nil, reasonPtr, sourcePtr)
		if err != nil {
			return nil, fmt.Errorf("terminal transition failed: %w", err)
		}
		if !won {
			// Another writer finished the transition first; re-read and defer
			// to the recorded outcome.
			return s.MarkTerminal(ctx, intentID, outcome, source, reason)
		}
		intent.Status = target
		intent.FailureReason = reasonPtr
		intent.FailureSource = sourcePtr
		s.publishFinalized(ctx, intent)
		log.Printf("level=info component=service op=mark_terminal outcome=%s intent_id=%s source=%s", target, intentID, source)
		return intent, nil
	}

	// Correction path: a verified success wins over a failure the provider call
	// recorded locally (timeout, outage). A failure the provider itself reported
	// through a webhook is authoritative; contradicting it is a conflict.
	if intent.Status == domain.IntentStatusFailed && outcome == domain.OutcomeSucceeded &&
		source == domain.AuditSourceWebhook && intent.LocallyRecordedFailure() {
		won, err := s.repo.TransitionIntentStatus(ctx, intentID, []string{domain.IntentStatusFailed}, domain.IntentStatusSucceeded, nil, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failure correction failed: %w", err)
		}
		if !won {
			return s.repo.FindIntentByID(ctx, intentID)
		}
		s.audit(ctx, intent, domain.IntentStatusSucceeded, source, "verified provider success overrides locally recorded failure")
		intent.Status = domain.IntentStatusSucceeded
		intent.FailureReason = nil
		intent.FailureSource = nil
		s.publishFinalized(ctx, intent)
		log.Printf("level=warn component=service op=mark_terminal outcome=corrected intent_id=%s msg=\"failed intent corrected to succeeded by verified event\"", intentID)
		return intent, nil
	}

	s.audit(ctx, intent, target, source, fmt.Sprintf("rejected transition %s -> %s", intent.Status, target))
	log.Printf("level=error component=service op=mark_terminal outcome=conflict intent_id=%s current=%s requested=%s source=%s", intentID, intent.Status, target, source)
	return intent, fmt.Errorf("%w: intent %s is %s, received %s", ErrTerminalConflict, intentID, intent.Status, target)
}

// CancelIntent cancels an intent on explicit client request. Cancelation is
// reachable only from created/pending; repeated cancels are no-ops.
func (s *Service) CancelIntent(ctx context.Context, intentID uuid.UUID) (*domain.PaymentIntent, error) {
	intent, err := s.repo.FindIntentByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status == domain.IntentStatusCanceled {
		return intent, nil
	}
	if domain.IsTerminalIntentStatus(intent.Status) {
		return nil, fmt.Errorf("%w: intent %s is %s", ErrNotCancelable, intentID, intent.Status)
	}

	won, err := s.repo.TransitionIntentStatus(ctx, intentID, []string{domain.IntentStatusCreated, domain.IntentStatusPending}, domain.IntentStatusCanceled, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("cancel transition failed: %w", err)
	}
	if !won {
		// A terminal outcome landed between the read and the swap.
		return nil, fmt.Errorf("%w: intent %s finalized concurrently", ErrNotCancelable, intentID)
	}
	intent.Status = domain.IntentStatusCanceled
	log.Printf("level=info component=service op=cancel_intent intent_id=%s", intentID)
	return intent, nil
}

// GetIntent retrieves one intent for status polling.
func (s *Service) GetIntent(ctx context.Context, intentID uuid.UUID) (*domain.PaymentIntent, error) {
	return s.repo.FindIntentByID(ctx, intentID)
}

// ListIntents returns an account's intents, newest first.
func (s *Service) ListIntents(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.PaymentIntent, error) {
	return s.repo.ListIntentsByAccount(ctx, accountID, limit, offset)
}

// GetAccountSummary folds an account's ledger entries into dashboard balances.
func (s *Service) GetAccountSummary(ctx context.Context, accountID uuid.UUID) (*domain.AccountSummary, error) {
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.GetAccountSummary(ctx, accountID)
}

// ListLedgerEntries returns an account's ledger entries, newest first.
func (s *Service) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	return s.repo.ListLedgerEntriesByAccount(ctx, accountID, limit, offset)
}

// ListConflictAudits returns the manual-review queue for operators.
func (s *Service) ListConflictAudits(ctx context.Context, limit, offset int) ([]domain.IntentAudit, error) {
	return s.repo.ListIntentAudits(ctx, limit, offset)
}

// ListDeadLetters returns retained unmatched webhooks for operators.
func (s *Service) ListDeadLetters(ctx context.Context, includeResolved bool, limit, offset int) ([]domain.DeadLetterWebhook, error) {
	return s.repo.ListDeadLetterWebhooks(ctx, includeResolved, limit, offset)
}

// ResolveDeadLetter marks a dead letter as manually reconciled.
func (s *Service) ResolveDeadLetter(ctx context.Context, letterID uuid.UUID) (bool, error) {
	return s.repo.ResolveDeadLetterWebhook(ctx, letterID)
}

// GetDashboardStats aggregates intent volume for the admin dashboard.
func (s *Service) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.GetDashboardStats(ctx, startOfDay)
}

// publishFinalized emits an intent.finalized event for downstream projection.
// When the broker is unavailable the succeeded path falls back to projecting
// synchronously so the ledger never silently stalls.
func (s *Service) publishFinalized(ctx context.Context, intent *domain.PaymentIntent) {
	event := domain.IntentFinalizedEvent{
		IntentID:  intent.ID,
		AccountID: intent.AccountID,
		Provider:  intent.Provider,
		Status:    intent.Status,
		Amount:    intent.Amount,
		Currency:  intent.Currency,
		Timestamp: time.Now().UTC(),
	}

	published := false
	if s.eventProducer != nil {
		routingKey := "intent.finalized." + intent.Status
		if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, event); err != nil {
			log.Printf("level=warn component=service op=publish_finalized msg=\"publish failed; falling back to synchronous projection\" intent_id=%s err=%v", intent.ID, err)
		} else {
			published = true
		}
	}

	if !published && intent.Status == domain.IntentStatusSucceeded {
		if err := s.projector.ProjectIntent(ctx, event); err != nil {
			log.Printf("level=error component=service op=publish_finalized msg=\"synchronous projection failed\" intent_id=%s err=%v", intent.ID, err)
		}
	}
}

// audit records a lifecycle intervention; audit failures are logged, never fatal.
func (s *Service) audit(ctx context.Context, intent *domain.PaymentIntent, nextState, source, detail string) {
	record := &domain.IntentAudit{
		ID:         uuid.New(),
		IntentID:   intent.ID,
		PriorState: intent.Status,
		NextState:  nextState,
		Source:     source,
		Detail:     detail,
	}
	if err := s.repo.CreateIntentAudit(ctx, record); err != nil {
		log.Printf("level=error component=service op=audit msg=\"failed to persist intent audit\" intent_id=%s err=%v", intent.ID, err)
	}
}
