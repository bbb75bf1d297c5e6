/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payment-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Intent methods
	CreateIntent(ctx context.Context, intent *domain.PaymentIntent) error
	FindIntentByID(ctx context.Context, intentID uuid.UUID) (*domain.PaymentIntent, error)
	FindIntentByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.PaymentIntent, error)
	FindIntentByProviderRef(ctx context.Context, provider domain.Provider, providerRef string) (*domain.PaymentIntent, error)
	ListIntentsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.PaymentIntent, error)
	// TransitionIntentStatus performs a compare-and-swap on the intent's status:
	// the update applies only while the current status is one of fromStatuses.
	// It returns true when this caller won the transition. failureSource records
	// who reported a failure; both failure fields clear on a succeeded status.
	TransitionIntentStatus(ctx context.Context, intentID uuid.UUID, fromStatuses []string, toStatus string, providerRef, failureReason, failureSource *string) (bool, error)
	// ClaimIntentProjection flips the intent's projected flag from false to true.
	// Only the first caller sees true, which is what guarantees exactly-once
	// ledger projection under event redelivery.
	ClaimIntentProjection(ctx context.Context, intentID uuid.UUID) (bool, error)

	// Audit methods
	CreateIntentAudit(ctx context.Context, audit *domain.IntentAudit) error
	ListIntentAudits(ctx context.Context, limit, offset int) ([]domain.IntentAudit, error)

	// Webhook methods
	// RecordWebhookEvent persists the event; a duplicate
	// (provider, provider_event_id) pair returns ErrWebhookEventSeen.
	RecordWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error
	CreateDeadLetterWebhook(ctx context.Context, letter *domain.DeadLetterWebhook) error
	ListDeadLetterWebhooks(ctx context.Context, includeResolved bool, limit, offset int) ([]domain.DeadLetterWebhook, error)
	ResolveDeadLetterWebhook(ctx context.Context, letterID uuid.UUID) (bool, error)

	// Ledger methods
	// CreateLedgerEntry appends one entry; a duplicate (intent_id, kind) pair
	// returns ErrLedgerEntryExists.
	CreateLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error
	ListLedgerEntriesByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
	GetAccountSummary(ctx context.Context, accountID uuid.UUID) (*domain.AccountSummary, error)

	// Account methods
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)

	// Dashboard methods
	GetDashboardStats(ctx context.Context, since time.Time) (*domain.DashboardStats, error)
}
