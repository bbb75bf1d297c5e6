/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to payment intents, webhook events, dead letters, ledger entries,
 * audits, and accounts.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/payeazy/payment-service/internal/domain"
)

var (
	ErrIntentNotFound     = errors.New("payment intent not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrDuplicateIntentKey = errors.New("idempotency key already used")
	ErrWebhookEventSeen   = errors.New("webhook event already recorded")
	ErrLedgerEntryExists  = errors.New("ledger entry already exists for intent")
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateIntent inserts a new payment intent record.
func (r *PostgresRepository) CreateIntent(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (
			id, account_id, provider, provider_ref, status, amount, currency,
			recipient_ref, note, idempotency_key, metadata, failure_reason,
			failure_source, projected, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, false, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		intent.ID, intent.AccountID, intent.Provider, intent.ProviderRef, intent.Status,
		intent.Amount, intent.Currency, intent.RecipientRef, intent.Note,
		intent.IdempotencyKey, intent.Metadata, intent.FailureReason, intent.FailureSource,
	).Scan(&intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIntentKey
		}
		return err
	}
	return nil
}

const intentColumns = `
	id, account_id, provider, provider_ref, status, amount, currency,
	COALESCE(recipient_ref, '') AS recipient_ref, COALESCE(note, '') AS note,
	idempotency_key, metadata, failure_reason, failure_source, projected, created_at, updated_at
`

func scanIntent(row pgx.Row) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := row.Scan(
		&intent.ID, &intent.AccountID, &intent.Provider, &intent.ProviderRef,
		&intent.Status, &intent.Amount, &intent.Currency, &intent.RecipientRef,
		&intent.Note, &intent.IdempotencyKey, &intent.Metadata,
		&intent.FailureReason, &intent.FailureSource, &intent.Projected,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// FindIntentByID retrieves a payment intent by its identifier.
func (r *PostgresRepository) FindIntentByID(ctx context.Context, intentID uuid.UUID) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`
	return scanIntent(r.db.QueryRow(ctx, query, intentID))
}

// FindIntentByIdempotencyKey retrieves the intent previously created for an
// account with the given client-supplied idempotency key, if one exists.
func (r *PostgresRepository) FindIntentByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE account_id = $1 AND idempotency_key = $2`
	return scanIntent(r.db.QueryRow(ctx, query, accountID, key))
}

// FindIntentByProviderRef correlates a provider-native reference to an intent.
func (r *PostgresRepository) FindIntentByProviderRef(ctx context.Context, provider domain.Provider, providerRef string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE provider = $1 AND provider_ref = $2`
	return scanIntent(r.db.QueryRow(ctx, query, provider, providerRef))
}

// ListIntentsByAccount returns an account's intents, newest first.
func (r *PostgresRepository) ListIntentsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.PaymentIntent, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []domain.PaymentIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *intent)
	}
	return intents, rows.Err()
}

// TransitionIntentStatus applies a compare-and-swap status update. Exactly one
// concurrent caller can win a given transition, which serializes terminal
// outcomes per intent without explicit locks.
func (r *PostgresRepository) TransitionIntentStatus(ctx context.Context, intentID uuid.UUID, fromStatuses []string, toStatus string, providerRef, failureReason, failureSource *string) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = $1,
		    provider_ref = COALESCE($2, provider_ref),
		    failure_reason = CASE WHEN $1 = 'succeeded' THEN NULL ELSE COALESCE($3, failure_reason) END,
		    failure_source = CASE WHEN $1 = 'succeeded' THEN NULL ELSE COALESCE($4, failure_source) END,
		    updated_at = NOW()
		WHERE id = $5 AND status = ANY($6)
	`
	result, err := r.db.Exec(ctx, query, toStatus, providerRef, failureReason, failureSource, intentID, fromStatuses)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// ClaimIntentProjection marks an intent as projected; only the first caller wins.
func (r *PostgresRepository) ClaimIntentProjection(ctx context.Context, intentID uuid.UUID) (bool, error) {
	query := `UPDATE payment_intents SET projected = true, updated_at = NOW() WHERE id = $1 AND projected = false`
	result, err := r.db.Exec(ctx, query, intentID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// CreateIntentAudit appends one audit record.
func (r *PostgresRepository) CreateIntentAudit(ctx context.Context, audit *domain.IntentAudit) error {
	query := `
		INSERT INTO intent_audits (id, intent_id, prior_state, next_state, source, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		audit.ID, audit.IntentID, audit.PriorState, audit.NextState, audit.Source, audit.Detail,
	).Scan(&audit.CreatedAt)
}

// ListIntentAudits returns audit records for the operator review queue, newest first.
func (r *PostgresRepository) ListIntentAudits(ctx context.Context, limit, offset int) ([]domain.IntentAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, intent_id, prior_state, next_state, source, detail, created_at
		FROM intent_audits
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []domain.IntentAudit
	for rows.Next() {
		var a domain.IntentAudit
		if err := rows.Scan(&a.ID, &a.IntentID, &a.PriorState, &a.NextState, &a.Source, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// RecordWebhookEvent persists one inbound webhook delivery. The unique index
// on (provider, provider_event_id) is the durable replay guard; redelivery of
// an already-recorded event surfaces as ErrWebhookEventSeen.
func (r *PostgresRepository) RecordWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, provider, provider_event_id, provider_ref, raw_payload, signature, verified, intent_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING received_at
	`
	err := r.db.QueryRow(ctx, query,
		event.ID, event.Provider, event.ProviderEventID, event.ProviderRef,
		event.RawPayload, event.Signature, event.Verified, event.IntentID,
	).Scan(&event.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrWebhookEventSeen
		}
		return err
	}
	return nil
}

// CreateDeadLetterWebhook retains a verified-but-unmatched event for manual review.
func (r *PostgresRepository) CreateDeadLetterWebhook(ctx context.Context, letter *domain.DeadLetterWebhook) error {
	query := `
		INSERT INTO webhook_dead_letters (id, provider, provider_event_id, provider_ref, outcome, raw_payload, resolved, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, NOW())
		RETURNING received_at
	`
	return r.db.QueryRow(ctx, query,
		letter.ID, letter.Provider, letter.ProviderEventID, letter.ProviderRef,
		letter.Outcome, letter.RawPayload,
	).Scan(&letter.ReceivedAt)
}

// ListDeadLetterWebhooks returns retained unmatched events, newest first.
func (r *PostgresRepository) ListDeadLetterWebhooks(ctx context.Context, includeResolved bool, limit, offset int) ([]domain.DeadLetterWebhook, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, provider, provider_event_id, provider_ref, outcome, raw_payload, resolved, received_at
		FROM webhook_dead_letters
		WHERE resolved = false OR $1
		ORDER BY received_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, includeResolved, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []domain.DeadLetterWebhook
	for rows.Next() {
		var l domain.DeadLetterWebhook
		if err := rows.Scan(&l.ID, &l.Provider, &l.ProviderEventID, &l.ProviderRef, &l.Outcome, &l.RawPayload, &l.Resolved, &l.ReceivedAt); err != nil {
			return nil, err
		}
		letters = append(letters, l)
	}
	return letters, rows.Err()
}

// ResolveDeadLetterWebhook marks a dead letter as manually reconciled.
func (r *PostgresRepository) ResolveDeadLetterWebhook(ctx context.Context, letterID uuid.UUID) (bool, error) {
	query := `UPDATE webhook_dead_letters SET resolved = true WHERE id = $1 AND resolved = false`
	result, err := r.db.Exec(ctx, query, letterID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// CreateLedgerEntry appends one ledger entry. The unique index on
// (intent_id, kind) makes projection exactly-once even if the projected-flag
// claim and the insert race across process restarts.
func (r *PostgresRepository) CreateLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, intent_id, account_id, direction, kind, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.IntentID, entry.AccountID, entry.Direction, entry.Kind,
		entry.Amount, entry.Currency,
	).Scan(&entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLedgerEntryExists
		}
		return err
	}
	return nil
}

// ListLedgerEntriesByAccount returns an account's entries, newest first.
func (r *PostgresRepository) ListLedgerEntriesByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, intent_id, account_id, direction, kind, amount, currency, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.IntentID, &e.AccountID, &e.Direction, &e.Kind, &e.Amount, &e.Currency, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetAccountSummary folds an account's ledger entries into running balances.
// Balances are never stored; this query is the single source of truth.
func (r *PostgresRepository) GetAccountSummary(ctx context.Context, accountID uuid.UUID) (*domain.AccountSummary, error) {
	summary := domain.AccountSummary{AccountID: accountID}
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind = 'deposit' AND direction = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = 'payout' AND direction = 'debit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = 'commission' AND direction = 'credit'), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&summary.TotalDeposits, &summary.PendingPayout, &summary.Commission,
	)
	if err != nil {
		return nil, err
	}

	// Winnings are the net of credits over debits excluding deposits.
	winningsQuery := `
		SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND kind NOT IN ('deposit', 'commission')
	`
	if err := r.db.QueryRow(ctx, winningsQuery, accountID).Scan(&summary.Winnings); err != nil {
		return nil, err
	}
	return &summary, nil
}

// FindAccountByID retrieves one account.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, role, agent_id, created_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(&account.ID, &account.Role, &account.AgentID, &account.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetDashboardStats aggregates intent volume for the admin dashboard.
func (r *PostgresRepository) GetDashboardStats(ctx context.Context, since time.Time) (*domain.DashboardStats, error) {
	var stats domain.DashboardStats
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'succeeded'), 0),
			COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status IN ('created', 'pending')),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'succeeded' AND updated_at >= $1), 0)
		FROM payment_intents
	`
	err := r.db.QueryRow(ctx, query, since).Scan(
		&stats.TotalVolume, &stats.SucceededCount, &stats.PendingCount,
		&stats.FailedCount, &stats.TodayVolume,
	)
	if err != nil {
		return nil, err
	}

	deadLetterQuery := `SELECT COUNT(*) FROM webhook_dead_letters WHERE resolved = false`
	if err := r.db.QueryRow(ctx, deadLetterQuery).Scan(&stats.DeadLetterCount); err != nil {
		return nil, err
	}
	return &stats, nil
}
