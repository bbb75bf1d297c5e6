/**
 * @description
 * This file contains the ledger projector. It folds finalized payment intents
 * into immutable ledger entries exactly once, regardless of how many times the
 * finalized event is delivered.
 *
 * Key features:
 * - A per-intent projected flag is claimed with a compare-and-swap before any
 *   entry is appended, so replays are cheap no-ops.
 * - The unique (intent_id, kind) constraint on ledger entries backstops the
 *   flag if a crash lands between the claim and the append.
 * - Accounts recruited by an agent also produce a commission entry credited
 *   to the agent's account.
 */

package app

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/domain"
	"github.com/payeazy/payment-service/internal/store"
)

// DefaultCommissionBps is the agent commission charged on successful deposits,
// in basis points of the deposit amount.
const DefaultCommissionBps int64 = 250

// Projector appends ledger entries for finalized intents exactly once.
type Projector struct {
	repo store.Repository

	// CommissionBps is the agent commission rate in basis points. Zero
	// disables commission entries.
	CommissionBps int64
}

// NewProjector creates a projector with the default commission rate.
func NewProjector(repo store.Repository) *Projector {
	return &Projector{repo: repo, CommissionBps: DefaultCommissionBps}
}

// ProjectIntent appends the ledger entries for one finalized intent. Failed
// and canceled intents produce no entries. Re-delivery of an already-projected
// intent is a no-op.
func (p *Projector) ProjectIntent(ctx context.Context, event domain.IntentFinalizedEvent) error {
	if event.Status != domain.IntentStatusSucceeded {
		return nil
	}

	claimed, err := p.repo.ClaimIntentProjection(ctx, event.IntentID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("level=info component=projector op=project_intent outcome=replay intent_id=%s", event.IntentID)
		return nil
	}

	deposit := &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: event.AccountID,
		IntentID:  event.IntentID,
		Kind:      domain.EntryKindDeposit,
		Direction: domain.DirectionCredit,
		Amount:    event.Amount,
		Currency:  event.Currency,
	}
	if err := p.repo.CreateLedgerEntry(ctx, deposit); err != nil {
		if !errors.Is(err, store.ErrLedgerEntryExists) {
			// The flag is claimed but the entry is missing; this needs an
			// operator backfill, so make it loud.
			log.Printf("level=error component=projector op=project_intent msg=\"projection claimed but deposit entry append failed\" intent_id=%s err=%v", event.IntentID, err)
			return err
		}
	}

	p.appendCommission(ctx, event)

	log.Printf("level=info component=projector op=project_intent outcome=projected intent_id=%s account_id=%s amount=%d", event.IntentID, event.AccountID, event.Amount)
	return nil
}

// appendCommission credits the recruiting agent, if any. Commission failures
// are logged and left for reconciliation; they never block the deposit.
func (p *Projector) appendCommission(ctx context.Context, event domain.IntentFinalizedEvent) {
	if p.CommissionBps <= 0 {
		return
	}
	account, err := p.repo.FindAccountByID(ctx, event.AccountID)
	if err != nil {
		log.Printf("level=warn component=projector op=append_commission msg=\"account lookup failed\" account_id=%s err=%v", event.AccountID, err)
		return
	}
	if account.AgentID == nil {
		return
	}

	commission := event.Amount * p.CommissionBps / 10000
	if commission <= 0 {
		return
	}
	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: *account.AgentID,
		IntentID:  event.IntentID,
		Kind:      domain.EntryKindCommission,
		Direction: domain.DirectionCredit,
		Amount:    commission,
		Currency:  event.Currency,
	}
	if err := p.repo.CreateLedgerEntry(ctx, entry); err != nil && !errors.Is(err, store.ErrLedgerEntryExists) {
		log.Printf("level=error component=projector op=append_commission msg=\"commission entry append failed\" intent_id=%s agent_id=%s err=%v", event.IntentID, *account.AgentID, err)
	}
}
