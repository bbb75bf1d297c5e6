/**
 * @description
 * Ledger domain models. Ledger entries are append-only and derived exclusively
 * from intents that reached the `succeeded` terminal state; account balances
 * are always computed as a fold over a customer's or agent's entries and are
 * never mutated directly.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry directions.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Ledger entry kinds. Deposits credit the owning account; payouts debit it;
// commission entries credit the referring agent's account.
const (
	EntryKindDeposit    = "deposit"
	EntryKindPayout     = "payout"
	EntryKindCommission = "commission"
)

// LedgerEntry is an immutable record of a completed financial movement and the
// basis for every displayed balance. IntentID is unique per kind so a finalized
// intent produces its entries exactly once.
type LedgerEntry struct {
	ID        uuid.UUID `json:"id"`
	IntentID  uuid.UUID `json:"intent_id"`
	AccountID uuid.UUID `json:"account_id"`
	Direction string    `json:"direction"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"` // in minor units
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// Account roles.
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
)

// Account is the customer/agent projection consumed by dashboards. Balances
// are a fold over the account's ledger entries.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	AgentID   *uuid.UUID `json:"agent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountSummary holds the running balances derived for one account.
type AccountSummary struct {
	AccountID     uuid.UUID `json:"account_id"`
	TotalDeposits int64     `json:"total_deposits"`
	Winnings      int64     `json:"winnings"`
	PendingPayout int64     `json:"pending_payout"`
	Commission    int64     `json:"commission"`
}

// DashboardStats aggregates intent volume for the admin dashboard.
type DashboardStats struct {
	TotalVolume     int64 `json:"total_volume"` // succeeded intents, minor units
	SucceededCount  int64 `json:"succeeded_count"`
	PendingCount    int64 `json:"pending_count"`
	FailedCount     int64 `json:"failed_count"`
	TodayVolume     int64 `json:"today_volume"`
	DeadLetterCount int64 `json:"dead_letter_count"`
}
