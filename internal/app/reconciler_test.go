package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/domain"
	"github.com/payeazy/payment-service/pkg/provider"
)

func newTestReconciler(repo *memRepo, adapters ...provider.Adapter) (*Reconciler, *Service) {
	registry := provider.NewRegistry(adapters...)
	svc := NewService(repo, registry, nil, 100, 1000000, []string{"USD"}, 0)
	return NewReconciler(repo, registry, svc, nil), svc
}

func eventPayload(eventID, ref, outcome, reason, hint string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s|%s", eventID, ref, outcome, reason, hint))
}

func TestIngest_InvalidSignatureNeverTouchesIntentState(t *testing.T) {
	repo := newMemRepo()
	adapter := &stubAdapter{name: "cashapp", secret: "whsec_good", ref: "pay_sig"}
	rec, svc := newTestReconciler(repo, adapter)
	intent := seedPendingIntent(t, repo, svc, adapter)

	payload := eventPayload("evt_1", "pay_sig", provider.OutcomeSucceeded, "", "")
	result, err := rec.Ingest(context.Background(), "cashapp", payload, "whsec_forged")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Verified {
		t.Fatal("expected delivery to be rejected")
	}

	stored, _ := repo.FindIntentByID(context.Background(), intent.ID)
	if stored.Status != domain.IntentStatusPending {
		t.Fatalf("expected intent untouched, got %q", stored.Status)
	}
	// The rejected delivery is retained for forensics.
	if len(repo.events) != 1 {
		t.Fatalf("expected one recorded delivery, got %d", len(repo.events))
	}
	for _, ev := range repo.events {
		if ev.Verified {
			t.Fatal("expected recorded delivery to be marked unverified")
		}
	}
}

func TestIngest_ContradictoryOutcomesAreHeldForReview(t *testing.T) {
	repo := newMemRepo()
	adapter := &stubAdapter{name: "cashapp", secret: "whsec_cc", ref: "pay_cc"}
	rec, svc := newTestReconciler(repo, adapter)
	intent := seedPendingIntent(t, repo, svc, adapter)

	failed := eventPayload("evt_fail", "pay_cc", provider.OutcomeFailed, "insufficient funds", "")
	result, err := rec.Ingest(context.Background(), "cashapp", failed, "whsec_cc")
	if err != nil {
		t.Fatalf("ingest of failure event failed: %v", err)
	}
	if !result.Matched || result.Conflict {
		t.Fatalf("unexpected result for failure event: %+v", result)
	}

	// The provider then contradicts itself with a success under a fresh event
	// id. The recorded failure came from a verified event, so it stands.
	succeeded := eventPayload("evt_succ", "pay_cc", provider.OutcomeSucceeded, "", "")
	result, err = rec.Ingest(context.Background(), "cashapp", succeeded, "whsec_cc")
	if err != nil {
		t.Fatalf("ingest of success event failed: %v", err)
	}
	if !result.Conflict {
		t.Fatal("expected the contradictory success to surface as a conflict")
	}

	stored, _ := repo.FindIntentByID(context.Background(), intent.ID)
	if stored.Status != domain.IntentStatusFailed {
		t.Fatalf("expected the webhook-reported failure to stand, got %q", stored.Status)
	}
	if len(repo.audits) != 1 {
		t.Fatalf("expected one conflict audit for operator review, got %d", len(repo.audits))
	}
	if repo.ledgerEntryCount() != 0 {
		t.Fatalf("expected no ledger entries, got %d", repo.ledgerEntryCount())
	}
}

func TestIngest_CashAppDepositFinalizesAndProjects(t *testing.T) {
	repo := newMemRepo()
	adapter := &stubAdapter{name: "cashapp", secret: "whsec_ca", ref: "pay_25"}
	rec, svc := newTestReconciler(repo, adapter)

	req := domain.CreateIntentRequest{
		Amount:         2500,
		Currency:       "USD",
		Provider:       "cashapp",
		RecipientRef:   "$alice",
		IdempotencyKey: "deposit-25",
	}
	accountID := uuid.New()
	intent, _, err := svc.CreateIntent(context.Background(), accountID, req)
	if err != nil {
		t.Fatalf("create intent failed: %v", err)
	}

	payload := eventPayload("evt_25", "pay_25", provider.OutcomeSucceeded, "", "")
	result, err := rec.Ingest(context.Background(), "cashapp", payload, "whsec_ca")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !result.Verified || !result.Matched || result.Duplicate {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored, _ := repo.FindIntentByID(context.Background(), intent.ID)
	if stored.Status != domain.IntentStatusSucceeded {
		t.Fatalf("expected succeeded, got %q", stored.Status)
	}

	entry, ok := repo.ledger[intent.ID.String()+"/"+domain.EntryKindDeposit]
	if !ok {
		t.Fatal("expected a deposit ledger entry")
	}
	if entry.Amount != 2500 || entry.Direction != domain.DirectionCredit || entry.AccountID != accountID {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}
}

func TestIngest_ReplayedDeliveriesApplyOnce(t *testing.T) {
	repo := newMemRepo()
	adapter := &stubAdapter{name: "stripe", secret: "whsec_st", ref: "pi_replay"}
	rec, svc := newTestReconciler(repo, adapter)
	intent := seedPendingIntent(t, repo, svc, adapter)

	payload := eventPayload("evt_replay", "pi_replay", provider.OutcomeSucceeded, "", "")
	for i := 0; i < 5; i++ {
		if _, err := rec.Ingest(context.Background(), "stripe", payload, "whsec_st"); err != nil {
			t.Fatalf("delivery %d failed: %v", i, err)
		}
	}

	stored, _ := repo.FindIntentByID(context.Background(), intent.ID)
	if stored.Status != domain.IntentStatusSucceeded {
		t.Fatalf("expected succeeded, got %q", stored.Status)
	}
	if repo.ledgerEntryCount() != 1 {
		t.Fatalf("expected exactly one ledger entry after replays, got %d", repo.ledgerEntryCount())
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected one durable event record, got %d", len(repo.events))
	}
	if len(repo.audits) != 0 {
		t.Fatalf("expected no conflict audits for clean replays, got %d", len(repo.audits))
	}
}

func TestIngest_UnmatchedVerifiedEventIsDeadLettered(t *testing.T) {
	repo := newMemRepo()
	adapter := &stubAdapter{name: "venmo", secret: "whsec_v"}
	rec, _ := newTestReconciler(repo, adapter)

	payload := eventPayload("evt_orphan", "pmt_unknown", provider.OutcomeSucceeded, "", "")
	result, err := rec.Ingest(context.Background(), "venmo", payload, "whsec_v")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Matched {
		t.Fatal("expected no intent match")
	}
	if len(repo.deadLetters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(repo.deadLetters))
	}
	if repo.deadLetters[0].ProviderEventID != "evt_orphan" {
		t.Fatalf("unexpected dead letter: %+v", repo.deadLetters[0])
	}

	// A replay of the orphaned event must not produce a second dead letter.
	if _, err := rec.Ingest(context.Background(), "venmo", payload, "whsec_v"); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(repo.deadLetters) != 1 {
		t.Fatalf("expected dead letter replay to be a no-op, got %d", len(repo.deadLetters))
	}
}

func TestIngest_UnknownProviderPathIsDropped(t *testing.T) {
	repo := newMemRepo()
	rec, _ := newTestReconciler(repo, &stubAdapter{name: "stripe", secret: "s"})

	result, err := rec.Ingest(context.Background(), "zelle", []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("expected drop, got %v", err)
	}
	if result.Verified || len(repo.events) != 0 {
		t.Fatal("expected nothing recorded for an unknown provider path")
	}
}

func TestIngest_LateSuccessCorrectsTimeoutFailureViaIntentHint(t *testing.T) {
	repo := newMemRepo()
	adapter := &stubAdapter{
		name:      "stripe",
		secret:    "whsec_late",
		createErr: &provider.Error{Provider: "stripe", Kind: provider.ErrKindNetwork, Message: "context deadline exceeded"},
	}
	rec, svc := newTestReconciler(repo, adapter)

	req := domain.CreateIntentRequest{
		Amount:         5000,
		Currency:       "USD",
		Provider:       "stripe",
		RecipientRef:   "tok_visa",
		IdempotencyKey: "late-1",
	}
	intent, _, err := svc.CreateIntent(context.Background(), uuid.New(), req)
	if err == nil {
		t.Fatal("expected the provider call to fail")
	}
	if intent.Status != domain.IntentStatusFailed {
		t.Fatalf("expected locally recorded failure, got %q", intent.Status)
	}

	// The charge actually went through; the success event arrives with no
	// stored provider ref, correlated through the echoed metadata intent id.
	payload := eventPayload("evt_late", "pi_late", provider.OutcomeSucceeded, "", intent.ID.String())
	result, err := rec.Ingest(context.Background(), "stripe", payload, "whsec_late")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !result.Matched {
		t.Fatal("expected the event to correlate through the intent hint")
	}

	stored, _ := repo.FindIntentByID(context.Background(), intent.ID)
	if stored.Status != domain.IntentStatusSucceeded {
		t.Fatalf("expected corrected to succeeded, got %q", stored.Status)
	}
	if repo.ledgerEntryCount() != 1 {
		t.Fatalf("expected exactly one ledger entry after correction, got %d", repo.ledgerEntryCount())
	}
	if len(repo.audits) != 1 {
		t.Fatalf("expected the correction to be audited, got %d audits", len(repo.audits))
	}
}

func TestIngest_IgnoredEventIsRecordedWithoutTransition(t *testing.T) {
	repo := newMemRepo()
	adapter := &stubAdapter{name: "paypal", secret: "whsec_pp", ref: "ord_1"}
	rec, svc := newTestReconciler(repo, adapter)
	intent := seedPendingIntent(t, repo, svc, adapter)

	payload := eventPayload("evt_ignored", "ord_1", provider.OutcomeIgnored, "", "")
	result, err := rec.Ingest(context.Background(), "paypal", payload, "whsec_pp")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !result.Verified || result.Matched {
		t.Fatalf("unexpected result: %+v", result)
	}

	stored, _ := repo.FindIntentByID(context.Background(), intent.ID)
	if stored.Status != domain.IntentStatusPending {
		t.Fatalf("expected pending intent untouched, got %q", stored.Status)
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected the ignored event recorded, got %d", len(repo.events))
	}
}
