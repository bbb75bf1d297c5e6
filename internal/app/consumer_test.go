package app

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/domain"
)

func TestHandleMessage_PoisonPayloadIsAcked(t *testing.T) {
	consumer := NewIntentFinalizedConsumer(NewProjector(newMemRepo()))

	if !consumer.HandleMessage([]byte("not-json")) {
		t.Fatal("expected malformed payloads to be acked and dropped")
	}
	if !consumer.HandleMessage([]byte(`{"status":"succeeded"}`)) {
		t.Fatal("expected events without an intent id to be acked and dropped")
	}
}

func TestHandleMessage_ProjectsSucceededIntent(t *testing.T) {
	repo := newMemRepo()
	accountID := uuid.New()
	intent := seedSucceededIntent(repo, accountID)
	projector := NewProjector(repo)
	projector.CommissionBps = 0
	consumer := NewIntentFinalizedConsumer(projector)

	body, err := json.Marshal(finalizedEvent(intent.ID, accountID, domain.IntentStatusSucceeded, 2500))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if !consumer.HandleMessage(body) {
		t.Fatal("expected the delivery to be acked")
	}
	if repo.ledgerEntryCount() != 1 {
		t.Fatalf("expected one ledger entry, got %d", repo.ledgerEntryCount())
	}
}
