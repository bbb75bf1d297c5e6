package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/domain"
)

// IntentFinalizedConsumer drains intent.finalized.* deliveries from RabbitMQ
// and hands succeeded intents to the ledger projector. Poison messages are
// acknowledged and dropped; transient failures are re-queued.
type IntentFinalizedConsumer struct {
	projector *Projector
}

func NewIntentFinalizedConsumer(projector *Projector) *IntentFinalizedConsumer {
	return &IntentFinalizedConsumer{projector: projector}
}

func (c *IntentFinalizedConsumer) HandleMessage(body []byte) bool {
	var event domain.IntentFinalizedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("finalized-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	if event.IntentID == uuid.Nil {
		log.Printf("finalized-consumer: missing intent id in event %+v", event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.projector.ProjectIntent(ctx, event); err != nil {
		log.Printf("finalized-consumer: projection error for intent %s: %v", event.IntentID, err)
		return false
	}

	return true
}
