/**
 * @description
 * This file contains the public webhook endpoint. Providers retry aggressively
 * on non-2xx responses, so every delivery that reached a stable state is
 * acknowledged with 200 {"received": true} regardless of whether it was
 * applied, a replay, unverified or unmatched. Only a transient persistence
 * failure returns 500, asking the provider to redeliver.
 */

package api

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBodyBytes bounds webhook payloads; provider events are small.
const maxWebhookBodyBytes = 1 << 20

// ProviderWebhookHandler ingests one provider callback.
func (h *PaymentHandlers) ProviderWebhookHandler(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	if h.rateLimited(w, r, providerName) {
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Printf("level=warn component=api endpoint=webhook outcome=reject reason=body_read_failed provider=%s err=%v", providerName, err)
		h.writeError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if signature == "" {
		signature = r.Header.Get("Stripe-Signature")
	}

	result, err := h.reconciler.Ingest(r.Context(), providerName, payload, signature)
	if err != nil {
		// Transient persistence failure: ask the provider to redeliver.
		log.Printf("level=error component=api endpoint=webhook outcome=retryable provider=%s err=%v", providerName, err)
		h.writeError(w, http.StatusInternalServerError, "Temporary processing failure")
		return
	}

	log.Printf("level=info component=api endpoint=webhook outcome=received provider=%s event_id=%s verified=%t duplicate=%t matched=%t conflict=%t", providerName, result.ProviderEventID, result.Verified, result.Duplicate, result.Matched, result.Conflict)
	h.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// rateLimited enforces the per-provider webhook budget. Redis outages fail
// open; limiting is protective, not load-bearing.
func (h *PaymentHandlers) rateLimited(w http.ResponseWriter, r *http.Request, providerName string) bool {
	count, retryAfter, err := h.guard.ConsumeRateLimit(r.Context(), "webhook", providerName, h.webhookRateLimitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api endpoint=webhook msg=\"rate limiter unavailable; failing open\" provider=%s err=%v", providerName, err)
		return false
	}
	if h.webhookRateLimitPerMinute > 0 && count > h.webhookRateLimitPerMinute {
		log.Printf("level=warn component=api endpoint=webhook outcome=rate_limited provider=%s count=%d", providerName, count)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many webhook deliveries")
		return true
	}
	return false
}
