/**
 * @description
 * This file contains the operator endpoints guarded by the internal API key:
 * the manual-review queue of conflicting terminal outcomes, the dead-letter
 * store of verified-but-unmatched webhooks, and dashboard statistics.
 */

package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ListConflictsHandler returns audited lifecycle interventions for review.
func (h *PaymentHandlers) ListConflictsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 100)
	audits, err := h.service.ListConflictAudits(r.Context(), limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=operator_conflicts outcome=error err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list conflicts")
		return
	}
	h.writeJSON(w, http.StatusOK, audits)
}

// ListDeadLettersHandler returns retained unmatched webhook deliveries.
func (h *PaymentHandlers) ListDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("include_resolved") == "true"
	limit, offset := parsePagination(r, 100)
	letters, err := h.service.ListDeadLetters(r.Context(), includeResolved, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=operator_dead_letters outcome=error err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list dead letters")
		return
	}
	h.writeJSON(w, http.StatusOK, letters)
}

// ResolveDeadLetterHandler marks one dead letter as manually reconciled.
func (h *PaymentHandlers) ResolveDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	letterID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid dead letter ID")
		return
	}

	resolved, err := h.service.ResolveDeadLetter(r.Context(), letterID)
	if err != nil {
		log.Printf("level=error component=api endpoint=operator_resolve outcome=error dead_letter_id=%s err=%v", letterID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to resolve dead letter")
		return
	}
	if !resolved {
		h.writeError(w, http.StatusNotFound, "Dead letter not found or already resolved")
		return
	}

	log.Printf("level=info component=api endpoint=operator_resolve outcome=resolved dead_letter_id=%s", letterID)
	h.writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

// DashboardStatsHandler returns intent volume aggregates for the admin dashboard.
func (h *PaymentHandlers) DashboardStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetDashboardStats(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=operator_stats outcome=error err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to compute stats")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}
