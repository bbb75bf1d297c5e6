/**
 * @description
 * This file contains the HTTP handlers for the payment-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/app"
	"github.com/payeazy/payment-service/internal/domain"
	"github.com/payeazy/payment-service/internal/store"
)

// PaymentHandlers holds the application services that handlers will use.
type PaymentHandlers struct {
	service    *app.Service
	reconciler *app.Reconciler
	guard      *app.RedisWebhookGuard

	webhookRateLimitPerMinute int
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service, reconciler *app.Reconciler, guard *app.RedisWebhookGuard, webhookRateLimitPerMinute int) *PaymentHandlers {
	return &PaymentHandlers{
		service:                   service,
		reconciler:                reconciler,
		guard:                     guard,
		webhookRateLimitPerMinute: webhookRateLimitPerMinute,
	}
}

// intentResponse mirrors the shape the dashboard polls for.
type intentResponse struct {
	IntentID      string  `json:"intent_id"`
	Status        string  `json:"status"`
	Provider      string  `json:"provider"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	ProviderRef   *string `json:"provider_ref,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
	// ClientSecret and PaymentURL are only present on the creation response;
	// the client needs them to complete the payment with the provider.
	ClientSecret string `json:"client_secret,omitempty"`
	PaymentURL   string `json:"payment_url,omitempty"`
}

func buildIntentResponse(intent *domain.PaymentIntent) intentResponse {
	return intentResponse{
		IntentID:      intent.ID.String(),
		Status:        intent.Status,
		Provider:      string(intent.Provider),
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		ProviderRef:   intent.ProviderRef,
		FailureReason: intent.FailureReason,
		ClientSecret:  intent.ClientSecret,
		PaymentURL:    intent.PaymentURL,
	}
}

// authenticatedAccountUUID resolves the caller's account id from the JWT context.
func (h *PaymentHandlers) authenticatedAccountUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountIDStr, ok := GetAuthenticatedAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return uuid.Nil, false
	}
	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=invalid_account_id account_id=%q", accountIDStr)
		h.writeError(w, http.StatusBadRequest, "Invalid account ID format")
		return uuid.Nil, false
	}
	return accountID, true
}

// CreateIntentHandler handles requests to open a new payment intent.
func (h *PaymentHandlers) CreateIntentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authenticatedAccountUUID(w, r)
	if !ok {
		return
	}

	var req domain.CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_intent outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	intent, created, err := h.service.CreateIntent(r.Context(), accountID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount),
			errors.Is(err, app.ErrInvalidCurrency),
			errors.Is(err, app.ErrUnknownProvider),
			errors.Is(err, app.ErrInvalidRecipient),
			errors.Is(err, app.ErrMissingIdempotency):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrProviderRejected):
			// The intent is recorded failed; surface the rejection.
			h.writeJSON(w, http.StatusUnprocessableEntity, buildIntentResponse(intent))
		case errors.Is(err, app.ErrProviderUnavailable):
			h.writeJSON(w, http.StatusBadGateway, buildIntentResponse(intent))
		default:
			log.Printf("level=error component=api endpoint=create_intent outcome=error account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to create payment intent")
		}
		return
	}

	log.Printf("level=info component=api endpoint=create_intent outcome=accepted account_id=%s intent_id=%s provider=%s amount=%d", accountID, intent.ID, intent.Provider, intent.Amount)
	status := http.StatusCreated
	if !created {
		// Idempotent replay returns the original intent, not a new resource.
		status = http.StatusOK
	}
	h.writeJSON(w, status, buildIntentResponse(intent))
}

// GetIntentHandler returns one intent for status polling.
func (h *PaymentHandlers) GetIntentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authenticatedAccountUUID(w, r)
	if !ok {
		return
	}

	intentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid intent ID")
		return
	}

	intent, err := h.service.GetIntent(r.Context(), intentID)
	if err != nil {
		if errors.Is(err, store.ErrIntentNotFound) {
			h.writeError(w, http.StatusNotFound, "Payment intent not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_intent outcome=error intent_id=%s err=%v", intentID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch payment intent")
		return
	}
	if intent.AccountID != accountID {
		h.writeError(w, http.StatusNotFound, "Payment intent not found")
		return
	}

	h.writeJSON(w, http.StatusOK, buildIntentResponse(intent))
}

// ListIntentsHandler returns the caller's intents, newest first.
func (h *PaymentHandlers) ListIntentsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authenticatedAccountUUID(w, r)
	if !ok {
		return
	}

	limit, offset := parsePagination(r, 50)
	intents, err := h.service.ListIntents(r.Context(), accountID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_intents outcome=error account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list payment intents")
		return
	}

	responses := make([]intentResponse, 0, len(intents))
	for i := range intents {
		responses = append(responses, buildIntentResponse(&intents[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

// CancelIntentHandler cancels a not-yet-finalized intent on client request.
func (h *PaymentHandlers) CancelIntentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authenticatedAccountUUID(w, r)
	if !ok {
		return
	}

	intentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid intent ID")
		return
	}

	intent, err := h.service.GetIntent(r.Context(), intentID)
	if err != nil {
		if errors.Is(err, store.ErrIntentNotFound) {
			h.writeError(w, http.StatusNotFound, "Payment intent not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch payment intent")
		return
	}
	if intent.AccountID != accountID {
		h.writeError(w, http.StatusNotFound, "Payment intent not found")
		return
	}

	canceled, err := h.service.CancelIntent(r.Context(), intentID)
	if err != nil {
		if errors.Is(err, app.ErrNotCancelable) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=cancel_intent outcome=error intent_id=%s err=%v", intentID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to cancel payment intent")
		return
	}

	h.writeJSON(w, http.StatusOK, buildIntentResponse(canceled))
}

// AccountSummaryHandler returns the ledger aggregates for one account.
func (h *PaymentHandlers) AccountSummaryHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.authenticatedAccountUUID(w, r)
	if !ok {
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	if accountID != callerID {
		h.writeError(w, http.StatusForbidden, "Cannot view another account's summary")
		return
	}

	summary, err := h.service.GetAccountSummary(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=account_summary outcome=error account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to build account summary")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// LedgerEntriesHandler lists an account's ledger entries, newest first.
func (h *PaymentHandlers) LedgerEntriesHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.authenticatedAccountUUID(w, r)
	if !ok {
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	if accountID != callerID {
		h.writeError(w, http.StatusForbidden, "Cannot view another account's ledger")
		return
	}

	limit, offset := parsePagination(r, 50)
	entries, err := h.service.ListLedgerEntries(r.Context(), accountID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=ledger_entries outcome=error account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch ledger entries")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

func parsePagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
