/**
 * @description
 * This file sets up the HTTP router for the payment-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PaymentRoutes creates and returns a new router for the payment service.
func PaymentRoutes(h *PaymentHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public provider callbacks; always acknowledged, never authenticated.
	r.Post("/webhooks/{provider}", h.ProviderWebhookHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		// Apply JWT authentication middleware for production
		r.Use(ClerkAuthMiddleware(jwksURL))

		r.Post("/intents", h.CreateIntentHandler)
		r.Get("/intents", h.ListIntentsHandler)
		r.Get("/intents/{id}", h.GetIntentHandler)
		r.Post("/intents/{id}/cancel", h.CancelIntentHandler)
		r.Get("/accounts/{id}/summary", h.AccountSummaryHandler)
		r.Get("/accounts/{id}/ledger", h.LedgerEntriesHandler)
	})

	// Operator surface, guarded by the shared internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Get("/operator/conflicts", h.ListConflictsHandler)
		r.Get("/operator/dead-letters", h.ListDeadLettersHandler)
		r.Post("/operator/dead-letters/{id}/resolve", h.ResolveDeadLetterHandler)
		r.Get("/operator/stats", h.DashboardStatsHandler)
	})

	return r
}
