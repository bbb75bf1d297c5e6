package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/payeazy/payment-service/internal/app"
	"github.com/payeazy/payment-service/internal/domain"
	"github.com/payeazy/payment-service/internal/store"
	"github.com/payeazy/payment-service/pkg/provider"
)

// nilRepo satisfies store.Repository for handler tests that must fail or
// return before any data access happens.
type nilRepo struct {
	store.Repository
}

func newTestHandlers() *PaymentHandlers {
	registry := provider.NewRegistry()
	svc := app.NewService(nilRepo{}, registry, nil, 100, 1000000, []string{"USD"}, 0)
	rec := app.NewReconciler(nilRepo{}, registry, svc, nil)
	return NewPaymentHandlers(svc, rec, nil, 0)
}

func authedRequest(method, target, body string, accountID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), authenticatedAccountKey, accountID.String())
	return req.WithContext(ctx)
}

func TestCreateIntentHandler_RejectsInvalidAmount(t *testing.T) {
	h := newTestHandlers()
	body := `{"amount":0,"currency":"USD","provider":"stripe","recipient_ref":"tok","idempotency_key":"k"}`
	req := authedRequest(http.MethodPost, "/intents", body, uuid.New())
	rr := httptest.NewRecorder()

	h.CreateIntentHandler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	if resp["error"] == "" {
		t.Fatal("expected an error message")
	}
}

func TestCreateIntentHandler_RejectsMalformedBody(t *testing.T) {
	h := newTestHandlers()
	req := authedRequest(http.MethodPost, "/intents", "{not json", uuid.New())
	rr := httptest.NewRecorder()

	h.CreateIntentHandler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetIntentHandler_RejectsMalformedID(t *testing.T) {
	h := newTestHandlers()
	req := authedRequest(http.MethodGet, "/intents/not-a-uuid", "", uuid.New())

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rr := httptest.NewRecorder()
	h.GetIntentHandler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestProviderWebhookHandler_UnknownProviderStillAcknowledged(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zelle", strings.NewReader("{}"))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", "zelle")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rr := httptest.NewRecorder()
	h.ProviderWebhookHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown provider path, got %d", rr.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if !resp["received"] {
		t.Fatalf("expected received=true, got %v", resp)
	}
}

func TestInternalAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := InternalAuthMiddleware("secret-key")(next)

	req := httptest.NewRequest(http.MethodGet, "/operator/stats", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/operator/stats", nil)
	req.Header.Set("X-Internal-Api-Key", "wrong")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/operator/stats", nil)
	req.Header.Set("X-Internal-Api-Key", "secret-key")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct key, got %d", rr.Code)
	}

	unconfigured := InternalAuthMiddleware("")(next)
	req = httptest.NewRequest(http.MethodGet, "/operator/stats", nil)
	rr = httptest.NewRecorder()
	unconfigured.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no key is configured, got %d", rr.Code)
	}
}

func TestAccountSummaryHandler_ForbidsOtherAccounts(t *testing.T) {
	h := newTestHandlers()
	caller := uuid.New()
	other := uuid.New()

	req := authedRequest(http.MethodGet, "/accounts/"+other.String()+"/summary", "", caller)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", other.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rr := httptest.NewRecorder()
	h.AccountSummaryHandler(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestBuildIntentResponse_CarriesCompletionHandles(t *testing.T) {
	intent := &domain.PaymentIntent{
		ID:           uuid.New(),
		Provider:     domain.ProviderStripe,
		Status:       domain.IntentStatusPending,
		Amount:       2500,
		Currency:     "USD",
		ClientSecret: "pi_9_secret_abc",
		PaymentURL:   "https://pay.example.com/p/pi_9",
	}

	resp := buildIntentResponse(intent)
	if resp.ClientSecret != intent.ClientSecret {
		t.Fatalf("expected client secret in response, got %q", resp.ClientSecret)
	}
	if resp.PaymentURL != intent.PaymentURL {
		t.Fatalf("expected payment url in response, got %q", resp.PaymentURL)
	}

	// Polling reads never carry them; the stored record has none.
	resp = buildIntentResponse(&domain.PaymentIntent{ID: intent.ID, Status: domain.IntentStatusPending})
	if resp.ClientSecret != "" || resp.PaymentURL != "" {
		t.Fatalf("expected no completion handles, got %q / %q", resp.ClientSecret, resp.PaymentURL)
	}
}
