package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterMountsHealthEndpoints(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterUnknownRouteEnvelope(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), errorNotFoundCode) {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
}

func TestRouterUnconfiguredGroupNotImplemented(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/payments/create-intent", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestRouterMountsRegistrars(t *testing.T) {
	router := NewRouter(
		WithPaymentRoutes(func(r chi.Router) {
			r.Post("/create-intent", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithWebhookRoutes(func(r chi.Router) {
			r.Post("/stripe", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
	)

	for _, path := range []string{"/api/payments/create-intent", "/api/webhooks/stripe"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 on %s, got %d", path, rec.Code)
		}
	}
}

func TestRouterAppliesGroupMiddleware(t *testing.T) {
	var sawHeader bool
	router := NewRouter(
		WithWebhookRoutes(func(r chi.Router) {
			r.Post("/stripe", func(w http.ResponseWriter, r *http.Request) {
				sawHeader = r.Header.Get("X-Group") == "webhooks"
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithWebhookMiddlewares(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.Header.Set("X-Group", "webhooks")
				next.ServeHTTP(w, r)
			})
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !sawHeader {
		t.Fatalf("expected webhook middleware applied")
	}
}
