package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedTime = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func paymentRequest(key, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddlewareKeylessRequestPassesThrough(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	handler := middleware(next)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, paymentRequest("", `{"items":[{"productId":"prod_1","quantity":1}]}`))

	if calls != 1 {
		t.Fatalf("expected keyless request to reach the handler, got %d calls", calls)
	}
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	// Without a key there is no replay protection either.
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, paymentRequest("", `{"items":[{"productId":"prod_1","quantity":1}]}`))
	if calls != 2 {
		t.Fatalf("expected second keyless request to run the handler, got %d calls", calls)
	}
}

func TestMiddlewareDoesNotReplayServerErrors(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"payment_setup_failed"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderId":"ord_03"}`))
	})

	handler := middleware(next)
	const payload = `{"items":[{"productId":"prod_1","quantity":1}]}`

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, paymentRequest("ikey_retry", payload))
	if rr1.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr1.Code)
	}

	// A same-key retry must run the handler again, not replay the failure.
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, paymentRequest("ikey_retry", payload))
	if calls != 2 {
		t.Fatalf("expected retry to reach the handler, got %d calls", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected 201 on retry, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) == "true" {
		t.Fatalf("retry after failure must not be marked as a replay")
	}
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderId":"ord_01","clientSecret":"pi_abc_secret"}`))
	})

	handler := middleware(next)
	const payload = `{"items":[{"productId":"prod_1","quantity":2}]}`

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, paymentRequest("ikey_checkout_1", payload))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if rr1.Code != http.StatusCreated {
		t.Fatalf("unexpected first response status: %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, paymentRequest("ikey_checkout_1", payload))

	if calls != 1 {
		t.Fatalf("retry must not reach the handler, got %d calls", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if got := rr2.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type json, got %s", got)
	}
	if body := rr2.Body.String(); body != rr1.Body.String() {
		t.Fatalf("expected replayed body %s, got %s", rr1.Body.String(), body)
	}
}

func TestMiddlewareRejectsKeyReuseWithDifferentPayload(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, paymentRequest("ikey_reused", `{"items":[{"productId":"prod_1","quantity":1}]}`))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request success, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, paymentRequest("ikey_reused", `{"items":[{"productId":"prod_2","quantity":5}]}`))

	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected conflict status, got %d", rr2.Code)
	}
	assertErrorCode(t, rr2.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewarePendingReservationReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))
	handler := middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run while the key is pending")
	}))

	req := paymentRequest("ikey_pending", `{"items":[{"productId":"prod_1","quantity":1}]}`)

	// Seed a pending reservation as the first in-flight request would.
	body, err := readAndReplayBody(req)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	identity := extractRequester(req.Context())
	fingerprint := requestFingerprint(req, body, identity)
	scoped := scopedKey("ikey_pending", identity)
	if _, err := store.Reserve(req.Context(), scoped, fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending reservation, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareSaveFailureReleasesReservation(t *testing.T) {
	store := &stubStore{failSave: true}
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderId":"ord_02"}`))
	})

	rr := httptest.NewRecorder()
	middleware(next).ServeHTTP(rr, paymentRequest("ikey_save_fail", `{"items":[]}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 response, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_store_error")
	if !store.released {
		t.Fatalf("expected reservation release after save failure")
	}
}

func TestMiddlewareIgnoresNonMutatingMethods(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	var calls int
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/payments/pay_01", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if calls != 1 {
		t.Fatalf("expected GET to pass through, got %d calls", calls)
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

type stubStore struct {
	failSave bool
	released bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew, Record: Record{}}, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
