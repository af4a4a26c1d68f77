package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cashflow/internal/auth"
	"cashflow/internal/services"
	"cashflow/internal/store/memory"
	"cashflow/internal/tracker"
)

func newRegistry(t *testing.T, maxSessions int) (*Registry, *services.TransactionService) {
	t.Helper()
	svc := services.NewTransactionService(memory.New(), nil, "test")
	r := NewRegistry(Options{MaxSessions: maxSessions, TTL: time.Hour}, func() *tracker.Tracker {
		return tracker.New(svc, tracker.PolicyLog, nil)
	}, nil)
	t.Cleanup(func() {
		r.Close()
		svc.Close()
	})
	return r, svc
}

func TestRegistry_EnsureSetsCookieAndReuses(t *testing.T) {
	r, _ := newRegistry(t, 10)

	rec := httptest.NewRecorder()
	s := r.Ensure(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != s.ID {
		t.Fatalf("cookies = %+v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie flags = %+v", cookies[0])
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	if again := r.Ensure(rec2, req); again != s {
		t.Error("Ensure() should return the existing session")
	}
	if len(rec2.Result().Cookies()) != 0 {
		t.Error("existing session should not reset the cookie")
	}
}

func TestRegistry_UnknownCookieStartsNewSession(t *testing.T) {
	r, _ := newRegistry(t, 10)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})

	if _, ok := r.Lookup(req); ok {
		t.Fatal("Lookup() accepted an unknown id")
	}
	if s := r.Ensure(httptest.NewRecorder(), req); s.ID == "forged" {
		t.Error("Ensure() reused a client-chosen id")
	}
}

func TestRegistry_DestroyClosesTracker(t *testing.T) {
	r, svc := newRegistry(t, 10)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	s := r.Ensure(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err := s.Tracker.SignIn(ctx, auth.Principal{UID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if svc.Subscribers("u1") != 1 {
		t.Fatal("expected one subscription")
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	out := httptest.NewRecorder()
	r.Destroy(out, req)

	if svc.Subscribers("u1") != 0 {
		t.Error("destroying the session should end its subscription")
	}
	if c := out.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("Destroy() cookie = %+v", c)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestRegistry_EvictionClosesTracker(t *testing.T) {
	r, svc := newRegistry(t, 1)
	ctx := context.Background()

	first := r.Ensure(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err := first.Tracker.SignIn(ctx, auth.Principal{UID: "u1"}); err != nil {
		t.Fatal(err)
	}
	r.Ensure(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if svc.Subscribers("u1") != 0 {
		t.Error("evicted session kept its subscription")
	}
	if _, ok := first.Tracker.Principal(); ok {
		t.Error("evicted session is still signed in")
	}
}

func TestSession_State(t *testing.T) {
	s := &Session{}
	st := s.NewState()
	if s.ConsumeState("other") {
		t.Error("ConsumeState accepted a wrong value")
	}
	if s.ConsumeState(st) {
		t.Error("state must be single use")
	}
	st = s.NewState()
	if !s.ConsumeState(st) {
		t.Error("ConsumeState rejected the issued value")
	}
	if (&Session{}).ConsumeState("") {
		t.Error("empty state must not match")
	}
}
