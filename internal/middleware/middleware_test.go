package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
)

// echoActor writes the resolved actor back as headers.
var echoActor = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	a, ok := ActorFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Header().Set("X-Actor", a.ID+"|"+string(a.Role)+"|"+a.Channel)
	w.WriteHeader(http.StatusOK)
})

type stubVerifier struct{}

func (stubVerifier) VerifyIDToken(_ context.Context, token string) (*VerifiedToken, error) {
	switch token {
	case "driver-token":
		return &VerifiedToken{UID: "uid-7", Claims: map[string]any{"role": "driver"}}, nil
	case "system-token":
		return &VerifiedToken{UID: "uid-8", Claims: map[string]any{"role": "system"}}, nil
	}
	return nil, errors.New("bad token")
}

func TestIdentity_Headers(t *testing.T) {
	h := Identity(nil, zap.NewNop())(echoActor)

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantActor  string
	}{
		{"operator", map[string]string{HeaderUserID: "op-1", HeaderUserRole: "Operator", HeaderChannel: "console"}, http.StatusOK, "op-1|operator|console"},
		{"default role and channel", map[string]string{HeaderUserID: "pax-1"}, http.StatusOK, "pax-1|passenger|api"},
		{"missing id", map[string]string{HeaderUserRole: "driver"}, http.StatusUnauthorized, ""},
		{"system role refused", map[string]string{HeaderUserID: "x", HeaderUserRole: "system"}, http.StatusForbidden, ""},
		{"unknown role", map[string]string{HeaderUserID: "x", HeaderUserRole: "pilot"}, http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("X-Actor"); got != tt.wantActor {
				t.Errorf("actor = %q, want %q", got, tt.wantActor)
			}
		})
	}
}

func TestIdentity_BearerToken(t *testing.T) {
	h := Identity(stubVerifier{}, zap.NewNop())(echoActor)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
		wantActor  string
	}{
		{"valid", "Bearer driver-token", http.StatusOK, "uid-7|driver|api"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Token driver-token", http.StatusUnauthorized, ""},
		{"rejected", "Bearer nope", http.StatusUnauthorized, ""},
		{"system claim", "Bearer system-token", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			// Headers are ignored once a verifier is configured.
			req.Header.Set(HeaderUserID, "spoofed")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("X-Actor"); got != tt.wantActor {
				t.Errorf("actor = %q, want %q", got, tt.wantActor)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, zap.NewNop())
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i, code)
		}
	}
	if code := do("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("over burst: status %d, want 429", code)
	}
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other client: status %d, want 200", code)
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(60, 1, zap.NewNop())
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		rl.limiter(ip)
	}
	now = now.Add(idleTTL / 2)
	rl.limiter("10.0.0.3")

	// 10.0.0.1 and 10.0.0.2 have been idle for a full TTL; 10.0.0.3 has not.
	now = now.Add(idleTTL / 2)
	rl.limiter("10.0.0.4")

	if len(rl.limiters) != 2 {
		t.Fatalf("tracked clients = %d, want 2", len(rl.limiters))
	}
	for _, ip := range []string{"10.0.0.3", "10.0.0.4"} {
		if _, ok := rl.limiters[ip]; !ok {
			t.Errorf("%s evicted while active", ip)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("clientIP with XFF = %q", got)
	}
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil))
	if rec.Code != http.StatusNoContent || called {
		t.Errorf("status=%d called=%v, want 204 without calling next", rec.Code, called)
	}
}

func TestActorFrom_Empty(t *testing.T) {
	if _, ok := ActorFrom(context.Background()); ok {
		t.Error("ActorFrom on bare context reported ok")
	}
	a := model.Actor{ID: "x", Role: model.RoleDriver}
	if got, ok := ActorFrom(WithActor(context.Background(), a)); !ok || got != a {
		t.Errorf("ActorFrom = %+v, %v", got, ok)
	}
}
