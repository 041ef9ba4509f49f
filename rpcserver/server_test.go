package rpcserver

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bang-go/collabd/contrib/auth/jwtx"
	"github.com/bang-go/collabd/session"
)

func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(t.Context()) })
	return s
}

func TestClaimsFromRequestFallsBackToUserIDParam(t *testing.T) {
	s := newTestServer(t, &Config{})
	r := httptest.NewRequest("GET", "/ws?user_id=42", nil)

	claims, err := s.claimsFromRequest(r)
	if err != nil {
		t.Fatalf("claimsFromRequest: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("UserID = %d, want 42", claims.UserID)
	}
	if claims.Admin {
		t.Fatalf("Admin should default to false")
	}
}

func TestClaimsFromRequestUsesJWT(t *testing.T) {
	j, err := jwtx.New(&jwtx.Config{SecretKey: "test-secret", Expire: time.Hour})
	if err != nil {
		t.Fatalf("jwtx.New: %v", err)
	}
	token, err := j.Issue(7, true)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s := newTestServer(t, &Config{JWT: j})
	r := httptest.NewRequest("GET", "/ws?token="+token, nil)

	claims, err := s.claimsFromRequest(r)
	if err != nil {
		t.Fatalf("claimsFromRequest: %v", err)
	}
	if claims.UserID != 7 || !claims.Admin {
		t.Fatalf("claims = %+v, want {UserID:7 Admin:true}", claims)
	}
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	j, err := jwtx.New(&jwtx.Config{SecretKey: "test-secret"})
	if err != nil {
		t.Fatalf("jwtx.New: %v", err)
	}
	s := newTestServer(t, &Config{JWT: j})
	r := httptest.NewRequest("GET", "/ws", nil)

	if err := s.authenticate(r); err == nil {
		t.Fatalf("expected an error with no token query parameter")
	}
}

func TestAuthenticateAllowsAnyoneWithoutJWTConfigured(t *testing.T) {
	s := newTestServer(t, &Config{})
	r := httptest.NewRequest("GET", "/ws", nil)

	if err := s.authenticate(r); err != nil {
		t.Fatalf("authenticate: %v, want nil when no JWT is configured", err)
	}
}

func TestMetricsReflectsStoreState(t *testing.T) {
	s := newTestServer(t, &Config{})
	now := time.Now()

	m := s.Metrics(now)
	if m.Connections != 0 {
		t.Fatalf("Connections = %d, want 0 on a fresh store", m.Connections)
	}

	s.withStore(func(store *session.Store) {
		store.AddConnection(1, 10, false)
	})

	m = s.Metrics(now)
	if m.Connections != 1 {
		t.Fatalf("Connections = %d, want 1 after AddConnection", m.Connections)
	}
}
