package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/florianilch/tokenward/internal/app"
	"github.com/florianilch/tokenward/internal/session"
	"github.com/florianilch/tokenward/internal/tokenstore"
)

func signedToken(t *testing.T, jti string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti":                jti,
		"sub":                "user-1",
		"preferred_username": "alice",
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

// keycloak serves discovery and the token endpoint of realm "app".
type keycloak struct {
	srv           *httptest.Server
	discoveryHits atomic.Int32
	grants        map[string]map[string]any
}

func newKeycloak(t *testing.T, grants map[string]map[string]any) *keycloak {
	t.Helper()
	k := &keycloak{grants: grants}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /realms/app/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		k.discoveryHits.Add(1)
		issuer := k.srv.URL + "/realms/app"
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/protocol/openid-connect/auth",
			"token_endpoint":         issuer + "/protocol/openid-connect/token",
			"jwks_uri":               issuer + "/protocol/openid-connect/certs",
			"end_session_endpoint":   issuer + "/protocol/openid-connect/logout",
		})
	})
	mux.HandleFunc("POST /realms/app/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		body, ok := k.grants[r.PostForm.Get("grant_type")]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
			return
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.HandleFunc("POST /realms/app/protocol/openid-connect/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	k.srv = httptest.NewServer(mux)
	t.Cleanup(k.srv.Close)
	return k
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newApp(t *testing.T, k *keycloak, mutate func(*app.Config)) *app.App {
	t.Helper()
	cfg := validConfig()
	cfg.Provider.BaseURL = k.srv.URL
	cfg.Login.NoBrowser = true
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}

	a, err := app.New(context.Background(), cfg, app.WithStore(tokenstore.NewMemoryStore()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.Start(context.Background())
	return a
}

func TestNewDerivesEndpoints(t *testing.T) {
	k := newKeycloak(t, nil)
	a := newApp(t, k, nil)

	if got, want := a.Provider.Endpoints().Token, k.srv.URL+"/realms/app/protocol/openid-connect/token"; got != want {
		t.Errorf("token endpoint = %q, want %q", got, want)
	}
	if k.discoveryHits.Load() != 0 {
		t.Error("discovery requested while disabled")
	}
	if a.Session.State() != session.StateUnauthenticated {
		t.Errorf("state = %v after Start on empty store", a.Session.State())
	}
}

func TestNewDiscoversEndpoints(t *testing.T) {
	k := newKeycloak(t, nil)
	a := newApp(t, k, func(c *app.Config) { c.Provider.Discovery = true })

	if k.discoveryHits.Load() != 1 {
		t.Errorf("discovery hits = %d, want 1", k.discoveryHits.Load())
	}
	if got, want := a.Provider.Endpoints().Revocation, k.srv.URL+"/realms/app/protocol/openid-connect/logout"; got != want {
		t.Errorf("revocation endpoint = %q, want %q", got, want)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := &app.Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}
	if _, err := app.New(context.Background(), cfg); !errors.Is(err, app.ErrConfiguration) {
		t.Errorf("New() error = %v, want ErrConfiguration", err)
	}
}

func TestPasswordGrantSwitch(t *testing.T) {
	k := newKeycloak(t, nil)
	a := newApp(t, k, func(c *app.Config) {
		disabled := false
		c.Provider.PasswordGrant = &disabled
	})

	if err := a.Session.LoginWithPassword(context.Background(), "alice", "secret"); !errors.Is(err, session.ErrPasswordGrantDisabled) {
		t.Errorf("LoginWithPassword() error = %v, want ErrPasswordGrantDisabled", err)
	}
}

func TestTokenSourceRefreshesStaleToken(t *testing.T) {
	t1, t2 := signedToken(t, "1"), signedToken(t, "2")
	k := newKeycloak(t, map[string]map[string]any{
		"password":      {"access_token": t1, "refresh_token": "R1", "token_type": "Bearer", "expires_in": 5},
		"refresh_token": {"access_token": t2, "refresh_token": "R2", "token_type": "Bearer", "expires_in": 300},
	})
	a := newApp(t, k, nil)
	ctx := context.Background()

	if err := a.Session.LoginWithPassword(ctx, "alice", "secret"); err != nil {
		t.Fatalf("LoginWithPassword() error = %v", err)
	}

	tok, err := a.TokenSource(ctx).Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != t2 {
		t.Error("stale token not refreshed")
	}

	tok, err = a.TokenSource(ctx).Token()
	if err != nil || tok.AccessToken != t2 {
		t.Errorf("Token() = %v, %v; want fresh token unchanged", tok, err)
	}
}

func TestTokenSourceWithoutSession(t *testing.T) {
	a := newApp(t, newKeycloak(t, nil), nil)
	if _, err := a.TokenSource(context.Background()).Token(); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("Token() error = %v, want ErrNoSession", err)
	}
}
