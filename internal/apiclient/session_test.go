package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/florianilch/tokenward/internal/apiclient"
	"github.com/florianilch/tokenward/internal/provider"
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

// newLoadedManager returns a Manager restored from a store seeded with access and R1.
// The identity provider answers every token request with refreshStatus and refreshBody.
func newLoadedManager(t *testing.T, access string, refreshStatus int, refreshBody string) (*session.Manager, tokenstore.Store, *atomic.Int32) {
	t.Helper()
	var revokes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/app/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(refreshStatus)
		_, _ = w.Write([]byte(refreshBody))
	})
	mux.HandleFunc("POST /realms/app/protocol/openid-connect/logout", func(w http.ResponseWriter, r *http.Request) {
		revokes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	idp := httptest.NewServer(mux)
	t.Cleanup(idp.Close)

	client, err := provider.NewClient("customer-app", provider.DeriveEndpoints(idp.URL, "app"))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	store := tokenstore.NewMemoryStore()
	if err := store.Set(ctx, session.AccessTokenKey, access); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, session.RefreshTokenKey, "R1"); err != nil {
		t.Fatal(err)
	}

	m, err := session.New(client, store)
	if err != nil {
		t.Fatal(err)
	}
	m.Load(ctx)
	if !m.IsAuthenticated() {
		t.Fatal("session not restored")
	}
	return m, store, &revokes
}

func TestSessionRefreshAndRetry(t *testing.T) {
	t1, t2 := signedToken(t, "1"), signedToken(t, "2")
	m, store, _ := newLoadedManager(t, t1, http.StatusOK,
		`{"access_token":"`+t2+`","refresh_token":"R2","token_type":"Bearer","expires_in":300}`)

	srv, api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request, attempt int) {
		if r.Header.Get("Authorization") != "Bearer "+t2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, `{"ok":true}`)
	})

	if _, err := newClient(t, srv.URL, m).Get(context.Background(), "/me"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if api.calls() != 2 {
		t.Errorf("network calls = %d, want 2", api.calls())
	}
	if v, _ := store.Get(context.Background(), session.RefreshTokenKey); v != "R2" {
		t.Errorf("stored refresh token = %q, want R2", v)
	}
}

func TestSessionRefreshFailureLogsOut(t *testing.T) {
	m, store, _ := newLoadedManager(t, signedToken(t, "1"), http.StatusBadRequest,
		`{"error":"invalid_grant","error_description":"Token is not active"}`)

	srv, api := newAPIServer(t, func(w http.ResponseWriter, r *http.Request, attempt int) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := newClient(t, srv.URL, m).Get(context.Background(), "/me")
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		t.Fatalf("Get() error = %v, want ErrUnauthorized", err)
	}
	if api.calls() != 1 {
		t.Errorf("network calls = %d, want 1", api.calls())
	}
	if m.State() != session.StateUnauthenticated {
		t.Errorf("state = %v, want %v", m.State(), session.StateUnauthenticated)
	}
	for _, key := range []string{session.AccessTokenKey, session.RefreshTokenKey} {
		if _, err := store.Get(context.Background(), key); !errors.Is(err, tokenstore.ErrNotFound) {
			t.Errorf("%s still stored (err = %v)", key, err)
		}
	}
}
