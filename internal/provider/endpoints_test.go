package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/florianilch/tokenward/internal/provider"
)

func newDiscoveryServer(t *testing.T, revocation, endSession string) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	issuer := provider.IssuerURL(srv.URL, "app")
	mux.HandleFunc("GET /realms/app/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/protocol/openid-connect/auth",
			"token_endpoint":         issuer + "/protocol/openid-connect/token",
			"jwks_uri":               issuer + "/protocol/openid-connect/certs",
		}
		if revocation != "" {
			doc["revocation_endpoint"] = revocation
		}
		if endSession != "" {
			doc["end_session_endpoint"] = endSession
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})
	return srv, issuer
}

func TestDiscover(t *testing.T) {
	_, issuer := newDiscoveryServer(t, "https://sso.example.com/revoke", "https://sso.example.com/logout")

	got, err := provider.Discover(context.Background(), issuer)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := provider.Endpoints{
		Authorization: issuer + "/protocol/openid-connect/auth",
		Token:         issuer + "/protocol/openid-connect/token",
		Revocation:    "https://sso.example.com/revoke",
	}
	if got != want {
		t.Errorf("Discover() = %+v, want %+v", got, want)
	}
}

func TestDiscoverFallsBackToEndSession(t *testing.T) {
	_, issuer := newDiscoveryServer(t, "", "https://sso.example.com/logout")

	got, err := provider.Discover(context.Background(), issuer)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if got.Revocation != "https://sso.example.com/logout" {
		t.Errorf("Revocation = %q", got.Revocation)
	}
}

func TestDiscoverErrors(t *testing.T) {
	t.Run("no revocation endpoint", func(t *testing.T) {
		_, issuer := newDiscoveryServer(t, "", "")
		if _, err := provider.Discover(context.Background(), issuer); err == nil {
			t.Fatal("Discover() succeeded, want error")
		}
	})

	t.Run("unknown realm", func(t *testing.T) {
		srv, _ := newDiscoveryServer(t, "x", "")
		if _, err := provider.Discover(context.Background(), provider.IssuerURL(srv.URL, "other")); err == nil {
			t.Fatal("Discover() succeeded, want error")
		}
	})
}
