package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Endpoints holds the identity provider URLs used by the client.
type Endpoints struct {
	Authorization string `json:"authorization_endpoint"`
	Token         string `json:"token_endpoint"`
	Revocation    string `json:"revocation_endpoint"`
}

// IssuerURL returns the issuer of a Keycloak realm.
func IssuerURL(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + realm
}

// DeriveEndpoints returns the Keycloak OpenID Connect endpoints of realm.
// Revocation uses the logout endpoint, which ends the provider session of a refresh token.
func DeriveEndpoints(baseURL, realm string) Endpoints {
	prefix := IssuerURL(baseURL, realm) + "/protocol/openid-connect"
	return Endpoints{
		Authorization: prefix + "/auth",
		Token:         prefix + "/token",
		Revocation:    prefix + "/logout",
	}
}

// discoveryClaims are the metadata fields go-oidc does not expose directly.
type discoveryClaims struct {
	RevocationEndpoint string `json:"revocation_endpoint"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// Discover fetches the OpenID configuration document of issuer and returns its endpoints.
// Falls back to the end session endpoint when the provider advertises no revocation endpoint.
func Discover(ctx context.Context, issuer string, opts ...Option) (Endpoints, error) {
	cfg := newClientConfig(opts)
	httpClient := &http.Client{
		Timeout:   cfg.timeout,
		Transport: cfg.baseTransport,
	}

	p, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("discovering %s: %w", issuer, err)
	}

	var extra discoveryClaims
	if err := p.Claims(&extra); err != nil {
		return Endpoints{}, fmt.Errorf("decoding provider metadata: %w", err)
	}

	revocation := extra.RevocationEndpoint
	if revocation == "" {
		revocation = extra.EndSessionEndpoint
	}
	if revocation == "" {
		return Endpoints{}, fmt.Errorf("provider %s advertises no revocation endpoint", issuer)
	}

	endpoint := p.Endpoint()
	return Endpoints{
		Authorization: endpoint.AuthURL,
		Token:         endpoint.TokenURL,
		Revocation:    revocation,
	}, nil
}
