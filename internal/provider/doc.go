// Package provider issues the OAuth2 grants of a public OIDC client against an identity
// provider: resource-owner password credentials, authorization code with PKCE, refresh and
// revocation.
//
// The client is stateless apart from its configuration and never retries; retry policy
// belongs to callers. Provider rejections are returned as *Error, transport failures and
// timeouts as *NetworkError.
//
// # Endpoints
//
// Endpoints are derived from a Keycloak-style base URL and realm:
//
//	endpoints := provider.DeriveEndpoints("https://sso.example.com/", "app")
//	client, err := provider.NewClient("customer-app", endpoints)
//
// or discovered from the realm's OpenID configuration document:
//
//	endpoints, err := provider.Discover(ctx, provider.IssuerURL(baseURL, realm))
//
// # Request Format
//
// Token requests are form-encoded per RFC 6749. Providers that expect JSON bodies can be
// served with WithRequestFormat(FormatJSON), which rewrites every outgoing form body in the
// HTTP transport.
package provider
