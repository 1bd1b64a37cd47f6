// Package claims decodes identity claims from provider-issued access tokens.
//
// Tokens are decoded without signature verification. An access token is trusted because it
// was received directly from the identity provider's token endpoint over TLS; verifying it
// is the resource server's job. Do not use Decode on tokens from any other source.
package claims

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when the token payload cannot be decoded.
var ErrMalformedToken = errors.New("malformed token")

// Identity holds the user identity carried by an access token.
type Identity struct {
	Subject     string   `json:"sub"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles"`
	// ExpiresAt is the token's exp claim, zero when absent. It is reported, not enforced.
	ExpiresAt time.Time `json:"expires_at"`
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// tokenClaims mirrors the OIDC and Keycloak claims we read.
type tokenClaims struct {
	jwt.RegisteredClaims

	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

var parser = jwt.NewParser()

// Decode extracts the identity from token's payload segment.
func Decode(token string) (Identity, error) {
	var c tokenClaims
	if _, _, err := parser.ParseUnverified(token, &c); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	displayName := c.GivenName
	if displayName == "" {
		displayName = c.Name
	}

	roles := c.RealmAccess.Roles
	if roles == nil {
		roles = []string{}
	}

	identity := Identity{
		Subject:     c.Subject,
		Username:    c.PreferredUsername,
		DisplayName: displayName,
		Email:       c.Email,
		Roles:       roles,
	}
	if c.ExpiresAt != nil {
		identity.ExpiresAt = c.ExpiresAt.Time
	}
	return identity, nil
}
