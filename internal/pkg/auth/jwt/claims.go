package jwt

import "github.com/golang-jwt/jwt"

// ProviderClaims is the subset of provider access-token claims the client reads.
// The token is never verified client-side; the backend and provider remain the
// authority on validity. Claims are used only to schedule session refreshes.
type ProviderClaims struct {
	jwt.StandardClaims

	// Email is the address the provider authenticated.
	Email string `json:"email,omitempty"`

	// Role is the provider-side database role (e.g. "authenticated").
	Role string `json:"role,omitempty"`
}
