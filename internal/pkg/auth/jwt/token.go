/*
Package jwt reads provider access-token claims without verifying them.

The client never validates, signs or stores tokens for authorization purposes. It only
needs the expiry of the realtime provider session when the provider omitted expires_at,
so that a persisted session can be refreshed before it is used.
*/
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrNoExpiry is returned when the token carries no exp claim.
var ErrNoExpiry = errors.New("token has no expiry claim")

// ReadClaims decodes the token payload without signature verification.
func ReadClaims(tokenString string) (*ProviderClaims, error) {
	claims := &ProviderClaims{}

	parser := &jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// ExpiresAt returns the exp claim of the token.
func ExpiresAt(tokenString string) (time.Time, error) {
	claims, err := ReadClaims(tokenString)
	if err != nil {
		return time.Time{}, err
	}

	if claims.ExpiresAt == 0 {
		return time.Time{}, ErrNoExpiry
	}

	return time.Unix(claims.ExpiresAt, 0), nil
}
