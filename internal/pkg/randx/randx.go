/*
Package randx provides cryptographically secure random values and identifier helpers.

It generates PKCE code verifiers for the provider sign-in flow and attachment object
names, and validates team identifiers before they are used in paths and channel filters.
*/
package randx

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// verifierChars is the unreserved character set allowed in a PKCE code verifier.
	verifierChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-._~"

	// verifierLen is the total number of characters in verifierChars.
	verifierLen = int64(len(verifierChars))

	// CodeVerifierLength is the length of generated code verifiers (43-128 allowed).
	CodeVerifierLength = 56
)

// CodeVerifier generates a PKCE code verifier using crypto/rand.
func CodeVerifier() (string, error) {
	result := make([]byte, CodeVerifierLength)

	for i := range CodeVerifierLength {
		num, err := rand.Int(rand.Reader, big.NewInt(verifierLen))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for code verifier: %v", err)
		}

		result[i] = verifierChars[num.Int64()]
	}

	return string(result), nil
}

// CodeChallenge derives the S256 challenge for a verifier.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ObjectName generates a unique object name keeping the given extension.
func ObjectName(ext string) string {
	return uuid.NewString() + strings.ToLower(ext)
}

// IsValidTeamID reports whether id is a canonical UUID, the backend's team key format.
func IsValidTeamID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == strings.ToLower(id)
}
