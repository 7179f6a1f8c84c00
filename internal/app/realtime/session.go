/*
Package realtime is the client for the hosted realtime service: its provider auth
endpoints, its table-backed REST surface and its websocket channel protocol.

The provider session it persists exists only to bootstrap OAuth and to authorize
channel joins; the application session is the backend cookie held by api.Client.
*/
package realtime

import (
	"strings"
	"time"

	"cfoclient/internal/pkg/auth/jwt"
)

// ProviderEmail is the provider name of native email/password sessions.
const ProviderEmail = "email"

// ProviderUser is the identity attached to a provider session.
type ProviderUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	AppMetadata struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`

	UserMetadata map[string]any `json:"user_metadata"`
}

func (u ProviderUser) metadataString(keys ...string) string {
	for _, k := range keys {
		if v, ok := u.UserMetadata[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// FullName returns the provider's display name, falling back to the email local part.
func (u ProviderUser) FullName() string {
	if name := u.metadataString("full_name", "name"); name != "" {
		return name
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// AvatarURL returns the provider's avatar, if any.
func (u ProviderUser) AvatarURL() string {
	return u.metadataString("avatar_url", "picture")
}

// Session is a provider session as issued by the token endpoint.
type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type,omitempty"`
	ExpiresIn    int64        `json:"expires_in,omitempty"`
	ExpiresAt    int64        `json:"expires_at,omitempty"`
	User         ProviderUser `json:"user"`
}

// Provider returns the identity provider that issued the session.
func (s *Session) Provider() string {
	if p := s.User.AppMetadata.Provider; p != "" {
		return p
	}
	return ProviderEmail
}

// IsExternal reports whether the session came from an external identity provider.
func (s *Session) IsExternal() bool {
	return s.Provider() != ProviderEmail
}

// Expiry returns when the access token expires. The zero time means unknown.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	if exp, err := jwt.ExpiresAt(s.AccessToken); err == nil {
		return exp
	}
	return time.Time{}
}

// normalize fills ExpiresAt from ExpiresIn or the token claims.
func (s *Session) normalize(now time.Time) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	if s.ExpiresAt == 0 {
		if exp, err := jwt.ExpiresAt(s.AccessToken); err == nil {
			s.ExpiresAt = exp.Unix()
		}
	}
}
