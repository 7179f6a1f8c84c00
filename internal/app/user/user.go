/*
Package user defines the identity record the backend returns for the signed-in account.

The record is opaque to the client beyond the attributes below; it is created and
mutated only by the backend and observed through the session probe.
*/
package user

// Role is the platform role of an account.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleJudge       Role = "judge"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleJudge, RoleAdmin:
		return true
	}
	return false
}

// User represents the signed-in account.
type User struct {
	// ID is the stable backend identifier.
	ID string `json:"id"`

	// FullName is the display name.
	FullName string `json:"full_name"`

	// Email is the normalized account email.
	Email string `json:"email"`

	// Role decides access to admin views.
	Role Role `json:"role"`

	// AvatarURL is set for accounts created through an external provider.
	AvatarURL string `json:"avatar_url,omitempty"`

	// ProfileCompleted is false until the profile-completion flow has been submitted.
	// A missing value from the backend decodes as false.
	ProfileCompleted bool `json:"profile_completed"`
}

// IsAdmin reports whether the account may open admin-only views.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
