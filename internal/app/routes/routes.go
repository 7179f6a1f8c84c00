/*
Package routes defines the application's route table and the Navigator abstraction.

Routes fall into three classes that drive redirect policy: public marketing pages,
auth pages (sign-in, sign-up, callback, check-email) and everything else, which
requires a session. Admin views live under /admin.
*/
package routes

import (
	"net/url"
	"strings"
)

// Well-known routes.
const (
	Home            = "/"
	SignIn          = "/signin"
	SignUp          = "/signup"
	AuthCallback    = "/auth/callback"
	CheckEmail      = "/check-email"
	CompleteProfile = "/complete-profile"
	Dashboard       = "/dashboard"
	AdminPrefix     = "/admin"
)

// Query parameters interpreted on /signin.
const (
	ParamRedirect  = "redirect"
	ParamConfirmed = "confirmed"
)

var publicRoutes = map[string]struct{}{
	"/":             {},
	"/about":        {},
	"/contact":      {},
	"/faq":          {},
	"/services":     {},
	"/fmva":         {},
	"/100fm":        {},
	"/competitions": {},
	"/community":    {},
	"/testimonials": {},
}

var authRoutes = map[string]struct{}{
	SignIn:       {},
	SignUp:       {},
	AuthCallback: {},
	CheckEmail:   {},
}

// Clean normalizes a path: leading slash, no trailing slash (except root).
func Clean(path string) string {
	if path == "" {
		return Home
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = Home
		}
	}
	return path
}

// IsPublic reports whether path is a marketing page.
func IsPublic(path string) bool {
	_, ok := publicRoutes[Clean(path)]
	return ok
}

// IsAuth reports whether path belongs to the sign-in flow.
func IsAuth(path string) bool {
	_, ok := authRoutes[Clean(path)]
	return ok
}

// IsAdmin reports whether path is an admin-only view.
func IsAdmin(path string) bool {
	p := Clean(path)
	return p == AdminPrefix || strings.HasPrefix(p, AdminPrefix+"/")
}

// Target is a navigation destination.
type Target struct {
	// Path is the route path.
	Path string

	// Query carries route parameters such as redirect and confirmed.
	Query url.Values

	// From is the location the user was turned away from, kept as navigation state.
	From string
}

// String renders the target as path?query.
func (t Target) String() string {
	if len(t.Query) == 0 {
		return t.Path
	}
	return t.Path + "?" + t.Query.Encode()
}

// PathWithQuery renders a location the way it is preserved across redirects.
func PathWithQuery(loc *url.URL) string {
	if loc == nil {
		return Home
	}
	p := loc.Path
	if p == "" {
		p = Home
	}
	if loc.RawQuery != "" {
		p += "?" + loc.RawQuery
	}
	return p
}

// SignInRedirect is the sign-in destination used when a session expires at loc.
func SignInRedirect(loc *url.URL) Target {
	return Target{
		Path:  SignIn,
		Query: url.Values{ParamRedirect: []string{PathWithQuery(loc)}},
	}
}

// SignInConfirmed is the sign-in destination shown after email verification.
func SignInConfirmed() Target {
	return Target{
		Path:  SignIn,
		Query: url.Values{ParamConfirmed: []string{"true"}},
	}
}

// PostLogin picks the destination after a successful sign-in: the profile-completion
// route when the profile is incomplete, else the redirect parameter when it is a local
// path, else the dashboard.
func PostLogin(profileCompleted bool, redirect string) Target {
	if !profileCompleted {
		return Target{Path: CompleteProfile}
	}
	if redirect != "" && strings.HasPrefix(redirect, "/") && !strings.HasPrefix(redirect, "//") {
		if u, err := url.Parse(redirect); err == nil && !IsAuth(u.Path) {
			return Target{Path: Clean(u.Path), Query: u.Query()}
		}
	}
	return Target{Path: Dashboard}
}
