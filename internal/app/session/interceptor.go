package session

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"cfoclient/internal/app/api"
	"cfoclient/internal/app/routes"
	"cfoclient/internal/pkg/logx"
)

// exemptPaths never trigger the expiry policy: a 401 from the probe is the normal
// "not signed in" answer, and the OAuth reconciliation handles its own failures.
var exemptPaths = map[string]struct{}{
	api.MePath:             {},
	api.GoogleCallbackPath: {},
}

// Interceptor enforces the session expiry policy on every HTTP response.
type Interceptor struct {
	store  *Store
	nav    routes.Navigator
	logger zerolog.Logger
}

// NewInterceptor creates an interceptor bound to store and nav.
func NewInterceptor(store *Store, nav routes.Navigator) *Interceptor {
	return &Interceptor{
		store:  store,
		nav:    nav,
		logger: logx.Component("interceptor"),
	}
}

// Install registers the interceptor on client. It must run before the first request.
func Install(client *api.Client, store *Store, nav routes.Navigator) error {
	return client.Use(NewInterceptor(store, nav).Observe)
}

// Observe clears the session on an unexpected 401 and sends the user to sign-in
// with a redirect back to where they were. The response itself is left untouched
// so the originating caller still observes the failure.
func (i *Interceptor) Observe(res *api.Response) {
	if res.Status != http.StatusUnauthorized {
		return
	}

	path := res.Path
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if _, ok := exemptPaths[path]; ok {
		return
	}

	i.logger.Info().Str("path", path).Msg("Session expired")
	i.store.Clear()

	loc := i.nav.Location()
	if routes.IsPublic(loc.Path) || routes.IsAuth(loc.Path) {
		return
	}

	i.nav.Navigate(routes.SignInRedirect(loc))
}
