/*
Package guard gates protected views on the session state.

Decide is a pure function of the store snapshot and route parameters. Guard binds
it to a session.Store and a Navigator so a view re-evaluates on every store change
and never navigates before the first session probe has completed.
*/
package guard

import (
	"net/url"
	"sync"

	"cfoclient/internal/app/routes"
	"cfoclient/internal/app/session"
	"cfoclient/internal/pkg/logx"
)

// Outcome is what the guarded view should do.
type Outcome int

const (
	// Loading renders the placeholder. No navigation happens.
	Loading Outcome = iota

	// Render shows the protected content.
	Render

	// Redirect navigates to Decision.Target.
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Params configures a guarded view.
type Params struct {
	AdminOnly        bool
	SkipProfileCheck bool
}

// ParamsFor derives the parameters of a route: admin views are admin-only and the
// profile-completion view skips the profile check.
func ParamsFor(path string) Params {
	return Params{
		AdminOnly:        routes.IsAdmin(path),
		SkipProfileCheck: routes.Clean(path) == routes.CompleteProfile,
	}
}

// Decision is the result of Decide.
type Decision struct {
	Outcome Outcome
	Target  routes.Target
}

// Decide evaluates the guard rules top-down; the first match wins.
func Decide(st session.State, p Params, loc *url.URL) Decision {
	if !st.Initialized || st.Loading {
		return Decision{Outcome: Loading}
	}

	if st.User == nil {
		return Decision{
			Outcome: Redirect,
			Target:  routes.Target{Path: routes.SignIn, From: routes.PathWithQuery(loc)},
		}
	}

	if !p.SkipProfileCheck && !st.User.ProfileCompleted {
		return Decision{Outcome: Redirect, Target: routes.Target{Path: routes.CompleteProfile}}
	}

	if p.AdminOnly && !st.User.IsAdmin() {
		return Decision{Outcome: Redirect, Target: routes.Target{Path: routes.Dashboard}}
	}

	return Decision{Outcome: Render}
}

// Guard re-evaluates Decide whenever the store changes and performs redirects.
type Guard struct {
	store  *session.Store
	nav    routes.Navigator
	params Params

	mu      sync.Mutex
	last    Decision
	stopped bool
	unsub   func()
	onView  func(Decision)
}

// Mount attaches a guard for the current location. onView receives every Loading
// and Render decision; it may be nil.
func Mount(store *session.Store, nav routes.Navigator, p Params, onView func(Decision)) *Guard {
	g := &Guard{
		store:  store,
		nav:    nav,
		params: p,
		onView: onView,
	}

	g.mu.Lock()
	g.unsub = store.Subscribe(g.evaluate)
	g.mu.Unlock()

	g.evaluate(store.Snapshot())

	return g
}

// Decision returns the most recent decision.
func (g *Guard) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.last
}

// Unmount stops observing the store. A redirect unmounts the guard implicitly.
func (g *Guard) Unmount() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	unsub := g.unsub
	g.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (g *Guard) evaluate(st session.State) {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	loc := g.nav.Location()
	d := Decide(st, g.params, loc)
	g.last = d
	g.mu.Unlock()

	if d.Outcome != Redirect {
		if g.onView != nil {
			g.onView(d)
		}
		return
	}

	logx.Debug("Guard redirect", "from", routes.PathWithQuery(loc), "to", d.Target.String())

	// The view is gone once we navigate away from it.
	g.Unmount()
	g.nav.Navigate(d.Target)
}
