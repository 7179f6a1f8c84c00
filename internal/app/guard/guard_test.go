package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfoclient/internal/app/api"
	"cfoclient/internal/app/routes"
	"cfoclient/internal/app/session"
	"cfoclient/internal/app/user"
)

func at(path string) *url.URL {
	u, _ := url.Parse(path)
	return u
}

func TestDecide(t *testing.T) {
	participant := &user.User{ID: "u1", Role: user.RoleParticipant, ProfileCompleted: true}
	incomplete := &user.User{ID: "u2", Role: user.RoleParticipant}
	admin := &user.User{ID: "u3", Role: user.RoleAdmin, ProfileCompleted: true}

	tests := []struct {
		name    string
		state   session.State
		params  Params
		outcome Outcome
		target  string
	}{
		{"uninitialized", session.State{Loading: true}, Params{}, Loading, ""},
		{"initialized but loading", session.State{Initialized: true, Loading: true, User: participant}, Params{}, Loading, ""},
		{"absent user", session.State{Initialized: true}, Params{}, Redirect, routes.SignIn},
		{"incomplete profile", session.State{Initialized: true, User: incomplete}, Params{}, Redirect, routes.CompleteProfile},
		{"incomplete profile skipped", session.State{Initialized: true, User: incomplete}, Params{SkipProfileCheck: true}, Render, ""},
		{"admin only as participant", session.State{Initialized: true, User: participant}, Params{AdminOnly: true}, Redirect, routes.Dashboard},
		{"admin only as admin", session.State{Initialized: true, User: admin}, Params{AdminOnly: true}, Render, ""},
		{"profile check wins over role", session.State{Initialized: true, User: incomplete}, Params{AdminOnly: true}, Redirect, routes.CompleteProfile},
		{"render", session.State{Initialized: true, User: participant}, Params{}, Render, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.state, tt.params, at("/teams/abc?tab=chat"))
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.target, d.Target.Path)
		})
	}
}

func TestDecidePreservesFrom(t *testing.T) {
	d := Decide(session.State{Initialized: true}, Params{}, at("/teams/abc?tab=chat"))
	assert.Equal(t, "/teams/abc?tab=chat", d.Target.From)
}

func TestParamsFor(t *testing.T) {
	assert.Equal(t, Params{AdminOnly: true}, ParamsFor("/admin/teams"))
	assert.Equal(t, Params{SkipProfileCheck: true}, ParamsFor(routes.CompleteProfile))
	assert.Equal(t, Params{}, ParamsFor(routes.Dashboard))
}

// TestGuardWaitsForInitialization covers a first render that races the session probe.
func TestGuardWaitsForInitialization(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"user":{"id":"u1","full_name":"Alice","email":"a@x.io","role":"participant"},"profile_completed":true}`))
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	store := session.NewStore(client)
	history := routes.NewHistory(routes.Dashboard)
	require.NoError(t, session.Install(client, store, history))

	var views []Outcome
	g := Mount(store, history, ParamsFor(routes.Dashboard), func(d Decision) {
		views = append(views, d.Outcome)
	})
	defer g.Unmount()

	assert.Equal(t, Loading, g.Decision().Outcome)
	assert.Equal(t, 1, history.Len())

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Initialize(context.Background())
	}()
	close(release)
	<-done

	assert.Equal(t, Render, g.Decision().Outcome)
	assert.Equal(t, []string{routes.Dashboard}, history.Paths(), "no intermediate navigation")
	assert.Equal(t, Loading, views[0])
	assert.Equal(t, Render, views[len(views)-1])
}

func TestGuardNeverNavigatesBeforeInitialization(t *testing.T) {
	store := session.NewStore(nil)
	history := routes.NewHistory("/teams/abc")

	// Mutations before the probe completes must not trigger a decision.
	store.SetDirect(user.User{ID: "tmp"})
	store.Clear()

	g := Mount(store, history, Params{}, nil)
	defer g.Unmount()

	assert.Equal(t, Loading, g.Decision().Outcome, "not initialized yet")
	assert.Equal(t, 1, history.Len())
}

func TestGuardUnmountsOnRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	store := session.NewStore(client)
	history := routes.NewHistory("/teams/abc")

	g := Mount(store, history, Params{}, nil)
	store.Initialize(context.Background())

	require.Equal(t, Redirect, g.Decision().Outcome)
	assert.Equal(t, []string{"/teams/abc", routes.SignIn}, history.Paths())
	assert.Equal(t, "/teams/abc", history.From())

	store.SetDirect(user.User{ID: "u1", ProfileCompleted: true})
	store.Clear()
	assert.Equal(t, 2, history.Len(), "an unmounted guard stays silent")
}
