package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfoclient/internal/pkg/errs"
)

// setHeader adds a default header the way a host application might.
func (c *Client) setHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.header.Set(key, value)
}

// cookies returns the cookies the jar would attach to a request for path.
func (c *Client) cookies(path string) []*http.Cookie {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil
	}
	return c.httpClient.Jar.Cookies(u)
}

func TestClientCarriesSessionCookieOnEveryRequest(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var authHeaders []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if c, err := r.Cookie("session_token"); err == nil {
			seen = append(seen, r.URL.Path+"="+c.Value)
		} else {
			seen = append(seen, r.URL.Path+"=")
		}
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		mu.Unlock()

		if r.URL.Path == LoginPath {
			http.SetCookie(w, &http.Cookie{Name: "session_token", Value: "abc", Path: "/", HttpOnly: true})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.DoJSON(ctx, http.MethodPost, LoginPath, map[string]string{"email": "a@b.c"}, nil))
	require.NoError(t, c.DoJSON(ctx, http.MethodGet, MePath, nil, nil))
	require.NoError(t, c.DoJSON(ctx, http.MethodGet, "/api/cfo/teams/x/chat", nil, nil))

	assert.Equal(t, []string{LoginPath + "=", MePath + "=abc", "/api/cfo/teams/x/chat=abc"}, seen)
	assert.Equal(t, []string{"", "", ""}, authHeaders)
	assert.Len(t, c.cookies("/"), 1)
}

func TestClientNotifiesObserversInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"expired"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	var order []string
	require.NoError(t, c.Use(func(res *Response) { order = append(order, "first:"+res.Path) }))
	require.NoError(t, c.Use(func(res *Response) { order = append(order, "second:"+res.Path) }))

	err = c.DoJSON(context.Background(), http.MethodGet, "/api/cfo/teams", nil, nil)
	require.Error(t, err)

	customErr := errs.As(err)
	assert.Equal(t, errs.ErrUnauthorized, customErr.Code)
	assert.Equal(t, "expired", customErr.Message)
	assert.Equal(t, []string{"first:/api/cfo/teams", "second:/api/cfo/teams"}, order)

	assert.ErrorIs(t, c.Use(func(*Response) {}), ErrSealed)
}

func TestClientStripAuthorization(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, srv.URL, c.baseURL)

	c.setHeader("Authorization", "Bearer leftover")
	c.StripAuthorization()

	_, err = c.Do(context.Background(), http.MethodPost, LogoutPath, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClientTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), http.MethodGet, MePath, nil)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindNetwork))
}

func TestClientEmptyBaseIsSameOrigin(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost", c.baseURL)
}
