package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfoclient/internal/app/oauth"
	"cfoclient/internal/app/routes"
	"cfoclient/internal/pkg/errs"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []oauth.Callback
	result oauth.Result
}

func (f *fakeRunner) Handle(_ context.Context, cb oauth.Callback) oauth.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cb)
	return f.result
}

func newTestRouter(t *testing.T, runner *fakeRunner) (http.Handler, *[]oauth.Result) {
	var done []oauth.Result
	h := Router(t.Context(), &AppDeps{
		Callback: runner,
		Done:     func(r oauth.Result) { done = append(done, r) },
	})
	return h, &done
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func dashboardResult() oauth.Result {
	return oauth.Result{Phase: oauth.Done, Target: &routes.Target{Path: routes.Dashboard}}
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, &fakeRunner{})
	w := serve(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestLandingServesBridgeWithoutCode(t *testing.T) {
	runner := &fakeRunner{}
	h, _ := newTestRouter(t, runner)

	w := serve(h, http.MethodGet, "/auth/callback", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "/auth/callback/complete")
	assert.Empty(t, runner.calls)
}

func TestLandingCompletesCodeFlowOnce(t *testing.T) {
	runner := &fakeRunner{result: dashboardResult()}
	h, done := newTestRouter(t, runner)

	w := serve(h, http.MethodGet, "/auth/callback?code=abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "abc", runner.calls[0].Query.Get("code"))
	require.Len(t, *done, 1)

	w = serve(h, http.MethodGet, "/auth/callback?code=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, runner.calls, 1)
}

func TestLandingReportsProviderError(t *testing.T) {
	runner := &fakeRunner{result: oauth.Result{
		Phase: oauth.Failed,
		Err:   errs.NewError(errs.ErrProvider, "access <denied>"),
	}}
	h, _ := newTestRouter(t, runner)

	w := serve(h, http.MethodGet, "/auth/callback?error=access_denied", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "access &lt;denied&gt;")
}

func TestCompleteForwardsHash(t *testing.T) {
	runner := &fakeRunner{result: dashboardResult()}
	h, _ := newTestRouter(t, runner)

	w := serve(h, http.MethodPost, "/auth/callback/complete", `{"hash":"#access_token=at&refresh_token=rt","query":"?type=signup"}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "at", runner.calls[0].Fragment.Get("access_token"))
	assert.Equal(t, "rt", runner.calls[0].Fragment.Get("refresh_token"))
	assert.Equal(t, "signup", runner.calls[0].Query.Get("type"))

	var out completeOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, completeOutput{Phase: "done", Target: routes.Dashboard}, out)

	w = serve(h, http.MethodPost, "/auth/callback/complete", `{"hash":"","query":""}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCompleteReportsFailure(t *testing.T) {
	runner := &fakeRunner{result: oauth.Result{Phase: oauth.Failed, Err: errs.NewError(errs.ErrNetwork)}}
	h, _ := newTestRouter(t, runner)

	w := serve(h, http.MethodPost, "/auth/callback/complete", `{"hash":"","query":""}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), errs.ErrNetwork)
}

func TestCompleteRejectsBadBodies(t *testing.T) {
	runner := &fakeRunner{result: dashboardResult()}
	h, _ := newTestRouter(t, runner)

	r := httptest.NewRequest(http.MethodPost, "/auth/callback/complete", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing content type")

	w = serve(h, http.MethodPost, "/auth/callback/complete", `{"hash":"","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, runner.calls)
}

func TestCallbackIsRateLimited(t *testing.T) {
	h, _ := newTestRouter(t, &fakeRunner{})

	codes := make([]int, 0, CallbackBurst+1)
	for i := 0; i <= CallbackBurst; i++ {
		codes = append(codes, serve(h, http.MethodGet, "/auth/callback", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[CallbackBurst])
	assert.Equal(t, http.StatusOK, codes[0])
}
