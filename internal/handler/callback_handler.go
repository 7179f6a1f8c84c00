package handler

import (
	"context"
	_ "embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"cfoclient/internal/app/oauth"
	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
	"cfoclient/internal/pkg/req"
	"cfoclient/internal/pkg/resp"
)

// bridgePage forwards the URL hash, which never reaches the server, back to it.
//
//go:embed bridge.html
var bridgePage []byte

var resultPage = template.Must(template.New("result").Parse(`<!doctype html>
<html lang="en"><head><meta charset="utf-8"><title>Sign-in</title></head>
<body><p>{{.}}</p></body></html>`))

// callbackGate runs the callback at most once.
type callbackGate struct {
	deps *AppDeps

	mu   sync.Mutex
	done bool
}

func (g *callbackGate) run(ctx context.Context, cb oauth.Callback) (oauth.Result, *errs.CustomError) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done {
		return oauth.Result{}, errs.NewError(errs.ErrDuplicateEntry).WithMessage("This sign-in has already been completed.")
	}
	g.done = true

	result := g.deps.Callback.Handle(ctx, cb)
	if g.deps.Done != nil {
		g.deps.Done(result)
	}
	return result, nil
}

type completeInput struct {
	Hash  string `json:"hash"`
	Query string `json:"query"`
}

type completeOutput struct {
	Phase  string `json:"phase"`
	Target string `json:"target,omitempty"`
}

// handleCallbackLanding serves the provider redirect. Code-flow redirects are
// completed directly; anything else may carry tokens in the hash, so the bridge
// page is served to forward them.
func handleCallbackLanding(gate *callbackGate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if !query.Has("code") && !query.Has("error") {
			resp.RespondHTML(w, r, http.StatusOK, bridgePage)
			return
		}

		result, customErr := gate.run(r.Context(), oauth.Callback{Query: query, Fragment: url.Values{}})
		if customErr == nil {
			customErr = result.Err
		}

		message := "Signed in. You can close this window and return to the terminal."
		status := http.StatusOK
		if customErr != nil {
			message = customErr.Message
			status = http.StatusBadRequest
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		if err := resultPage.Execute(w, message); err != nil {
			logx.Error(err, "Failed to render callback result page")
		}
	}
}

// handleCallbackComplete receives the location forwarded by the bridge page.
func handleCallbackComplete(gate *callbackGate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input completeInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		query, err := url.ParseQuery(strings.TrimPrefix(input.Query, "?"))
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrBadRequest).WithMessage("Malformed callback query."))
			return
		}
		fragment, err := url.ParseQuery(strings.TrimPrefix(input.Hash, "#"))
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrBadRequest).WithMessage("Malformed callback fragment."))
			return
		}

		result, customErr := gate.run(r.Context(), oauth.Callback{Query: query, Fragment: fragment})
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if result.Err != nil {
			resp.RespondError(w, r, result.Err)
			return
		}

		out := completeOutput{Phase: result.Phase.String()}
		if result.Target != nil {
			out.Target = result.Target.String()
		}
		resp.RespondSuccess(w, r, out)
	}
}
