package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
)

// REST reads and writes the service's table-backed endpoints.
type REST struct {
	service

	tokens TokenSource
}

// NewREST creates a table client. tokens may be nil for anonymous access.
func NewREST(baseURL, anonKey string, tokens TokenSource) *REST {
	return &REST{
		service: newService(baseURL, anonKey, 15*time.Second, 4<<20, errs.FromResponse),
		tokens:  tokens,
	}
}

// Select reads rows of table matching query into out.
func (r *REST) Select(ctx context.Context, table string, query url.Values, out any) error {
	path := "/rest/v1/" + url.PathEscape(table)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	data, err := r.send(ctx, call{method: http.MethodGet, path: path, bearer: r.token(ctx)})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		logx.Warn("Failed to decode table rows", "table", table, "error", err.Error())
		return errs.NewError(errs.ErrInternal)
	}
	return nil
}

// Insert writes one row into table without reading it back.
func (r *REST) Insert(ctx context.Context, table string, row any) error {
	headers := http.Header{}
	headers.Set("Prefer", "return=minimal")

	_, err := r.send(ctx, call{
		method:  http.MethodPost,
		path:    "/rest/v1/" + url.PathEscape(table),
		bearer:  r.token(ctx),
		payload: row,
		header:  headers,
	})
	return err
}

// token returns the caller's access token, or empty for anonymous access.
func (r *REST) token(ctx context.Context) string {
	if r.tokens == nil {
		return ""
	}
	return r.tokens.AccessToken(ctx)
}
