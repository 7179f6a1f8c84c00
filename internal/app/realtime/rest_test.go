package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfoclient/internal/pkg/errs"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) string { return string(s) }

func TestRESTSelectAndInsert(t *testing.T) {
	var inserted map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/rest/v1/global_chat_messages", r.URL.Path)

		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
			_, _ = w.Write([]byte(`[{"id":"2"},{"id":"1"}]`))
		case http.MethodPost:
			assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &inserted)
			if inserted["content"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"23514","message":"content must not be empty"}`))
				return
			}
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	r := NewREST(srv.URL, testAnonKey, staticToken("user-token"))
	ctx := context.Background()

	var rows []map[string]string
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	require.NoError(t, r.Select(ctx, "global_chat_messages", q, &rows))
	assert.Equal(t, []map[string]string{{"id": "2"}, {"id": "1"}}, rows)

	require.NoError(t, r.Insert(ctx, "global_chat_messages", map[string]string{"content": "hi"}))
	assert.Equal(t, "hi", inserted["content"])

	err := r.Insert(ctx, "global_chat_messages", map[string]string{"content": ""})
	require.Error(t, err)
	assert.Equal(t, "content must not be empty", errs.As(err).Message)
}
