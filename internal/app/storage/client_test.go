package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) string { return string(s) }

type recordedRequest struct {
	Method        string
	Path          string
	Authorization string
	SecurityToken string
	ContentType   string
}

func TestServiceConfig(t *testing.T) {
	cfg := ServiceConfig{ProjectURL: "https://abcd.supabase.co/", BucketName: "chat-files"}

	assert.Equal(t, "https://abcd.supabase.co/storage/v1/s3", cfg.Endpoint())
	assert.Equal(t, "abcd", cfg.ProjectRef())
	assert.Equal(t, "https://abcd.supabase.co/storage/v1/object/public/chat-files/t1/x.pdf", cfg.PublicURL("t1/x.pdf"))

	_, err := NewStorageService(ServiceConfig{ProjectURL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestUploadAndDeleteUseUserCredentials(t *testing.T) {
	var mu sync.Mutex
	var seen []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, recordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			SecurityToken: r.Header.Get("X-Amz-Security-Token"),
			ContentType:   r.Header.Get("Content-Type"),
		})
		mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	// The project ref is derived from the host, so point a named host at the test server.
	cfg := ServiceConfig{
		ProjectURL: strings.Replace(srv.URL, "127.0.0.1", "localhost", 1),
		AnonKey:    "anon",
		BucketName: "chat-files",
		Region:     "us-east-1",
	}

	svc, err := NewStorageService(cfg, staticToken("user-jwt"))
	require.NoError(t, err)

	ctx := context.Background()
	up, err := svc.Upload(ctx, Object{
		Key:         "t1/file.pdf",
		ContentType: "application/pdf",
		Size:        5,
		Body:        bytes.NewReader([]byte("%PDF-")),
	})
	require.NoError(t, err)
	assert.Equal(t, "t1/file.pdf", up.Key)
	assert.Equal(t, cfg.PublicURL("t1/file.pdf"), up.URL)

	require.NoError(t, svc.Delete(ctx, "t1/file.pdf"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)

	assert.Equal(t, http.MethodPut, seen[0].Method)
	assert.Equal(t, "/storage/v1/s3/chat-files/t1/file.pdf", seen[0].Path)
	assert.Contains(t, seen[0].Authorization, "Credential=localhost/")
	assert.Equal(t, "user-jwt", seen[0].SecurityToken)
	assert.Equal(t, "application/pdf", seen[0].ContentType)

	assert.Equal(t, http.MethodDelete, seen[1].Method)
	assert.Equal(t, "/storage/v1/s3/chat-files/t1/file.pdf", seen[1].Path)
}

func TestUploadFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}))
	defer srv.Close()

	cfg := ServiceConfig{
		ProjectURL: strings.Replace(srv.URL, "127.0.0.1", "localhost", 1),
		AnonKey:    "anon",
		BucketName: "chat-files",
		Region:     "us-east-1",
	}
	svc, err := NewStorageService(cfg, nil)
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), Object{Key: "t1/a.png", ContentType: "image/png", Body: bytes.NewReader([]byte("x"))})
	assert.EqualError(t, err, "failed to upload file")
}
