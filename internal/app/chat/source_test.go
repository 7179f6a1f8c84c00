package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfoclient/internal/app/api"
	"cfoclient/internal/app/realtime"
	"cfoclient/internal/app/user"
	"cfoclient/internal/pkg/errs"
)

func TestDecodeMessageShapes(t *testing.T) {
	m, err := decodeMessage(json.RawMessage(`{"id":42,"user_id":7,"user_name":"Bo","content":"hi","created_at":"2025-03-01 12:00:00.123456+00:00"}`), "")
	require.NoError(t, err)
	assert.Equal(t, "42", m.ID)
	assert.Equal(t, "7", m.UserID)
	assert.Equal(t, KindText, m.Kind)
	assert.Nil(t, m.File)
	assert.Equal(t, 2025, m.Timestamp.Year())

	m, err = decodeMessage(json.RawMessage(`{"id":"a1","team_id":"t2","message_type":"text","file_url":"https://cdn/x.pdf","file_name":"x.pdf","file_size":12,"timestamp":"2025-03-01T12:00:00Z","is_admin":true}`), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t2", m.RoomID)
	assert.Equal(t, KindFile, m.Kind)
	require.NotNil(t, m.File)
	assert.Equal(t, Attachment{URL: "https://cdn/x.pdf", Name: "x.pdf", Size: 12}, *m.File)
	assert.Equal(t, AdminDisplayName, m.DisplayName())

	_, err = decodeMessage(json.RawMessage(`{"content":"orphan"}`), "")
	assert.Error(t, err)
}

func TestDisplayNameFallsBack(t *testing.T) {
	assert.Equal(t, "Unknown", Message{}.DisplayName())
	assert.Equal(t, "Cy", Message{UserName: "Cy"}.DisplayName())
}

func TestSourcesRejectInvalidTeamID(t *testing.T) {
	_, err := Sources{}.For(Team("../admin"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

type teamBackend struct {
	paths   []string
	payload map[string]any
}

func newTeamBackend(t *testing.T, historyBody string) (*teamBackend, *api.Client) {
	t.Helper()

	b := &teamBackend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.paths = append(b.paths, r.Method+" "+r.URL.RequestURI())
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(historyBody))
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&b.payload)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	return b, client
}

func TestTeamSourceParticipant(t *testing.T) {
	b, client := newTeamBackend(t, `{"messages":[{"id":1,"content":"a","timestamp":"2025-03-01T12:00:00Z"},{"bogus":true}]}`)
	src, err := Sources{API: client}.For(Team(teamA))
	require.NoError(t, err)

	assert.Equal(t, "team-chat-"+teamA, src.ChannelName())
	assert.True(t, src.SupportsFiles())

	msgs, err := src.History(context.Background(), HistoryLimit)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, teamA, msgs[0].RoomID)

	require.NoError(t, src.Send(context.Background(), Outgoing{
		Content: "deck.pdf",
		File:    &Attachment{URL: "https://cdn/deck.pdf", Name: "deck.pdf", Size: 9},
	}))

	assert.Equal(t, []string{
		"GET /api/cfo/teams/" + teamA + "/chat?limit=50",
		"POST /api/cfo/teams/" + teamA + "/chat",
	}, b.paths)
	assert.Equal(t, "file", b.payload["message_type"])
	assert.Equal(t, "deck.pdf", b.payload["file_name"])
	assert.EqualValues(t, 9, b.payload["file_size"])
}

func TestTeamSourceAdmin(t *testing.T) {
	b, client := newTeamBackend(t, `[{"id":"x","content":"a","is_admin":true,"timestamp":"2025-03-01T12:00:00Z"}]`)
	src, err := Sources{API: client, Admin: true}.For(Team(teamB))
	require.NoError(t, err)

	assert.Equal(t, "admin-team-chat-"+teamB, src.ChannelName())
	assert.False(t, src.SupportsFiles())

	msgs, err := src.History(context.Background(), HistoryLimit)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, AdminDisplayName, msgs[0].DisplayName())

	require.NoError(t, src.Send(context.Background(), Outgoing{Content: "hello team"}))
	assert.Equal(t, "POST /api/admin/teams/"+teamB+"/chat", b.paths[1])
	assert.Equal(t, map[string]any{"content": "hello team"}, b.payload)
}

func TestGlobalSource(t *testing.T) {
	var (
		query  string
		insert map[string]string
		prefer string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/"+globalTable, r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			query = r.URL.RawQuery
			_, _ = w.Write([]byte(`[{"id":2,"user_name":"Di","content":"b","created_at":"2025-03-01T12:01:00Z"},{"id":1,"user_name":"Di","content":"a","created_at":"2025-03-01T12:00:00Z"}]`))
		case http.MethodPost:
			prefer = r.Header.Get("Prefer")
			_ = json.NewDecoder(r.Body).Decode(&insert)
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	author := user.User{ID: "u1", FullName: "Di"}
	src, err := Sources{REST: realtime.NewREST(srv.URL, "anon", nil), User: author}.For(Global())
	require.NoError(t, err)
	assert.Equal(t, globalChannel, src.ChannelName())

	msgs, err := src.History(context.Background(), HistoryLimit)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Contains(t, query, "order=created_at.desc")
	assert.Contains(t, query, "limit=50")

	require.NoError(t, src.Send(context.Background(), Outgoing{Content: "hey"}))
	assert.Equal(t, "return=minimal", prefer)
	assert.Equal(t, map[string]string{"user_id": "u1", "user_name": "Di", "content": "hey"}, insert)

	err = src.Send(context.Background(), Outgoing{Content: strings.Repeat("é", MaxGlobalContentLength+1)})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	assert.NoError(t, src.Send(context.Background(), Outgoing{Content: strings.Repeat("é", MaxGlobalContentLength)}))
}

func TestValidateAttachment(t *testing.T) {
	mimeType, customErr := ValidateFileType("Budget.XLSX")
	require.Nil(t, customErr)
	assert.Equal(t, ExtToMIME[".xlsx"], mimeType)

	_, customErr = ValidateFileType("noext")
	assert.NotNil(t, customErr)

	assert.NotNil(t, ValidateFileSize(0))
	assert.Nil(t, ValidateFileSize(MaxAttachmentSize))
}
