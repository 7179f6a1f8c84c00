package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"cfoclient/internal/app/api"
	"cfoclient/internal/app/realtime"
	"cfoclient/internal/app/user"
	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
	"cfoclient/internal/pkg/randx"
)

const (
	// HistoryLimit is the size of the history window loaded on selection.
	HistoryLimit = 50

	// MaxGlobalContentLength is the longest global chat message, in characters.
	MaxGlobalContentLength = 500

	globalChannel = "global_chat"
	globalTable   = "global_chat_messages"
	teamTable     = "chat_messages"
)

// RoomRef names a room: the global room or a team room.
type RoomRef struct {
	TeamID string
}

// Global is the platform-wide room.
func Global() RoomRef {
	return RoomRef{}
}

// Team is the room of one team.
func Team(teamID string) RoomRef {
	return RoomRef{TeamID: strings.ToLower(strings.TrimSpace(teamID))}
}

// IsGlobal reports whether r is the global room.
func (r RoomRef) IsGlobal() bool {
	return r.TeamID == ""
}

// Key identifies the room in logs, limiter buckets and attachment keys.
func (r RoomRef) Key() string {
	if r.IsGlobal() {
		return "global"
	}
	return r.TeamID
}

// Outgoing is a message to send.
type Outgoing struct {
	Content string
	File    *Attachment
}

// Source is the backend surface of one room: where history comes from, where
// messages are posted and which channel streams its inserts.
type Source interface {
	ChannelName() string
	Filter() realtime.Filter
	History(ctx context.Context, limit int) ([]Message, error)
	Send(ctx context.Context, out Outgoing) error
	Decode(record json.RawMessage) (Message, error)
	SupportsFiles() bool
}

// Sources builds the Source of each room for one signed-in user.
type Sources struct {
	API  *api.Client
	REST *realtime.REST
	User user.User

	// Admin selects the staff endpoints and channel names for team rooms.
	Admin bool
}

// For returns the source of ref.
func (s Sources) For(ref RoomRef) (Source, error) {
	if ref.IsGlobal() {
		if s.REST == nil {
			return nil, errs.NewError(errs.ErrInternal)
		}
		return &globalSource{rest: s.REST, author: s.User}, nil
	}

	if !randx.IsValidTeamID(ref.TeamID) {
		return nil, errs.NewError(errs.ErrValidation).WithMessage("Invalid team id.")
	}
	return &teamSource{api: s.API, teamID: ref.TeamID, admin: s.Admin}, nil
}

// teamSource reads and writes a team room through the backend API.
type teamSource struct {
	api    *api.Client
	teamID string
	admin  bool
}

func (t *teamSource) ChannelName() string {
	if t.admin {
		return "admin-team-chat-" + t.teamID
	}
	return "team-chat-" + t.teamID
}

func (t *teamSource) Filter() realtime.Filter {
	return realtime.InsertsInto(teamTable, "team_id", t.teamID)
}

func (t *teamSource) path() string {
	if t.admin {
		return "/api/admin/teams/" + url.PathEscape(t.teamID) + "/chat"
	}
	return "/api/cfo/teams/" + url.PathEscape(t.teamID) + "/chat"
}

func (t *teamSource) History(ctx context.Context, limit int) ([]Message, error) {
	var body json.RawMessage
	if err := t.api.DoJSON(ctx, http.MethodGet, t.path()+"?limit="+strconv.Itoa(limit), nil, &body); err != nil {
		return nil, err
	}

	// Both `{messages: [...]}` and a bare array are served.
	rows := []json.RawMessage{}
	if err := json.Unmarshal(body, &rows); err != nil {
		var envelope struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, errs.NewError(errs.ErrInternal)
		}
		rows = envelope.Messages
	}

	return decodeRows(rows, t.teamID), nil
}

func (t *teamSource) Send(ctx context.Context, out Outgoing) error {
	if t.admin {
		if out.File != nil {
			return errs.NewError(errs.ErrValidation).WithMessage("Staff messages cannot carry files.")
		}
		return t.api.DoJSON(ctx, http.MethodPost, t.path(), map[string]string{"content": out.Content}, nil)
	}

	payload := map[string]any{
		"message_type": string(KindText),
		"content":      out.Content,
	}
	if out.File != nil {
		payload["message_type"] = string(KindFile)
		payload["file_url"] = out.File.URL
		payload["file_name"] = out.File.Name
		payload["file_size"] = out.File.Size
	}
	return t.api.DoJSON(ctx, http.MethodPost, t.path(), payload, nil)
}

func (t *teamSource) Decode(record json.RawMessage) (Message, error) {
	return decodeMessage(record, t.teamID)
}

func (t *teamSource) SupportsFiles() bool {
	return !t.admin
}

// globalSource reads and writes the global room through the table endpoints.
type globalSource struct {
	rest   *realtime.REST
	author user.User
}

func (g *globalSource) ChannelName() string {
	return globalChannel
}

func (g *globalSource) Filter() realtime.Filter {
	return realtime.InsertsInto(globalTable, "", "")
}

func (g *globalSource) History(ctx context.Context, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))

	var rows []json.RawMessage
	if err := g.rest.Select(ctx, globalTable, q, &rows); err != nil {
		return nil, err
	}

	return decodeRows(rows, ""), nil
}

func (g *globalSource) Send(ctx context.Context, out Outgoing) error {
	if out.File != nil {
		return errs.NewError(errs.ErrValidation).WithMessage("Files cannot be posted to the global chat.")
	}
	if utf8.RuneCountInString(out.Content) > MaxGlobalContentLength {
		return errs.NewError(errs.ErrValidation).WithMessage("Message must be 500 characters or fewer.")
	}

	row := map[string]string{
		"user_id":   g.author.ID,
		"user_name": g.author.FullName,
		"content":   out.Content,
	}
	return g.rest.Insert(ctx, globalTable, row)
}

func (g *globalSource) Decode(record json.RawMessage) (Message, error) {
	return decodeMessage(record, "")
}

func (g *globalSource) SupportsFiles() bool {
	return false
}

func decodeRows(rows []json.RawMessage, roomID string) []Message {
	out := make([]Message, 0, len(rows))
	for _, raw := range rows {
		m, err := decodeMessage(raw, roomID)
		if err != nil {
			logx.Warn("Skipping unreadable chat row", "room", roomID, "error", err.Error())
			continue
		}
		out = append(out, m)
	}
	return out
}
