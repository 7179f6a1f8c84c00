/*
Package chat implements the chat room view model: history loading, the realtime
insert subscription, de-duplication and teardown, plus the send path.

This file defines the Message model and decoding of the row shapes delivered by the
backend history endpoints and by realtime insert events.
*/
package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Kind is the message kind.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// AdminDisplayName replaces the author name of staff messages.
const AdminDisplayName = "Admin Support"

// Attachment describes a file carried by a file message.
type Attachment struct {
	URL  string `json:"file_url"`
	Name string `json:"file_name"`
	Size int64  `json:"file_size"`
}

// Message is one chat entry. Messages are created by the backend and never mutated.
type Message struct {
	ID       string
	RoomID   string
	UserID   string
	UserName string
	IsAdmin  bool
	Content  string
	Kind     Kind
	File     *Attachment

	// Timestamp is the server-assigned creation time.
	Timestamp time.Time
}

// DisplayName is the author label. The recorded name is authoritative for the
// message even if the author has since been renamed.
func (m Message) DisplayName() string {
	if m.IsAdmin {
		return AdminDisplayName
	}
	if m.UserName == "" {
		return "Unknown"
	}
	return m.UserName
}

// flexID accepts numeric and string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// row is the union of the team and global message row shapes.
type row struct {
	ID          flexID  `json:"id"`
	TeamID      flexID  `json:"team_id"`
	UserID      flexID  `json:"user_id"`
	UserName    string  `json:"user_name"`
	MessageType string  `json:"message_type"`
	Content     string  `json:"content"`
	FileURL     *string `json:"file_url"`
	FileName    *string `json:"file_name"`
	FileSize    *int64  `json:"file_size"`
	Timestamp   string  `json:"timestamp"`
	CreatedAt   string  `json:"created_at"`
	IsAdmin     bool    `json:"is_admin"`
}

var errMissingID = errors.New("message has no id")

// timestamp layouts seen from the backend, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

// decodeMessage turns a row into a Message. roomID is used when the row does not
// carry its own room.
func decodeMessage(raw json.RawMessage, roomID string) (Message, error) {
	var r row
	if err := json.Unmarshal(raw, &r); err != nil {
		return Message{}, err
	}
	if r.ID == "" {
		return Message{}, errMissingID
	}

	ts := r.Timestamp
	if ts == "" {
		ts = r.CreatedAt
	}

	m := Message{
		ID:        string(r.ID),
		RoomID:    roomID,
		UserID:    string(r.UserID),
		UserName:  r.UserName,
		IsAdmin:   r.IsAdmin,
		Content:   r.Content,
		Kind:      KindText,
		Timestamp: parseTimestamp(ts),
	}
	if r.TeamID != "" {
		m.RoomID = string(r.TeamID)
	}

	if r.MessageType == string(KindFile) || (r.FileURL != nil && *r.FileURL != "") {
		m.Kind = KindFile
		a := &Attachment{}
		if r.FileURL != nil {
			a.URL = *r.FileURL
		}
		if r.FileName != nil {
			a.Name = *r.FileName
		}
		if r.FileSize != nil {
			a.Size = *r.FileSize
		}
		m.File = a
	}

	return m, nil
}
