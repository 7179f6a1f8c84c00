/*
Package ui renders client state for the terminal front end.

Rendering is pure: every function maps a value to a styled string, so the command
layer decides when to print.
*/
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cfoclient/internal/app/chat"
	"cfoclient/internal/app/guard"
	"cfoclient/internal/app/session"
	"cfoclient/internal/pkg/errs"
)

var (
	// Colors
	brandPrimary = lipgloss.Color("#2563EB") // Blue
	brandStaff   = lipgloss.Color("#D97706") // Amber
	brandSuccess = lipgloss.Color("#10B981") // Emerald
	brandError   = lipgloss.Color("#EF4444") // Red
	textMuted    = lipgloss.Color("#6B7280") // Gray

	// Styles
	timeStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	authorStyle = lipgloss.NewStyle().
			Foreground(brandPrimary).
			Bold(true)

	selfStyle = lipgloss.NewStyle().
			Foreground(brandSuccess).
			Bold(true)

	staffStyle = lipgloss.NewStyle().
			Foreground(brandStaff).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(brandPrimary).
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(brandError).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(brandSuccess)

	dimStyle = lipgloss.NewStyle().
			Foreground(textMuted).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brandPrimary).
			Padding(0, 1)
)

// Message renders one chat line. selfID marks the reader's own messages.
func Message(m chat.Message, selfID string) string {
	author := authorStyle
	switch {
	case m.IsAdmin:
		author = staffStyle
	case selfID != "" && m.UserID == selfID:
		author = selfStyle
	}

	var b strings.Builder
	b.WriteString(timeStyle.Render(m.Timestamp.Local().Format("15:04")))
	b.WriteString(" ")
	b.WriteString(author.Render(m.DisplayName()))
	b.WriteString(" ")

	if m.Kind == chat.KindFile && m.File != nil {
		b.WriteString(fileStyle.Render(fmt.Sprintf("[%s, %s]", m.File.Name, FileSize(m.File.Size))))
		b.WriteString(" ")
		b.WriteString(dimStyle.Render(m.File.URL))
		return b.String()
	}

	b.WriteString(m.Content)
	return b.String()
}

// FileSize formats a byte count with one decimal in binary units.
func FileSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}

// RoomHeader renders the title box of a room.
func RoomHeader(ref chat.RoomRef) string {
	title := "Global chat"
	if !ref.IsGlobal() {
		title = "Team chat " + ref.TeamID
	}
	return headerStyle.Render(title)
}

// RoomStatus renders the non-message part of a room snapshot. It is empty while live.
func RoomStatus(s chat.Snapshot) string {
	switch s.State {
	case chat.Loading:
		return dimStyle.Render("Loading messages...")
	case chat.Subscribing:
		return dimStyle.Render("Connecting to chat...")
	case chat.Failed:
		if s.Connecting {
			return dimStyle.Render("Connecting to chat... (type /retry to reconnect)")
		}
		return Error(s.Err)
	}
	return ""
}

// Error renders a user-visible error line.
func Error(customErr *errs.CustomError) string {
	if customErr == nil {
		return ""
	}
	return errorStyle.Render(customErr.Message)
}

// Success renders a confirmation line.
func Success(msg string) string {
	return successStyle.Render(msg)
}

// Decision renders a guard decision.
func Decision(d guard.Decision) string {
	switch d.Outcome {
	case guard.Loading:
		return dimStyle.Render("Loading...")
	case guard.Redirect:
		line := "Redirect to " + d.Target.String()
		if d.Target.From != "" {
			line += " (from " + d.Target.From + ")"
		}
		return line
	}
	return successStyle.Render("Render")
}

// Session renders the signed-in user, or the signed-out state.
func Session(st session.State) string {
	if !st.Initialized {
		return dimStyle.Render("Checking session...")
	}
	if st.User == nil {
		return dimStyle.Render("Not signed in.")
	}

	u := st.User
	line := fmt.Sprintf("%s <%s> %s", authorStyle.Render(u.FullName), u.Email, string(u.Role))
	if !u.ProfileCompleted {
		line += " " + errorStyle.Render("(profile incomplete)")
	}
	return line
}
