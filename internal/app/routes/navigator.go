package routes

import (
	"net/url"
	"sync"
)

// Navigator owns the current location.
type Navigator interface {
	// Location returns a copy of the current location.
	Location() *url.URL

	// Navigate moves to target.
	Navigate(target Target)
}

// Entry is one step in a History.
type Entry struct {
	URL  *url.URL
	From string
}

// History is an in-memory Navigator. Listeners run synchronously after each
// navigation, in registration order.
type History struct {
	mu        sync.Mutex
	entries   []Entry
	listeners []func(Entry)
}

// NewHistory starts a history at the given location.
func NewHistory(start string) *History {
	u, err := url.Parse(start)
	if err != nil || u.Path == "" {
		u = &url.URL{Path: Home}
	}
	return &History{entries: []Entry{{URL: u}}}
}

// Location implements Navigator.
func (h *History) Location() *url.URL {
	h.mu.Lock()
	defer h.mu.Unlock()

	cp := *h.entries[len(h.entries)-1].URL
	return &cp
}

// From returns the navigation state of the current entry.
func (h *History) From() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.entries[len(h.entries)-1].From
}

// Navigate implements Navigator.
func (h *History) Navigate(target Target) {
	u := &url.URL{Path: Clean(target.Path)}
	if len(target.Query) > 0 {
		u.RawQuery = target.Query.Encode()
	}
	entry := Entry{URL: u, From: target.From}

	h.mu.Lock()
	h.entries = append(h.entries, entry)
	listeners := append(([]func(Entry))(nil), h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
}

// Len returns the number of entries, including the start location.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.entries)
}

// Paths returns every visited location as path?query.
func (h *History) Paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, PathWithQuery(e.URL))
	}
	return out
}

// OnNavigate registers a listener called after every navigation.
func (h *History) OnNavigate(fn func(Entry)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.listeners = append(h.listeners, fn)
}
