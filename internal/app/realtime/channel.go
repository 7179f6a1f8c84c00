package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// EventKind distinguishes deliveries on a channel.
type EventKind int

const (
	// EventInsert carries one inserted row.
	EventInsert EventKind = iota

	// EventDropped reports that the channel is no longer receiving events.
	EventDropped
)

// Event is one delivery on a channel.
type Event struct {
	Kind            EventKind
	Schema          string
	Table           string
	Record          json.RawMessage
	CommitTimestamp string

	// Err is set for EventDropped.
	Err error
}

// Filter selects the row changes a channel receives.
type Filter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// InsertsInto builds a filter for inserts into table, optionally restricted by
// an equality predicate such as team_id=eq.<id>.
func InsertsInto(table, column, value string) Filter {
	f := Filter{Event: "INSERT", Schema: "public", Table: table}
	if column != "" {
		f.Filter = column + "=eq." + value
	}
	return f
}

// Channel is the handle of one joined channel. Events are handled sequentially on
// the channel's goroutine; no handler call starts after Close returns. A call that
// is already running when Close is invoked may still complete.
type Channel struct {
	t       *Transport
	name    string
	topic   string
	joinRef string
	handler func(Event)

	// a buffered queue between the transport read pump and the handler.
	events chan Event

	closed atomic.Bool
	done   chan struct{}
	once   sync.Once

	logger zerolog.Logger
}

func newChannel(t *Transport, name, topic, joinRef string, handler func(Event)) *Channel {
	return &Channel{
		t:       t,
		name:    name,
		topic:   topic,
		joinRef: joinRef,
		handler: handler,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		logger:  t.logger.With().Str("channel", name).Logger(),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// deliver queues an event without blocking the read pump.
func (c *Channel) deliver(evt Event) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.events <- evt:
	case <-c.done:
	default:
		c.logger.Warn().Int("queue_len", len(c.events)).Msg("Channel queue full, dropping event")
	}
}

func (c *Channel) run() {
	for {
		select {
		case evt := <-c.events:
			if c.closed.Load() {
				return
			}
			c.handler(evt)

			if evt.Kind == EventDropped {
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}

// Close leaves the channel. It is safe to call more than once and from the handler.
func (c *Channel) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.t.leave(c)
		c.logger.Info().Msg("Channel closed")
	})
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	return c.closed.Load()
}
