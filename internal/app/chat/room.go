/*
Package chat implements the chat room view model.

This file defines Room, which owns the displayed message sequence and the single
channel handle of the selected room. Every selection bumps a generation token;
results and events carrying an older token are dropped without mutation.
*/
package chat

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cfoclient/internal/app/realtime"
	"cfoclient/internal/app/storage"
	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/limiter"
	"cfoclient/internal/pkg/logx"
	"cfoclient/internal/pkg/randx"
)

const (
	historyTimeout   = 10 * time.Second
	sendTimeout      = 10 * time.Second
	subscribeTimeout = 15 * time.Second
	uploadTimeout    = 60 * time.Second
)

// ResubscribeInterval spaces out re-establishments per room after ResubscribeBurst.
const (
	ResubscribeInterval = 10 * time.Second
	ResubscribeBurst    = 2
)

// State is the room lifecycle state.
type State int

const (
	Idle State = iota
	Loading
	Subscribing
	Live
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Subscribing:
		return "subscribing"
	case Live:
		return "live"
	case Failed:
		return "error"
	}
	return "unknown"
}

// Handle is an open channel subscription.
type Handle interface {
	Close()
}

// Subscriber opens filtered insert streams.
type Subscriber interface {
	Subscribe(ctx context.Context, name string, filter realtime.Filter, handler func(realtime.Event)) (Handle, error)
}

type transportSubscriber struct {
	t *realtime.Transport
}

func (s transportSubscriber) Subscribe(ctx context.Context, name string, filter realtime.Filter, handler func(realtime.Event)) (Handle, error) {
	ch, err := s.t.Subscribe(ctx, name, filter, handler)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// FromTransport adapts a realtime transport to Subscriber.
func FromTransport(t *realtime.Transport) Subscriber {
	return transportSubscriber{t: t}
}

// SourceFunc resolves the backend surface of a room.
type SourceFunc func(RoomRef) (Source, error)

// Snapshot is an immutable view of the room.
type Snapshot struct {
	Room     RoomRef
	State    State
	Messages []Message

	// Err is set in the Failed state and after a failed subscription.
	Err *errs.CustomError

	// Connecting is true while the subscription is not established; the view shows
	// a "connecting" affordance instead of an error.
	Connecting bool

	// ScrollToBottom is set on the notification of a live insert that arrived
	// while the view was near the bottom.
	ScrollToBottom bool
}

// Room is the chat room view model. Select and Close must not be called from observers.
type Room struct {
	sources  SourceFunc
	sub      Subscriber
	uploader storage.StorageService
	throttle *limiter.KeyedLimiter

	// selectMu serializes Select and Close so at most one handle is ever open.
	selectMu sync.Mutex

	// mu protects the fields below.
	mu         sync.Mutex
	gen        uint64
	cancel     context.CancelFunc
	ref        RoomRef
	source     Source
	handle     Handle
	state      State
	messages   []Message
	ids        map[string]struct{}
	err        *errs.CustomError
	connecting bool
	nearBottom bool

	// notifyMu serializes mutate+notify so observers see changes in order.
	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers []observer
	nextObsID int

	logger zerolog.Logger
}

type observer struct {
	id int
	fn func(Snapshot)
}

// Option customizes a Room.
type Option func(*Room)

// WithUploader enables SendFile.
func WithUploader(u storage.StorageService) Option {
	return func(r *Room) {
		r.uploader = u
	}
}

// WithThrottle replaces the default re-subscription limiter.
func WithThrottle(l *limiter.KeyedLimiter) Option {
	return func(r *Room) {
		r.throttle = l
	}
}

// NewRoom creates an idle room.
func NewRoom(sources SourceFunc, sub Subscriber, opts ...Option) *Room {
	r := &Room{
		sources:    sources,
		sub:        sub,
		throttle:   limiter.NewKeyedLimiter(ResubscribeInterval, ResubscribeBurst),
		ids:        make(map[string]struct{}),
		nearBottom: true,
		logger:     logx.Component("chat-room"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Subscribe registers an observer of every room change.
func (r *Room) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	r.obsMu.Lock()
	id := r.nextObsID
	r.nextObsID++
	r.observers = append(r.observers, observer{id: id, fn: fn})
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()

		for i, o := range r.observers {
			if o.id == id {
				r.observers = append(r.observers[:i:i], r.observers[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the current view.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	return Snapshot{
		Room:       r.ref,
		State:      r.state,
		Messages:   append([]Message(nil), r.messages...),
		Err:        r.err,
		Connecting: r.connecting,
	}
}

// mutate applies fn under the state lock and notifies observers if it reports a change.
func (r *Room) mutate(fn func() (changed, scroll bool)) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	changed, scroll := fn()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if !changed {
		return
	}
	snap.ScrollToBottom = scroll

	r.obsMu.Lock()
	observers := append([]observer(nil), r.observers...)
	r.obsMu.Unlock()

	for _, o := range observers {
		o.fn(snap)
	}
}

// SetNearBottom records whether the view is scrolled to (or near) the end.
func (r *Room) SetNearBottom(near bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nearBottom = near
}

// begin starts a new generation: it cancels in-flight work and detaches the open
// handle, which the caller must close before opening another.
func (r *Room) begin(ctx context.Context, ref RoomRef, state State) (uint64, context.Context, Handle) {
	var (
		gen    uint64
		old    Handle
		opCtx  context.Context
		cancel context.CancelFunc
	)

	opCtx, cancel = context.WithCancel(ctx)

	r.mutate(func() (bool, bool) {
		if r.cancel != nil {
			r.cancel()
		}
		r.gen++
		gen = r.gen
		r.cancel = cancel

		old = r.handle
		r.handle = nil
		r.ref = ref
		r.source = nil
		r.state = state
		r.messages = nil
		r.ids = make(map[string]struct{})
		r.err = nil
		r.connecting = false
		return true, false
	})

	return gen, opCtx, old
}

// Select switches the room to ref: the previous subscription is closed, history is
// loaded, then the insert stream is opened. It returns once the room is Live or Failed.
// Selecting the room whose subscription is down counts as a re-establishment.
func (r *Room) Select(ctx context.Context, ref RoomRef) {
	r.load(ctx, ref, false)
}

// Retry re-resolves the current room. It is the only way a failed subscription is
// re-established besides selecting the same room again.
func (r *Room) Retry(ctx context.Context) {
	r.mu.Lock()
	ref, state := r.ref, r.state
	r.mu.Unlock()

	if state == Idle {
		return
	}
	r.load(ctx, ref, true)
}

// load runs one selection. Re-establishments of a room are throttled per channel;
// a switch to another room always subscribes.
func (r *Room) load(ctx context.Context, ref RoomRef, retry bool) {
	r.interrupt()

	r.selectMu.Lock()
	defer r.selectMu.Unlock()

	r.mu.Lock()
	reestablish := retry || (r.ref == ref && r.state == Failed && r.connecting)
	r.mu.Unlock()

	gen, opCtx, old := r.begin(ctx, ref, Loading)
	if old != nil {
		old.Close()
	}

	r.logger.Info().Str("room", ref.Key()).Msg("Room selected")

	source, err := r.sources(ref)
	if err != nil {
		r.fail(gen, errs.As(err), false)
		return
	}

	r.mutate(func() (bool, bool) {
		if gen != r.gen {
			return false, false
		}
		r.source = source
		return false, false
	})

	historyCtx, cancel := context.WithTimeout(opCtx, historyTimeout)
	history, err := source.History(historyCtx, HistoryLimit)
	cancel()
	if err != nil {
		r.logger.Warn().Err(err).Str("room", ref.Key()).Msg("History load failed")
		r.fail(gen, errs.As(err), false)
		return
	}

	stale := true
	r.mutate(func() (bool, bool) {
		if gen != r.gen {
			return false, false
		}
		stale = false
		r.loadHistoryLocked(history)
		r.state = Subscribing
		r.connecting = true
		return true, false
	})
	if stale {
		return
	}

	r.subscribe(opCtx, gen, ref, source, reestablish)
}

func (r *Room) subscribe(ctx context.Context, gen uint64, ref RoomRef, source Source, reestablish bool) {
	if reestablish && !r.throttle.Allow(source.ChannelName()) {
		r.logger.Warn().Str("channel", source.ChannelName()).Msg("Subscription attempt throttled")
		r.fail(gen, errs.NewError(errs.ErrSubscription), true)
		return
	}

	subCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()

	handle, err := r.sub.Subscribe(subCtx, source.ChannelName(), source.Filter(), func(evt realtime.Event) {
		r.onEvent(gen, source, evt)
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("channel", source.ChannelName()).Msg("Subscription failed")
		r.fail(gen, errs.NewError(errs.ErrSubscription), true)
		return
	}

	current := false
	r.mutate(func() (bool, bool) {
		if gen != r.gen {
			return false, false
		}
		current = true
		r.handle = handle
		r.state = Live
		r.connecting = false
		return true, false
	})

	if !current {
		handle.Close()
		return
	}

	r.logger.Info().Str("room", ref.Key()).Str("channel", source.ChannelName()).Msg("Room live")
}

// fail moves the current generation to Failed.
func (r *Room) fail(gen uint64, customErr *errs.CustomError, connecting bool) {
	r.mutate(func() (bool, bool) {
		if gen != r.gen {
			return false, false
		}
		r.state = Failed
		r.err = customErr
		r.connecting = connecting
		return true, false
	})
}

func (r *Room) onEvent(gen uint64, source Source, evt realtime.Event) {
	switch evt.Kind {
	case realtime.EventInsert:
		m, err := source.Decode(evt.Record)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Dropping unreadable insert")
			return
		}
		r.mutate(func() (bool, bool) {
			if gen != r.gen {
				return false, false
			}
			if !r.insertLocked(m) {
				return false, false
			}
			return true, r.nearBottom
		})

	case realtime.EventDropped:
		r.mutate(func() (bool, bool) {
			if gen != r.gen {
				return false, false
			}
			r.handle = nil
			r.state = Failed
			r.err = errs.NewError(errs.ErrSubscription)
			r.connecting = true
			return true, false
		})
		r.logger.Warn().Str("channel", source.ChannelName()).Msg("Subscription dropped")
	}
}

// loadHistoryLocked replaces the sequence with the newest HistoryLimit entries in
// ascending timestamp order.
func (r *Room) loadHistoryLocked(history []Message) {
	sorted := append([]Message(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for _, m := range sorted {
		r.insertLocked(m)
	}

	if excess := len(r.messages) - HistoryLimit; excess > 0 {
		for _, m := range r.messages[:excess] {
			delete(r.ids, m.ID)
		}
		r.messages = append([]Message(nil), r.messages[excess:]...)
	}
}

// insertLocked adds m unless its identifier is already displayed, keeping the
// sequence ordered by timestamp. It reports whether m was added.
func (r *Room) insertLocked(m Message) bool {
	if _, dup := r.ids[m.ID]; dup {
		return false
	}
	r.ids[m.ID] = struct{}{}

	idx := sort.Search(len(r.messages), func(i int) bool {
		return r.messages[i].Timestamp.After(m.Timestamp)
	})
	r.messages = append(r.messages, Message{})
	copy(r.messages[idx+1:], r.messages[idx:])
	r.messages[idx] = m
	return true
}

// interrupt cancels in-flight history or subscription work so a pending Select
// releases selectMu promptly.
func (r *Room) interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
}

// Close tears the room down: the handle is closed exactly once and later events
// are ignored.
func (r *Room) Close() {
	r.interrupt()

	r.selectMu.Lock()
	defer r.selectMu.Unlock()

	_, _, old := r.begin(context.Background(), RoomRef{}, Idle)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func (r *Room) currentSource() (Source, RoomRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.source, r.ref
}

// Send posts a text message. Nothing is inserted locally; the authoritative copy
// arrives over the subscription. On failure the caller keeps the input.
func (r *Room) Send(ctx context.Context, content string) *errs.CustomError {
	source, _ := r.currentSource()
	if source == nil {
		return errs.NewError(errs.ErrValidation).WithMessage("Select a room first.")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return errs.NewError(errs.ErrValidation).WithMessage("Message cannot be empty.")
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := source.Send(ctx, Outgoing{Content: content}); err != nil {
		r.logger.Warn().Err(err).Msg("Send failed")
		return errs.As(err)
	}
	return nil
}

// SendFile uploads body as an attachment and posts a file message for it. The
// upload is removed again if the message cannot be posted.
func (r *Room) SendFile(ctx context.Context, fileName string, size int64, body io.Reader) *errs.CustomError {
	source, ref := r.currentSource()
	if source == nil {
		return errs.NewError(errs.ErrValidation).WithMessage("Select a room first.")
	}
	if r.uploader == nil || !source.SupportsFiles() {
		return errs.NewError(errs.ErrValidation).WithMessage("Files cannot be sent to this room.")
	}

	if customErr := ValidateFileSize(size); customErr != nil {
		return customErr
	}
	mimeType, customErr := ValidateFileType(fileName)
	if customErr != nil {
		return customErr
	}

	key := ref.Key() + "/" + randx.ObjectName(filepath.Ext(fileName))

	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	uploaded, err := r.uploader.Upload(uploadCtx, storage.Object{
		Key:         key,
		ContentType: mimeType,
		Size:        size,
		Body:        io.LimitReader(body, size),
	})
	cancel()
	if err != nil {
		return errs.NewError(errs.ErrInternal).WithMessage("Failed to upload file. Please try again.")
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	name := filepath.Base(fileName)
	out := Outgoing{
		Content: name,
		File:    &Attachment{URL: uploaded.URL, Name: name, Size: size},
	}
	if err := source.Send(sendCtx, out); err != nil {
		if delErr := r.uploader.Delete(context.Background(), uploaded.Key); delErr != nil {
			r.logger.Warn().Err(delErr).Str("key", uploaded.Key).Msg("Failed to remove orphaned upload")
		}
		return errs.As(err)
	}
	return nil
}
