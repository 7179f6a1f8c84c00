package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cfoclient/internal/pkg/errs"
	"cfoclient/internal/pkg/logx"
)

const (
	// timeout duration for writing to the websocket connection.
	writeWait = 10 * time.Second

	// maximum time without any inbound frame before the connection is considered dead.
	readWait = 60 * time.Second

	// frequency of protocol heartbeats.
	heartbeatPeriod = 25 * time.Second

	// maximum allowed size (in bytes) of an inbound frame.
	maxMessageSize = 1 << 20

	// default time allowed for a join to be acknowledged.
	joinTimeout = 10 * time.Second

	// tokenCheckTimeout bounds the access token lookup done on each heartbeat.
	tokenCheckTimeout = 5 * time.Second
)

// Protocol events.
const (
	eventJoin            = "phx_join"
	eventLeave           = "phx_leave"
	eventReply           = "phx_reply"
	eventError           = "phx_error"
	eventClose           = "phx_close"
	eventHeartbeat       = "heartbeat"
	eventAccessToken     = "access_token"
	eventPostgresChanges = "postgres_changes"
	eventSystem          = "system"

	phoenixTopic = "phoenix"
)

// TokenSource supplies the access token used to authorize channel joins.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// envelope is one protocol frame.
type envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// SocketURL builds the websocket endpoint for the project at baseURL.
func SocketURL(baseURL, anonKey string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid realtime URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported realtime URL scheme %q", u.Scheme)
	}

	u.Path += "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", anonKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Transport multiplexes named channels over one websocket connection. The
// connection is dialed on the first Subscribe and re-dialed on the next Subscribe
// after it drops; it never reconnects on its own.
type Transport struct {
	url     string
	anonKey string
	tokens  TokenSource
	dialer  *websocket.Dialer

	ref atomic.Uint64

	// mu protects the fields below.
	mu       sync.Mutex
	sock     *socket
	channels map[string]*Channel
	pending  map[string]chan reply
	closed   bool

	logger zerolog.Logger
}

// NewTransport creates a transport for the websocket endpoint at socketURL.
// tokens may be nil, in which case joins are authorized with the anonymous key.
func NewTransport(socketURL, anonKey string, tokens TokenSource) *Transport {
	return &Transport{
		url:      socketURL,
		anonKey:  anonKey,
		tokens:   tokens,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		channels: make(map[string]*Channel),
		pending:  make(map[string]chan reply),
		logger:   logx.Component("realtime"),
	}
}

func (t *Transport) nextRef() string {
	return strconv.FormatUint(t.ref.Add(1), 10)
}

func (t *Transport) accessToken(ctx context.Context) string {
	if t.tokens == nil {
		return t.anonKey
	}
	return t.tokens.AccessToken(ctx)
}

// Subscribe joins channel name with the given filter and returns its handle once
// the server has acknowledged the join. handler runs on the channel's own goroutine.
func (t *Transport) Subscribe(ctx context.Context, name string, filter Filter, handler func(Event)) (*Channel, error) {
	topic := "realtime:" + name

	s, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}

	joinRef := t.nextRef()
	ch := newChannel(t, name, topic, joinRef, handler)
	replies := make(chan reply, 1)

	t.mu.Lock()
	if _, exists := t.channels[topic]; exists {
		t.mu.Unlock()
		return nil, errs.NewError(errs.ErrSubscription).WithMessage("Channel " + name + " is already open.")
	}
	t.channels[topic] = ch
	t.pending[joinRef] = replies
	t.mu.Unlock()

	payload := map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": []Filter{filter},
		},
		"access_token": t.accessToken(ctx),
	}

	if err := s.push(topic, eventJoin, payload, joinRef, joinRef); err != nil {
		t.forget(topic, joinRef)
		return nil, errs.NewError(errs.ErrSubscription)
	}

	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()

	select {
	case r, ok := <-replies:
		if !ok || r.Status != "ok" {
			t.forget(topic, joinRef)
			t.logger.Warn().Str("channel", name).Str("status", r.Status).RawJSON("response", nonEmpty(r.Response)).Msg("Channel join rejected")
			return nil, errs.NewError(errs.ErrSubscription)
		}
	case <-timer.C:
		t.forget(topic, joinRef)
		return nil, errs.NewError(errs.ErrSubscription)
	case <-ctx.Done():
		t.forget(topic, joinRef)
		return nil, errs.FromTransport(ctx.Err())
	}

	t.mu.Lock()
	delete(t.pending, joinRef)
	t.mu.Unlock()

	go ch.run()

	t.logger.Info().Str("channel", name).Msg("Channel joined")
	return ch, nil
}

func nonEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

// forget drops a channel whose join did not complete.
func (t *Transport) forget(topic, joinRef string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.channels, topic)
	delete(t.pending, joinRef)
}

// leave removes a channel and tells the server. Called once per channel by Channel.Close.
func (t *Transport) leave(ch *Channel) {
	t.mu.Lock()
	if cur, ok := t.channels[ch.topic]; ok && cur == ch {
		delete(t.channels, ch.topic)
	}
	s := t.sock
	t.mu.Unlock()

	if s == nil {
		return
	}
	if err := s.push(ch.topic, eventLeave, map[string]any{}, t.nextRef(), ch.joinRef); err != nil {
		t.logger.Debug().Err(err).Str("channel", ch.name).Msg("Leave not sent")
	}
}

// connect returns the live socket, dialing one if needed.
func (t *Transport) connect(ctx context.Context) (*socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errs.NewError(errs.ErrSubscription).WithMessage("Realtime transport is closed.")
	}
	if t.sock != nil {
		return t.sock, nil
	}

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Realtime dial failed")
		return nil, errs.NewError(errs.ErrSubscription)
	}

	s := newSocket(t, conn)
	t.sock = s

	go s.readPump()
	go s.writePump()

	t.logger.Info().Msg("Realtime connection established")
	return s, nil
}

// dispatch routes one inbound frame.
func (t *Transport) dispatch(env envelope) {
	if env.Event == eventReply && env.Ref != nil {
		t.mu.Lock()
		replies, ok := t.pending[*env.Ref]
		t.mu.Unlock()

		if ok {
			var r reply
			_ = json.Unmarshal(env.Payload, &r)
			select {
			case replies <- r:
			default:
			}
		}
		return
	}

	if env.Topic == phoenixTopic {
		return
	}

	t.mu.Lock()
	ch, ok := t.channels[env.Topic]
	t.mu.Unlock()
	if !ok {
		return
	}

	switch env.Event {
	case eventPostgresChanges:
		var p struct {
			Data struct {
				Type            string          `json:"type"`
				Schema          string          `json:"schema"`
				Table           string          `json:"table"`
				Record          json.RawMessage `json:"record"`
				CommitTimestamp string          `json:"commit_timestamp"`
			} `json:"data"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.logger.Warn().Err(err).Str("channel", ch.name).Msg("Unreadable change payload")
			return
		}
		if p.Data.Type != "INSERT" {
			return
		}
		ch.deliver(Event{
			Kind:            EventInsert,
			Schema:          p.Data.Schema,
			Table:           p.Data.Table,
			Record:          p.Data.Record,
			CommitTimestamp: p.Data.CommitTimestamp,
		})

	case eventSystem:
		var p struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(env.Payload, &p)
		if p.Status == "error" {
			ch.deliver(Event{Kind: EventDropped, Err: errs.NewError(errs.ErrSubscription).WithMessage(p.Message)})
		}

	case eventError, eventClose:
		ch.deliver(Event{Kind: EventDropped, Err: errs.NewError(errs.ErrSubscription)})
	}
}

// dropped detaches a dead socket and notifies every channel that was riding on it.
func (t *Transport) dropped(s *socket) {
	t.mu.Lock()
	if t.sock != s {
		t.mu.Unlock()
		return
	}
	t.sock = nil

	channels := make([]*Channel, 0, len(t.channels))
	for _, ch := range t.channels {
		channels = append(channels, ch)
	}
	t.channels = make(map[string]*Channel)

	for ref, replies := range t.pending {
		close(replies)
		delete(t.pending, ref)
	}
	t.mu.Unlock()

	for _, ch := range channels {
		ch.deliver(Event{Kind: EventDropped, Err: errs.NewError(errs.ErrSubscription)})
	}
}

// refreshToken pushes a changed access token to every joined channel.
func (t *Transport) refreshToken(s *socket) {
	ctx, cancel := context.WithTimeout(context.Background(), tokenCheckTimeout)
	defer cancel()

	token := t.accessToken(ctx)
	if token == "" || token == s.lastToken {
		return
	}

	first := s.lastToken == ""
	s.lastToken = token
	if first {
		return
	}

	t.mu.Lock()
	channels := make([]*Channel, 0, len(t.channels))
	for _, ch := range t.channels {
		channels = append(channels, ch)
	}
	t.mu.Unlock()

	for _, ch := range channels {
		if err := s.push(ch.topic, eventAccessToken, map[string]string{"access_token": token}, t.nextRef(), ch.joinRef); err != nil {
			t.logger.Warn().Err(err).Str("channel", ch.name).Msg("Failed to push refreshed token")
		}
	}
	t.logger.Info().Int("channels", len(channels)).Msg("Pushed refreshed access token")
}

// Close leaves every channel and closes the connection. It is idempotent.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true

	channels := make([]*Channel, 0, len(t.channels))
	for _, ch := range t.channels {
		channels = append(channels, ch)
	}
	t.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}

	t.mu.Lock()
	s := t.sock
	t.sock = nil
	t.mu.Unlock()

	if s != nil {
		s.close()
	}

	t.logger.Info().Msg("Realtime transport closed")
}

// socket is one websocket connection with its read and write pumps.
type socket struct {
	t    *Transport
	conn *websocket.Conn

	// a buffered channel of frames waiting to be written.
	send chan []byte
	done chan struct{}
	once sync.Once

	// lastToken is only touched by the write pump.
	lastToken string

	logger zerolog.Logger
}

func newSocket(t *Transport, conn *websocket.Conn) *socket {
	return &socket{
		t:      t,
		conn:   conn,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		logger: t.logger,
	}
}

// push queues a frame for the write pump.
func (s *socket) push(topic, event string, payload any, ref, joinRef string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	frame, err := json.Marshal(envelope{
		Topic:   topic,
		Event:   event,
		Payload: data,
		Ref:     &ref,
		JoinRef: &joinRef,
	})
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return fmt.Errorf("realtime connection closed")
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return fmt.Errorf("realtime connection closed")
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Send queue full, dropping frame")
		return fmt.Errorf("realtime send queue full")
	}
}

func (s *socket) close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// readPump reads frames until the connection fails, then detaches the socket.
func (s *socket) readPump() {
	defer func() {
		s.close()
		s.t.dropped(s)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error")
		}
	}()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warn().Err(err).Msg("Realtime connection lost")
				}
			}
			return
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn().Err(err).Msg("Server sent invalid JSON")
			continue
		}

		s.t.dispatch(env)
	}
}

// writePump writes queued frames and heartbeats until the socket is closed.
func (s *socket) writePump() {
	ticker := time.NewTicker(heartbeatPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error in writePump")
		}
	}()

	for {
		select {
		case frame := <-s.send:
			if !s.write(websocket.TextMessage, frame) {
				return
			}

		case <-ticker.C:
			ref := s.t.nextRef()
			hb, _ := json.Marshal(envelope{Topic: phoenixTopic, Event: eventHeartbeat, Payload: json.RawMessage(`{}`), Ref: &ref})
			if !s.write(websocket.TextMessage, hb) {
				return
			}

			s.t.refreshToken(s)

		case <-s.done:
			s.drain()
			s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before close, such as phx_leave.
func (s *socket) drain() {
	for {
		select {
		case frame := <-s.send:
			if !s.write(websocket.TextMessage, frame) {
				return
			}
		default:
			return
		}
	}
}

// write returns false if the write pump should terminate.
func (s *socket) write(messageType int, data []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := s.conn.WriteMessage(messageType, data); err != nil {
		s.logger.Debug().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}
