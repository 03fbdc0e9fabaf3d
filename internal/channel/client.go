package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"overlaycast/internal/clock"
	"overlaycast/internal/logging"
	"overlaycast/internal/metrics"
	"overlaycast/internal/protocol"
)

const (
	writeWait    = 5 * time.Second
	maxFrameSize = 1 << 20

	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultAckBuffer        = 4096
	DefaultDispatchBuffer   = 128
)

var (
	ErrClosed         = errors.New("channel client closed")
	ErrNotStarted     = errors.New("channel client not started")
	ErrNotConnected   = errors.New("director not connected")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNoHandler      = errors.New("no handler registered")
)

// State is the connection state reported by Status.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
)

// Source tells where a dispatched envelope came from.
type Source string

const (
	SourceDirector Source = "director"
	SourceLocal    Source = "local"
)

// Handler processes one envelope. A nil error acknowledges success.
type Handler func(ctx context.Context, env protocol.Envelope) error

// AckEvent describes the outcome of one handled envelope that carried an id.
type AckEvent struct {
	Channel  string
	EventID  string
	Type     string
	Success  bool
	Source   Source
	Err      error
	Duration time.Duration
	At       time.Time
}

// Options configures a Client.
type Options struct {
	URL              string
	Token            string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	AckBuffer        int
	DispatchBuffer   int
	Dialer           *websocket.Dialer
	Clock            clock.Clock
	Metrics          *metrics.Metrics
	// OnAck observes every handled envelope with an id, local or remote.
	OnAck func(AckEvent)
}

// Status is a point-in-time view of the connection.
type Status struct {
	State       State     `json:"state"`
	URL         string    `json:"url"`
	Channels    []string  `json:"channels"`
	Reconnects  int       `json:"reconnects"`
	PendingAcks int       `json:"pending_acks"`
	DroppedAcks int       `json:"dropped_acks,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
}

type inbound struct {
	channel *Channel
	env     protocol.Envelope
	source  Source
	done    chan error
	// reject, when set, fails the frame without calling a handler.
	reject error
}

// Client is the director connection.
type Client struct {
	opts    Options
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
	dialer  *websocket.Dialer

	mu             sync.Mutex
	channels       map[string]*Channel
	order          []string
	conn           *websocket.Conn
	state          State
	reconnects     int
	lastErr        error
	connectedAt    time.Time
	pendingAcks    []protocol.Ack
	droppedAcks    int
	reconnectTimer clock.Timer
	started        bool
	closed         bool

	dial     chan struct{}
	dispatch chan inbound
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
}

// New builds a client. Nothing is dialed until Start.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.AckBuffer <= 0 {
		opts.AckBuffer = DefaultAckBuffer
	}
	if opts.DispatchBuffer <= 0 {
		opts.DispatchBuffer = DefaultDispatchBuffer
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}
	return &Client{
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "channel"),
		clock:    clock.OrReal(opts.Clock),
		metrics:  opts.Metrics,
		dialer:   dialer,
		channels: make(map[string]*Channel),
		state:    StateIdle,
		dial:     make(chan struct{}, 1),
		dispatch: make(chan inbound, opts.DispatchBuffer),
	}
}

// Connect registers a logical channel and returns its handle. Registering a
// name twice returns the existing handle. A channel registered while the
// socket is open is subscribed immediately.
func (c *Client) Connect(name string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := &Channel{client: c, name: name}
	c.channels[name] = ch
	c.order = append(c.order, name)
	if c.conn != nil {
		if err := c.writeLocked(c.conn, protocol.NewSubscribe(name)); err != nil {
			c.logger.Warn("subscribe failed", logging.String(logging.FieldChannel, name), logging.Error(err))
		}
	}
	return ch
}

// Start launches the connection loop and the dispatcher and dials at once.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.run()
	go c.dispatchLoop()
	c.signalDial()
	return nil
}

// Status reports the connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:       c.state,
		URL:         c.opts.URL,
		Channels:    append([]string(nil), c.order...),
		Reconnects:  c.reconnects,
		PendingAcks: len(c.pendingAcks),
		DroppedAcks: c.droppedAcks,
		ConnectedAt: c.connectedAt,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Close sends a normal closure, cancels any pending reconnect and stops the
// dispatcher. It is safe to call more than once. Close must not be called
// from inside a Handler.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.state = StateClosed
		if c.reconnectTimer != nil {
			c.reconnectTimer.Stop()
			c.reconnectTimer = nil
		}
		conn := c.conn
		c.conn = nil
		cancel := c.cancel
		c.mu.Unlock()

		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("close frame not sent", logging.Error(err))
			}
			_ = conn.Close()
		}
		c.metrics.SetConnected(false)
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
		c.logger.Info("director connection closed", logging.String(logging.FieldEventType, "client_closed"))
	})
	return nil
}

// Inject dispatches a locally produced envelope through the same ordered
// dispatcher as director frames and waits for its handler. Local envelopes
// are never acknowledged upstream.
func (c *Client) Inject(ctx context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	ch, err := c.resolveLocked(env.Channel)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	env.Channel = ch.name
	item := inbound{channel: ch, env: env, source: SourceLocal, done: make(chan error, 1)}
	select {
	case c.dispatch <- item:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-item.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.dial:
		}
		if c.isClosed() {
			return
		}
		c.dropConn()

		conn, err := c.connect()
		if err != nil {
			if c.isClosed() {
				return
			}
			logging.WarnWithContext(c.logger, "director dial failed", "dial_failed",
				logging.String("url", c.opts.URL),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check director.url and that the director is running"),
				logging.String(logging.FieldImpact, "overlays do not receive events until reconnected"),
			)
			c.scheduleReconnect(err)
			continue
		}
		if !c.attach(conn) {
			_ = conn.Close()
			return
		}

		err = c.readLoop(conn)
		c.detach(conn, err)
		if c.isClosed() {
			return
		}
		if isNormalClose(err) {
			c.logger.Info("director closed the connection",
				logging.String(logging.FieldEventType, "director_closed"),
				logging.Error(err),
			)
			continue
		}
		logging.WarnWithContext(c.logger, "director connection lost", "connection_lost",
			logging.Error(err),
			logging.String(logging.FieldImpact, "reconnecting; acks are queued meanwhile"),
		)
		c.scheduleReconnect(err)
	}
}

func (c *Client) connect() (*websocket.Conn, error) {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.HandshakeTimeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", c.opts.URL, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}

// attach installs conn, subscribes every channel and flushes queued acks.
func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.conn != nil && c.conn != conn {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.state = StateConnected
	c.connectedAt = c.clock.Now()
	c.lastErr = nil
	c.metrics.SetConnected(true)

	for _, name := range c.order {
		if err := c.writeLocked(conn, protocol.NewSubscribe(name)); err != nil {
			c.logger.Warn("subscribe failed", logging.String(logging.FieldChannel, name), logging.Error(err))
		}
	}
	flushed := 0
	for len(c.pendingAcks) > 0 {
		ack := c.pendingAcks[0]
		if err := c.writeLocked(conn, ack); err != nil {
			c.logger.Warn("queued ack not sent", logging.String(logging.FieldEventID, ack.EventID), logging.Error(err))
			break
		}
		c.pendingAcks = c.pendingAcks[1:]
		flushed++
	}
	c.logger.Info("director connected",
		logging.String(logging.FieldEventType, "director_connected"),
		logging.String("url", c.opts.URL),
		logging.Int("channels", len(c.order)),
		logging.Int("flushed_acks", flushed),
	)
	return true
}

func (c *Client) detach(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	if !c.closed {
		c.state = StateDisconnected
		c.lastErr = cause
	}
	_ = conn.Close()
	c.metrics.SetConnected(false)
}

func (c *Client) dropConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) scheduleReconnect(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.state = StateDisconnected
	c.lastErr = cause
	c.reconnects++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = c.clock.AfterFunc(c.opts.ReconnectDelay, c.fireReconnect)
	c.metrics.Reconnect()
	c.logger.Info("reconnect scheduled",
		logging.String(logging.FieldEventType, "reconnect_scheduled"),
		logging.Duration("delay", c.opts.ReconnectDelay),
		logging.Int("attempt", c.reconnects),
	)
}

func (c *Client) fireReconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.signalDial()
	}
}

func (c *Client) signalDial() {
	select {
	case c.dial <- struct{}{}:
	default:
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			c.metrics.FrameDropped("binary")
			continue
		}
		c.route(data)
	}
}

// route queues a frame for dispatch. Frames that cannot be handled but carry
// an id are still queued so they are acked as failed in arrival order; only
// frames with no recoverable id are dropped silently.
func (c *Client) route(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	var ch *Channel
	if err == nil {
		c.mu.Lock()
		ch, err = c.resolveLocked(env.Channel)
		c.mu.Unlock()
	}
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownChannel) {
			reason = "unknown_channel"
		}
		c.metrics.FrameDropped(reason)
		if !env.NeedsAck() {
			logging.WarnWithContext(c.logger, "frame dropped", "frame_dropped",
				logging.String("reason", reason),
				logging.String(logging.FieldChannel, env.Channel),
				logging.Error(err),
				logging.String(logging.FieldImpact, "event ignored; no id to acknowledge"),
			)
			return
		}
		logging.WarnWithContext(c.logger, "frame rejected", "frame_rejected",
			logging.String("reason", reason),
			logging.String(logging.FieldChannel, env.Channel),
			logging.String(logging.FieldEventID, env.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "event acknowledged as failed"),
		)
		c.enqueue(inbound{env: env, source: SourceDirector, reject: err})
		return
	}
	env.Channel = ch.name
	c.metrics.FrameReceived(env.Type)
	c.enqueue(inbound{channel: ch, env: env, source: SourceDirector})
}

func (c *Client) enqueue(item inbound) {
	select {
	case c.dispatch <- item:
	case <-c.ctx.Done():
	}
}

// resolveLocked maps a frame's channel to a registered handle. A frame
// without a channel goes to the only registered channel, if there is one.
func (c *Client) resolveLocked(name string) (*Channel, error) {
	if name == "" {
		if len(c.order) == 1 {
			return c.channels[c.order[0]], nil
		}
		return nil, fmt.Errorf("%w: frame has no channel", ErrUnknownChannel)
	}
	ch, ok := c.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return ch, nil
}

func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case item := <-c.dispatch:
			c.handle(item)
		}
	}
}

func (c *Client) handle(item inbound) {
	env := item.env
	started := c.clock.Now()
	err := item.reject
	if err == nil {
		err = item.channel.call(c.ctx, env)
		c.metrics.ObserveHandle(env.Type, c.clock.Now().Sub(started))
	}
	elapsed := c.clock.Now().Sub(started)
	success := err == nil

	if err != nil && item.reject == nil {
		logging.WarnWithContext(c.logger, "event handling failed", "event_failed",
			logging.String(logging.FieldChannel, env.Channel),
			logging.String(logging.FieldEventID, env.ID),
			logging.String("type", env.Type),
			logging.String("source", string(item.source)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "event acknowledged as failed"),
		)
	}
	if item.source == SourceDirector && env.NeedsAck() {
		c.sendAck(protocol.NewAck(env.ID, env.Channel, success))
	}
	if item.done != nil {
		item.done <- err
	}
	if env.NeedsAck() && c.opts.OnAck != nil {
		c.opts.OnAck(AckEvent{
			Channel:  env.Channel,
			EventID:  env.ID,
			Type:     env.Type,
			Success:  success,
			Source:   item.source,
			Err:      err,
			Duration: elapsed,
			At:       started,
		})
	}
}

// sendAck writes ack now or queues it until the next successful subscribe.
func (c *Client) sendAck(ack protocol.Ack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.Ack(ack.Success)
	if c.conn != nil {
		err := c.writeLocked(c.conn, ack)
		if err == nil {
			c.logger.Debug("ack sent",
				logging.String(logging.FieldEventType, "ack_sent"),
				logging.String(logging.FieldChannel, ack.Channel),
				logging.String(logging.FieldEventID, ack.EventID),
				logging.Bool("success", ack.Success),
			)
			return
		}
		c.logger.Warn("ack write failed; queued", logging.String(logging.FieldEventID, ack.EventID), logging.Error(err))
	}
	if len(c.pendingAcks) >= c.opts.AckBuffer {
		dropped := c.pendingAcks[0]
		c.pendingAcks = c.pendingAcks[1:]
		c.droppedAcks++
		c.metrics.AckDropped()
		logging.WarnWithContext(c.logger, "ack queue full; oldest ack dropped", "ack_dropped",
			logging.String(logging.FieldEventID, dropped.EventID),
			logging.Int("dropped_total", c.droppedAcks),
			logging.String(logging.FieldImpact, "director never sees this acknowledgment"),
		)
	}
	c.pendingAcks = append(c.pendingAcks, ack)
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.writeLocked(c.conn, v); err != nil {
		c.logger.Warn("socket write failed", logging.Error(err))
		return err
	}
	return nil
}

// writeLocked serializes v onto conn. Callers hold c.mu, which is also the
// single-writer guard gorilla requires.
func (c *Client) writeLocked(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
