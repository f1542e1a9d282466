package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/zfogg/photostream/cli/pkg/api"
	"github.com/zfogg/photostream/cli/pkg/events"
	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/metrics"
)

// Engine.IO packet types
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
)

// Socket.IO packet types, carried inside an Engine.IO message
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketConnectError = '4'
)

// ErrNotConnected is returned when a frame is written without a connection
var ErrNotConnected = errors.New("socket not connected")

// ErrReconnectExhausted is published when the reconnect attempts run out
var ErrReconnectExhausted = errors.New("socket reconnect attempts exhausted")

// Config holds socket client configuration
type Config struct {
	URL            string
	InstallationID string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	// ReconnectAttempts is the number of reconnects tried after a drop;
	// -1 means unlimited
	ReconnectAttempts int
	Hub               *events.Hub
	Metrics           *metrics.Metrics
}

// DefaultConfig returns a development configuration
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8081",
		ConnectTimeout:    6 * time.Second,
		ReconnectDelay:    3 * time.Second,
		ReconnectAttempts: 5,
	}
}

// ConnectionState represents the state of the socket connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	MessagesReceived int64
	EventsDropped    int64
	ReconnectCount   int
	LastError        string
	ConnectedAt      time.Time
	DisconnectedAt   time.Time
}

// Client is a Socket.IO v4 client over the websocket transport. Push events
// are decoded and published on the event hub.
type Client struct {
	config Config
	hub    *events.Hub

	conn    *websocket.Conn
	mu      sync.Mutex
	writeMu sync.Mutex

	state  atomic.Value // ConnectionState
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pingInterval time.Duration
	pingTimeout  time.Duration

	statsLock sync.RWMutex
	stats     ConnectionStats
}

// NewClient creates a socket client
func NewClient(config Config) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 6 * time.Second
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 3 * time.Second
	}
	if config.Hub == nil {
		config.Hub = events.SharedHub()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Get()
	}

	client := &Client{
		config:       config,
		hub:          config.Hub,
		pingInterval: 25 * time.Second,
		pingTimeout:  20 * time.Second,
	}
	client.state.Store(StateDisconnected)
	return client
}

// Hub returns the hub events are published on
func (c *Client) Hub() *events.Hub {
	return c.hub
}

// Connect dials the server and joins the default namespace. It returns once
// the namespace connect is acknowledged; afterwards the client reconnects on
// its own until Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()

		c.setState(StateError)
		c.recordError(err.Error())
		c.publishError(err)
		return err
	}

	if !c.attach(runCtx, conn) {
		return ErrNotConnected
	}
	c.wg.Add(1)
	go c.run(runCtx)

	logger.Debug("Socket connected", "url", c.config.URL)
	return nil
}

// Disconnect closes the connection and stops reconnecting
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	if cancel != nil {
		cancel()
	}
	conn := c.conn
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	if conn != nil {
		_ = c.write(conn, "41")
		_ = conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	c.setState(StateDisconnected)
	logger.Debug("Socket disconnected")
	return nil
}

// IsConnected returns true if the namespace is joined
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return c.state.Load().(ConnectionState)
}

// Stats returns connection statistics
func (c *Client) Stats() ConnectionStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()
	return c.stats
}

// Endpoint returns the websocket URL the client dials
func (c *Client) Endpoint() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid socket url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dial opens the websocket and completes both handshakes
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := c.Endpoint()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.config.InstallationID != "" {
		header.Set("installation_id", c.config.InstallationID)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.ConnectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	if err := c.handshake(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) handshake(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.config.ConnectTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read open packet: %w", err)
	}
	if len(data) == 0 || data[0] != engineOpen {
		return fmt.Errorf("unexpected open packet %q", data)
	}

	open := gjson.ParseBytes(data[1:])
	if ms := open.Get("pingInterval").Int(); ms > 0 {
		c.pingInterval = time.Duration(ms) * time.Millisecond
	}
	if ms := open.Get("pingTimeout").Int(); ms > 0 {
		c.pingTimeout = time.Duration(ms) * time.Millisecond
	}

	if err := c.write(conn, "40"); err != nil {
		return fmt.Errorf("join namespace: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read connect ack: %w", err)
		}
		msg := string(data)
		switch {
		case msg == string(enginePing):
			if err := c.write(conn, string(enginePong)); err != nil {
				return err
			}
		case strings.HasPrefix(msg, "40"):
			return nil
		case strings.HasPrefix(msg, "44"):
			return fmt.Errorf("connect error: %s", gjson.Get(msg[2:], "message").String())
		}
	}
}

// attach installs conn unless ctx was cancelled; Disconnect cancels under
// the same lock, so it always sees the connection it has to close.
func (c *Client) attach(ctx context.Context, conn *websocket.Conn) bool {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	c.recordConnected()
	events.Publish(c.hub, events.SocketConnect, events.Data{})
	return true
}

func (c *Client) write(conn *websocket.Conn, frame string) error {
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// run reads until the connection drops, then reconnects with a fixed delay
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		err := c.readLoop(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		c.recordError(err.Error())
		c.recordDisconnected()
		logger.Warn("Socket connection lost", "error", err)
		events.Publish(c.hub, events.SocketDisconnect, events.Data{events.FieldError: err.Error()})

		if !c.reconnect(ctx) {
			return
		}
	}
}

func (c *Client) reconnect(ctx context.Context) bool {
	c.setState(StateReconnecting)

	for attempt := 1; c.config.ReconnectAttempts < 0 || attempt <= c.config.ReconnectAttempts; attempt++ {
		logger.Debug("Reconnecting socket", "attempt", attempt, "wait_ms", c.config.ReconnectDelay.Milliseconds())

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.config.ReconnectDelay):
		}

		c.config.Metrics.SocketReconnectsTotal.Inc()
		c.statsLock.Lock()
		c.stats.ReconnectCount++
		c.statsLock.Unlock()

		conn, err := c.dial(ctx)
		if err != nil {
			c.recordError(err.Error())
			logger.Debug("Socket reconnect failed", "attempt", attempt, "error", err)
			continue
		}
		if !c.attach(ctx, conn) {
			return false
		}
		logger.Debug("Socket reconnected", "attempt", attempt)
		return true
	}

	if ctx.Err() != nil {
		return false
	}
	c.release(ctx)
	c.setState(StateError)
	c.recordError(ErrReconnectExhausted.Error())
	logger.Error("Max reconnection attempts reached", "attempts", c.config.ReconnectAttempts)
	c.publishError(ErrReconnectExhausted)
	return false
}

// release drops the run context once reconnecting has given up so the next
// Connect dials again
func (c *Client) release(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.conn = nil
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pingTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case enginePing:
			if err := c.write(conn, string(enginePong)); err != nil {
				return err
			}
		case engineClose:
			return errors.New("server closed the transport")
		case engineMessage:
			if err := c.handleMessage(data[1:]); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handleMessage(packet []byte) error {
	if len(packet) == 0 {
		return nil
	}

	switch packet[0] {
	case socketEvent:
		c.recordMessageReceived()
		name, payload, ok := parseEvent(packet[1:])
		if !ok {
			c.recordDropped()
			logger.Debug("Dropping malformed socket event", "packet", string(packet))
			return nil
		}
		c.dispatch(name, payload)
	case socketDisconnect:
		return errors.New("server disconnected the namespace")
	case socketConnectError:
		err := fmt.Errorf("connect error: %s", gjson.GetBytes(packet[1:], "message").String())
		c.publishError(err)
		return err
	}
	return nil
}

// parseEvent splits `[/nsp,][ackID]["name", payload]` into name and raw
// payload
func parseEvent(body []byte) (string, []byte, bool) {
	s := string(body)
	if strings.HasPrefix(s, "/") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return "", nil, false
		}
		s = s[i+1:]
	}
	s = strings.TrimLeft(s, "0123456789")

	if !gjson.Valid(s) {
		return "", nil, false
	}
	arr := gjson.Parse(s)
	if !arr.IsArray() {
		return "", nil, false
	}
	name := arr.Get("0")
	if name.Type != gjson.String {
		return "", nil, false
	}
	payload := arr.Get("1")
	if !payload.Exists() {
		return name.String(), nil, true
	}
	return name.String(), []byte(payload.Raw), true
}

func (c *Client) dispatch(name string, payload []byte) {
	topic, ok := events.TopicFor(name)
	if !ok {
		c.recordDropped()
		c.config.Metrics.SocketEventsTotal.WithLabelValues("unknown").Inc()
		logger.Debug("Ignoring socket event", "event", name)
		return
	}

	value, err := decodeEvent(name, payload)
	if err != nil {
		c.recordDropped()
		logger.Warn("Dropping undecodable socket event", "event", name, "error", err)
		return
	}

	c.config.Metrics.SocketEventsTotal.WithLabelValues(name).Inc()
	events.Publish(c.hub, topic, events.Data{
		events.FieldPayload: payload,
		events.FieldValue:   value,
	})
}

func decodeEvent(name string, payload []byte) (interface{}, error) {
	switch name {
	case events.EventNewPhoto:
		return api.Decode[api.Photo](payload)
	case events.EventNewComment:
		return api.Decode[api.Comment](payload)
	case events.EventCommentDeleted:
		return api.Decode[api.CommentDeleted](payload)
	case events.EventPhotoDeleted:
		return api.Decode[api.PhotoDeleted](payload)
	case events.EventNewVote:
		return api.Decode[api.Vote](payload)
	}
	return nil, fmt.Errorf("unknown event %q", name)
}

func (c *Client) publishError(err error) {
	events.Publish(c.hub, events.SocketError, events.Data{events.FieldError: err.Error()})
}

func (c *Client) setState(state ConnectionState) {
	c.state.Store(state)
}

func (c *Client) recordMessageReceived() {
	c.statsLock.Lock()
	c.stats.MessagesReceived++
	c.statsLock.Unlock()
}

func (c *Client) recordDropped() {
	c.statsLock.Lock()
	c.stats.EventsDropped++
	c.statsLock.Unlock()
}

func (c *Client) recordError(errMsg string) {
	c.statsLock.Lock()
	c.stats.LastError = errMsg
	c.statsLock.Unlock()
}

func (c *Client) recordConnected() {
	c.statsLock.Lock()
	c.stats.ConnectedAt = time.Now()
	c.statsLock.Unlock()
}

func (c *Client) recordDisconnected() {
	c.statsLock.Lock()
	c.stats.DisconnectedAt = time.Now()
	c.statsLock.Unlock()
}
