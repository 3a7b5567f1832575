package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	requestTimeout   = 10 * time.Second
	writeTimeout     = 5 * time.Second

	// eventBuffer bounds save events waiting for the session forwarder.
	eventBuffer = 32

	// DefaultInputName is the VLC video source the client manages.
	DefaultInputName = "rl-replay-highlights"
)

// ErrClosed is returned by requests issued after the connection ended.
var ErrClosed = errors.New("obs connection closed")

// Endpoint identifies an OBS WebSocket server.
type Endpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password,omitempty"`
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// URL returns the websocket URL for e.
func (e Endpoint) URL() string {
	return "ws://" + e.Addr()
}

// SaveEvent reports a completed replay buffer save.
type SaveEvent struct {
	Path    string
	SavedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithInputName overrides the name of the managed VLC source.
func WithInputName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.inputName = name
		}
	}
}

// Client is one identified OBS WebSocket connection. Requests may be issued
// from any goroutine; events are delivered on SaveEvents until the
// connection ends.
type Client struct {
	conn      *websocket.Conn
	log       *slog.Logger
	inputName string

	writeMu sync.Mutex // serialises all conn writes

	mu      sync.Mutex
	pending map[string]chan requestResponse
	err     error

	events    chan SaveEvent
	quit      chan struct{} // closed by Close
	done      chan struct{} // closed when the reader exits
	closeOnce sync.Once
}

// Dial connects to ep and completes the Hello/Identify handshake,
// authenticating with ep.Password when the server asks for it.
func Dial(ctx context.Context, ep Endpoint, opts ...Option) (*Client, error) {
	c := &Client{
		log:       slog.Default(),
		inputName: DefaultInputName,
		pending:   make(map[string]chan requestResponse),
		events:    make(chan SaveEvent, eventBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{subprotocol},
	}
	conn, _, err := dialer.DialContext(ctx, ep.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ep.Addr(), err)
	}
	c.conn = conn

	if err := c.handshake(ctx, ep.Password); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	c.log.Debug("obs connection identified", slog.String("addr", ep.Addr()))
	return c, nil
}

func (c *Client) handshake(ctx context.Context, password string) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	c.conn.SetWriteDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})
	defer c.conn.SetWriteDeadline(time.Time{})

	var msg message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if msg.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", msg.Op)
	}
	var h hello
	if err := json.Unmarshal(msg.D, &h); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	id := identify{RPCVersion: rpcVersion, EventSubscriptions: eventSubOutputs}
	if h.Authentication != nil {
		if password == "" {
			return errors.New("obs requires a password")
		}
		id.Authentication = authResponse(password, h.Authentication.Salt, h.Authentication.Challenge)
	}
	out, err := encode(opIdentify, id)
	if err != nil {
		return err
	}
	if err := c.conn.WriteJSON(out); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}

	if err := c.conn.ReadJSON(&msg); err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return fmt.Errorf("identify rejected: %s (code %d)", ce.Text, ce.Code)
		}
		return fmt.Errorf("read identified: %w", err)
	}
	if msg.Op != opIdentified {
		return fmt.Errorf("expected identified, got op %d", msg.Op)
	}
	return nil
}

// SaveEvents returns the channel of replay-buffer-saved notifications. It
// is closed when the connection ends.
func (c *Client) SaveEvents() <-chan SaveEvent {
	return c.events
}

// Close ends the connection and waits for the reader to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.quit)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.done)

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.fail(err)
			return
		}

		switch msg.Op {
		case opRequestResponse:
			var resp requestResponse
			if err := json.Unmarshal(msg.D, &resp); err != nil {
				c.log.Warn("obs response decode failed", slog.String("error", err.Error()))
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			delete(c.pending, resp.RequestID)
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		case opEvent:
			var ev event
			if err := json.Unmarshal(msg.D, &ev); err != nil {
				c.log.Warn("obs event decode failed", slog.String("error", err.Error()))
				continue
			}
			c.handleEvent(ev)
		default:
			c.log.Debug("obs message ignored", slog.Int("op", msg.Op))
		}
	}
}

func (c *Client) handleEvent(ev event) {
	if ev.EventType != "ReplayBufferSaved" {
		return
	}
	var data struct {
		SavedReplayPath string `json:"savedReplayPath"`
	}
	if err := json.Unmarshal(ev.EventData, &data); err != nil || data.SavedReplayPath == "" {
		c.log.Warn("obs ReplayBufferSaved without path")
		return
	}
	// Blocks the reader if the forwarder falls behind; save events are
	// rare so the buffer absorbs bursts.
	select {
	case c.events <- SaveEvent{Path: data.SavedReplayPath, SavedAt: time.Now().UTC()}:
	case <-c.quit:
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, net.ErrClosed) {
			c.err = ErrClosed
		} else {
			c.err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
	}
	c.pending = make(map[string]chan requestResponse)
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

// call sends a request and waits for its response. out, if non-nil,
// receives the decoded responseData.
func (c *Client) call(ctx context.Context, requestType string, data any, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan requestResponse, 1)

	select {
	case <-c.done:
		return c.closedErr()
	default:
	}
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg, err := encode(opRequest, request{RequestType: requestType, RequestID: id, RequestData: data})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", requestType, err)
	}

	select {
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return &RequestError{
				RequestType: requestType,
				Code:        resp.RequestStatus.Code,
				Comment:     resp.RequestStatus.Comment,
			}
		}
		if out != nil && len(resp.ResponseData) > 0 {
			if err := json.Unmarshal(resp.ResponseData, out); err != nil {
				return fmt.Errorf("decode %s response: %w", requestType, err)
			}
		}
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", requestType, ctx.Err())
	}
}
