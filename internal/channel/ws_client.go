package channel

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/ayuhito/globalping-probe/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var ErrChannelClosed = errors.New("channel closed")

// wireMessage is the envelope every event is sent and received in.
type wireMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// WSClient is a gorilla/websocket-backed Channel with a dedicated
// read pump and write pump, so all writes to the connection are
// serialized through one goroutine.
type WSClient struct {
	url       string
	header    http.Header
	handler   RequestHandler
	metrics   metrics.ChannelRecorder
	tlsConfig *tls.Config

	conn   *websocket.Conn
	send   chan wireMessage
	done   chan struct{}
	closed bool
}

// NewWSClient constructs a client bound to url. handler is invoked for
// every inbound probe:measurement:request frame; recorder observes send
// buffer depth and reconnect counts.
func NewWSClient(url string, header http.Header, handler RequestHandler, recorder metrics.ChannelRecorder) *WSClient {
	if recorder == nil {
		recorder = metrics.NoopChannelRecorder{}
	}
	return &WSClient{
		url:     url,
		header:  header,
		handler: handler,
		metrics: recorder,
	}
}

// NewWSClientTLS is NewWSClient with an explicit TLS client configuration,
// for a wss:// URL authenticated by mTLS.
func NewWSClientTLS(url string, header http.Header, handler RequestHandler, recorder metrics.ChannelRecorder, tlsConfig *tls.Config) *WSClient {
	client := NewWSClient(url, header, handler, recorder)
	client.tlsConfig = tlsConfig
	return client
}

// Connect dials the websocket and prepares the client to run. Call Run
// afterwards to start the pumps.
func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second, TLSClientConfig: c.tlsConfig}
	conn, resp, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial control channel: status=%d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial control channel: %w", err)
	}
	c.conn = conn
	c.send = make(chan wireMessage, sendBufferSize)
	c.done = make(chan struct{})
	c.closed = false
	return nil
}

// Run starts the read and write pumps and blocks until either exits.
func (c *WSClient) Run(ctx context.Context) error {
	if err := c.Emit(EventStatusReady, struct{}{}); err != nil {
		return fmt.Errorf("emit ready: %w", err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- c.writePump(ctx) }()
	go func() { errCh <- c.readPump(ctx) }()

	err := <-errCh
	c.Close()
	return err
}

func (c *WSClient) readPump(ctx context.Context) error {
	c.conn.SetReadLimit(4 << 20)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read control channel: %w", err)
		}

		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Event != EventMeasurementRequest || c.handler == nil {
			continue
		}
		c.handler(ctx, msg.Payload)
	}
}

func (c *WSClient) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case msg, ok := <-c.send:
			if !ok {
				return nil
			}
			c.metrics.ObserveSendBufferDepth(len(c.send))
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("write control channel: %w", err)
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping control channel: %w", err)
			}
		}
	}
}

// Emit implements Channel. It never blocks: a full send buffer is
// reported as an error rather than backing up the caller, since handlers
// must not stall on a slow or wedged connection.
func (c *WSClient) Emit(event string, payload any) error {
	if c.closed {
		return ErrChannelClosed
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	select {
	case c.send <- wireMessage{Event: event, Payload: body}:
		return nil
	default:
		return fmt.Errorf("emit %s: send buffer full", event)
	}
}

// Close shuts the client down: it signals the write pump, which attempts a
// close frame, and closes the underlying connection without waiting for
// that frame to be written, so the peer may not receive it.
func (c *WSClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// ReconnectOptions configures RunWithReconnect's exponential backoff.
type ReconnectOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	TLSConfig       *tls.Config
	// OnConnected is called with the live Channel right after a successful
	// dial, so a caller (e.g. the measurement dispatcher) can bind to it for
	// as long as the connection lasts.
	OnConnected    func(ch Channel)
	OnDisconnected func(err error)
}

// DefaultReconnectOptions mirrors common control-channel client defaults.
func DefaultReconnectOptions() ReconnectOptions {
	return ReconnectOptions{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// RunWithReconnect dials url, runs the client to completion, and
// reconnects with exponential backoff until ctx is canceled. Each
// reconnect attempt is counted on recorder.
func RunWithReconnect(ctx context.Context, url string, header http.Header, handler RequestHandler, recorder metrics.ChannelRecorder, opts ReconnectOptions) error {
	if recorder == nil {
		recorder = metrics.NoopChannelRecorder{}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = opts.InitialInterval
	expBackoff.MaxInterval = opts.MaxInterval
	expBackoff.Multiplier = opts.Multiplier

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		client := NewWSClientTLS(url, header, handler, recorder, opts.TLSConfig)
		err := client.Connect(ctx)
		if err == nil {
			if opts.OnConnected != nil {
				opts.OnConnected(client)
			}
			err = client.Run(ctx)
		}

		if opts.OnDisconnected != nil {
			opts.OnDisconnected(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		recorder.IncReconnects()
		delay := expBackoff.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("reconnect backoff exhausted: %w", err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
