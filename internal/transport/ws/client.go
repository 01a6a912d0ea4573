// Package ws is the duplex text-message transport to the world server.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("ws: connection closed")

const writeTimeout = 5 * time.Second

type Options struct {
	Header http.Header
	// OutQueue is the capacity of the outgoing message buffer.
	OutQueue int
	// ReadTimeout, when set, drops the connection after that long without
	// any inbound message.
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// Client owns one websocket connection. A reader goroutine publishes inbound
// text messages on Messages; a writer goroutine drains Send in order.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	in  chan []byte
	out chan []byte

	readTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}
	conn, _, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newClient(conn, opts), nil
}

func newClient(conn *websocket.Conn, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	q := opts.OutQueue
	if q <= 0 {
		q = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:        conn,
		log:         logger.With("component", "ws"),
		in:          make(chan []byte, 64),
		out:         make(chan []byte, q),
		readTimeout: opts.ReadTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Messages yields inbound messages in arrival order. It is closed when the
// connection ends; Err then reports why.
func (c *Client) Messages() <-chan []byte { return c.in }

// Send queues one message for the writer goroutine.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case c.out <- payload:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the connection has failed or been closed.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	c.cancel()
}

// Close sends a close frame, tears the connection down and waits for both
// pumps to exit.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		c.fail(ErrClosed)
		_ = c.conn.Close()
		c.wg.Wait()
	})
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.in)
	for {
		if c.readTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("server closed connection")
				c.fail(ErrClosed)
			} else {
				c.fail(fmt.Errorf("read: %w", err))
			}
			_ = c.conn.Close()
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		select {
		case c.in <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.fail(fmt.Errorf("write: %w", err))
				_ = c.conn.Close()
				return
			}
		}
	}
}
