package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type ConnOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// WSConn serializes writes to a gorilla connection and keeps it alive with
// pings. It implements Peer.
type WSConn struct {
	conn   *websocket.Conn
	opts   ConnOptions
	mu     sync.Mutex
	closed atomic.Bool
	once   sync.Once
	done   chan struct{}
}

func NewWSConn(conn *websocket.Conn, opts ConnOptions) *WSConn {
	c := &WSConn{
		conn: conn,
		opts: opts,
		done: make(chan struct{}),
	}

	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	return c
}

// StartPing sends a ping every PingInterval until the connection closes.
func (c *WSConn) StartPing() {
	go func() {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.ping(); err != nil {
					log.Debug().Err(err).Msg("ping failed, closing connection")
					_ = c.Close(websocket.CloseGoingAway, "Ping failure")
					return
				}
			case <-c.done:
				return
			}
		}
	}()
}

func (c *WSConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait))
}

// ReadMessage blocks for the next data frame. Any frame extends the read deadline.
func (c *WSConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	return data, nil
}

func (c *WSConn) Send(data []byte) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with code and reason, then drops the socket.
// Only the first call has any effect.
func (c *WSConn) Close(code int, reason string) error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()

		msg := websocket.FormatCloseMessage(code, reason)
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait)); werr != nil {
			log.Debug().Err(werr).Msg("error sending close frame")
		}
		err = c.conn.Close()
	})
	return err
}

func (c *WSConn) Closed() bool {
	return c.closed.Load()
}

// Done is closed once Close has been called.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}
