package live

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
	"github.com/coder/websocket"
)

const (
	defaultSendBuffer   = 16
	defaultWriteTimeout = 10 * time.Second
)

// VoteHandler is called from the read loop for every inbound vote message.
type VoteHandler func(ctx context.Context, client *Client, msg *VoteMessage)

type ClientOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	OnVote       VoteHandler
	Log          *slog.Logger
}

// Client is one live channel. The hub owns its send queue; the client only
// reads from it.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	userID       string
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration
	onVote       VoteHandler
	log          *slog.Logger
}

// NewClient wraps an accepted connection. userID is the session user seen at
// upgrade time and may be empty for anonymous viewers.
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, userID string, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Log == nil {
		opts.Log = hub.log
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, opts.SendBuffer),
		userID:       userID,
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: opts.WriteTimeout,
		onVote:       opts.OnVote,
		log:          opts.Log.With(slog.String("user_id", userID)),
	}
}

func (c *Client) UserID() string {
	return c.userID
}

// kick asks the connection to close. Both pumps observe the cancelled context.
func (c *Client) kick() {
	c.cancel()
}

// WritePump writes queued frames until the hub closes the queue or a write fails.
func (c *Client) WritePump() {
	for data := range c.send {
		ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			c.log.Debug("live write failed", sl.Err(err))
			c.kick()
			return
		}
	}

	c.conn.Close(websocket.StatusNormalClosure, "")
}

// ReadPump blocks until the connection is closed, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.kick()
		c.conn.CloseNow()
	}()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				c.log.Debug("live channel closed")
			} else {
				c.log.Info("live channel read failed", sl.Err(err))
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			c.log.Warn("skipping malformed live message", sl.Err(err))
			continue
		}

		switch m := msg.(type) {
		case *VoteMessage:
			if c.onVote != nil {
				c.onVote(context.WithoutCancel(c.ctx), c, m)
			}
		case nil:
			// unknown type
		default:
			c.log.Debug("ignoring server-bound message", slog.String("type", typeOf(msg)))
		}
	}
}
