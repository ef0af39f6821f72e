package liveclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/14kear/live-voting/internal/entity"
	"github.com/14kear/live-voting/internal/live"
	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
)

const DefaultReconnectDelay = 5 * time.Second

var ErrNotConnected = errors.New("live channel is not connected")

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	// URL of the live endpoint, e.g. ws://localhost:3000/ws.
	URL string
	// Header is sent with every handshake; put the session here.
	Header http.Header
	// ReconnectDelay is the fixed pause between connection attempts.
	ReconnectDelay time.Duration
	// Resync, when set, runs after every successful connect and replaces the
	// board with its result. Updates missed while disconnected are only
	// recovered this way.
	Resync func(ctx context.Context) ([]entity.Poll, error)
	// OnChange runs after every applied server message.
	OnChange func(*Board)
	// OnReject runs when the server rejects one of our votes.
	OnReject func(live.VoteRejectedMessage)
	// OnState runs on every state transition.
	OnState func(State)
	Log     *slog.Logger
}

// Client keeps a Board in sync with the server over a live channel and
// reconnects whenever the channel drops.
type Client struct {
	opts  Options
	board *Board
	log   *slog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
}

func New(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		opts:  opts,
		board: NewBoard(),
		log:   opts.Log.With(slog.String("component", "liveclient")),
	}
}

func (c *Client) Board() *Board {
	return c.board
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and serves the channel until ctx is cancelled, reconnecting
// after ReconnectDelay every time the connection fails or drops.
func (c *Client) Run(ctx context.Context) error {
	const op = "liveclient.Run"

	retry := backoff.WithContext(backoff.NewConstantBackOff(c.opts.ReconnectDelay), ctx)

	for {
		var conn *websocket.Conn
		err := backoff.RetryNotify(func() error {
			c.setState(Connecting, nil)

			var err error
			conn, _, err = websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{HTTPHeader: c.opts.Header})
			if err != nil {
				c.setState(Disconnected, nil)
				return err
			}
			return nil
		}, retry, func(err error, next time.Duration) {
			c.log.Warn("live channel unavailable, retrying", sl.Err(err), slog.Duration("next", next))
		})
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		c.setState(Connected, conn)
		c.log.Info("live channel connected")

		if c.opts.Resync != nil {
			c.resync(ctx)
		}

		err = c.serve(ctx, conn)
		c.setState(Disconnected, nil)
		conn.CloseNow()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("live channel closed, reconnecting", sl.Err(err), slog.Duration("delay", c.opts.ReconnectDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// Vote submits a vote over the live channel and locks the poll locally until
// the server answers.
func (c *Client) Vote(ctx context.Context, pollID, answer string) error {
	const op = "liveclient.Vote"

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}

	data, err := live.Encode(live.Vote(pollID, answer, ""))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.board.Lock(pollID)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.board.Unlock(pollID)
		return fmt.Errorf("%s: %w", op, err)
	}

	c.notify()
	return nil
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		msg, err := live.Decode(data)
		if err != nil {
			c.log.Warn("skipping malformed live message", sl.Err(err))
			continue
		}

		if c.apply(msg) {
			c.notify()
		}
	}
}

// apply reports whether msg changed the board.
func (c *Client) apply(msg any) bool {
	switch m := msg.(type) {
	case *live.NewPollMessage:
		c.board.ApplyNewPoll(m.Poll)
		return true
	case *live.VoteUpdateMessage:
		return c.board.ApplyVoteUpdate(m.PollID, m.UpdatedOptions)
	case *live.VoteRejectedMessage:
		c.log.Info("vote rejected", slog.String("poll_id", m.PollID), slog.String("reason", m.Reason))
		if m.Reason != live.ReasonAlreadyVoted {
			c.board.Unlock(m.PollID)
		}
		if c.opts.OnReject != nil {
			c.opts.OnReject(*m)
		}
		return true
	default:
		return false
	}
}

func (c *Client) resync(ctx context.Context) {
	polls, err := c.opts.Resync(ctx)
	if err != nil {
		c.log.Warn("failed to resync polls", sl.Err(err))
		return
	}

	c.board.Replace(polls)
	c.notify()
}

func (c *Client) setState(s State, conn *websocket.Conn) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.conn = conn
	c.mu.Unlock()

	if changed && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

func (c *Client) notify() {
	if c.opts.OnChange != nil {
		c.opts.OnChange(c.board)
	}
}
