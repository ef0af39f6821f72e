package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/14kear/live-voting/internal/live"
	"github.com/14kear/live-voting/internal/middleware"
	"github.com/14kear/live-voting/internal/services"
	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

type LiveHandler struct {
	log            *slog.Logger
	hub            *live.Hub
	votingService  *services.OnlineVoting
	clientOptions  live.ClientOptions
	originPatterns []string
}

func NewLiveHandler(
	log *slog.Logger,
	hub *live.Hub,
	votingService *services.OnlineVoting,
	clientOptions live.ClientOptions,
	originPatterns []string,
) *LiveHandler {
	h := &LiveHandler{
		log:            log.With(slog.String("component", "handlers.live")),
		hub:            hub,
		votingService:  votingService,
		clientOptions:  clientOptions,
		originPatterns: originPatterns,
	}
	h.clientOptions.OnVote = h.onVote
	if h.clientOptions.Log == nil {
		h.clientOptions.Log = h.log
	}
	return h
}

// ServeWS upgrades the request and serves the channel until it closes. The
// session is optional: anonymous channels receive broadcasts but their votes
// are rejected.
func (h *LiveHandler) ServeWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Info("websocket upgrade failed", sl.Err(err))
		return
	}

	client := live.NewClient(c.Request.Context(), h.hub, conn, middleware.UserID(c), h.clientOptions)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump()
}

func (h *LiveHandler) onVote(ctx context.Context, client *live.Client, msg *live.VoteMessage) {
	_, err := h.votingService.CastVote(ctx, msg.PollID, msg.SelectedOption, client.UserID(), msg.UserID)
	if err != nil {
		h.hub.SendTo(client, live.VoteRejected(msg.PollID, rejectReason(err)))
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, services.ErrPollNotFound):
		return live.ReasonPollNotFound
	case errors.Is(err, services.ErrOptionNotFound):
		return live.ReasonOptionNotFound
	case errors.Is(err, services.ErrAlreadyVoted):
		return live.ReasonAlreadyVoted
	case errors.Is(err, services.ErrIdentityMismatch):
		return live.ReasonIdentityMismatch
	case errors.Is(err, services.ErrUnauthenticated):
		return live.ReasonUnauthenticated
	case errors.Is(err, services.ErrValidation):
		return live.ReasonInvalid
	default:
		return live.ReasonInternal
	}
}
