package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/14kear/live-voting/internal/entity"
	"github.com/14kear/live-voting/internal/event"
	"github.com/14kear/live-voting/internal/live"
	"github.com/14kear/live-voting/internal/metrics"
	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
)

type LogStorage interface {
	SaveLog(ctx context.Context, log *entity.Log) (int64, error)
	GetLogs(ctx context.Context) ([]entity.Log, error)
}

// Broadcaster fans a message out to every live channel.
type Broadcaster interface {
	Broadcast(msg any)
}

type OnlineVoting struct {
	log         *slog.Logger
	ledger      *Ledger
	logStorage  LogStorage
	broadcaster Broadcaster
	publisher   event.Publisher
	metrics     *metrics.Metrics
}

func NewOnlineVoting(
	log *slog.Logger,
	ledger *Ledger,
	logStorage LogStorage,
	broadcaster Broadcaster,
	publisher event.Publisher,
	m *metrics.Metrics,
) *OnlineVoting {
	return &OnlineVoting{
		log:         log,
		ledger:      ledger,
		logStorage:  logStorage,
		broadcaster: broadcaster,
		publisher:   publisher,
		metrics:     m,
	}
}

func (v *OnlineVoting) CreatePoll(ctx context.Context, question string, answers []string, creatorID string) (entity.Poll, error) {
	const op = "OnlineVoting.CreatePoll"

	log := v.log.With(slog.String("op", op), slog.String("user_id", creatorID))

	if creatorID == "" {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	poll, err := v.ledger.CreatePoll(ctx, question, answers, creatorID)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			log.Info("rejected poll", sl.Err(err))
		} else {
			log.Error("failed to create poll", sl.Err(err))
		}
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	v.metrics.PollsCreated.Inc()
	log.Info("poll created", slog.String("poll_id", poll.ID))

	v.saveLog(ctx, log, &entity.Log{
		UserID: creatorID,
		Action: entity.ActionPollCreated,
		PollID: &poll.ID,
	})

	v.broadcaster.Broadcast(live.NewPoll(poll))
	v.publish(ctx, log, event.Event{
		Type:      event.TypePollCreated,
		PollID:    poll.ID,
		UserID:    creatorID,
		Options:   poll.Options,
		Timestamp: time.Now(),
	})

	return poll, nil
}

// CastVote votes as sessionUserID. claimedUserID is whatever id the client
// sent along, if any; it must match the session.
func (v *OnlineVoting) CastVote(ctx context.Context, pollID, answer, sessionUserID, claimedUserID string) ([]entity.Option, error) {
	const op = "OnlineVoting.CastVote"

	start := time.Now()
	defer func() {
		v.metrics.VoteProcessing.Observe(time.Since(start).Seconds())
	}()

	log := v.log.With(
		slog.String("op", op),
		slog.String("poll_id", pollID),
		slog.String("user_id", sessionUserID),
	)

	if sessionUserID == "" {
		v.metrics.VotesTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		log.Info("vote without session")
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	if claimedUserID != "" && claimedUserID != sessionUserID {
		v.metrics.VotesTotal.WithLabelValues(metrics.ResultIdentityMismatch).Inc()
		log.Warn("vote claims another user's identity", slog.String("claimed_user_id", claimedUserID))
		return nil, fmt.Errorf("%s: %w", op, ErrIdentityMismatch)
	}

	options, err := v.ledger.CastVote(ctx, pollID, answer, sessionUserID)
	if err != nil {
		result := voteResult(err)
		v.metrics.VotesTotal.WithLabelValues(result).Inc()
		if result == metrics.ResultError {
			log.Error("failed to cast vote", sl.Err(err))
		} else {
			log.Info("vote rejected", slog.String("result", result))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	v.metrics.VotesTotal.WithLabelValues(metrics.ResultAccepted).Inc()
	log.Info("vote accepted", slog.String("option", answer))

	v.saveLog(ctx, log, &entity.Log{
		UserID: sessionUserID,
		Action: entity.ActionVoteCast,
		PollID: &pollID,
		Option: &answer,
	})

	v.broadcaster.Broadcast(live.VoteUpdate(pollID, options))
	v.publish(ctx, log, event.Event{
		Type:      event.TypeVoteCast,
		PollID:    pollID,
		UserID:    sessionUserID,
		Answer:    answer,
		Options:   options,
		Timestamp: time.Now(),
	})

	return options, nil
}

func (v *OnlineVoting) ListPolls(ctx context.Context) ([]entity.Poll, error) {
	const op = "OnlineVoting.ListPolls"

	polls, err := v.ledger.ListPolls(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return polls, nil
}

func (v *OnlineVoting) GetPoll(ctx context.Context, id string) (entity.Poll, error) {
	const op = "OnlineVoting.GetPoll"

	poll, err := v.ledger.GetPoll(ctx, id)
	if err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	return poll, nil
}

func (v *OnlineVoting) GetLogs(ctx context.Context) ([]entity.Log, error) {
	const op = "OnlineVoting.GetLogs"

	logs, err := v.logStorage.GetLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return logs, nil
}

func (v *OnlineVoting) saveLog(ctx context.Context, log *slog.Logger, entry *entity.Log) {
	if _, err := v.logStorage.SaveLog(ctx, entry); err != nil {
		log.Error("failed to save action log", sl.Err(err))
	}
}

func (v *OnlineVoting) publish(ctx context.Context, log *slog.Logger, e event.Event) {
	if err := v.publisher.Publish(ctx, e); err != nil {
		log.Warn("failed to publish event", slog.String("type", e.Type), sl.Err(err))
	}
}

func voteResult(err error) string {
	switch {
	case errors.Is(err, ErrPollNotFound):
		return metrics.ResultPollNotFound
	case errors.Is(err, ErrOptionNotFound):
		return metrics.ResultOptionNotFound
	case errors.Is(err, ErrAlreadyVoted):
		return metrics.ResultAlreadyVoted
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnauthenticated):
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}
