package event

import (
	"context"
	"time"

	"github.com/14kear/live-voting/internal/entity"
)

const (
	TypePollCreated = "poll_created"
	TypeVoteCast    = "vote_cast"
)

// Event is what downstream consumers see for every accepted mutation.
type Event struct {
	Type      string          `json:"type"`
	PollID    string          `json:"poll_id"`
	UserID    string          `json:"user_id"`
	Answer    string          `json:"answer,omitempty"`
	Options   []entity.Option `json:"options"`
	Timestamp time.Time       `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }
