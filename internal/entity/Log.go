package entity

import "time"

const (
	ActionPollCreated = "poll_created"
	ActionVoteCast    = "vote_cast"
)

type Log struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	PollID    *string   `json:"pollId,omitempty"`
	Option    *string   `json:"option,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
