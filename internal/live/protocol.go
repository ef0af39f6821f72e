package live

import (
	"encoding/json"
	"fmt"

	"github.com/14kear/live-voting/internal/entity"
)

// Message types carried in the "type" field of every frame.
const (
	TypeVote         = "vote"
	TypeNewPoll      = "newPoll"
	TypeVoteUpdate   = "voteUpdate"
	TypeVoteRejected = "voteRejected"
)

// Reasons sent in voteRejected.
const (
	ReasonPollNotFound     = "poll_not_found"
	ReasonOptionNotFound   = "option_not_found"
	ReasonAlreadyVoted     = "already_voted"
	ReasonIdentityMismatch = "identity_mismatch"
	ReasonUnauthenticated  = "unauthenticated"
	ReasonInvalid          = "invalid"
	ReasonInternal         = "internal"
)

// VoteMessage is sent by clients. UserID is informational only: the server
// votes as the session user and rejects a differing UserID.
type VoteMessage struct {
	Type           string `json:"type"`
	PollID         string `json:"pollId"`
	SelectedOption string `json:"selectedOption"`
	UserID         string `json:"userId,omitempty"`
}

type NewPollMessage struct {
	Type string      `json:"type"`
	Poll entity.Poll `json:"poll"`
}

type VoteUpdateMessage struct {
	Type           string          `json:"type"`
	PollID         string          `json:"pollId"`
	UpdatedOptions []entity.Option `json:"updatedOptions"`
}

type VoteRejectedMessage struct {
	Type   string `json:"type"`
	PollID string `json:"pollId"`
	Reason string `json:"reason"`
}

func Vote(pollID, selectedOption, userID string) VoteMessage {
	return VoteMessage{Type: TypeVote, PollID: pollID, SelectedOption: selectedOption, UserID: userID}
}

func NewPoll(poll entity.Poll) NewPollMessage {
	return NewPollMessage{Type: TypeNewPoll, Poll: poll}
}

func VoteUpdate(pollID string, options []entity.Option) VoteUpdateMessage {
	return VoteUpdateMessage{Type: TypeVoteUpdate, PollID: pollID, UpdatedOptions: options}
}

func VoteRejected(pollID, reason string) VoteRejectedMessage {
	return VoteRejectedMessage{Type: TypeVoteRejected, PollID: pollID, Reason: reason}
}

func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode live message: %w", err)
	}
	return data, nil
}

// Decode returns a pointer to the concrete message for known types and
// nil, nil for unknown ones, which callers ignore.
func Decode(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode live message: %w", err)
	}

	var msg any
	switch envelope.Type {
	case TypeVote:
		msg = &VoteMessage{}
	case TypeNewPoll:
		msg = &NewPollMessage{}
	case TypeVoteUpdate:
		msg = &VoteUpdateMessage{}
	case TypeVoteRejected:
		msg = &VoteRejectedMessage{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", envelope.Type, err)
	}
	return msg, nil
}

func typeOf(msg any) string {
	switch m := msg.(type) {
	case NewPollMessage:
		return m.Type
	case VoteUpdateMessage:
		return m.Type
	case VoteRejectedMessage:
		return m.Type
	case VoteMessage:
		return m.Type
	case *NewPollMessage:
		return m.Type
	case *VoteUpdateMessage:
		return m.Type
	case *VoteRejectedMessage:
		return m.Type
	case *VoteMessage:
		return m.Type
	default:
		return "unknown"
	}
}
