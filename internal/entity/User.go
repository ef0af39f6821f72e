package entity

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PassHash     []byte    `json:"-"`
	VotedPolls   []string  `json:"votedPolls"`
	PollsCreated int       `json:"pollsCreated"`
	PollsVoted   int       `json:"pollsVoted"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) HasVoted(pollID string) bool {
	for _, id := range u.VotedPolls {
		if id == pollID {
			return true
		}
	}
	return false
}
