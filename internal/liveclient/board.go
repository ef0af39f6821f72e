package liveclient

import (
	"sync"

	"github.com/14kear/live-voting/internal/entity"
)

// PollView is a poll as the local user sees it. Locked is set between a vote
// submission and the server's answer for that poll.
type PollView struct {
	entity.Poll
	Locked bool
}

// Board is the local, ordered copy of the polls. The server's messages are
// authoritative: every update replaces local state instead of merging it.
type Board struct {
	mu     sync.RWMutex
	polls  []PollView
	byID   map[string]int
	userID string
}

func NewBoard() *Board {
	return &Board{byID: make(map[string]int)}
}

// SetUser marks polls the given user is already in the voter list of as locked.
func (b *Board) SetUser(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.userID = userID
	for i := range b.polls {
		b.polls[i].Locked = b.polls[i].Locked || b.votedLocked(b.polls[i].Poll)
	}
}

// ApplyNewPoll appends the poll, or replaces it in place when it is already known.
func (b *Board) ApplyNewPoll(poll entity.Poll) {
	b.mu.Lock()
	defer b.mu.Unlock()

	view := PollView{Poll: poll.Clone(), Locked: b.votedLocked(poll)}
	if i, ok := b.byID[poll.ID]; ok {
		b.polls[i] = view
		return
	}

	b.byID[poll.ID] = len(b.polls)
	b.polls = append(b.polls, view)
}

// ApplyVoteUpdate replaces the poll's options with the server's list and drops
// the pending lock unless the known voter list already has the user. It reports false for polls the board does not know.
func (b *Board) ApplyVoteUpdate(pollID string, options []entity.Option) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.byID[pollID]
	if !ok {
		return false
	}

	b.polls[i].Options = entity.CloneOptions(options)
	b.polls[i].Locked = b.votedLocked(b.polls[i].Poll)
	return true
}

func (b *Board) Lock(pollID string) {
	b.setLocked(pollID, true)
}

func (b *Board) Unlock(pollID string) {
	b.setLocked(pollID, false)
}

func (b *Board) setLocked(pollID string, locked bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.byID[pollID]; ok {
		b.polls[i].Locked = locked
	}
}

// Replace swaps the whole board for a fresh listing from the server.
func (b *Board) Replace(polls []entity.Poll) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.polls = make([]PollView, 0, len(polls))
	b.byID = make(map[string]int, len(polls))
	for _, p := range polls {
		b.byID[p.ID] = len(b.polls)
		b.polls = append(b.polls, PollView{Poll: p.Clone(), Locked: b.votedLocked(p)})
	}
}

func (b *Board) Poll(pollID string) (PollView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i, ok := b.byID[pollID]
	if !ok {
		return PollView{}, false
	}
	return copyView(b.polls[i]), true
}

// Snapshot returns a deep copy of the board in display order.
func (b *Board) Snapshot() []PollView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]PollView, len(b.polls))
	for i, v := range b.polls {
		out[i] = copyView(v)
	}
	return out
}

func (b *Board) votedLocked(p entity.Poll) bool {
	return b.userID != "" && p.HasVoter(b.userID)
}

func copyView(v PollView) PollView {
	return PollView{Poll: v.Poll.Clone(), Locked: v.Locked}
}
