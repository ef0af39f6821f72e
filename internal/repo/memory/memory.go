package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/14kear/live-voting/internal/entity"
	"github.com/14kear/live-voting/internal/repo"
	"github.com/google/uuid"
)

// Storage keeps users, polls and logs in process memory. Every method takes
// the single mutex, so ApplyVote is indivisible with respect to all readers.
type Storage struct {
	mu     sync.RWMutex
	polls  map[string]*entity.Poll
	order  []string
	users  map[string]*entity.User
	byName map[string]string
	logs   []entity.Log
	nextID int64
}

func New() *Storage {
	return &Storage{
		polls:  make(map[string]*entity.Poll),
		users:  make(map[string]*entity.User),
		byName: make(map[string]string),
	}
}

func (s *Storage) SaveUser(ctx context.Context, username string, passHash []byte) (string, error) {
	const op = "storage.memory.SaveUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return "", fmt.Errorf("%s: %w", op, repo.ErrUserAlreadyExists)
	}

	id := uuid.NewString()
	s.users[id] = &entity.User{
		ID:         id,
		Username:   username,
		PassHash:   append([]byte{}, passHash...),
		VotedPolls: []string{},
		CreatedAt:  time.Now(),
	}
	s.byName[username] = id

	return id, nil
}

func (s *Storage) User(ctx context.Context, username string) (entity.User, error) {
	const op = "storage.memory.User"

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return entity.User{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}
	return cloneUser(s.users[id]), nil
}

func (s *Storage) UserByID(ctx context.Context, id string) (entity.User, error) {
	const op = "storage.memory.UserByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return entity.User{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}
	return cloneUser(u), nil
}

func (s *Storage) SavePoll(ctx context.Context, poll entity.Poll) (entity.Poll, error) {
	const op = "storage.memory.SavePoll"

	s.mu.Lock()
	defer s.mu.Unlock()

	creator, ok := s.users[poll.CreatedBy]
	if !ok {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}

	stored := poll.Clone()
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now()
	if stored.Voters == nil {
		stored.Voters = []string{}
	}

	s.polls[stored.ID] = &stored
	s.order = append(s.order, stored.ID)
	creator.PollsCreated++

	return stored.Clone(), nil
}

func (s *Storage) GetPollByID(ctx context.Context, id string) (entity.Poll, error) {
	const op = "storage.memory.GetPollByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.polls[id]
	if !ok {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}
	return p.Clone(), nil
}

func (s *Storage) GetPolls(ctx context.Context) ([]entity.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	polls := make([]entity.Poll, 0, len(s.order))
	for _, id := range s.order {
		polls = append(polls, s.polls[id].Clone())
	}
	return polls, nil
}

func (s *Storage) ApplyVote(ctx context.Context, pollID, answer, userID string) ([]entity.Option, error) {
	const op = "storage.memory.ApplyVote"

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}

	idx := p.OptionIndex(answer)
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", op, repo.ErrOptionNotFound)
	}

	if p.HasVoter(userID) {
		return nil, fmt.Errorf("%s: %w", op, repo.ErrAlreadyVoted)
	}

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}

	p.Options[idx].Votes++
	p.Voters = append(p.Voters, userID)
	u.VotedPolls = append(u.VotedPolls, pollID)
	u.PollsVoted++

	return entity.CloneOptions(p.Options), nil
}

func (s *Storage) SaveLog(ctx context.Context, log *entity.Log) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	log.ID = s.nextID
	log.CreatedAt = time.Now()
	s.logs = append(s.logs, *log)

	return log.ID, nil
}

// GetLogs returns the newest entries first.
func (s *Storage) GetLogs(ctx context.Context) ([]entity.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := append([]entity.Log{}, s.logs...)
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].ID > logs[j].ID })
	return logs, nil
}

func (s *Storage) Close() error {
	return nil
}

func cloneUser(u *entity.User) entity.User {
	c := *u
	c.PassHash = append([]byte{}, u.PassHash...)
	c.VotedPolls = append([]string{}, u.VotedPolls...)
	return c
}
