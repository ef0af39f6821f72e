package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/14kear/live-voting/internal/entity"
	"github.com/14kear/live-voting/internal/repo"
)

const minOptions = 2

type PollStorage interface {
	SavePoll(ctx context.Context, poll entity.Poll) (entity.Poll, error)
	GetPollByID(ctx context.Context, id string) (entity.Poll, error)
	GetPolls(ctx context.Context) ([]entity.Poll, error)
	ApplyVote(ctx context.Context, pollID, answer, userID string) ([]entity.Option, error)
}

// Ledger is the only writer of poll tallies. Votes on the same poll are
// applied one at a time in arrival order; different polls do not wait on each
// other.
type Ledger struct {
	polls PollStorage
	locks *keyedMutex
}

func NewLedger(polls PollStorage) *Ledger {
	return &Ledger{
		polls: polls,
		locks: newKeyedMutex(),
	}
}

// CastVote records userID's vote for selectedAnswer and returns the poll's
// options after the increment.
func (l *Ledger) CastVote(ctx context.Context, pollID, selectedAnswer, userID string) ([]entity.Option, error) {
	const op = "Ledger.CastVote"

	if pollID == "" || userID == "" {
		return nil, fmt.Errorf("%s: %w: poll id and user id are required", op, ErrValidation)
	}

	unlock := l.locks.Lock(pollID)
	defer unlock()

	options, err := l.polls.ApplyVote(ctx, pollID, selectedAnswer, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStoreErr(err))
	}

	return options, nil
}

// CreatePoll validates the input and stores a poll with every counter at zero.
func (l *Ledger) CreatePoll(ctx context.Context, question string, answers []string, creatorID string) (entity.Poll, error) {
	const op = "Ledger.CreatePoll"

	if creatorID == "" {
		return entity.Poll{}, fmt.Errorf("%s: %w: creator is required", op, ErrValidation)
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return entity.Poll{}, fmt.Errorf("%s: %w: question must not be empty", op, ErrValidation)
	}

	options, err := buildOptions(answers)
	if err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	poll, err := l.polls.SavePoll(ctx, entity.Poll{
		Question:  question,
		Options:   options,
		CreatedBy: creatorID,
		Voters:    []string{},
	})
	if err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, mapStoreErr(err))
	}

	return poll, nil
}

func (l *Ledger) ListPolls(ctx context.Context) ([]entity.Poll, error) {
	const op = "Ledger.ListPolls"

	polls, err := l.polls.GetPolls(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStoreErr(err))
	}

	return polls, nil
}

func (l *Ledger) GetPoll(ctx context.Context, id string) (entity.Poll, error) {
	const op = "Ledger.GetPoll"

	poll, err := l.polls.GetPollByID(ctx, id)
	if err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, mapStoreErr(err))
	}

	return poll, nil
}

func buildOptions(answers []string) ([]entity.Option, error) {
	options := make([]entity.Option, 0, len(answers))
	seen := make(map[string]struct{}, len(answers))

	for _, answer := range answers {
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return nil, fmt.Errorf("%w: options must not be empty", ErrValidation)
		}
		if _, dup := seen[answer]; dup {
			return nil, fmt.Errorf("%w: duplicate option %q", ErrValidation, answer)
		}
		seen[answer] = struct{}{}
		options = append(options, entity.Option{Answer: answer})
	}

	if len(options) < minOptions {
		return nil, fmt.Errorf("%w: at least %d options are required", ErrValidation, minOptions)
	}

	return options, nil
}

// mapStoreErr turns storage sentinels into ledger errors. Anything the store
// does not name is treated as the store being unavailable.
func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repo.ErrPollNotFound):
		return ErrPollNotFound
	case errors.Is(err, repo.ErrOptionNotFound):
		return ErrOptionNotFound
	case errors.Is(err, repo.ErrAlreadyVoted):
		return ErrAlreadyVoted
	case errors.Is(err, repo.ErrUserNotFound):
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
