package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/14kear/live-voting/internal/entity"
	"github.com/14kear/live-voting/internal/repo"
	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Storage struct {
	db *sql.DB
}

// New opens the database and keeps pinging it with exponential backoff until
// it answers or attempts run out. Only the initial connection is retried.
func New(ctx context.Context, log *slog.Logger, postgresURL string, attempts uint64) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), attempts), ctx)
	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, b, func(err error, next time.Duration) {
		log.Warn("database is not reachable, retrying",
			slog.String("op", op),
			sl.Err(err),
			slog.Duration("next", next),
		)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, username string, passHash []byte) (string, error) {
	const op = "storage.postgres.SaveUser"

	query := `INSERT INTO users (id, username, pass_hash) VALUES ($1, $2, $3)`

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, query, id, username, passHash)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return "", fmt.Errorf("%s: %w", op, repo.ErrUserAlreadyExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) User(ctx context.Context, username string) (entity.User, error) {
	const op = "storage.postgres.User"

	query := `SELECT id, username, pass_hash, voted_polls, polls_created, polls_voted, created_at FROM users WHERE username = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.User{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
		}
		return entity.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UserByID(ctx context.Context, id string) (entity.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT id, username, pass_hash, voted_polls, polls_created, polls_voted, created_at FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.User{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
		}
		return entity.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// SavePoll inserts the poll and bumps the creator's polls_created counter in
// one transaction.
func (s *Storage) SavePoll(ctx context.Context, poll entity.Poll) (entity.Poll, error) {
	const op = "storage.postgres.SavePoll"

	options, err := json.Marshal(poll.Options)
	if err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET polls_created = polls_created + 1 WHERE id = $1`, poll.CreatedBy)
	if err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}

	stored := poll.Clone()
	stored.ID = uuid.NewString()
	stored.Voters = []string{}

	query := `INSERT INTO polls (id, question, options, created_by) VALUES ($1, $2, $3, $4) RETURNING created_at`
	err = tx.QueryRowContext(ctx, query, stored.ID, stored.Question, options, stored.CreatedBy).Scan(&stored.CreatedAt)
	if err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	return stored, nil
}

func (s *Storage) GetPollByID(ctx context.Context, id string) (entity.Poll, error) {
	const op = "storage.postgres.GetPollByID"

	query := `SELECT id, question, options, created_by, voters, created_at FROM polls WHERE id = $1`

	poll, err := scanPoll(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Poll{}, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
		}
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	return poll, nil
}

func (s *Storage) GetPolls(ctx context.Context) ([]entity.Poll, error) {
	const op = "storage.postgres.GetPolls"

	query := `SELECT id, question, options, created_by, voters, created_at FROM polls ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	polls := []entity.Poll{}
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		polls = append(polls, poll)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return polls, nil
}

// ApplyVote is the conditional update: the poll row is locked, the checks run
// against the locked row, and the poll and user rows change in one commit.
func (s *Storage) ApplyVote(ctx context.Context, pollID, answer, userID string) ([]entity.Option, error) {
	const op = "storage.postgres.ApplyVote"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	var (
		rawOptions []byte
		voters     []string
	)
	err = tx.QueryRowContext(ctx, `SELECT options, voters FROM polls WHERE id = $1 FOR UPDATE`, pollID).
		Scan(&rawOptions, pq.Array(&voters))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	poll := entity.Poll{ID: pollID, Voters: voters}
	if err := json.Unmarshal(rawOptions, &poll.Options); err != nil {
		return nil, fmt.Errorf("%s: decode options: %w", op, err)
	}

	idx := poll.OptionIndex(answer)
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", op, repo.ErrOptionNotFound)
	}
	if poll.HasVoter(userID) {
		return nil, fmt.Errorf("%s: %w", op, repo.ErrAlreadyVoted)
	}

	poll.Options[idx].Votes++
	updated, err := json.Marshal(poll.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET voted_polls = array_append(voted_polls, $1), polls_voted = polls_voted + 1 WHERE id = $2`,
		pollID, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE polls SET options = $1, voters = array_append(voters, $2) WHERE id = $3`,
		updated, userID, pollID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return poll.Options, nil
}

func (s *Storage) SaveLog(ctx context.Context, log *entity.Log) (int64, error) {
	const op = "storage.postgres.SaveLog"

	query := `INSERT INTO logs (user_id, action, poll_id, option) VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, log.UserID, log.Action, log.PollID, log.Option).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return log.ID, nil
}

func (s *Storage) GetLogs(ctx context.Context) ([]entity.Log, error) {
	const op = "storage.postgres.GetLogs"

	query := `SELECT id, user_id, action, poll_id, option, created_at FROM logs ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	logs := []entity.Log{}
	for rows.Next() {
		var log entity.Log
		if err := rows.Scan(&log.ID, &log.UserID, &log.Action, &log.PollID, &log.Option, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return logs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoll(row rowScanner) (entity.Poll, error) {
	var (
		poll       entity.Poll
		rawOptions []byte
	)
	err := row.Scan(&poll.ID, &poll.Question, &rawOptions, &poll.CreatedBy, pq.Array(&poll.Voters), &poll.CreatedAt)
	if err != nil {
		return entity.Poll{}, err
	}
	if err := json.Unmarshal(rawOptions, &poll.Options); err != nil {
		return entity.Poll{}, fmt.Errorf("decode options: %w", err)
	}
	if poll.Voters == nil {
		poll.Voters = []string{}
	}
	return poll, nil
}

func scanUser(row rowScanner) (entity.User, error) {
	var user entity.User
	err := row.Scan(&user.ID, &user.Username, &user.PassHash, pq.Array(&user.VotedPolls),
		&user.PollsCreated, &user.PollsVoted, &user.CreatedAt)
	if err != nil {
		return entity.User{}, err
	}
	if user.VotedPolls == nil {
		user.VotedPolls = []string{}
	}
	return user, nil
}
