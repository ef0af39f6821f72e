package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/14kear/live-voting/internal/entity"
	"github.com/14kear/live-voting/internal/event"
	"github.com/14kear/live-voting/internal/live"
	"github.com/14kear/live-voting/internal/metrics"
	"github.com/14kear/live-voting/internal/repo/memory"
	"github.com/14kear/live-voting/utils"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []any
}

func (b *recordingBroadcaster) Broadcast(msg any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func (b *recordingBroadcaster) all() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]any{}, b.messages...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type votingFixture struct {
	store       *memory.Storage
	voting      *OnlineVoting
	broadcaster *recordingBroadcaster
	publisher   *recordingPublisher
	metrics     *metrics.Metrics
}

func newVotingFixture(t *testing.T) *votingFixture {
	t.Helper()

	store := memory.New()
	f := &votingFixture{
		store:       store,
		broadcaster: &recordingBroadcaster{},
		publisher:   &recordingPublisher{},
		metrics:     metrics.New(prometheus.NewRegistry()),
	}
	f.voting = NewOnlineVoting(utils.NewDiscard(), NewLedger(store), store, f.broadcaster, f.publisher, f.metrics)
	return f
}

func TestOnlineVoting_CreatePoll(t *testing.T) {
	f := newVotingFixture(t)
	ctx := context.Background()
	creator := newUser(t, f.store)

	question := gofakeit.Question()
	poll, err := f.voting.CreatePoll(ctx, question, []string{"Yes", "No"}, creator)
	require.NoError(t, err)
	assert.NotEmpty(t, poll.ID)
	assert.Equal(t, creator, poll.CreatedBy)

	msgs := f.broadcaster.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, live.NewPoll(poll), msgs[0])

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, event.TypePollCreated, f.publisher.events[0].Type)
	assert.Equal(t, poll.ID, f.publisher.events[0].PollID)

	logs, err := f.voting.GetLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entity.ActionPollCreated, logs[0].Action)
	assert.Equal(t, poll.ID, *logs[0].PollID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PollsCreated))
}

func TestOnlineVoting_CreatePoll_InvalidDoesNotBroadcast(t *testing.T) {
	f := newVotingFixture(t)

	_, err := f.voting.CreatePoll(context.Background(), "Q?", []string{"only"}, newUser(t, f.store))
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.voting.CreatePoll(context.Background(), "Q?", []string{"a", "b"}, "")
	require.ErrorIs(t, err, ErrUnauthenticated)

	assert.Empty(t, f.broadcaster.all())
	assert.Empty(t, f.publisher.events)
}

func TestOnlineVoting_CastVote(t *testing.T) {
	f := newVotingFixture(t)
	ctx := context.Background()

	poll, err := f.voting.CreatePoll(ctx, "Favorite color?", []string{"Red", "Blue"}, newUser(t, f.store))
	require.NoError(t, err)
	voter := newUser(t, f.store)

	options, err := f.voting.CastVote(ctx, poll.ID, "Blue", voter, voter)
	require.NoError(t, err)
	want := []entity.Option{{Answer: "Red", Votes: 0}, {Answer: "Blue", Votes: 1}}
	assert.Equal(t, want, options)

	msgs := f.broadcaster.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, live.VoteUpdate(poll.ID, want), msgs[1])

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, event.TypeVoteCast, f.publisher.events[1].Type)
	assert.Equal(t, "Blue", f.publisher.events[1].Answer)

	logs, err := f.voting.GetLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, entity.ActionVoteCast, logs[0].Action)
	assert.Equal(t, "Blue", *logs[0].Option)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesTotal.WithLabelValues(metrics.ResultAccepted)))
}

func TestOnlineVoting_CastVote_Identity(t *testing.T) {
	f := newVotingFixture(t)
	ctx := context.Background()

	poll, err := f.voting.CreatePoll(ctx, "Favorite color?", []string{"Red", "Blue"}, newUser(t, f.store))
	require.NoError(t, err)
	voter := newUser(t, f.store)
	victim := newUser(t, f.store)

	_, err = f.voting.CastVote(ctx, poll.ID, "Red", voter, victim)
	require.ErrorIs(t, err, ErrIdentityMismatch)

	_, err = f.voting.CastVote(ctx, poll.ID, "Red", "", victim)
	require.ErrorIs(t, err, ErrUnauthenticated)

	stored, err := f.voting.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Voters)
	assert.Len(t, f.broadcaster.all(), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesTotal.WithLabelValues(metrics.ResultIdentityMismatch)))

	_, err = f.voting.CastVote(ctx, poll.ID, "Red", voter, "")
	require.NoError(t, err)
}

func TestOnlineVoting_CastVote_RejectedVoteHasNoSideEffects(t *testing.T) {
	f := newVotingFixture(t)
	ctx := context.Background()

	poll, err := f.voting.CreatePoll(ctx, "Favorite color?", []string{"Red", "Blue"}, newUser(t, f.store))
	require.NoError(t, err)
	voter := newUser(t, f.store)

	_, err = f.voting.CastVote(ctx, poll.ID, "Green", voter, "")
	require.ErrorIs(t, err, ErrOptionNotFound)

	_, err = f.voting.CastVote(ctx, "nope", "Red", voter, "")
	require.ErrorIs(t, err, ErrPollNotFound)

	stored, err := f.voting.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, []entity.Option{{Answer: "Red"}, {Answer: "Blue"}}, stored.Options)

	logs, err := f.voting.GetLogs(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Len(t, f.broadcaster.all(), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesTotal.WithLabelValues(metrics.ResultOptionNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesTotal.WithLabelValues(metrics.ResultPollNotFound)))
}

func TestOnlineVoting_PublishFailureDoesNotFailVote(t *testing.T) {
	f := newVotingFixture(t)
	f.publisher.err = errors.New("broker down")
	ctx := context.Background()

	poll, err := f.voting.CreatePoll(ctx, "Favorite color?", []string{"Red", "Blue"}, newUser(t, f.store))
	require.NoError(t, err)

	voter := newUser(t, f.store)
	_, err = f.voting.CastVote(ctx, poll.ID, "Red", voter, "")
	require.NoError(t, err)
	assert.Len(t, f.broadcaster.all(), 2)
}

func TestOnlineVoting_ListPollsKeepsCreationOrder(t *testing.T) {
	f := newVotingFixture(t)
	ctx := context.Background()
	creator := newUser(t, f.store)

	var ids []string
	for i := 0; i < 5; i++ {
		poll, err := f.voting.CreatePoll(ctx, gofakeit.Question(), []string{"a", "b"}, creator)
		require.NoError(t, err)
		ids = append(ids, poll.ID)
	}

	polls, err := f.voting.ListPolls(ctx)
	require.NoError(t, err)
	require.Len(t, polls, len(ids))
	for i, p := range polls {
		assert.Equal(t, ids[i], p.ID)
	}
}
