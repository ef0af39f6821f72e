package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/14kear/live-voting/internal/live"
	"github.com/14kear/live-voting/internal/liveclient"
	"github.com/14kear/live-voting/utils"
	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
)

// watch prints the live board and accepts "vote <poll-id> <answer>" lines on stdin.
func main() {
	var (
		addr     string
		username string
		password string
		resync   bool
		delay    time.Duration
	)

	flag.StringVar(&addr, "addr", "http://localhost:3000", "server base URL")
	flag.StringVar(&username, "username", "", "log in as this user to vote")
	flag.StringVar(&password, "password", "", "password for -username")
	flag.BoolVar(&resync, "resync", true, "reload all polls after every (re)connect")
	flag.DurationVar(&delay, "reconnect", liveclient.DefaultReconnectDelay, "delay between reconnect attempts")
	flag.Parse()

	log := utils.New(utils.EnvLocal)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := liveclient.NewAPI(addr)

	var userID string
	if username != "" {
		session, err := api.Login(ctx, username, password)
		if err != nil {
			log.Error("failed to log in", sl.Err(err))
			os.Exit(1)
		}
		userID = session.UserID
		log.Info("logged in", slog.String("user_id", userID))
	}

	opts := liveclient.Options{
		URL:            api.LiveURL(),
		Header:         api.Header(),
		ReconnectDelay: delay,
		Log:            log,
		OnChange:       printBoard,
		OnReject: func(m live.VoteRejectedMessage) {
			fmt.Printf("vote on %s rejected: %s\n", m.PollID, m.Reason)
		},
		OnState: func(s liveclient.State) {
			log.Info("live channel state", slog.String("state", s.String()))
		},
	}
	if resync {
		opts.Resync = api.FetchPolls
	}

	client := liveclient.New(opts)
	if userID != "" {
		client.Board().SetUser(userID)
		if me, err := api.Me(ctx); err == nil {
			log.Info("session user",
				slog.String("username", me.Username),
				slog.Int("polls_created", me.PollsCreated),
				slog.Int("polls_voted", me.PollsVoted),
			)
		}
	}

	go readCommands(ctx, log, client)

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("live client stopped", sl.Err(err))
		os.Exit(1)
	}
}

func readCommands(ctx context.Context, log *slog.Logger, client *liveclient.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[0] != "vote" {
			fmt.Println("usage: vote <poll-id> <answer>")
			continue
		}

		pollID, answer := fields[1], strings.Join(fields[2:], " ")
		if view, ok := client.Board().Poll(pollID); ok && view.Locked {
			fmt.Println("already voted on", pollID)
			continue
		}
		if err := client.Vote(ctx, pollID, answer); err != nil {
			log.Warn("failed to send vote", sl.Err(err))
		}
	}
}

func printBoard(board *liveclient.Board) {
	var b strings.Builder
	b.WriteString("\n")
	for _, p := range board.Snapshot() {
		marker := ""
		if p.Locked {
			marker = " (voted)"
		}
		fmt.Fprintf(&b, "%s  %s%s\n", p.ID, p.Question, marker)
		for _, o := range p.Options {
			fmt.Fprintf(&b, "    %-20s %d\n", o.Answer, o.Votes)
		}
	}
	fmt.Print(b.String())
}
