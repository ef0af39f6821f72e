package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	httpapp "github.com/14kear/live-voting/internal/app/http"
	"github.com/14kear/live-voting/internal/entity"
	"github.com/14kear/live-voting/internal/event"
	"github.com/14kear/live-voting/internal/handlers"
	"github.com/14kear/live-voting/internal/live"
	"github.com/14kear/live-voting/internal/metrics"
	"github.com/14kear/live-voting/internal/middleware"
	"github.com/14kear/live-voting/internal/repo/memory"
	"github.com/14kear/live-voting/internal/services"
	"github.com/14kear/live-voting/internal/services/auth"
	"github.com/14kear/live-voting/utils"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine *gin.Engine
	hub    *live.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := utils.NewDiscard()
	store := memory.New()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	hub := live.NewHub(log, m)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	voting := services.NewOnlineVoting(log, services.NewLedger(store), store, hub, event.NopPublisher{}, m)
	authService := auth.NewAuth(log, store, store, "test-secret", time.Hour)

	app := httpapp.NewApp(log, 0, nil, httpapp.Handlers{
		Voting: handlers.NewVotingHandler(voting),
		Auth:   handlers.NewAuthHandler(authService, time.Hour, false),
		Live:   handlers.NewLiveHandler(log, hub, voting, live.ClientOptions{SendBuffer: 16, WriteTimeout: time.Second}, nil),
	}, middleware.NewAuthMiddleware(authService), registry)

	return &testServer{engine: app.Engine(), hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) signUp(t *testing.T) (string, string) {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"username": gofakeit.LetterN(12),
		"password": gofakeit.Password(true, true, true, false, false, 10),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.UserID, resp.Token
}

func (s *testServer) createPoll(t *testing.T, token string) entity.Poll {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/voting/polls", token, gin.H{
		"question": "Favorite color?",
		"options":  []string{"Red", "Blue"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Poll entity.Poll `json:"poll"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Poll
}

func TestPing(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestAuth_SignUpLoginMe(t *testing.T) {
	s := newTestServer(t)

	username := gofakeit.LetterN(10)
	w := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"username": username, "password": "secret-pass"})
	require.Equal(t, http.StatusCreated, w.Code)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)

	w = s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"username": username, "password": "secret-pass"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": "secret-pass"})
	require.Equal(t, http.StatusOK, w.Code)

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = s.do(t, http.MethodGet, "/api/voting/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"`+username+`"`)
	assert.NotContains(t, w.Body.String(), "passHash")

	w = s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"username": "ab", "password": "secret-pass"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoting_CreateAndVote(t *testing.T) {
	s := newTestServer(t)
	_, creatorToken := s.signUp(t)
	voterID, voterToken := s.signUp(t)

	poll := s.createPoll(t, creatorToken)

	w := s.do(t, http.MethodGet, "/api/voting/polls", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Polls []entity.Poll `json:"polls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Polls, 1)
	assert.Equal(t, []entity.Option{{Answer: "Red"}, {Answer: "Blue"}}, list.Polls[0].Options)

	votePath := "/api/voting/polls/" + poll.ID + "/vote"

	w = s.do(t, http.MethodPost, votePath, voterToken, gin.H{"selected_option": "Blue"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"options":[{"answer":"Red","votes":0},{"answer":"Blue","votes":1}]}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/voting/polls/"+poll.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var single struct {
		Poll entity.Poll `json:"poll"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &single))
	assert.Equal(t, []string{voterID}, single.Poll.Voters)

	w = s.do(t, http.MethodGet, "/api/voting/logs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), entity.ActionVoteCast)
}

func TestVoting_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	_, creatorToken := s.signUp(t)
	voterID, voterToken := s.signUp(t)
	otherID, _ := s.signUp(t)

	poll := s.createPoll(t, creatorToken)
	votePath := "/api/voting/polls/" + poll.ID + "/vote"

	w := s.do(t, http.MethodPost, votePath, voterToken, gin.H{"selected_option": "Red", "user_id": voterID})
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
	}{
		{name: "already voted", method: http.MethodPost, path: votePath, token: voterToken, body: gin.H{"selected_option": "Blue"}, wantStatus: http.StatusConflict},
		{name: "unknown option", method: http.MethodPost, path: votePath, token: creatorToken, body: gin.H{"selected_option": "Green"}, wantStatus: http.StatusBadRequest},
		{name: "unknown poll", method: http.MethodPost, path: "/api/voting/polls/nope/vote", token: creatorToken, body: gin.H{"selected_option": "Red"}, wantStatus: http.StatusNotFound},
		{name: "identity mismatch", method: http.MethodPost, path: votePath, token: creatorToken, body: gin.H{"selected_option": "Red", "user_id": otherID}, wantStatus: http.StatusForbidden},
		{name: "no session", method: http.MethodPost, path: votePath, body: gin.H{"selected_option": "Red"}, wantStatus: http.StatusUnauthorized},
		{name: "missing option", method: http.MethodPost, path: votePath, token: creatorToken, body: gin.H{}, wantStatus: http.StatusBadRequest},
		{name: "poll lookup", method: http.MethodGet, path: "/api/voting/polls/nope", wantStatus: http.StatusNotFound},
		{name: "invalid poll", method: http.MethodPost, path: "/api/voting/polls", token: creatorToken, body: gin.H{"question": "Q?", "options": []string{"only"}}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestVoting_FormSubmissionRedirects(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t)

	form := url.Values{"question": {"Lunch?"}, "options": {"Pizza", "Sushi"}}
	req := httptest.NewRequest(http.MethodPost, "/api/voting/polls", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = s.do(t, http.MethodGet, "/api/voting/polls", "", nil)
	assert.Contains(t, w.Body.String(), `"question":"Lunch?"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t)
	s.createPoll(t, token)

	w := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "livepolls_ledger_polls_created_total 1")
}

func dialLive(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	msg, err := live.Decode(data)
	require.NoError(t, err)
	return msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()

	data, err := live.Encode(msg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestLive_VoteIsBroadcastToEveryChannel(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	_, creatorToken := s.signUp(t)
	_, voterToken := s.signUp(t)

	voter := dialLive(t, srv, voterToken)
	watcher := dialLive(t, srv, "")
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	poll := s.createPoll(t, creatorToken)
	for _, conn := range []*websocket.Conn{voter, watcher} {
		msg := readMessage(t, conn)
		created, ok := msg.(*live.NewPollMessage)
		require.True(t, ok, "got %#v", msg)
		assert.Equal(t, poll.ID, created.Poll.ID)
	}

	writeMessage(t, voter, live.Vote(poll.ID, "Blue", ""))

	want := []entity.Option{{Answer: "Red", Votes: 0}, {Answer: "Blue", Votes: 1}}
	for _, conn := range []*websocket.Conn{voter, watcher} {
		msg := readMessage(t, conn)
		update, ok := msg.(*live.VoteUpdateMessage)
		require.True(t, ok, "got %#v", msg)
		assert.Equal(t, poll.ID, update.PollID)
		assert.Equal(t, want, update.UpdatedOptions)
	}
}

func TestLive_RejectedVoteOnlyReachesSender(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	_, creatorToken := s.signUp(t)
	poll := s.createPoll(t, creatorToken)

	anonymous := dialLive(t, srv, "")
	watcher := dialLive(t, srv, creatorToken)
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	writeMessage(t, anonymous, live.Vote(poll.ID, "Red", ""))
	msg := readMessage(t, anonymous)
	rejected, ok := msg.(*live.VoteRejectedMessage)
	require.True(t, ok, "got %#v", msg)
	assert.Equal(t, live.ReasonUnauthenticated, rejected.Reason)

	writeMessage(t, anonymous, map[string]string{"type": "typing"})
	writeMessage(t, watcher, live.Vote(poll.ID, "Green", ""))
	msg = readMessage(t, watcher)
	rejected, ok = msg.(*live.VoteRejectedMessage)
	require.True(t, ok, "got %#v", msg)
	assert.Equal(t, live.ReasonOptionNotFound, rejected.Reason)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := anonymous.Read(ctx)
	assert.Error(t, err, "anonymous channel must not see the watcher's rejection")
}

func TestLive_DisconnectUnregisters(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	conn := dialLive(t, srv, "")
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
