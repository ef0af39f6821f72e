package liveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/14kear/live-voting/internal/entity"
)

// API is a small client for the HTTP endpoints the live client needs.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
}

type Session struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func NewAPI(baseURL string) *API {
	return &API{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: http.DefaultClient}
}

// SignUp registers a user and keeps the new session on the API.
func (a *API) SignUp(ctx context.Context, username, password string) (Session, error) {
	const op = "liveclient.API.SignUp"

	var session Session
	if err := a.do(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"username": username,
		"password": password,
	}, &session); err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	a.Token = session.Token
	return session, nil
}

// Login stores the returned token on the API for later calls.
func (a *API) Login(ctx context.Context, username, password string) (Session, error) {
	const op = "liveclient.API.Login"

	var session Session
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &session); err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	a.Token = session.Token
	return session, nil
}

// FetchPolls has the signature Options.Resync expects.
func (a *API) FetchPolls(ctx context.Context) ([]entity.Poll, error) {
	const op = "liveclient.API.FetchPolls"

	var resp struct {
		Polls []entity.Poll `json:"polls"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/voting/polls", nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return resp.Polls, nil
}

func (a *API) Me(ctx context.Context) (entity.User, error) {
	const op = "liveclient.API.Me"

	var resp struct {
		User entity.User `json:"user"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/voting/me", nil, &resp); err != nil {
		return entity.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return resp.User, nil
}

// Header returns the handshake header carrying the session, if any.
func (a *API) Header() http.Header {
	h := http.Header{}
	if a.Token != "" {
		h.Set("Authorization", "Bearer "+a.Token)
	}
	return h
}

// LiveURL derives the websocket endpoint from the base URL.
func (a *API) LiveURL() string {
	switch {
	case strings.HasPrefix(a.BaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(a.BaseURL, "https://") + "/ws"
	case strings.HasPrefix(a.BaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(a.BaseURL, "http://") + "/ws"
	default:
		return a.BaseURL + "/ws"
	}
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
