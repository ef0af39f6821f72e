package auth

//go:generate mockgen -source=auth.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/14kear/live-voting/internal/entity"
	"github.com/14kear/live-voting/internal/lib/jwt"
	"github.com/14kear/live-voting/internal/repo"
	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 6
)

type Auth struct {
	log          *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
	secret       string
	sessionTTL   time.Duration
}

type UserSaver interface {
	SaveUser(ctx context.Context, username string, passHash []byte) (uid string, err error)
}

type UserProvider interface {
	User(ctx context.Context, username string) (user entity.User, err error)
	UserByID(ctx context.Context, id string) (user entity.User, err error)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrValidation         = errors.New("validation error")
)

// NewAuth return a new instance of the Auth service
func NewAuth(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	secret string,
	sessionTTL time.Duration,
) *Auth {
	return &Auth{
		log:          log,
		userSaver:    userSaver,
		userProvider: userProvider,
		secret:       secret,
		sessionTTL:   sessionTTL,
	}
}

// RegisterNewUser registers new user in the system and returns user ID.
// If user with given username already exists, returns error.
func (auth *Auth) RegisterNewUser(ctx context.Context, username, password string) (string, error) {
	const op = "auth.RegisterNewUser"

	username = strings.TrimSpace(username)
	log := auth.log.With(slog.String("op", op), slog.String("username", username))

	if err := validateCredentials(username, password); err != nil {
		log.Info("rejected registration", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("registering user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate hash password", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := auth.userSaver.SaveUser(ctx, username, passHash)
	if err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExists) {
			log.Warn("user already exists", sl.Err(err))
			return "", fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered successfully")
	return id, nil
}

// Login checks the credentials and returns a session token and the user id.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (auth *Auth) Login(ctx context.Context, username, password string) (string, string, error) {
	const op = "auth.Login"

	username = strings.TrimSpace(username)
	log := auth.log.With(slog.String("op", op), slog.String("username", username))

	log.Info("attempting to login user")

	user, err := auth.userProvider.User(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return "", "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := jwt.NewSessionToken(user.ID, user.Username, auth.secret, auth.sessionTTL)
	if err != nil {
		log.Error("failed to generate session token", sl.Err(err))
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("successfully logged in")
	return token, user.ID, nil
}

// ValidateToken returns the user id and username a session token was issued for.
func (auth *Auth) ValidateToken(token string) (string, string, error) {
	const op = "auth.ValidateToken"

	claims, err := jwt.ParseSessionToken(token, auth.secret)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	return claims.UserID, claims.Username, nil
}

func (auth *Auth) User(ctx context.Context, id string) (entity.User, error) {
	const op = "auth.User"

	user, err := auth.userProvider.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return entity.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return entity.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func validateCredentials(username, password string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", ErrValidation, minUsernameLen, maxUsernameLen)
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	return nil
}
