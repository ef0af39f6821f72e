package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const typeSession = "session"

var ErrInvalidToken = errors.New("invalid session token")

type Claims struct {
	UserID   string
	Username string
}

func NewSessionToken(userID, username, secret string, ttl time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)

	claims["uid"] = userID
	claims["username"] = username
	claims["typ"] = typeSession
	claims["exp"] = time.Now().Add(ttl).Unix()

	return token.SignedString([]byte(secret))
}

// ParseSessionToken verifies the signature, expiry and token type and returns
// the identity the token was issued for.
func ParseSessionToken(tokenString, secret string) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	if typ, _ := claims["typ"].(string); typ != typeSession {
		return Claims{}, fmt.Errorf("%w: expected %s token, got %v", ErrInvalidToken, typeSession, claims["typ"])
	}

	uid, ok := claims["uid"].(string)
	if !ok || uid == "" {
		return Claims{}, fmt.Errorf("%w: uid claim missing", ErrInvalidToken)
	}

	username, _ := claims["username"].(string)

	return Claims{UserID: uid, Username: username}, nil
}
