package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/app/model"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const defaultTokenLifetime = time.Hour

type Creator interface {
	// Create a session for the user and return its signed token
	Create(ctx context.Context, u *model.User) (string, error)
}

type Reader interface {
	// Read validates the token and returns the session user
	Read(ctx context.Context, token string) (*model.User, error)
}

type Manager interface {
	Creator
	Reader
}

type Claims struct {
	jwt.StandardClaims
	Role string `json:"role,omitempty"`
}

// Session is the server-side record a token points to by its jti
type Session struct {
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uuid.UUID `json:"user_id"`
}

// signer issues and verifies HS256 tokens
type signer struct {
	issuer        string
	secretKey     []byte
	tokenLifetime time.Duration
}

func (s signer) sign(u *model.User, now time.Time) (string, string, Session, error) {
	id := uuid.New().String()
	exp := now.Add(s.tokenLifetime)

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        id,
			Subject:   u.ID.String(),
			NotBefore: now.Unix(),
			ExpiresAt: exp.Unix(),
			Issuer:    s.issuer,
		},
		Role: u.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", "", Session{}, fmt.Errorf("jwt encode: %w", err)
	}

	return id, token, Session{UserID: u.ID, StartedAt: now, ExpiresAt: exp}, nil
}

// parse returns the session id of a valid token
func (s signer) parse(tokenString string) (string, error) {
	c := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || c.Id == "" {
		return "", ErrInvalidToken
	}

	return c.Id, nil
}

type Option func(s *signer)

func WithIssuer(issuer string) Option {
	return func(s *signer) {
		s.issuer = issuer
	}
}

func WithTokenLifetime(d time.Duration) Option {
	return func(s *signer) {
		if d > 0 {
			s.tokenLifetime = d
		}
	}
}

func newSigner(secretKey string, opts []Option) signer {
	s := signer{
		secretKey:     []byte(secretKey),
		tokenLifetime: defaultTokenLifetime,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
