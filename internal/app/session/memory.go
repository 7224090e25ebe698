package session

import (
	"context"
	"sync"
	"time"

	"backoffice/internal/app/logger"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
)

// session.Manager interface implementation
var _ Manager = (*Memory)(nil)

type Memory struct {
	mu     sync.RWMutex
	signer signer
	users  storage.UserRepository
	db     map[string]Session
}

func (svc *Memory) LoggerComponent() string {
	return "Session.Memory"
}

func NewMemory(secretKey string, users storage.UserRepository, opts ...Option) *Memory {
	return &Memory{
		signer: newSigner(secretKey, opts),
		users:  users,
		db:     make(map[string]Session),
	}
}

// Create method of session.Creator implementation
func (svc *Memory) Create(ctx context.Context, u *model.User) (string, error) {
	l := logger.Get(ctx, svc)
	l.Debug().Str("user_id", u.ID.String()).Msg("Create")

	id, token, s, err := svc.signer.sign(u, time.Now())
	if err != nil {
		l.Error().Err(err).Send()
		return "", err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.db[id] = s

	return token, nil
}

// Read method of session.Reader implementation
func (svc *Memory) Read(ctx context.Context, tokenString string) (*model.User, error) {
	l := logger.Get(ctx, svc)

	id, err := svc.signer.parse(tokenString)
	if err != nil {
		l.Debug().Err(err).Msg("Token rejected")
		return nil, ErrInvalidToken
	}

	svc.mu.Lock()
	s, ok := svc.db[id]
	if ok && s.ExpiresAt.Before(time.Now()) {
		l.Debug().
			Str("session_id", id).
			Str("user_id", s.UserID.String()).
			Msg("Session expired")
		delete(svc.db, id)
		ok = false
	}
	svc.mu.Unlock()

	if !ok {
		l.Debug().Str("session_id", id).Msg("Session not found")
		return nil, ErrInvalidToken
	}

	u, err := svc.users.Read(ctx, s.UserID)
	if err != nil {
		l.Debug().Err(err).Send()
		return nil, ErrInvalidToken
	}

	return u, nil
}
