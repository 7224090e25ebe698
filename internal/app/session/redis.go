package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/app/logger"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/go-redis/redis/v8"
)

// session.Manager interface implementation
var _ Manager = (*Redis)(nil)

const redisKeyPrefix = "session:"

// Redis keeps sessions in Redis so every instance of the service accepts the same tokens
type Redis struct {
	signer signer
	client redis.UniversalClient
	users  storage.UserRepository
}

func (svc *Redis) LoggerComponent() string {
	return "Session.Redis"
}

func NewRedis(secretKey string, client redis.UniversalClient, users storage.UserRepository, opts ...Option) *Redis {
	return &Redis{
		signer: newSigner(secretKey, opts),
		client: client,
		users:  users,
	}
}

// Create method of session.Creator implementation
func (svc *Redis) Create(ctx context.Context, u *model.User) (string, error) {
	l := logger.Get(ctx, svc)
	l.Debug().Str("user_id", u.ID.String()).Msg("Create")

	id, token, s, err := svc.signer.sign(u, time.Now())
	if err != nil {
		l.Error().Err(err).Send()
		return "", err
	}

	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("session encode: %w", err)
	}

	if err := svc.client.Set(ctx, redisKeyPrefix+id, b, svc.signer.tokenLifetime).Err(); err != nil {
		l.Error().Err(err).Msg("Session store failed")
		return "", fmt.Errorf("session store: %w", err)
	}

	return token, nil
}

// Read method of session.Reader implementation
func (svc *Redis) Read(ctx context.Context, tokenString string) (*model.User, error) {
	l := logger.Get(ctx, svc)

	id, err := svc.signer.parse(tokenString)
	if err != nil {
		l.Debug().Err(err).Msg("Token rejected")
		return nil, ErrInvalidToken
	}

	b, err := svc.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.Warn().Err(err).Msg("Session load failed")
		}
		return nil, ErrInvalidToken
	}

	s := Session{}
	if err := json.Unmarshal(b, &s); err != nil {
		l.Warn().Err(err).Msg("Session decode failed")
		return nil, ErrInvalidToken
	}

	u, err := svc.users.Read(ctx, s.UserID)
	if err != nil {
		l.Debug().Err(err).Send()
		return nil, ErrInvalidToken
	}

	return u, nil
}
