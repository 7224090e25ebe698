package memory

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// storage.UserRepository interface implementation
var _ storage.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) LoggerComponent() string {
	return "MemoryUserRepository"
}

// Create implementation of interface storage.UserRepository
func (r *UserRepository) Create(_ context.Context, m *model.User) (*model.User, error) {
	hash, err := storage.HashPassword(m.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.userNames[m.Name]; ok {
		return nil, apperr.ErrConflict
	}

	u := *m
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	u.Password = hash
	u.Balance = decimal.Zero
	u.CreatedAt = time.Now().UTC()

	r.db.users[u.ID] = u
	r.db.userNames[u.Name] = u.ID

	out := u
	out.Password = ""
	return &out, nil
}

// Read implementation of interface storage.UserRepository
func (r *UserRepository) Read(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	u.Password = ""
	return &u, nil
}

// ReadByNameAndPassword implementation of interface storage.UserRepository
func (r *UserRepository) ReadByNameAndPassword(_ context.Context, name string, password string) (*model.User, error) {
	r.db.mu.RLock()
	id, ok := r.db.userNames[name]
	u := r.db.users[id]
	r.db.mu.RUnlock()

	if !ok {
		return nil, apperr.ErrNotFound
	}
	match, err := storage.CheckPassword(password, u.Password)
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !match {
		return nil, apperr.ErrNotFound
	}

	u.Password = ""
	return &u, nil
}
