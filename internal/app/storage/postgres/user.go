package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/google/uuid"
)

// storage.UserRepository interface implementation
var _ storage.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	db *sql.DB
}

func (r *UserRepository) LoggerComponent() string {
	return "UserRepository"
}

func NewUserRepository(db *sql.DB) (*UserRepository, error) {
	s := &UserRepository{
		db: db,
	}
	return s, nil
}

// Create implementation of interface storage.UserRepository
func (r *UserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	hash, err := storage.HashPassword(user.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	const SQL = `
		INSERT INTO users (name, password, role)
		VALUES ($1, $2, $3)
		RETURNING id, balance, created_at
`

	err = r.db.QueryRowContext(ctx, SQL, user.Name, hash, user.Role).Scan(&user.ID, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, mapError("insert user", err)
	}

	user.Password = ""
	return user, nil
}

// Read implementation of interface storage.UserRepository
func (r *UserRepository) Read(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const SQL = `
		SELECT id, name, role, balance, created_at
		FROM users
		WHERE id=$1
`
	user := &model.User{}

	err := r.db.QueryRowContext(ctx, SQL, id).Scan(&user.ID, &user.Name, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, mapError("select user", err)
	}

	return user, nil
}

// ReadByNameAndPassword implementation of interface storage.UserRepository
func (r *UserRepository) ReadByNameAndPassword(ctx context.Context, name string, password string) (*model.User, error) {
	const SQL = `
		SELECT id, name, password, role, balance, created_at
		FROM users
		WHERE name=$1
`
	user := &model.User{}

	err := r.db.QueryRowContext(ctx, SQL, name).Scan(&user.ID, &user.Name, &user.Password, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, mapError("select user", err)
	}

	ok, err := storage.CheckPassword(password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}

	user.Password = ""
	return user, nil
}
