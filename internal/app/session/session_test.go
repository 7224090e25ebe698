package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/app/model"
	"backoffice/internal/app/storage/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt"
)

func newUser(t *testing.T) (*memory.UserRepository, *model.User) {
	t.Helper()
	users := memory.NewUserRepository(memory.NewDB())
	u, err := users.Create(context.Background(), &model.User{Name: "alice", Password: "correct horse", Role: model.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	return users, u
}

func testManager(t *testing.T, m Manager, u *model.User) {
	t.Helper()
	ctx := context.Background()

	token, err := m.Create(ctx, u)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := m.Read(ctx, token)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.ID != u.ID || !got.IsAdmin() {
		t.Errorf("Read() = %+v, want %+v", got, u)
	}

	if _, err := m.Read(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Read(garbage) error = %v", err)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		StandardClaims: jwt.StandardClaims{Id: "x", ExpiresAt: time.Now().Add(time.Hour).Unix()},
	}).SignedString([]byte("other secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Read(ctx, forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Read(forged) error = %v", err)
	}
}

func TestMemory(t *testing.T) {
	users, u := newUser(t)
	testManager(t, NewMemory("secret", users), u)
}

func TestMemory_UnknownSession(t *testing.T) {
	users, u := newUser(t)
	a := NewMemory("secret", users)
	b := NewMemory("secret", users)

	token, err := a.Create(context.Background(), u)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Read(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Read() on another store error = %v, want invalid token", err)
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	users, u := newUser(t)
	testManager(t, NewRedis("secret", client, users, WithTokenLifetime(time.Minute)), u)
}

func TestRedis_SharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	users, u := newUser(t)
	token, err := NewRedis("secret", client, users).Create(context.Background(), u)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewRedis("secret", client, users).Read(context.Background(), token); err != nil {
		t.Fatalf("Read() on second instance error = %v", err)
	}
}

func TestRedis_SessionExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	users, u := newUser(t)
	m := NewRedis("secret", client, users, WithTokenLifetime(time.Minute))

	token, err := m.Create(context.Background(), u)
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := m.Read(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Read() after ttl error = %v, want invalid token", err)
	}
}
