// Package repofake provides an in-memory users.Directory for tests and for
// running the server without an external user store.
package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/avasquez-dev/go-token-service/users"
	"github.com/google/uuid"
)

var (
	_ users.Directory = (*FakeDirectory)(nil)
	_ users.Registrar = (*FakeDirectory)(nil)
)

type FakeDirectory struct {
	byUsername map[string]*users.User
	byID       map[string]*users.User
	lock       sync.RWMutex
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		byUsername: make(map[string]*users.User),
		byID:       make(map[string]*users.User),
	}
}

func (d *FakeDirectory) Create(_ context.Context, username, password string) (*users.User, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if _, ok := d.byUsername[username]; ok {
		return nil, users.ErrUsernameTaken
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &users.User{
		ID:           uuid.New().String(),
		Username:     username,
		DisplayName:  username,
		PasswordHash: hash,
		DateJoined:   time.Now(),
	}
	d.byUsername[username] = user
	d.byID[user.ID] = user
	return copyUser(user), nil
}

func (d *FakeDirectory) Authenticate(_ context.Context, username, password string) (*users.User, error) {
	d.lock.RLock()
	user, ok := d.byUsername[username]
	d.lock.RUnlock()

	// Burn a bcrypt comparison even for unknown usernames so the two
	// failure modes take comparable time.
	if !ok {
		_ = users.CheckPasswordHash(password, unknownUserHash)
		return nil, users.ErrInvalidCredentials
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, users.ErrInvalidCredentials
	}

	d.lock.Lock()
	user.LastLogin = time.Now()
	d.lock.Unlock()

	return copyUser(user), nil
}

func (d *FakeDirectory) GetByID(_ context.Context, id string) (*users.User, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	user, ok := d.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return copyUser(user), nil
}

// unknownUserHash is a bcrypt hash of an unguessable throwaway value.
const unknownUserHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func copyUser(u *users.User) *users.User {
	c := *u
	return &c
}
