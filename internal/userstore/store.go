// Package userstore is an in-memory credential directory backed by Argon2id
// hashes. It serves the daemon's seeded accounts and the test suites; real
// deployments plug their own verifier into the engine.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/password"
	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials is returned for unknown identifiers and wrong
	// passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateUser is returned by Add when the username or email is taken.
	ErrDuplicateUser = errors.New("user already exists")
)

// User is a directory entry.
type User struct {
	ID       string
	Username string
	Email    string
	Hash     string
}

// Seed describes an account to create with a plaintext password.
type Seed struct {
	ID       string
	Username string
	Email    string
	Password string
}

// Store maps usernames and emails to users.
type Store struct {
	hasher *password.Hasher
	// dummy is verified against for unknown identifiers so both paths pay
	// the same Argon2 cost.
	dummy string

	mu      sync.RWMutex
	byID    map[string]*User
	byName  map[string]*User
	byEmail map[string]*User
}

// New creates an empty store.
func New(hasher *password.Hasher) (*Store, error) {
	dummy, err := hasher.Hash("gosession-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("userstore: dummy hash: %w", err)
	}
	return &Store{
		hasher:  hasher,
		dummy:   dummy,
		byID:    make(map[string]*User),
		byName:  make(map[string]*User),
		byEmail: make(map[string]*User),
	}, nil
}

// Add hashes seed.Password and registers the account. An empty ID gets a
// random UUID.
func (s *Store) Add(seed Seed) (User, error) {
	name := normalize(seed.Username)
	email := normalize(seed.Email)
	if name == "" {
		return User{}, errors.New("userstore: username is required")
	}

	hash, err := s.hasher.Hash(seed.Password)
	if err != nil {
		return User{}, fmt.Errorf("userstore: %w", err)
	}
	id := seed.ID
	if id == "" {
		id = uuid.NewString()
	}
	u := &User{ID: id, Username: seed.Username, Email: seed.Email, Hash: hash}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; ok {
		return User{}, fmt.Errorf("%w: %s", ErrDuplicateUser, seed.Username)
	}
	if _, ok := s.byID[id]; ok {
		return User{}, fmt.Errorf("%w: id %s", ErrDuplicateUser, id)
	}
	if email != "" {
		if _, ok := s.byEmail[email]; ok {
			return User{}, fmt.Errorf("%w: %s", ErrDuplicateUser, seed.Email)
		}
		s.byEmail[email] = u
	}
	s.byName[name] = u
	s.byID[id] = u
	return *u, nil
}

// Lookup finds a user by username or email.
func (s *Store) Lookup(identifier string) (User, bool) {
	key := normalize(identifier)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byName[key]; ok {
		return *u, true
	}
	if u, ok := s.byEmail[key]; ok {
		return *u, true
	}
	return User{}, false
}

// ByID returns the user with the given id.
func (s *Store) ByID(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// Username returns the display name for id, or "".
func (s *Store) Username(id string) string {
	u, _ := s.ByID(id)
	return u.Username
}

// VerifyCredentials adapts [Store.Verify] to [goSession.CredentialVerifier].
func (s *Store) VerifyCredentials(ctx context.Context, identifier, plain string) (goSession.Principal, error) {
	u, err := s.Verify(ctx, identifier, plain)
	if err != nil {
		return goSession.Principal{}, err
	}
	return goSession.Principal{UserID: u.ID, Username: u.Username}, nil
}

// Verify checks password against the account named by identifier.
func (s *Store) Verify(ctx context.Context, identifier, plain string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	u, found := s.Lookup(identifier)
	hash := s.dummy
	if found {
		hash = u.Hash
	}

	ok, err := s.hasher.Verify(plain, hash)
	if err != nil {
		return User{}, fmt.Errorf("userstore: %w", err)
	}
	if !ok || !found {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
