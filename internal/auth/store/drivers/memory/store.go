// Package memory is an in-process credential store for tests and single-node
// development. State is lost on exit.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

var ErrClosed = errors.New("memory store: closed")

type state struct {
	users     map[string]domain.User // by id
	usernames map[string]string      // folded username -> id
	roles     map[string]domain.Role // by id
	roleNames map[string]string      // name -> id
}

func newState() *state {
	return &state{
		users:     make(map[string]domain.User),
		usernames: make(map[string]string),
		roles:     make(map[string]domain.Role),
		roleNames: make(map[string]string),
	}
}

func (st *state) clone() *state {
	return &state{
		users:     maps.Clone(st.users),
		usernames: maps.Clone(st.usernames),
		roles:     maps.Clone(st.roles),
		roleNames: maps.Clone(st.roleNames),
	}
}

type Store struct {
	mu     sync.RWMutex
	st     *state
	closed bool
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Users() store.Users { return &usersRepo{s: s} }
func (s *Store) Roles() store.Roles { return &rolesRepo{s: s} }

// ApplyMigrations is a no-op; the schema is the Go types.
func (s *Store) ApplyMigrations() error { return nil }

// WithTx runs fn against a private copy of the state and publishes it only if
// fn succeeds. Writers are serialized for the duration of fn, so fn must use
// the repos of tx and never those of the Store itself.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	work := s.st.clone()
	if err := fn(&txStore{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.st)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.st)
}

type txStore struct {
	st *state
}

func (t *txStore) Users() store.Users { return &usersRepo{tx: t.st} }
func (t *txStore) Roles() store.Roles { return &rolesRepo{tx: t.st} }

// access picks the transaction state when present, otherwise locks the store.
type access struct {
	s  *Store
	tx *state
}

func (a access) read(ctx context.Context, fn func(st *state) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	return a.s.read(ctx, fn)
}

func (a access) write(ctx context.Context, fn func(st *state) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	return a.s.write(ctx, fn)
}

func foldUsername(u string) string { return strings.ToLower(u) }

func copyUser(u domain.User) domain.User {
	if u.MFASecret != nil {
		v := *u.MFASecret
		u.MFASecret = &v
	}
	if u.MFAEnabled != nil {
		v := *u.MFAEnabled
		u.MFAEnabled = &v
	}
	return u
}

func copyRole(r domain.Role) domain.Role {
	r.Capabilities = slices.Clone(r.Capabilities)
	if r.Capabilities == nil {
		r.Capabilities = []string{}
	}
	return r
}
