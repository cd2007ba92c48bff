// Package memory implements the persistence boundary in process memory.
// It backs tests and local development without PostgreSQL; data does not
// survive a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"keyward.io/internal/auth"
)

// Store keeps all state in maps guarded by one mutex. InTx runs the
// function against a deep copy and swaps it in only on success, matching
// the rollback behavior of the SQL implementation.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ auth.Store = (*Store)(nil)

type state struct {
	users      map[int64]*auth.User
	creds      map[int64]*auth.Credential
	events     []*auth.AuditEvent
	nextUser   int64
	nextCred   int64
	nextEvent  int64
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		st: &state{
			users:     map[int64]*auth.User{},
			creds:     map[int64]*auth.Credential{},
			nextUser:  1,
			nextCred:  1,
			nextEvent: 1,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(auth.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	t := &tx{st: working, now: s.now}
	if err := fn(t); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (st *state) clone() *state {
	c := &state{
		users:     make(map[int64]*auth.User, len(st.users)),
		creds:     make(map[int64]*auth.Credential, len(st.creds)),
		events:    make([]*auth.AuditEvent, len(st.events)),
		nextUser:  st.nextUser,
		nextCred:  st.nextCred,
		nextEvent: st.nextEvent,
	}
	for id, u := range st.users {
		cp := *u
		cp.Roles = append([]string(nil), u.Roles...)
		c.users[id] = &cp
	}
	for id, cr := range st.creds {
		cp := *cr
		c.creds[id] = &cp
	}
	copy(c.events, st.events)
	return c
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Users() auth.UserStore             { return &userStore{tx: t} }
func (t *tx) Credentials() auth.CredentialStore { return &credentialStore{tx: t} }
func (t *tx) Audit() auth.AuditStore            { return &auditStore{tx: t} }

type userStore struct {
	tx *tx
}

func (s *userStore) Create(_ context.Context, u *auth.User) error {
	for _, existing := range s.tx.st.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	now := s.tx.now().UTC()
	u.ID = s.tx.st.nextUser
	s.tx.st.nextUser++
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	s.tx.st.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(_ context.Context, id int64) (*auth.User, error) {
	u, ok := s.tx.st.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range s.tx.st.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) List(_ context.Context, limit, offset int) ([]*auth.User, error) {
	ids := make([]int64, 0, len(s.tx.st.users))
	for id := range s.tx.st.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var users []*auth.User
	for i, id := range ids {
		if i < offset {
			continue
		}
		if len(users) >= limit {
			break
		}
		users = append(users, copyUser(s.tx.st.users[id]))
	}
	return users, nil
}

func (s *userStore) Update(_ context.Context, u *auth.User) error {
	existing, ok := s.tx.st.users[u.ID]
	if !ok {
		return auth.ErrNotFound
	}
	for id, other := range s.tx.st.users {
		if id != u.ID && strings.EqualFold(other.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	existing.Email = u.Email
	existing.DisplayName = u.DisplayName
	existing.IsActive = u.IsActive
	existing.UpdatedAt = s.tx.now().UTC()
	u.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *userStore) ReplaceRoles(_ context.Context, userID int64, roles []string) error {
	u, ok := s.tx.st.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.Roles = append([]string(nil), roles...)
	return nil
}

func copyUser(u *auth.User) *auth.User {
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp
}

type credentialStore struct {
	tx *tx
}

func (s *credentialStore) Insert(_ context.Context, c *auth.Credential) error {
	if _, ok := s.tx.st.users[c.UserID]; !ok {
		return auth.ErrNotFound
	}
	c.ID = s.tx.st.nextCred
	s.tx.st.nextCred++
	c.CreatedAt = s.tx.now().UTC()
	cp := *c
	s.tx.st.creds[c.ID] = &cp
	return nil
}

func (s *credentialStore) Find(_ context.Context, id int64) (*auth.Credential, error) {
	c, ok := s.tx.st.creds[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *credentialStore) List(_ context.Context, userID *int64) ([]*auth.Credential, error) {
	var creds []*auth.Credential
	for _, c := range s.tx.st.creds {
		if userID != nil && c.UserID != *userID {
			continue
		}
		cp := *c
		creds = append(creds, &cp)
	}
	sortCredentials(creds)
	return creds, nil
}

func (s *credentialStore) ListActiveByLabel(_ context.Context, userID int64, label string) ([]*auth.Credential, error) {
	var creds []*auth.Credential
	for _, c := range s.tx.st.creds {
		if c.UserID != userID || c.Label != label || c.Revoked {
			continue
		}
		cp := *c
		creds = append(creds, &cp)
	}
	sortCredentials(creds)
	return creds, nil
}

func (s *credentialStore) MarkRevoked(_ context.Context, id int64, at time.Time) (bool, error) {
	c, ok := s.tx.st.creds[id]
	if !ok || c.Revoked {
		return false, nil
	}
	c.Revoked = true
	revokedAt := at
	c.RevokedAt = &revokedAt
	return true, nil
}

// Newest first, id as tiebreaker, matching the SQL ordering.
func sortCredentials(creds []*auth.Credential) {
	sort.Slice(creds, func(i, j int) bool {
		if !creds[i].CreatedAt.Equal(creds[j].CreatedAt) {
			return creds[i].CreatedAt.After(creds[j].CreatedAt)
		}
		return creds[i].ID > creds[j].ID
	})
}

type auditStore struct {
	tx *tx
}

func (s *auditStore) Append(_ context.Context, ev *auth.AuditEvent) error {
	if ev.UserID != nil {
		if _, ok := s.tx.st.users[*ev.UserID]; !ok {
			return auth.ErrNotFound
		}
	}
	ev.ID = s.tx.st.nextEvent
	s.tx.st.nextEvent++
	cp := *ev
	s.tx.st.events = append(s.tx.st.events, &cp)
	return nil
}

func (s *auditStore) List(_ context.Context, limit int) ([]*auth.AuditEvent, error) {
	events := make([]*auth.AuditEvent, len(s.tx.st.events))
	for i, ev := range s.tx.st.events {
		cp := *ev
		events[i] = &cp
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.After(events[j].OccurredAt)
		}
		return events[i].ID > events[j].ID
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
