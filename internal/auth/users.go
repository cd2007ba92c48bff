package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserService manages identity rows and their role sets. Users are never
// deleted; deactivation flips is_active and existing rows stay referenced
// by credentials and audit events.
type UserService struct {
	now func() time.Time
}

// UserOption configures UserService behavior.
type UserOption func(*UserService)

// WithUserClock overrides the time source (useful for tests).
func WithUserClock(fn func() time.Time) UserOption {
	return func(s *UserService) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewUserService(opts ...UserOption) *UserService {
	s := &UserService{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserUpdate carries the mutable user fields. A nil field leaves the
// current value untouched; a non-nil Roles replaces the whole set.
type UserUpdate struct {
	DisplayName *string
	IsActive    *bool
	Roles       []string
}

// Create registers a new active user with the given role names. A
// duplicate email is a Conflict.
func (s *UserService) Create(ctx context.Context, tx Tx, email, displayName string, roles []string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ValidationError{Field: "email", Reason: "valid email is required"}
	}
	if _, err := tx.Users().FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	names := normalizeRoles(roles)
	if err := tx.Users().ReplaceRoles(ctx, user.ID, names); err != nil {
		return nil, err
	}
	user.Roles = names
	return user, nil
}

// Get loads one user with resolved role names.
func (s *UserService) Get(ctx context.Context, tx Tx, id int64) (*User, error) {
	return tx.Users().Find(ctx, id)
}

// List pages through users ordered by id.
func (s *UserService) List(ctx context.Context, tx Tx, limit, offset int) ([]*User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return tx.Users().List(ctx, limit, offset)
}

// Update applies the non-nil fields and, when Roles is set, swaps the
// role set as a whole.
func (s *UserService) Update(ctx context.Context, tx Tx, id int64, upd UserUpdate) (*User, error) {
	user, err := tx.Users().Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	user.UpdatedAt = s.now().UTC()
	if err := tx.Users().Update(ctx, user); err != nil {
		return nil, err
	}
	if upd.Roles != nil {
		names := normalizeRoles(upd.Roles)
		if err := tx.Users().ReplaceRoles(ctx, id, names); err != nil {
			return nil, err
		}
		user.Roles = names
	}
	return user, nil
}

// Deactivate flips is_active off. The row and everything referencing it
// survive.
func (s *UserService) Deactivate(ctx context.Context, tx Tx, id int64) error {
	inactive := false
	_, err := s.Update(ctx, tx, id, UserUpdate{IsActive: &inactive})
	return err
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
