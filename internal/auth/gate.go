package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"keyward.io/internal/ratelimit"
)

// Principal is the authenticated identity attached to a request: the user
// row plus its resolved role names.
type Principal struct {
	User *User
}

// HasRole reports whether the principal carries the named role.
func (p Principal) HasRole(name string) bool {
	if p.User == nil {
		return false
	}
	for _, r := range p.User.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// RateKey is the limiter key for the principal's own actions.
func (p Principal) RateKey() string {
	return "user:" + strconv.FormatInt(p.User.ID, 10)
}

// Gate is the orchestration point for protected operations. Callers
// resolve the principal, check the role where the operation is
// role-gated and admit through the limiter, in that order, before
// performing any effect.
type Gate struct {
	tokens  *TokenService
	limiter ratelimit.Limiter
}

func NewGate(tokens *TokenService, limiter ratelimit.Limiter) *Gate {
	return &Gate{tokens: tokens, limiter: limiter}
}

// ResolvePrincipal verifies the bearer token and loads the referenced
// user. An invalid or expired token, an unknown subject and a deactivated
// user all surface as ErrUnauthenticated.
func (g *Gate) ResolvePrincipal(ctx context.Context, tx Tx, token string) (Principal, error) {
	claims, err := g.tokens.Verify(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: invalid subject", ErrUnauthenticated)
	}
	user, err := tx.Users().Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
		}
		return Principal{}, err
	}
	if !user.IsActive {
		return Principal{}, fmt.Errorf("%w: user is deactivated", ErrUnauthenticated)
	}
	return Principal{User: user}, nil
}

// RequireRole fails with ErrForbidden when the principal lacks the role.
func (g *Gate) RequireRole(p Principal, role string) error {
	if !p.HasRole(role) {
		return fmt.Errorf("%w: requires role %q", ErrForbidden, role)
	}
	return nil
}

// Admit consults the limiter for the key. The decision is returned in both
// outcomes so the transport layer can attach Limit/Remaining/Reset
// metadata; a denial additionally carries them in a RateLimitedError.
func (g *Gate) Admit(ctx context.Context, key string) (ratelimit.Decision, error) {
	d, err := g.limiter.Allow(ctx, key)
	if err != nil {
		return d, err
	}
	if !d.Admitted {
		return d, &RateLimitedError{Limit: d.Limit, Remaining: d.Remaining, ResetSeconds: d.ResetSeconds}
	}
	return d, nil
}
