package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when a caller does not request a lifetime.
const DefaultTokenTTL = 60 * time.Minute

// Claims is the bearer token payload shared with external verifiers:
// sub, roles, iat, exp.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies self-contained signed bearer tokens.
// It keeps no server-side session state: a verified token stays valid
// until its natural expiry, so logout is an audit event plus a client-side
// discard, not a revocation.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithSigningAlgorithm selects the symmetric signing algorithm by name
// (HS256, HS384, HS512).
func WithSigningAlgorithm(name string) TokenOption {
	return func(s *TokenService) error {
		method := jwt.GetSigningMethod(strings.ToUpper(strings.TrimSpace(name)))
		if method == nil {
			return fmt.Errorf("auth: unknown signing algorithm %q", name)
		}
		if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
			return fmt.Errorf("auth: signing algorithm %q is not symmetric", name)
		}
		s.method = method
		return nil
	}
}

// WithTokenTTL overrides the default token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.ttl = ttl
		}
		return nil
	}
}

// WithIssuer sets the iss claim on issued tokens.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService constructs a TokenService signing with the shared
// secret. A missing secret is a configuration failure, not a runtime one.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	s := &TokenService{
		secret: []byte(secret),
		method: jwt.SigningMethodHS256,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Issue signs a token for the subject carrying the given role names. A
// non-positive ttl falls back to the configured default.
func (s *TokenService) Issue(subject string, roles []string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Roles: normalizeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify decodes and validates a token, returning its claims. Failures map
// to exactly one of ErrTokenMalformed, ErrTokenSignature or
// ErrTokenExpired; an expired token reports expiry even when its signature
// no longer checks out.
func (s *TokenService) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{s.method.Alg()}),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			if s.expiredUnverified(token) {
				return nil, ErrTokenExpired
			}
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	claims.Roles = normalizeRoles(claims.Roles)
	return claims, nil
}

// expiredUnverified peeks at the exp claim without checking the signature,
// so expiry wins over signature state in Verify's error classification.
func (s *TokenService) expiredUnverified(token string) bool {
	unverified := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, unverified); err != nil {
		return false
	}
	return unverified.ExpiresAt != nil && !unverified.ExpiresAt.Time.After(s.now())
}

// normalizeRoles trims blanks and drops exact duplicates while preserving
// order, so a valid role set round-trips through issue/verify unchanged.
func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
