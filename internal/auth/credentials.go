package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

const secretBytes = 32

// CredentialService owns secret generation, hashing and the credential
// lifecycle. It holds no mutable state besides configuration; every
// operation runs against the caller's unit of work.
type CredentialService struct {
	hashSem *semaphore.Weighted
	now     func() time.Time
}

// CredentialOption configures CredentialService behavior.
type CredentialOption func(*CredentialService)

// WithHashConcurrency bounds how many Argon2 derivations may run at once.
// Hashing is deliberately memory- and CPU-expensive; the bound keeps a
// burst of logins from monopolizing the process.
func WithHashConcurrency(n int) CredentialOption {
	return func(s *CredentialService) {
		if n > 0 {
			s.hashSem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithCredentialClock overrides the time source (useful for tests).
func WithCredentialClock(fn func() time.Time) CredentialOption {
	return func(s *CredentialService) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewCredentialService(opts ...CredentialOption) *CredentialService {
	s := &CredentialService{
		hashSem: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSecret returns a URL-safe secret with 256 bits of entropy from
// the platform CSPRNG.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash derives a digest on the bounded hashing pool. Once admitted, the
// derivation runs to completion even if ctx is cancelled mid-flight, so a
// credential write is never left half-done.
func (s *CredentialService) Hash(ctx context.Context, secret string) (string, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.hashSem.Release(1)
	return HashSecret(secret)
}

// Verify checks candidate against the stored digest on the hashing pool.
func (s *CredentialService) Verify(ctx context.Context, stored, candidate string) (bool, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.hashSem.Release(1)
	return VerifySecret(stored, candidate)
}

// CreatedCredential is the one response in the system where a plaintext
// secret is observable. It cannot be retrieved again afterwards.
type CreatedCredential struct {
	ID        int64      `json:"credential_id"`
	Plaintext string     `json:"plaintext"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Create generates a fresh secret, hashes it and persists a new
// non-revoked credential for the user.
func (s *CredentialService) Create(ctx context.Context, tx Tx, userID int64, label string) (CreatedCredential, error) {
	if _, err := tx.Users().Find(ctx, userID); err != nil {
		return CreatedCredential{}, err
	}
	secret, err := GenerateSecret()
	if err != nil {
		return CreatedCredential{}, err
	}
	hash, err := s.Hash(ctx, secret)
	if err != nil {
		return CreatedCredential{}, err
	}
	cred := &Credential{
		UserID:    userID,
		Hash:      hash,
		Alg:       AlgArgon2id,
		Label:     label,
		CreatedAt: s.now().UTC(),
	}
	if err := tx.Credentials().Insert(ctx, cred); err != nil {
		return CreatedCredential{}, err
	}
	return CreatedCredential{ID: cred.ID, Plaintext: secret, ExpiresAt: cred.ExpiresAt}, nil
}

// Revoke flips the revoked flag and reports whether a change was made.
// Missing and already-revoked ids are a no-op, not an error.
func (s *CredentialService) Revoke(ctx context.Context, tx Tx, id int64) (bool, error) {
	return tx.Credentials().MarkRevoked(ctx, id, s.now().UTC())
}

// RotatePassword revokes every active password-labeled credential for the
// user and stores the hashed replacement. The caller supplies the
// transaction, so the revoke+insert pair commits or rolls back as one and
// no committed state ever holds zero or two active password credentials.
func (s *CredentialService) RotatePassword(ctx context.Context, tx Tx, userID int64, newSecret string) (int64, error) {
	if len(newSecret) < 6 {
		return 0, &ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	if _, err := tx.Users().Find(ctx, userID); err != nil {
		return 0, err
	}
	hash, err := s.Hash(ctx, newSecret)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	active, err := tx.Credentials().ListActiveByLabel(ctx, userID, LabelPassword)
	if err != nil {
		return 0, err
	}
	for _, cred := range active {
		if _, err := tx.Credentials().MarkRevoked(ctx, cred.ID, now); err != nil {
			return 0, err
		}
	}
	cred := &Credential{
		UserID:    userID,
		Hash:      hash,
		Alg:       AlgArgon2id,
		Label:     LabelPassword,
		CreatedAt: now,
	}
	if err := tx.Credentials().Insert(ctx, cred); err != nil {
		return 0, err
	}
	return cred.ID, nil
}

// AuthenticateByEmail resolves the user by email and checks the candidate
// against each non-revoked credential with the label, first match wins.
// Unknown email, deactivated user and wrong secret all surface the same
// ErrInvalidCredentials so callers cannot enumerate usernames.
func (s *CredentialService) AuthenticateByEmail(ctx context.Context, tx Tx, email, label, candidate string) (*User, *Credential, error) {
	user, err := tx.Users().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInvalidCredentials
	}
	creds, err := tx.Credentials().ListActiveByLabel(ctx, user.ID, label)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	for _, cred := range creds {
		if cred.ExpiresAt != nil && !cred.ExpiresAt.After(now) {
			continue
		}
		matched, err := s.Verify(ctx, cred.Hash, candidate)
		if err != nil {
			return nil, nil, err
		}
		if matched {
			return user, cred, nil
		}
	}
	return nil, nil, ErrInvalidCredentials
}
