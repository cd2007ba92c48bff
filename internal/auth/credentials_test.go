package auth_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"keyward.io/internal/auth"
	"keyward.io/internal/store/memory"
)

func seedUser(t *testing.T, st *memory.Store, email string, roles []string) *auth.User {
	t.Helper()
	users := auth.NewUserService()
	var user *auth.User
	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		u, err := users.Create(context.Background(), tx, email, "Test User", roles)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestGenerateSecretDistinctAndURLSafe(t *testing.T) {
	const n = 10_000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		secret, err := auth.GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret: %v", err)
		}
		if _, dup := seen[secret]; dup {
			t.Fatalf("duplicate secret after %d generations", i)
		}
		seen[secret] = struct{}{}

		raw, err := base64.RawURLEncoding.DecodeString(secret)
		if err != nil {
			t.Fatalf("secret is not URL-safe base64: %v", err)
		}
		if len(raw) != 32 {
			t.Fatalf("decoded length = %d, want 32", len(raw))
		}
	}
}

func TestRotatePasswordRevokesPrevious(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	creds := auth.NewCredentialService()
	user := seedUser(t, st, "alice@example.com", nil)

	err := st.InTx(ctx, func(tx auth.Tx) error {
		_, err := creds.RotatePassword(ctx, tx, user.ID, "first-password")
		return err
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	err = st.InTx(ctx, func(tx auth.Tx) error {
		u, _, err := creds.AuthenticateByEmail(ctx, tx, "alice@example.com", auth.LabelPassword, "first-password")
		if err != nil {
			return err
		}
		if u.ID != user.ID {
			t.Fatalf("authenticated wrong user: %d", u.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	err = st.InTx(ctx, func(tx auth.Tx) error {
		_, err := creds.RotatePassword(ctx, tx, user.ID, "second-password")
		return err
	})
	if err != nil {
		t.Fatalf("rotate again: %v", err)
	}

	_ = st.InTx(ctx, func(tx auth.Tx) error {
		if _, _, err := creds.AuthenticateByEmail(ctx, tx, "alice@example.com", auth.LabelPassword, "first-password"); !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("old password should fail, got %v", err)
		}
		if _, _, err := creds.AuthenticateByEmail(ctx, tx, "alice@example.com", auth.LabelPassword, "second-password"); err != nil {
			t.Fatalf("new password should work, got %v", err)
		}
		active, err := tx.Credentials().ListActiveByLabel(ctx, user.ID, auth.LabelPassword)
		if err != nil {
			return err
		}
		if len(active) != 1 {
			t.Fatalf("expected exactly one active password credential, got %d", len(active))
		}
		return nil
	})
}

func TestRotatePasswordValidation(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	creds := auth.NewCredentialService()
	user := seedUser(t, st, "bob@example.com", nil)

	err := st.InTx(ctx, func(tx auth.Tx) error {
		_, err := creds.RotatePassword(ctx, tx, user.ID, "short")
		return err
	})
	if !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	err = st.InTx(ctx, func(tx auth.Tx) error {
		_, err := creds.RotatePassword(ctx, tx, 999, "long-enough")
		return err
	})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestAuthenticateByEmailFailureModes(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	creds := auth.NewCredentialService()
	users := auth.NewUserService()
	user := seedUser(t, st, "carol@example.com", nil)

	err := st.InTx(ctx, func(tx auth.Tx) error {
		_, err := creds.RotatePassword(ctx, tx, user.ID, "carols-password")
		return err
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	_ = st.InTx(ctx, func(tx auth.Tx) error {
		if _, _, err := creds.AuthenticateByEmail(ctx, tx, "nobody@example.com", auth.LabelPassword, "x"); !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
		}
		if _, _, err := creds.AuthenticateByEmail(ctx, tx, "carol@example.com", auth.LabelPassword, "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
		}
		// Case-insensitive email lookup.
		if _, _, err := creds.AuthenticateByEmail(ctx, tx, "CAROL@Example.com", auth.LabelPassword, "carols-password"); err != nil {
			t.Fatalf("case-insensitive lookup failed: %v", err)
		}
		return nil
	})

	err = st.InTx(ctx, func(tx auth.Tx) error {
		return users.Deactivate(ctx, tx, user.ID)
	})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_ = st.InTx(ctx, func(tx auth.Tx) error {
		if _, _, err := creds.AuthenticateByEmail(ctx, tx, "carol@example.com", auth.LabelPassword, "carols-password"); !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("deactivated user: expected ErrInvalidCredentials, got %v", err)
		}
		return nil
	})
}

func TestAuthenticateSkipsExpiredCredential(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	creds := auth.NewCredentialService()
	user := seedUser(t, st, "dave@example.com", nil)

	hash, err := auth.HashSecret("api-secret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	expired := time.Now().Add(-time.Hour)
	err = st.InTx(ctx, func(tx auth.Tx) error {
		return tx.Credentials().Insert(ctx, &auth.Credential{
			UserID:    user.ID,
			Hash:      hash,
			Alg:       auth.AlgArgon2id,
			Label:     "api",
			ExpiresAt: &expired,
		})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_ = st.InTx(ctx, func(tx auth.Tx) error {
		if _, _, err := creds.AuthenticateByEmail(ctx, tx, "dave@example.com", "api", "api-secret"); !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("expired credential: expected ErrInvalidCredentials, got %v", err)
		}
		return nil
	})
}

func TestCreateCredentialReturnsPlaintextOnce(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	creds := auth.NewCredentialService()
	user := seedUser(t, st, "erin@example.com", nil)

	var created auth.CreatedCredential
	err := st.InTx(ctx, func(tx auth.Tx) error {
		c, err := creds.Create(ctx, tx, user.ID, "api")
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Plaintext == "" {
		t.Fatalf("expected plaintext secret in creation response")
	}

	_ = st.InTx(ctx, func(tx auth.Tx) error {
		stored, err := tx.Credentials().Find(ctx, created.ID)
		if err != nil {
			return err
		}
		if stored.Hash == created.Plaintext {
			t.Fatalf("plaintext was stored verbatim")
		}
		if stored.Alg != auth.AlgArgon2id {
			t.Fatalf("unexpected alg: %s", stored.Alg)
		}
		u, _, err := creds.AuthenticateByEmail(ctx, tx, "erin@example.com", "api", created.Plaintext)
		if err != nil {
			return err
		}
		if u.ID != user.ID {
			t.Fatalf("authenticated wrong user")
		}
		return nil
	})
}

func TestRevokeCredentialIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	creds := auth.NewCredentialService()
	user := seedUser(t, st, "frank@example.com", nil)

	var id int64
	err := st.InTx(ctx, func(tx auth.Tx) error {
		c, err := creds.Create(ctx, tx, user.ID, "api")
		if err != nil {
			return err
		}
		id = c.ID
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_ = st.InTx(ctx, func(tx auth.Tx) error {
		ok, err := creds.Revoke(ctx, tx, id)
		if err != nil || !ok {
			t.Fatalf("first revoke: ok=%v err=%v", ok, err)
		}
		ok, err = creds.Revoke(ctx, tx, id)
		if err != nil || ok {
			t.Fatalf("second revoke should be a no-op: ok=%v err=%v", ok, err)
		}
		ok, err = creds.Revoke(ctx, tx, 9999)
		if err != nil || ok {
			t.Fatalf("revoking unknown id should be a no-op: ok=%v err=%v", ok, err)
		}
		return nil
	})
}
