package auth_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"keyward.io/internal/auth"
	"keyward.io/internal/ratelimit"
	"keyward.io/internal/store/memory"
)

func newGateFixture(t *testing.T, limit int) (*auth.Gate, *auth.TokenService, *memory.Store) {
	t.Helper()
	tokens, err := auth.NewTokenService("gate-test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return auth.NewGate(tokens, ratelimit.NewMemory(limit)), tokens, memory.New()
}

func TestResolvePrincipal(t *testing.T) {
	ctx := context.Background()
	gate, tokens, st := newGateFixture(t, 10)
	user := seedUser(t, st, "gina@example.com", []string{"admin"})

	token, _, err := tokens.Issue(strconv.FormatInt(user.ID, 10), user.Roles, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_ = st.InTx(ctx, func(tx auth.Tx) error {
		p, err := gate.ResolvePrincipal(ctx, tx, token)
		if err != nil {
			t.Fatalf("ResolvePrincipal: %v", err)
		}
		if p.User.ID != user.ID {
			t.Fatalf("resolved wrong user: %d", p.User.ID)
		}
		if !p.HasRole("admin") {
			t.Fatalf("expected admin role")
		}
		if p.RateKey() != "user:"+strconv.FormatInt(user.ID, 10) {
			t.Fatalf("unexpected rate key: %s", p.RateKey())
		}
		return nil
	})
}

func TestResolvePrincipalFailures(t *testing.T) {
	ctx := context.Background()
	gate, tokens, st := newGateFixture(t, 10)
	user := seedUser(t, st, "hank@example.com", nil)

	_ = st.InTx(ctx, func(tx auth.Tx) error {
		if _, err := gate.ResolvePrincipal(ctx, tx, "garbage"); !errors.Is(err, auth.ErrUnauthenticated) {
			t.Fatalf("garbage token: expected ErrUnauthenticated, got %v", err)
		}

		unknown, _, err := tokens.Issue("9999", nil, time.Minute)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, err := gate.ResolvePrincipal(ctx, tx, unknown); !errors.Is(err, auth.ErrUnauthenticated) {
			t.Fatalf("unknown subject: expected ErrUnauthenticated, got %v", err)
		}

		nonNumeric, _, err := tokens.Issue("not-an-id", nil, time.Minute)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, err := gate.ResolvePrincipal(ctx, tx, nonNumeric); !errors.Is(err, auth.ErrUnauthenticated) {
			t.Fatalf("non-numeric subject: expected ErrUnauthenticated, got %v", err)
		}
		return nil
	})

	err := st.InTx(ctx, func(tx auth.Tx) error {
		return auth.NewUserService().Deactivate(ctx, tx, user.ID)
	})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	token, _, err := tokens.Issue(strconv.FormatInt(user.ID, 10), nil, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_ = st.InTx(ctx, func(tx auth.Tx) error {
		if _, err := gate.ResolvePrincipal(ctx, tx, token); !errors.Is(err, auth.ErrUnauthenticated) {
			t.Fatalf("deactivated user: expected ErrUnauthenticated, got %v", err)
		}
		return nil
	})
}

func TestRequireRole(t *testing.T) {
	gate, _, _ := newGateFixture(t, 10)
	p := auth.Principal{User: &auth.User{ID: 1, Roles: []string{"viewer"}}}

	if err := gate.RequireRole(p, "viewer"); err != nil {
		t.Fatalf("RequireRole(viewer): %v", err)
	}
	if err := gate.RequireRole(p, "admin"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Role names are case-sensitive.
	if err := gate.RequireRole(auth.Principal{User: &auth.User{Roles: []string{"Admin"}}}, "admin"); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected case-sensitive match, got %v", err)
	}
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newGateFixture(t, 2)

	for i := 0; i < 2; i++ {
		d, err := gate.Admit(ctx, "user:1")
		if err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
		if !d.Admitted {
			t.Fatalf("Admit %d: expected admission", i)
		}
	}

	d, err := gate.Admit(ctx, "user:1")
	if d.Admitted {
		t.Fatalf("third call should be denied")
	}
	var rl *auth.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rl.Limit != 2 || rl.Remaining != 0 {
		t.Fatalf("unexpected decision metadata: %+v", rl)
	}

	// Other keys keep their own budget.
	if d, err := gate.Admit(ctx, "user:2"); err != nil || !d.Admitted {
		t.Fatalf("separate key should be admitted: %v", err)
	}
}
