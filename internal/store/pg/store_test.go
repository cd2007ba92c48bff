package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"keyward.io/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into audit_events").
		WithArgs(nil, nil, "logout", sqlmock.AnyArg(), "10.0.0.1", "curl", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		ev := &auth.AuditEvent{EventType: "logout", OccurredAt: time.Now(), IP: "10.0.0.1", UserAgent: "curl"}
		if err := tx.Audit().Append(context.Background(), ev); err != nil {
			return err
		}
		if ev.ID != 7 {
			t.Fatalf("expected returned id, got %d", ev.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserCreateMapsUniqueViolation(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into users").
		WithArgs("", "a@example.com", "", true).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		return tx.Users().Create(context.Background(), &auth.User{Email: "a@example.com", IsActive: true})
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from users").WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		_, err := tx.Users().Find(context.Background(), 42)
		return err
	})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserFindLoadsRoles(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from users").WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "email", "display_name", "is_active", "created_at", "updated_at"}).
			AddRow(int64(42), "", "a@example.com", "Alice", true, now, now))
	mock.ExpectQuery("select r.name").WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admin").AddRow("viewer"))
	mock.ExpectCommit()

	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		u, err := tx.Users().Find(context.Background(), 42)
		if err != nil {
			return err
		}
		if u.Email != "a@example.com" {
			t.Fatalf("unexpected email: %s", u.Email)
		}
		if len(u.Roles) != 2 || u.Roles[0] != "admin" {
			t.Fatalf("unexpected roles: %v", u.Roles)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceRolesUpsertsNames(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("delete from user_roles").WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("insert into roles").WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("insert into user_roles").WithArgs(int64(42), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		return tx.Users().ReplaceRoles(context.Background(), 42, []string{"admin"})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkRevokedReportsNoChange(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update credentials").WithArgs(int64(9), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		ok, err := tx.Credentials().MarkRevoked(context.Background(), 9, time.Now())
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("expected no change for missing or revoked row")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCredentialInsertMapsForeignKey(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into credentials").
		WithArgs(int64(5), "hash", "argon2id", "password", nil).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	err := st.InTx(context.Background(), func(tx auth.Tx) error {
		return tx.Credentials().Insert(context.Background(), &auth.Credential{
			UserID: 5, Hash: "hash", Alg: "argon2id", Label: "password",
		})
	})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
