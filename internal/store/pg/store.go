// Package pg implements the persistence boundary on PostgreSQL via the
// pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"keyward.io/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to PostgreSQL. The pool defaults suit a small API fleet;
// adjust under load tests.
func Open(dsn string, maxConns int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle. Tests hand in a sqlmock db here.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// InTx runs fn inside one transaction. A non-nil error from fn rolls
// everything back, audit rows included.
func (s *Store) InTx(ctx context.Context, fn func(auth.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) Users() auth.UserStore             { return &userStore{tx: t.tx} }
func (t *tx) Credentials() auth.CredentialStore { return &credentialStore{tx: t.tx} }
func (t *tx) Audit() auth.AuditStore            { return &auditStore{tx: t.tx} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
