package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"keyward.io/internal/auth"
)

type credentialStore struct {
	tx *sql.Tx
}

var _ auth.CredentialStore = (*credentialStore)(nil)

func (s *credentialStore) Insert(ctx context.Context, c *auth.Credential) error {
	row := s.tx.QueryRowContext(ctx, `
		insert into credentials (user_id, hash, alg, label, expires_at)
		values ($1, $2, $3, $4, $5)
		returning id, created_at
	`, c.UserID, c.Hash, c.Alg, c.Label, c.ExpiresAt)
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *credentialStore) Find(ctx context.Context, id int64) (*auth.Credential, error) {
	var c auth.Credential
	err := s.tx.QueryRowContext(ctx, `
		select id, user_id, hash, alg, label, created_at, expires_at, revoked, revoked_at
		from credentials
		where id = $1
	`, id).Scan(&c.ID, &c.UserID, &c.Hash, &c.Alg, &c.Label, &c.CreatedAt, &c.ExpiresAt, &c.Revoked, &c.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *credentialStore) List(ctx context.Context, userID *int64) ([]*auth.Credential, error) {
	query := `
		select id, user_id, hash, alg, label, created_at, expires_at, revoked, revoked_at
		from credentials
	`
	var args []any
	if userID != nil {
		query += ` where user_id = $1`
		args = append(args, *userID)
	}
	query += ` order by created_at desc, id desc`

	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func (s *credentialStore) ListActiveByLabel(ctx context.Context, userID int64, label string) ([]*auth.Credential, error) {
	rows, err := s.tx.QueryContext(ctx, `
		select id, user_id, hash, alg, label, created_at, expires_at, revoked, revoked_at
		from credentials
		where user_id = $1 and label = $2 and not revoked
		order by created_at desc, id desc
	`, userID, label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func (s *credentialStore) MarkRevoked(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.tx.ExecContext(ctx, `
		update credentials
		set revoked = true, revoked_at = $2
		where id = $1 and not revoked
	`, id, at)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func scanCredentials(rows *sql.Rows) ([]*auth.Credential, error) {
	var creds []*auth.Credential
	for rows.Next() {
		var c auth.Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Hash, &c.Alg, &c.Label, &c.CreatedAt, &c.ExpiresAt, &c.Revoked, &c.RevokedAt); err != nil {
			return nil, err
		}
		creds = append(creds, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}
