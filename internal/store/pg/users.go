package pg

import (
	"context"
	"database/sql"
	"errors"

	"keyward.io/internal/auth"
)

type userStore struct {
	tx *sql.Tx
}

var _ auth.UserStore = (*userStore)(nil)

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	row := s.tx.QueryRowContext(ctx, `
		insert into users (external_id, email, display_name, is_active)
		values ($1, $2, $3, $4)
		returning id, created_at, updated_at
	`, u.ExternalID, u.Email, u.DisplayName, u.IsActive)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id int64) (*auth.User, error) {
	return s.findOne(ctx, `where u.id = $1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, `where u.email = $1`, email)
}

func (s *userStore) findOne(ctx context.Context, where string, arg any) (*auth.User, error) {
	var u auth.User
	err := s.tx.QueryRowContext(ctx, `
		select u.id, u.external_id, u.email, u.display_name, u.is_active, u.created_at, u.updated_at
		from users u
	`+where, arg).Scan(&u.ID, &u.ExternalID, &u.Email, &u.DisplayName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	roles, err := s.rolesFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *userStore) List(ctx context.Context, limit, offset int) ([]*auth.User, error) {
	rows, err := s.tx.QueryContext(ctx, `
		select u.id, u.external_id, u.email, u.display_name, u.is_active, u.created_at, u.updated_at
		from users u
		order by u.id
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.ExternalID, &u.Email, &u.DisplayName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range users {
		roles, err := s.rolesFor(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		u.Roles = roles
	}
	return users, nil
}

func (s *userStore) Update(ctx context.Context, u *auth.User) error {
	res, err := s.tx.ExecContext(ctx, `
		update users
		set email = $2, display_name = $3, is_active = $4, updated_at = now()
		where id = $1
	`, u.ID, u.Email, u.DisplayName, u.IsActive)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// ReplaceRoles swaps the user's role set. Role rows are created on first
// use; the upsert's no-op update lets the statement return the id whether
// the role existed or not.
func (s *userStore) ReplaceRoles(ctx context.Context, userID int64, roles []string) error {
	if _, err := s.tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, name := range roles {
		var roleID int64
		err := s.tx.QueryRowContext(ctx, `
			insert into roles (name) values ($1)
			on conflict (name) do update set name = excluded.name
			returning id
		`, name).Scan(&roleID)
		if err != nil {
			return err
		}
		if _, err := s.tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id)
			values ($1, $2)
			on conflict do nothing
		`, userID, roleID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return nil
}

func (s *userStore) rolesFor(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.tx.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
