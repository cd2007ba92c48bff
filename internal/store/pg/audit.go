package pg

import (
	"context"
	"database/sql"

	"keyward.io/internal/auth"
)

type auditStore struct {
	tx *sql.Tx
}

var _ auth.AuditStore = (*auditStore)(nil)

func (s *auditStore) Append(ctx context.Context, ev *auth.AuditEvent) error {
	row := s.tx.QueryRowContext(ctx, `
		insert into audit_events (user_id, credential_id, event_type, occurred_at, ip, user_agent, detail)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id
	`, ev.UserID, ev.CredentialID, ev.EventType, ev.OccurredAt, ev.IP, ev.UserAgent, ev.Detail)
	if err := row.Scan(&ev.ID); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *auditStore) List(ctx context.Context, limit int) ([]*auth.AuditEvent, error) {
	rows, err := s.tx.QueryContext(ctx, `
		select id, user_id, credential_id, event_type, occurred_at, ip, user_agent, detail
		from audit_events
		order by occurred_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*auth.AuditEvent
	for rows.Next() {
		var ev auth.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.CredentialID, &ev.EventType, &ev.OccurredAt, &ev.IP, &ev.UserAgent, &ev.Detail); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
