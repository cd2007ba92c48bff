package auth

import (
	"context"
	"time"
)

// Store is the transactional persistence boundary. The core never manages
// transaction scope beyond the atomicity of the sequences it runs inside a
// single InTx call (password rotation, operation-plus-audit pairs).
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is one unit of work. Everything issued through it commits or rolls
// back together, audit writes included: an audit row that cannot commit
// fails the operation it describes.
type Tx interface {
	Users() UserStore
	Credentials() CredentialStore
	Audit() AuditStore
}

// UserStore manages identity rows. Role names are plain strings on both
// sides of the boundary; roles are created on first use.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
	Update(ctx context.Context, u *User) error
	// ReplaceRoles swaps the user's role set as a whole; it never diffs.
	ReplaceRoles(ctx context.Context, userID int64, roles []string) error
}

// CredentialStore manages credential rows.
type CredentialStore interface {
	Insert(ctx context.Context, c *Credential) error
	Find(ctx context.Context, id int64) (*Credential, error)
	// List returns credentials newest first, optionally filtered by user.
	List(ctx context.Context, userID *int64) ([]*Credential, error)
	ListActiveByLabel(ctx context.Context, userID int64, label string) ([]*Credential, error)
	// MarkRevoked reports false without error when the id is missing or the
	// row is already revoked.
	MarkRevoked(ctx context.Context, id int64, at time.Time) (bool, error)
}

// AuditStore appends immutable events. There is no update or delete.
type AuditStore interface {
	Append(ctx context.Context, ev *AuditEvent) error
	List(ctx context.Context, limit int) ([]*AuditEvent, error)
}
