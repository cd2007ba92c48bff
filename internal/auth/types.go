package auth

import "time"

// RoleAdmin gates administrative operations such as user management and
// reading the audit trail.
const RoleAdmin = "admin"

// LabelPassword marks the credential a user logs in with. At most one
// non-revoked credential with this label exists per user.
const LabelPassword = "password"

// User is an identity row. Roles are resolved to plain name strings at the
// storage boundary; no role objects cross into the authorization or
// serialization layers.
type User struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	IsActive    bool      `json:"is_active"`
	Roles       []string  `json:"roles"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Credential is a provable secret bound to exactly one user. Rows are
// immutable after creation except for the revoke transition; the plaintext
// secret is never persisted.
type Credential struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Hash      string     `json:"-"`
	Alg       string     `json:"alg"`
	Label     string     `json:"label,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// AuditEvent is one append-only record of a security-relevant action. Both
// subject references are nullable: a failed login for an unknown email has
// neither a user nor a credential.
type AuditEvent struct {
	ID           int64     `json:"id"`
	UserID       *int64    `json:"user_id,omitempty"`
	CredentialID *int64    `json:"credential_id,omitempty"`
	EventType    string    `json:"event_type"`
	OccurredAt   time.Time `json:"occurred_at"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}
