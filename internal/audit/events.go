// Package audit records security-relevant events. Events are appended
// inside the same transaction as the operation they describe, so an event
// is never persisted for work that rolled back; the one exception is
// failed logins, where the caller commits the event on its own.
package audit

// Event types recorded by the service.
const (
	EventLoginSuccess     = "login_success"
	EventLoginFailed      = "login_failed"
	EventLoginRateLimited = "login_rate_limited"
	EventLogout           = "logout"

	EventUserCreated     = "user_created"
	EventUserUpdated     = "user_updated"
	EventUserDeactivated = "user_deactivated"

	EventCredentialCreated = "credential_created"
	EventCredentialRevoked = "credential_revoked"
	EventPasswordRotated   = "password_rotated"
)
