package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
	"keyward.io/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	entry := audit.Entry{IP: clientIP(r), UserAgent: r.UserAgent()}

	// The login limiter keys on the claimed identity, not the caller IP,
	// so a spray against one account trips regardless of source.
	d, err := a.loginLimiter.Allow(r.Context(), "login:"+email)
	if err != nil {
		a.log.Error("login limiter", zap.Error(err))
		respondError(w, err)
		return
	}
	setRateHeaders(w, d)
	if !d.Admitted {
		obs.ObserveLogin("rate_limited")
		obs.ObserveRateLimited("login")
		rlEntry := entry
		rlEntry.Detail = email
		if err := a.store.InTx(r.Context(), func(tx auth.Tx) error {
			return a.recorder.Record(r.Context(), tx, audit.EventLoginRateLimited, rlEntry)
		}); err != nil {
			a.log.Error("audit login_rate_limited", zap.Error(err))
		}
		w.Header().Set("Retry-After", strconv.Itoa(d.ResetSeconds))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var user *auth.User
	err = a.store.InTx(r.Context(), func(tx auth.Tx) error {
		u, c, err := a.creds.AuthenticateByEmail(r.Context(), tx, email, auth.LabelPassword, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				// The failure event must outlive the attempt, so the
				// transaction commits with just the audit row in it.
				failed := entry
				failed.Detail = email
				return a.recorder.Record(r.Context(), tx, audit.EventLoginFailed, failed)
			}
			return err
		}
		user = u
		ok := entry
		ok.UserID = &u.ID
		ok.CredentialID = &c.ID
		return a.recorder.Record(r.Context(), tx, audit.EventLoginSuccess, ok)
	})
	if err != nil {
		a.log.Error("login", zap.Error(err))
		respondError(w, err)
		return
	}
	if user == nil {
		obs.ObserveLogin("failed")
		writeError(w, http.StatusUnauthorized, loginFailedMessage)
		return
	}

	token, expiresAt, err := a.tokens.Issue(strconv.FormatInt(user.ID, 10), user.Roles, 0)
	if err != nil {
		a.log.Error("issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	obs.ObserveLogin("success")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// handleLogout records the event only. Tokens are stateless and stay
// valid until expiry; clients discard them.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requirePrincipal(w, r)
	if !ok {
		return
	}
	entry := audit.Entry{
		UserID:    &principal.User.ID,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if err := a.store.InTx(r.Context(), func(tx auth.Tx) error {
		return a.recorder.Record(r.Context(), tx, audit.EventLogout, entry)
	}); err != nil {
		a.log.Error("logout", zap.Error(err))
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
