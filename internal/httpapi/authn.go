package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"keyward.io/internal/auth"
	"keyward.io/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token to a principal and attaches it to the
// request context. Rate admission happens later, after any role check, so
// a forbidden request neither consumes budget nor sees a 429 instead of
// its 403.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		var principal auth.Principal
		err = a.store.InTx(r.Context(), func(tx auth.Tx) error {
			p, err := a.gate.ResolvePrincipal(r.Context(), tx, token)
			if err != nil {
				return err
			}
			principal = p
			return nil
		})
		if err != nil {
			respondError(w, err)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// admit runs the principal through the per-identity limiter, attaches the
// rate headers and writes the 429 itself on a denial.
func (a *API) admit(w http.ResponseWriter, r *http.Request, principal auth.Principal) bool {
	d, err := a.gate.Admit(r.Context(), principal.RateKey())
	if d.Limit > 0 {
		setRateHeaders(w, d)
	}
	if err != nil {
		var rl *auth.RateLimitedError
		if errors.As(err, &rl) {
			obs.ObserveRateLimited("user")
		}
		respondError(w, err)
		return false
	}
	return true
}

// requirePrincipal is the entry check for authenticated operations with no
// role requirement: principal from context, then rate admission.
func (a *API) requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	if !a.admit(w, r, principal) {
		return auth.Principal{}, false
	}
	return principal, true
}

// requireRole runs the role check and only then admits through the
// limiter, writing the 403 or 429 itself. Handlers call it before touching
// any state, so a denied request has no partial effects and a missing role
// spends no rate budget.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, role string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	if err := a.gate.RequireRole(principal, role); err != nil {
		respondError(w, err)
		return auth.Principal{}, false
	}
	if !a.admit(w, r, principal) {
		return auth.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
