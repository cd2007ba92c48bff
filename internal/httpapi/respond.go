package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"keyward.io/internal/auth"
	"keyward.io/internal/ratelimit"
)

// loginFailedMessage is deliberately identical for unknown accounts and
// wrong passwords so responses do not reveal which emails exist.
const loginFailedMessage = "Invalid username or password"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// respondError maps domain errors to status codes. Unrecognized errors
// become opaque 500s; the detail goes to the log, not the client.
func respondError(w http.ResponseWriter, err error) {
	var rl *auth.RateLimitedError
	if errors.As(err, &rl) {
		setRateHeaders(w, ratelimit.Decision{
			Limit:        rl.Limit,
			Remaining:    rl.Remaining,
			ResetSeconds: rl.ResetSeconds,
		})
		w.Header().Set("Retry-After", strconv.Itoa(rl.ResetSeconds))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var ve *auth.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Error())
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, loginFailedMessage)
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "insufficient role")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func setRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(d.ResetSeconds))
}
