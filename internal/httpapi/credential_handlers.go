package httpapi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
)

type createCredentialRequest struct {
	UserID int64  `json:"user_id"`
	Label  string `json:"label"`
}

func (a *API) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	var userID *int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = &id
	}

	var creds []*auth.Credential
	err := a.store.InTx(r.Context(), func(tx auth.Tx) error {
		var err error
		creds, err = tx.Credentials().List(r.Context(), userID)
		return err
	})
	if err != nil {
		a.log.Error("list credentials", zap.Error(err))
		respondError(w, err)
		return
	}
	if creds == nil {
		creds = []*auth.Credential{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

// handleCreateCredential mints a credential and returns the plaintext
// secret exactly once; only the hash is stored.
func (a *API) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	var req createCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var created auth.CreatedCredential
	err := a.store.InTx(r.Context(), func(tx auth.Tx) error {
		c, err := a.creds.Create(r.Context(), tx, req.UserID, req.Label)
		if err != nil {
			return err
		}
		created = c
		return a.recorder.Record(r.Context(), tx, audit.EventCredentialCreated, audit.Entry{
			UserID:       &req.UserID,
			CredentialID: &c.ID,
			IP:           clientIP(r),
			UserAgent:    r.UserAgent(),
			Detail:       "by user " + strconv.FormatInt(principal.User.ID, 10),
		})
	})
	if err != nil {
		a.log.Error("create credential", zap.Error(err))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid credential id")
		return
	}

	var revoked bool
	err = a.store.InTx(r.Context(), func(tx auth.Tx) error {
		ok, err := a.creds.Revoke(r.Context(), tx, id)
		if err != nil {
			return err
		}
		revoked = ok
		if !ok {
			return nil
		}
		return a.recorder.Record(r.Context(), tx, audit.EventCredentialRevoked, audit.Entry{
			CredentialID: &id,
			IP:           clientIP(r),
			UserAgent:    r.UserAgent(),
			Detail:       "by user " + strconv.FormatInt(principal.User.ID, 10),
		})
	})
	if err != nil {
		a.log.Error("revoke credential", zap.Error(err))
		respondError(w, err)
		return
	}
	if !revoked {
		writeError(w, http.StatusNotFound, "credential not found or already revoked")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
