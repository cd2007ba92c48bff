package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"keyward.io/internal/audit"
	"keyward.io/internal/auth"
)

type createUserRequest struct {
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	Password    string   `json:"password"`
}

type updateUserRequest struct {
	DisplayName *string  `json:"display_name"`
	IsActive    *bool    `json:"is_active"`
	Roles       []string `json:"roles"`
}

type rotatePasswordRequest struct {
	Password string `json:"password"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var users []*auth.User
	err := a.store.InTx(r.Context(), func(tx auth.Tx) error {
		var err error
		users, err = a.users.List(r.Context(), tx, limit, offset)
		return err
	})
	if err != nil {
		a.log.Error("list users", zap.Error(err))
		respondError(w, err)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user *auth.User
	err := a.store.InTx(r.Context(), func(tx auth.Tx) error {
		u, err := a.users.Create(r.Context(), tx, req.Email, req.DisplayName, req.Roles)
		if err != nil {
			return err
		}
		if req.Password != "" {
			if _, err := a.creds.RotatePassword(r.Context(), tx, u.ID, req.Password); err != nil {
				return err
			}
		}
		user = u
		return a.recorder.Record(r.Context(), tx, audit.EventUserCreated, audit.Entry{
			UserID:    &u.ID,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			Detail:    "by user " + strconv.FormatInt(principal.User.ID, 10),
		})
	})
	if err != nil {
		a.log.Error("create user", zap.Error(err))
		respondError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+strconv.FormatInt(user.ID, 10))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var user *auth.User
	err = a.store.InTx(r.Context(), func(tx auth.Tx) error {
		var err error
		user, err = a.users.Get(r.Context(), tx, id)
		return err
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user *auth.User
	err = a.store.InTx(r.Context(), func(tx auth.Tx) error {
		u, err := a.users.Update(r.Context(), tx, id, auth.UserUpdate{
			DisplayName: req.DisplayName,
			IsActive:    req.IsActive,
			Roles:       req.Roles,
		})
		if err != nil {
			return err
		}
		user = u
		return a.recorder.Record(r.Context(), tx, audit.EventUserUpdated, audit.Entry{
			UserID:    &u.ID,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			Detail:    "by user " + strconv.FormatInt(principal.User.ID, 10),
		})
	})
	if err != nil {
		a.log.Error("update user", zap.Error(err))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeactivateUser deactivates rather than deletes: credentials and
// audit events keep referencing the row.
func (a *API) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	err = a.store.InTx(r.Context(), func(tx auth.Tx) error {
		if err := a.users.Deactivate(r.Context(), tx, id); err != nil {
			return err
		}
		return a.recorder.Record(r.Context(), tx, audit.EventUserDeactivated, audit.Entry{
			UserID:    &id,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
			Detail:    "by user " + strconv.FormatInt(principal.User.ID, 10),
		})
	})
	if err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRotatePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req rotatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var credID int64
	err = a.store.InTx(r.Context(), func(tx auth.Tx) error {
		cid, err := a.creds.RotatePassword(r.Context(), tx, id, req.Password)
		if err != nil {
			return err
		}
		credID = cid
		return a.recorder.Record(r.Context(), tx, audit.EventPasswordRotated, audit.Entry{
			UserID:       &id,
			CredentialID: &cid,
			IP:           clientIP(r),
			UserAgent:    r.UserAgent(),
			Detail:       "by user " + strconv.FormatInt(principal.User.ID, 10),
		})
	})
	if err != nil {
		a.log.Error("rotate password", zap.Error(err))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credential_id": credID})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
