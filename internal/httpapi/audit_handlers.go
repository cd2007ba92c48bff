package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"keyward.io/internal/auth"
)

const auditListCap = 500

func (a *API) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > auditListCap {
		limit = 100
	}

	var events []*auth.AuditEvent
	err := a.store.InTx(r.Context(), func(tx auth.Tx) error {
		var err error
		events, err = tx.Audit().List(r.Context(), limit)
		return err
	})
	if err != nil {
		a.log.Error("list audit", zap.Error(err))
		respondError(w, err)
		return
	}
	if events == nil {
		events = []*auth.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleAuditStream tails the live audit feed over server-sent events.
// Best-effort: a slow consumer misses events rather than backing up the
// writers.
func (a *API) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	if a.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "audit stream not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := a.feed.Subscribe(r.Context())
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}
