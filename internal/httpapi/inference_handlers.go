package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// handleGenerate proxies the prompt to the upstream model server. It runs
// behind the auth middleware, so only admitted principals spend upstream
// capacity.
func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requirePrincipal(w, r); !ok {
		return
	}
	if a.upstream == nil {
		writeError(w, http.StatusServiceUnavailable, "inference upstream not configured")
		return
	}
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	out, err := a.upstream.Generate(r.Context(), req.Model, req.Prompt)
	if err != nil {
		a.log.Error("inference upstream", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream error")
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Response: out})
}
