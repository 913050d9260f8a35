package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/devstats/internal/service"
)

// GitHubHandler exposes the stored GitHub connection, the metrics fetched
// with it, and the combined dashboard.
type GitHubHandler struct {
	github    *service.GitHubService
	dashboard *service.DashboardService
	logger    *slog.Logger
}

func NewGitHubHandler(github *service.GitHubService, dashboard *service.DashboardService, logger *slog.Logger) *GitHubHandler {
	return &GitHubHandler{github: github, dashboard: dashboard, logger: logger}
}

// HTTP: GET /api/github/token
func (h *GitHubHandler) HandleTokenStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.github.Status(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HTTP: DELETE /api/github/token
func (h *GitHubHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.github.Disconnect(r.Context(), userID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMetrics fetches fresh metrics. A failed fetch still answers 200,
// with the zeroed record and "degraded": true.
//
// HTTP: GET /api/github/metrics
func (h *GitHubHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	res, err := h.github.Metrics(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HTTP: GET /api/dashboard
func (h *GitHubHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboard.Load(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
