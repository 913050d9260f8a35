package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devstats/internal/service"
)

type PortfolioHandler struct {
	portfolios *service.PortfolioService
	logger     *slog.Logger
}

func NewPortfolioHandler(portfolios *service.PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{portfolios: portfolios, logger: logger}
}

// HTTP: GET /api/portfolio
func (h *PortfolioHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	pf, err := h.portfolios.Get(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

// HTTP: PUT /api/portfolio
func (h *PortfolioHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	var in service.PortfolioInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	pf, err := h.portfolios.Save(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

// HTTP: DELETE /api/portfolio
func (h *PortfolioHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.portfolios.Delete(r.Context(), userID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePublic serves a published portfolio to anyone.
//
// HTTP: GET /api/p/{slug}
func (h *PortfolioHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	pf, err := h.portfolios.Public(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, pf)
}
