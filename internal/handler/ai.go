package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/devstats/internal/service"
)

// AIHandler serves the Pro content generators. Each call runs one model
// request inside the HTTP request.
type AIHandler struct {
	ai     *service.AIService
	logger *slog.Logger
}

func NewAIHandler(ai *service.AIService, logger *slog.Logger) *AIHandler {
	return &AIHandler{ai: ai, logger: logger}
}

// HTTP: POST /api/ai/readme
func (h *AIHandler) HandleReadme(w http.ResponseWriter, r *http.Request) {
	var req service.ReadmeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w)(h.ai.Readme(r.Context(), userID(r), req))
}

// HTTP: POST /api/ai/bio
func (h *AIHandler) HandleBio(w http.ResponseWriter, r *http.Request) {
	var req service.BioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w)(h.ai.Bio(r.Context(), userID(r), req))
}

// HTTP: POST /api/ai/pr-summary
func (h *AIHandler) HandlePRSummary(w http.ResponseWriter, r *http.Request) {
	var req service.PRSummaryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w)(h.ai.PRSummary(r.Context(), userID(r), req))
}

// HTTP: POST /api/ai/analyze
func (h *AIHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	h.respond(w)(h.ai.Analyze(r.Context(), userID(r)))
}

func (h *AIHandler) respond(w http.ResponseWriter) func(*service.Generation, error) {
	return func(gen *service.Generation, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, gen)
	}
}
