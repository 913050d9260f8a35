package handler

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/sakif/devstats/internal/service"
)

type ContactHandler struct {
	contacts *service.ContactService
	logger   *slog.Logger
}

func NewContactHandler(contacts *service.ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, logger: logger}
}

// HandleSubmit stores a contact form message. The route is rate limited
// per client IP by the router.
//
// HTTP: POST /api/contact
func (h *ContactHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var in service.ContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	msg, err := h.contacts.Submit(r.Context(), in, ip)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": msg.ID})
}
