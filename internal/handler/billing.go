package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/service"
)

// maxWebhookBytes bounds event bodies. Events with expanded objects run
// well past 64 KiB.
const maxWebhookBytes = 512 << 10

type BillingHandler struct {
	billing *service.BillingService
	logger  *slog.Logger
}

func NewBillingHandler(billing *service.BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, logger: logger}
}

type urlResponse struct {
	URL string `json:"url"`
}

// HTTP: POST /api/billing/checkout
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	url, err := h.billing.Checkout(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// HTTP: POST /api/billing/portal
func (h *BillingHandler) HandlePortal(w http.ResponseWriter, r *http.Request) {
	url, err := h.billing.Portal(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// HTTP: GET /api/billing/subscription
func (h *BillingHandler) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.Subscription(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// HandleWebhook receives payment provider events. The signature covers the
// raw body, so it is read as bytes and never re-encoded.
//
// HTTP: POST /api/webhooks/stripe
//
// 400 on a bad signature; any processing error is a 500 so the provider
// retries the delivery.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, apperror.ValidationFailed("body", "could not read webhook body"))
		return
	}

	err = h.billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, apperror.ErrValidation):
		writeError(w, err)
	default:
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == "billing_disabled" {
			writeError(w, err)
			return
		}
		h.logger.Error("webhook processing failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "webhook processing failed",
		})
	}
}
