package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var _ Provider = (*Stripe)(nil)

// Stripe implements Provider with stripe-go. The API client is per instance
// (no global stripe.Key) so tests can point it at a fake backend.
type Stripe struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

// NewStripe refuses an empty webhook secret: stripe-go would verify
// signatures against an empty HMAC key, which anyone can produce.
func NewStripe(secretKey, webhookSecret string) (*Stripe, error) {
	return newStripe(secretKey, webhookSecret, nil)
}

func newStripe(secretKey, webhookSecret string, backends *stripe.Backends) (*Stripe, error) {
	if webhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Stripe{api: api, webhookSecret: webhookSecret, tolerance: DefaultSignatureTolerance}, nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(p.UserID),
	}
	switch {
	case p.CustomerID != "":
		params.Customer = stripe.String(p.CustomerID)
	case p.Email != "":
		params.CustomerEmail = stripe.String(p.Email)
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: creating checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *Stripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("billing: creating portal session: %w", err)
	}
	return sess.URL, nil
}

// ParseWebhook checks the Stripe-Signature header (HMAC-SHA256 over
// "timestamp.payload", timestamp within the tolerance) and decodes the event.
// Events from any API version are accepted; ParseSubscription copes with
// both period-end layouts.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                s.tolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil {
		out.Data = ev.Data.Raw
	}
	return out, nil
}
