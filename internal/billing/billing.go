// Package billing talks to the payments provider: checkout and billing
// portal sessions out, signed webhook events in. The rest of the app sees
// only the Provider interface and the small event payload types below, so
// handlers and services never import the Stripe SDK.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Webhook event types we act on. Everything else is acknowledged and
// dropped.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// DefaultSignatureTolerance bounds the age of a webhook timestamp.
const DefaultSignatureTolerance = 5 * time.Minute

var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

var ErrMissingWebhookSecret = errors.New("billing: webhook signing secret is required")

// Event is a verified webhook delivery. Data is the event's data.object.
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

type CheckoutParams struct {
	UserID     string // becomes client_reference_id
	Email      string // prefills checkout when there is no customer yet
	CustomerID string // reuse an existing customer
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Provider is the payments backend. *Stripe is the production one.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (url string, err error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (url string, err error)
	// ParseWebhook verifies signature over payload and decodes the event.
	ParseWebhook(payload []byte, signature string) (Event, error)
}

// CheckoutCompleted is the part of a checkout.session object we use.
type CheckoutCompleted struct {
	ClientReferenceID string
	CustomerID        string
	SubscriptionID    string
}

func ParseCheckoutCompleted(data json.RawMessage) (CheckoutCompleted, error) {
	var obj struct {
		ClientReferenceID string     `json:"client_reference_id"`
		Customer          expandable `json:"customer"`
		Subscription      expandable `json:"subscription"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return CheckoutCompleted{}, fmt.Errorf("billing: decoding checkout session: %w", err)
	}
	if obj.ClientReferenceID == "" {
		return CheckoutCompleted{}, errors.New("billing: checkout session has no client_reference_id")
	}
	return CheckoutCompleted{
		ClientReferenceID: obj.ClientReferenceID,
		CustomerID:        string(obj.Customer),
		SubscriptionID:    string(obj.Subscription),
	}, nil
}

// SubscriptionChange is the part of a subscription object we use.
type SubscriptionChange struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
}

func ParseSubscription(data json.RawMessage) (SubscriptionChange, error) {
	var obj struct {
		ID                string     `json:"id"`
		Customer          expandable `json:"customer"`
		Status            string     `json:"status"`
		CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
		CurrentPeriodEnd  int64      `json:"current_period_end"`
		Items             struct {
			Data []struct {
				CurrentPeriodEnd int64 `json:"current_period_end"`
				Price            struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return SubscriptionChange{}, fmt.Errorf("billing: decoding subscription: %w", err)
	}
	if obj.Customer == "" {
		return SubscriptionChange{}, errors.New("billing: subscription has no customer")
	}

	change := SubscriptionChange{
		ID:                obj.ID,
		CustomerID:        string(obj.Customer),
		Status:            obj.Status,
		CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
	}
	// Newer API versions moved the period end onto the subscription items.
	end := obj.CurrentPeriodEnd
	if len(obj.Items.Data) > 0 {
		change.PriceID = obj.Items.Data[0].Price.ID
		if end == 0 {
			end = obj.Items.Data[0].CurrentPeriodEnd
		}
	}
	if end > 0 {
		t := time.Unix(end, 0).UTC()
		change.CurrentPeriodEnd = &t
	}
	return change, nil
}

// InvoiceFailed is the part of an invoice object we use.
type InvoiceFailed struct {
	CustomerID string
}

func ParseInvoice(data json.RawMessage) (InvoiceFailed, error) {
	var obj struct {
		Customer expandable `json:"customer"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return InvoiceFailed{}, fmt.Errorf("billing: decoding invoice: %w", err)
	}
	if obj.Customer == "" {
		return InvoiceFailed{}, errors.New("billing: invoice has no customer")
	}
	return InvoiceFailed{CustomerID: string(obj.Customer)}, nil
}

// expandable decodes a field that is either an id string or, when expanded,
// an object with an "id".
type expandable string

func (e *expandable) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*e = ""
		return nil
	}
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*e = expandable(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}
