package model

import "time"

// Plans.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Subscription statuses, mirroring the payment provider's values.
const (
	StatusActive     = "active"
	StatusTrialing   = "trialing"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusIncomplete = "incomplete"
	StatusUnpaid     = "unpaid"
)

// Subscription is the billing state of one user. Rows are written by the
// webhook handler; a user without a row is on the free plan.
type Subscription struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"userId"`
	CustomerID             string     `json:"-"`
	ProviderSubscriptionID string     `json:"-"`
	Plan                   string     `json:"plan"`
	Status                 string     `json:"status"`
	PriceID                string     `json:"priceId,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd      bool       `json:"cancelAtPeriodEnd"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// FreeSubscription is what a user without a subscription row gets.
func FreeSubscription(userID string) *Subscription {
	return &Subscription{UserID: userID, Plan: PlanFree, Status: StatusActive}
}

// IsPro reports whether the subscription currently unlocks Pro features:
// paid plan, in good standing, and not past its period end.
func (s *Subscription) IsPro(now time.Time) bool {
	if s == nil || s.Plan != PlanPro {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusTrialing {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}
