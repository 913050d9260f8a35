package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/billing"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
	"github.com/sakif/devstats/internal/telemetry"
)

// BillingConfig holds the checkout settings. BaseURL builds return URLs.
type BillingConfig struct {
	PriceID string
	BaseURL string
}

// BillingService creates checkout and portal sessions, applies webhook
// events to the subscriptions table and answers "is this user Pro?".
// provider may be nil when billing is not configured: reads still work,
// checkout and portal report billing_disabled.
type BillingService struct {
	subs     repository.SubscriptionRepository
	users    repository.UserRepository
	events   repository.WebhookEventRepository
	provider billing.Provider
	cfg      BillingConfig
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewBillingService(
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	events repository.WebhookEventRepository,
	provider billing.Provider,
	cfg BillingConfig,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *BillingService {
	return &BillingService{
		subs:     subs,
		users:    users,
		events:   events,
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

var errBillingDisabled = apperror.ConflictCode("billing_disabled", "billing is not configured on this server")

// Subscription returns the stored subscription, or the free default.
func (s *BillingService) Subscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := s.subs.GetByUserID(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return model.FreeSubscription(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/billing: loading subscription of %s: %w", userID, err)
	}
	return sub, nil
}

func (s *BillingService) IsPro(ctx context.Context, userID string) (bool, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub.IsPro(s.now()), nil
}

// RequirePro returns a payment_required error unless userID is Pro.
func (s *BillingService) RequirePro(ctx context.Context, userID, feature string) error {
	pro, err := s.IsPro(ctx, userID)
	if err != nil {
		return err
	}
	if !pro {
		return apperror.PaymentRequired(feature)
	}
	return nil
}

// Checkout starts a subscription checkout and returns the hosted page URL.
func (s *BillingService) Checkout(ctx context.Context, userID string) (string, error) {
	if s.provider == nil || s.cfg.PriceID == "" {
		return "", errBillingDisabled
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("service/billing: loading user %s: %w", userID, err)
	}
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub.IsPro(s.now()) {
		return "", apperror.ConflictCode("already_subscribed", "you already have an active Pro subscription")
	}

	url, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		UserID:     userID,
		Email:      user.Email,
		CustomerID: sub.CustomerID,
		PriceID:    s.cfg.PriceID,
		SuccessURL: s.cfg.BaseURL + "/dashboard?checkout=success",
		CancelURL:  s.cfg.BaseURL + "/pricing?checkout=canceled",
	})
	if err != nil {
		return "", apperror.Upstream("payments", err)
	}
	s.logger.Info("checkout session created", slog.String("userID", userID))
	return url, nil
}

// Portal opens the billing portal for users that have a customer record.
func (s *BillingService) Portal(ctx context.Context, userID string) (string, error) {
	if s.provider == nil {
		return "", errBillingDisabled
	}
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub.CustomerID == "" {
		return "", apperror.ConflictCode("no_billing_account", "no billing account yet, subscribe first")
	}

	url, err := s.provider.CreatePortalSession(ctx, sub.CustomerID, s.cfg.BaseURL+"/dashboard")
	if err != nil {
		return "", apperror.Upstream("payments", err)
	}
	return url, nil
}

// HandleWebhook verifies and applies one delivery. An event id seen before
// is acknowledged without reapplying. The id is recorded only after the
// event was applied, so a failed delivery is retried by the provider.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.provider == nil {
		return errBillingDisabled
	}
	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		s.metrics.WebhookEvent("unknown", "invalid")
		return apperror.ValidationFailed("Stripe-Signature", "invalid webhook signature")
	}
	log := s.logger.With(slog.String("eventID", ev.ID), slog.String("type", ev.Type))

	seen, err := s.events.Processed(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("service/billing: checking event %s: %w", ev.ID, err)
	}
	if seen {
		log.Info("duplicate webhook event acknowledged")
		s.metrics.WebhookEvent(ev.Type, "duplicate")
		return nil
	}

	outcome := "applied"
	switch ev.Type {
	case billing.EventCheckoutCompleted:
		err = s.applyCheckout(ctx, ev, log)
	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated:
		err = s.applySubscriptionChange(ctx, ev)
	case billing.EventSubscriptionDeleted:
		err = s.applySubscriptionDeleted(ctx, ev, log)
	case billing.EventInvoicePaymentFailed:
		err = s.applyPaymentFailed(ctx, ev, log)
	default:
		outcome = "ignored"
	}
	if err != nil {
		log.Error("webhook event failed", slog.String("error", err.Error()))
		s.metrics.WebhookEvent(ev.Type, "error")
		return fmt.Errorf("service/billing: applying %s: %w", ev.Type, err)
	}

	if err := s.events.Record(ctx, ev.ID, ev.Type); err != nil {
		return fmt.Errorf("service/billing: recording event %s: %w", ev.ID, err)
	}
	log.Info("webhook event processed", slog.String("outcome", outcome))
	s.metrics.WebhookEvent(ev.Type, outcome)
	return nil
}

func (s *BillingService) applyCheckout(ctx context.Context, ev billing.Event, log *slog.Logger) error {
	done, err := billing.ParseCheckoutCompleted(ev.Data)
	if err != nil {
		return err
	}
	if _, err := s.users.GetByID(ctx, done.ClientReferenceID); errors.Is(err, apperror.ErrNotFound) {
		// Retrying cannot make a deleted user reappear.
		log.Warn("checkout completed for unknown user", slog.String("userID", done.ClientReferenceID))
		return nil
	} else if err != nil {
		return err
	}

	sub, err := s.Subscription(ctx, done.ClientReferenceID)
	if err != nil {
		return err
	}
	sub.CustomerID = done.CustomerID
	sub.ProviderSubscriptionID = done.SubscriptionID
	sub.Plan = model.PlanPro
	sub.Status = model.StatusActive
	if sub.PriceID == "" {
		sub.PriceID = s.cfg.PriceID
	}
	return s.subs.Upsert(ctx, sub)
}

// applySubscriptionChange returns an error when the customer is unknown:
// subscription events can arrive before checkout.session.completed, and
// the provider's retry lands after the customer is linked.
func (s *BillingService) applySubscriptionChange(ctx context.Context, ev billing.Event) error {
	change, err := billing.ParseSubscription(ev.Data)
	if err != nil {
		return err
	}
	sub, err := s.subs.GetByCustomerID(ctx, change.CustomerID)
	if err != nil {
		return err
	}

	sub.ProviderSubscriptionID = change.ID
	sub.Status = change.Status
	sub.CancelAtPeriodEnd = change.CancelAtPeriodEnd
	sub.CurrentPeriodEnd = change.CurrentPeriodEnd
	if change.PriceID != "" {
		sub.PriceID = change.PriceID
	}
	switch change.Status {
	case model.StatusCanceled, "incomplete_expired":
		sub.Plan = model.PlanFree
	default:
		sub.Plan = model.PlanPro
	}
	return s.subs.Upsert(ctx, sub)
}

func (s *BillingService) applySubscriptionDeleted(ctx context.Context, ev billing.Event, log *slog.Logger) error {
	change, err := billing.ParseSubscription(ev.Data)
	if err != nil {
		return err
	}
	sub, err := s.subs.GetByCustomerID(ctx, change.CustomerID)
	if errors.Is(err, apperror.ErrNotFound) {
		log.Warn("subscription deleted for unknown customer", slog.String("customer", change.CustomerID))
		return nil
	}
	if err != nil {
		return err
	}

	sub.Status = model.StatusCanceled
	sub.Plan = model.PlanFree
	sub.CancelAtPeriodEnd = false
	return s.subs.Upsert(ctx, sub)
}

func (s *BillingService) applyPaymentFailed(ctx context.Context, ev billing.Event, log *slog.Logger) error {
	inv, err := billing.ParseInvoice(ev.Data)
	if err != nil {
		return err
	}
	sub, err := s.subs.GetByCustomerID(ctx, inv.CustomerID)
	if errors.Is(err, apperror.ErrNotFound) {
		log.Warn("payment failed for unknown customer", slog.String("customer", inv.CustomerID))
		return nil
	}
	if err != nil {
		return err
	}

	sub.Status = model.StatusPastDue
	return s.subs.Upsert(ctx, sub)
}
