package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/model"
)

func TestSubscriptions_UpsertAndLookup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "pro@example.com")
	subs := db.Subscriptions()

	if _, err := subs.GetByUserID(ctx, u.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetByUserID() before upsert error = %v, want ErrNotFound", err)
	}

	end := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	sub := &model.Subscription{
		UserID:                 u.ID,
		CustomerID:             "cus_123",
		ProviderSubscriptionID: "sub_123",
		Plan:                   model.PlanPro,
		Status:                 model.StatusActive,
		PriceID:                "price_pro",
		CurrentPeriodEnd:       &end,
	}
	if err := subs.Upsert(ctx, sub); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	firstID := sub.ID

	got, err := subs.GetByCustomerID(ctx, "cus_123")
	if err != nil {
		t.Fatalf("GetByCustomerID() error = %v", err)
	}
	if got.UserID != u.ID || got.Plan != model.PlanPro || got.CurrentPeriodEnd == nil || !got.CurrentPeriodEnd.Equal(end) {
		t.Errorf("GetByCustomerID() = %+v", got)
	}

	got.Status = model.StatusCanceled
	got.Plan = model.PlanFree
	got.CancelAtPeriodEnd = true
	got.CurrentPeriodEnd = nil
	if err := subs.Upsert(ctx, got); err != nil {
		t.Fatalf("Upsert() update error = %v", err)
	}

	again, _ := subs.GetByUserID(ctx, u.ID)
	if again.ID != firstID {
		t.Errorf("ID changed on update: %q -> %q", firstID, again.ID)
	}
	if again.Status != model.StatusCanceled || !again.CancelAtPeriodEnd || again.CurrentPeriodEnd != nil {
		t.Errorf("after update got %+v", again)
	}
}

func TestSubscriptions_CustomerIDUniqueButEmptyAllowed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "a@example.com")
	b := createTestUser(t, db, "b@example.com")
	subs := db.Subscriptions()

	for _, u := range []*model.User{a, b} {
		if err := subs.Upsert(ctx, model.FreeSubscription(u.ID)); err != nil {
			t.Fatalf("Upsert() free subscription error = %v", err)
		}
	}

	_ = subs.Upsert(ctx, &model.Subscription{UserID: a.ID, CustomerID: "cus_same", Plan: model.PlanPro, Status: model.StatusActive})
	err := subs.Upsert(ctx, &model.Subscription{UserID: b.ID, CustomerID: "cus_same", Plan: model.PlanPro, Status: model.StatusActive})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Upsert() shared customer error = %v, want ErrConflict", err)
	}
}

func TestWebhookEvents_RecordIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	events := db.WebhookEvents()

	seen, err := events.Processed(ctx, "evt_1")
	if err != nil || seen {
		t.Fatalf("Processed() before Record = %v, %v", seen, err)
	}
	for range 2 {
		if err := events.Record(ctx, "evt_1", "invoice.payment_failed"); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	seen, _ = events.Processed(ctx, "evt_1")
	if !seen {
		t.Error("Processed() = false after Record")
	}
}
