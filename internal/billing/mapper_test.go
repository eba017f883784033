package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
	"github.com/sergioaranda/forgeline-backend/pkg/enums"
)

func TestMapSubscriptionStatus_KnownValues(t *testing.T) {
	cases := map[stripe.SubscriptionStatus]enums.SubscriptionStatus{
		stripe.SubscriptionStatusActive:            enums.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing:          enums.SubscriptionStatusTrialing,
		stripe.SubscriptionStatusPastDue:           enums.SubscriptionStatusPastDue,
		stripe.SubscriptionStatusUnpaid:            enums.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncomplete:        enums.SubscriptionStatusIncomplete,
		stripe.SubscriptionStatusIncompleteExpired: enums.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusCanceled:          enums.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusPaused:            enums.SubscriptionStatusPaused,
	}
	for raw, expected := range cases {
		if got := MapSubscriptionStatus(raw); got != expected {
			t.Errorf("MapSubscriptionStatus(%q) = %q, want %q", raw, got, expected)
		}
	}
}

func TestMapSubscriptionStatus_UnknownValueDefaultsToActive(t *testing.T) {
	for _, raw := range []string{"", "brand_new_status", "  Active  "} {
		got := MapSubscriptionStatus(stripe.SubscriptionStatus(raw))
		if raw == "  Active  " {
			if got != enums.SubscriptionStatusActive {
				t.Errorf("expected trimmed status to map, got %q", got)
			}
			continue
		}
		if got != enums.SubscriptionStatusActive {
			t.Errorf("MapSubscriptionStatus(%q) = %q, want active", raw, got)
		}
	}
}

func TestMapInvoiceStatus(t *testing.T) {
	cases := map[stripe.InvoiceStatus]enums.InvoiceStatus{
		stripe.InvoiceStatusDraft:         enums.InvoiceStatusDraft,
		stripe.InvoiceStatusOpen:          enums.InvoiceStatusOpen,
		stripe.InvoiceStatusPaid:          enums.InvoiceStatusPaid,
		stripe.InvoiceStatusUncollectible: enums.InvoiceStatusUncollectible,
		stripe.InvoiceStatusVoid:          enums.InvoiceStatusVoid,
	}
	for raw, expected := range cases {
		if got := MapInvoiceStatus(raw); got != expected {
			t.Errorf("MapInvoiceStatus(%q) = %q, want %q", raw, got, expected)
		}
	}

	if got := MapInvoiceStatus(stripe.InvoiceStatus("mystery")); got != enums.InvoiceStatusOpen {
		t.Errorf("unknown invoice status should map to open, got %q", got)
	}
	if got := MapInvoiceStatus(stripe.InvoiceStatus("")); got != enums.InvoiceStatusOpen {
		t.Errorf("empty invoice status should map to open, got %q", got)
	}
}

func TestBuildSubscriptionFromStripe(t *testing.T) {
	userID := uuid.New()
	start := time.Now().Add(-24 * time.Hour).Unix()
	end := time.Now().Add(29 * 24 * time.Hour).Unix()

	stripeSub := &stripe.Subscription{
		ID:                "sub_123",
		Status:            stripe.SubscriptionStatusTrialing,
		CancelAtPeriodEnd: true,
		TrialEnd:          end,
		Metadata:          map[string]string{"plan": "retainer"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					CurrentPeriodStart: start,
					CurrentPeriodEnd:   end,
					Price:              &stripe.Price{ID: "price_abc"},
				},
			},
		},
	}

	built, err := BuildSubscriptionFromStripe(stripeSub, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.UserID != userID {
		t.Fatalf("unexpected user id %s", built.UserID)
	}
	if built.StripeSubscriptionID != "sub_123" {
		t.Fatalf("unexpected stripe id %q", built.StripeSubscriptionID)
	}
	if built.Status != enums.SubscriptionStatusTrialing {
		t.Fatalf("unexpected status %q", built.Status)
	}
	if built.PriceID == nil || *built.PriceID != "price_abc" {
		t.Fatalf("unexpected price id %v", built.PriceID)
	}
	if built.CurrentPeriodStart == nil || built.CurrentPeriodStart.Unix() != start {
		t.Fatalf("unexpected period start %v", built.CurrentPeriodStart)
	}
	if built.CurrentPeriodEnd == nil || built.CurrentPeriodEnd.Unix() != end {
		t.Fatalf("unexpected period end %v", built.CurrentPeriodEnd)
	}
	if !built.CancelAtPeriodEnd {
		t.Fatal("expected cancel_at_period_end to carry over")
	}
}

func TestBuildSubscriptionFromStripe_NilSubscription(t *testing.T) {
	if _, err := BuildSubscriptionFromStripe(nil, uuid.New()); err == nil {
		t.Fatal("expected error for nil subscription")
	}
}

func TestUpdateSubscriptionFromStripe_PreservesPriceWhenMissing(t *testing.T) {
	existingPrice := "price_old"
	userID := uuid.New()
	built, err := BuildSubscriptionFromStripe(&stripe.Subscription{ID: "sub_9"}, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	built.PriceID = &existingPrice

	update := &stripe.Subscription{
		ID:     "sub_9",
		Status: stripe.SubscriptionStatusPastDue,
	}
	if err := UpdateSubscriptionFromStripe(built, update); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("unexpected status %q", built.Status)
	}
	if built.PriceID == nil || *built.PriceID != "price_old" {
		t.Fatalf("price id should be preserved when the event omits it, got %v", built.PriceID)
	}
}

func TestMarkSubscriptionCanceled_StampsMissingTimestamps(t *testing.T) {
	now := time.Now().UTC()

	sub := &models.Subscription{Status: enums.SubscriptionStatusActive}
	MarkSubscriptionCanceled(sub, now)
	if sub.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled status, got %q", sub.Status)
	}
	if sub.CanceledAt == nil || !sub.CanceledAt.Equal(now) {
		t.Fatalf("expected canceled_at stamped with now, got %v", sub.CanceledAt)
	}
	if sub.EndedAt == nil || !sub.EndedAt.Equal(now) {
		t.Fatalf("expected ended_at stamped with now, got %v", sub.EndedAt)
	}
}

func TestMarkSubscriptionCanceled_KeepsPayloadTimestamps(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-2 * time.Hour)

	sub := &models.Subscription{
		Status:     enums.SubscriptionStatusPastDue,
		CanceledAt: &earlier,
		EndedAt:    &earlier,
	}
	MarkSubscriptionCanceled(sub, now)
	if sub.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled status, got %q", sub.Status)
	}
	if !sub.CanceledAt.Equal(earlier) {
		t.Fatalf("payload canceled_at should win, got %v", sub.CanceledAt)
	}
	if !sub.EndedAt.Equal(earlier) {
		t.Fatalf("payload ended_at should win, got %v", sub.EndedAt)
	}
}

func TestUpdateSubscriptionFromStripe_NilTarget(t *testing.T) {
	if err := UpdateSubscriptionFromStripe(nil, &stripe.Subscription{}); err == nil {
		t.Fatal("expected error for nil target")
	}
}
