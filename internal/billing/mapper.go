package billing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
	"github.com/sergioaranda/forgeline-backend/pkg/enums"
	pkgerrors "github.com/sergioaranda/forgeline-backend/pkg/errors"
)

// BuildSubscriptionFromStripe maps a Stripe subscription into the canonical model.
func BuildSubscriptionFromStripe(stripeSub *stripe.Subscription, userID uuid.UUID) (*models.Subscription, error) {
	if stripeSub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}

	metadata, err := mergeMetadata(stripeSub.Metadata, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal metadata")
	}

	startTS, endTS := periodFromSubscription(stripeSub)

	return &models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		StripeSubscriptionID: stripeSub.ID,
		Status:               MapSubscriptionStatus(stripeSub.Status),
		PriceID:              trimmedPtr(priceIDFromSubscription(stripeSub)),
		CurrentPeriodStart:   toTimePtr(startTS),
		CurrentPeriodEnd:     toTimePtr(endTS),
		CancelAtPeriodEnd:    stripeSub.CancelAtPeriodEnd,
		CanceledAt:           toTimePtr(stripeSub.CanceledAt),
		EndedAt:              toTimePtr(stripeSub.EndedAt),
		TrialEndsAt:          toTimePtr(stripeSub.TrialEnd),
		Metadata:             metadata,
	}, nil
}

// UpdateSubscriptionFromStripe mutates the provided subscription with new Stripe data.
func UpdateSubscriptionFromStripe(target *models.Subscription, stripeSub *stripe.Subscription) error {
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "target subscription is nil")
	}
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}

	metadata, err := mergeMetadata(stripeSub.Metadata, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal metadata")
	}

	target.StripeSubscriptionID = stripeSub.ID
	target.Status = MapSubscriptionStatus(stripeSub.Status)
	if price := priceIDFromSubscription(stripeSub); price != "" {
		target.PriceID = &price
	}
	startTS, endTS := periodFromSubscription(stripeSub)
	target.CurrentPeriodStart = toTimePtr(startTS)
	target.CurrentPeriodEnd = toTimePtr(endTS)
	target.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
	target.CanceledAt = toTimePtr(stripeSub.CanceledAt)
	target.EndedAt = toTimePtr(stripeSub.EndedAt)
	target.TrialEndsAt = toTimePtr(stripeSub.TrialEnd)
	target.Metadata = metadata
	return nil
}

// MarkSubscriptionCanceled forces the terminal state for a deleted
// subscription. Timestamps carried by the payload are kept; missing ones are
// stamped with now so a canceled subscription always has canceled_at and
// ended_at set.
func MarkSubscriptionCanceled(target *models.Subscription, now time.Time) {
	if target == nil {
		return
	}
	target.Status = enums.SubscriptionStatusCanceled
	now = now.UTC()
	if target.CanceledAt == nil {
		ts := now
		target.CanceledAt = &ts
	}
	if target.EndedAt == nil {
		ts := now
		target.EndedAt = &ts
	}
}

// MapSubscriptionStatus translates a Stripe subscription status to the portal
// vocabulary. Unknown values fall back to active so a new upstream status never
// locks a paying client out.
func MapSubscriptionStatus(raw stripe.SubscriptionStatus) enums.SubscriptionStatus {
	normalized := strings.ToLower(strings.TrimSpace(string(raw)))
	if normalized == "" {
		return enums.SubscriptionStatusActive
	}
	if mapped, ok := stripeSubscriptionStatusAliases[normalized]; ok {
		return mapped
	}
	if parsed, err := enums.ParseSubscriptionStatus(normalized); err == nil {
		return parsed
	}
	return enums.SubscriptionStatusActive
}

// MapInvoiceStatus translates a Stripe invoice status. Unknown values fall back
// to open, which keeps the invoice actionable rather than silently settled.
func MapInvoiceStatus(raw stripe.InvoiceStatus) enums.InvoiceStatus {
	normalized := strings.ToLower(strings.TrimSpace(string(raw)))
	if normalized == "" {
		return enums.InvoiceStatusOpen
	}
	if parsed, err := enums.ParseInvoiceStatus(normalized); err == nil {
		return parsed
	}
	return enums.InvoiceStatusOpen
}

var stripeSubscriptionStatusAliases = map[string]enums.SubscriptionStatus{
	"incomplete_expired": enums.SubscriptionStatusCanceled,
}

func mergeMetadata(base map[string]string, extras map[string]string) (json.RawMessage, error) {
	if len(base) == 0 && len(extras) == 0 {
		return json.RawMessage("{}"), nil
	}
	merged := make(map[string]string, len(base)+len(extras))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extras {
		if v == "" {
			continue
		}
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func periodFromSubscription(sub *stripe.Subscription) (int64, int64) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0, 0
	}
	item := sub.Items.Data[0]
	if item == nil {
		return 0, 0
	}
	return item.CurrentPeriodStart, item.CurrentPeriodEnd
}

func priceIDFromSubscription(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

func trimmedPtr(value string) *string {
	if s := strings.TrimSpace(value); s != "" {
		return &s
	}
	return nil
}
