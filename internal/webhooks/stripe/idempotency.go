package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sergioaranda/forgeline-backend/pkg/redis"
)

// IdempotencyGuard claims Stripe event IDs in Redis so each delivery is
// processed at most once within the TTL window. The claim is advisory; the
// handlers upsert by external ID on their own, so a lost claim only costs a
// harmless reprocess.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("idempotency ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("idempotency scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark claims the event ID, storing the claim time for debugging
// replayed deliveries. It returns true when an earlier delivery already holds
// the claim.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("stripe event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	claimedAt := time.Now().UTC().Format(time.RFC3339Nano)
	set, err := g.store.SetNX(ctx, key, claimedAt, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim stripe event %s: %w", eventID, err)
	}
	return !set, nil
}

// Delete releases a claimed event ID so a failed delivery can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("stripe event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	return g.store.Del(ctx, key)
}
