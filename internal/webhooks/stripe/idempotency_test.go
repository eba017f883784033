package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stubIdempotencyStore struct {
	values map[string]string
	setErr error
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{values: map[string]string{}}
}

func (s *stubIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	return s.values[key], nil
}

func (s *stubIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, exists := s.values[key]; exists {
		return false, nil
	}
	s.values[key] = fmt.Sprint(value)
	return true, nil
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "fl:idempotency:" + scope + ":" + id
}

func (s *stubIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func TestIdempotencyGuard_ClaimsOnce(t *testing.T) {
	store := newStubIdempotencyStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}
	ctx := context.Background()

	duplicate, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if duplicate {
		t.Fatal("first claim should not be a duplicate")
	}

	duplicate, err = guard.CheckAndMark(ctx, "evt_1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !duplicate {
		t.Fatal("second claim should report a duplicate")
	}

	if duplicate, _ = guard.CheckAndMark(ctx, "evt_2"); duplicate {
		t.Fatal("a different event must claim independently")
	}
}

func TestIdempotencyGuard_DeleteReleasesClaim(t *testing.T) {
	store := newStubIdempotencyStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}
	ctx := context.Background()

	if _, err := guard.CheckAndMark(ctx, "evt_retry"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := guard.Delete(ctx, "evt_retry"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	duplicate, err := guard.CheckAndMark(ctx, "evt_retry")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if duplicate {
		t.Fatal("released event should be claimable again")
	}
}

func TestIdempotencyGuard_StoreErrorSurfaces(t *testing.T) {
	store := newStubIdempotencyStore()
	store.setErr = errors.New("redis unavailable")
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	if err != nil {
		t.Fatalf("NewIdempotencyGuard: %v", err)
	}

	if _, err := guard.CheckAndMark(context.Background(), "evt_down"); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestNewIdempotencyGuard_Validation(t *testing.T) {
	if _, err := NewIdempotencyGuard(nil, time.Hour, "scope"); err == nil {
		t.Fatal("nil store should be rejected")
	}
	if _, err := NewIdempotencyGuard(newStubIdempotencyStore(), time.Hour, ""); err == nil {
		t.Fatal("empty scope should be rejected")
	}
	if _, err := NewIdempotencyGuard(newStubIdempotencyStore(), -time.Second, "scope"); err == nil {
		t.Fatal("negative ttl should be rejected")
	}
}
