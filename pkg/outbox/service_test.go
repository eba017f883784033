package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sergioaranda/forgeline-backend/pkg/db/models"
	"github.com/sergioaranda/forgeline-backend/pkg/enums"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	outboxEvents := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(outboxEvents).Error)
	t.Cleanup(func() {
		db.Exec("DELETE FROM outbox_events")
	})
	return db
}

func TestRepository_FetchAndMark(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	first := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvoicePaid,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     time.Now().Add(-2 * time.Minute),
	}
	second := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentRecorded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     time.Now().Add(-1 * time.Minute),
	}
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID, "oldest event should come first")

	require.NoError(t, repo.MarkPublished(first.ID))
	rows, err = repo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second.ID, rows[0].ID)

	require.NoError(t, repo.MarkFailed(second.ID, errors.New("publish timeout")))
	var failed models.OutboxEvent
	require.NoError(t, db.Where("id = ?", second.ID).First(&failed).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "publish timeout", *failed.LastError)
}

func TestRepository_InsertRequiresTx(t *testing.T) {
	repo := NewRepository(nil)
	err := repo.Insert(nil, models.OutboxEvent{})
	require.Error(t, err)
}

func TestService_EmitWrapsEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	userID := uuid.New()
	aggregateID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventSubscriptionSynced,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   aggregateID,
		Source:        &SourceRef{UserID: userID, StripeEventID: "evt_123"},
		Data:          map[string]string{"status": "active"},
	}
	require.NoError(t, svc.Emit(context.Background(), db, event))

	var row models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", aggregateID).First(&row).Error)
	assert.Equal(t, enums.EventSubscriptionSynced, row.EventType)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version, "version should default to 1")
	assert.NotEmpty(t, envelope.EventID)
	assert.False(t, envelope.OccurredAt.IsZero())
	require.NotNil(t, envelope.Source)
	assert.Equal(t, "evt_123", envelope.Source.StripeEventID)

	var data map[string]string
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "active", data["status"])
}

func TestService_EmitRequiresTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{})
	require.Error(t, err)
}
