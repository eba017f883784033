package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SourceRef identifies the upstream event a domain event was derived from.
type SourceRef struct {
	UserID        uuid.UUID `json:"userId"`
	StripeEventID string    `json:"stripeEventId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Source     *SourceRef      `json:"source,omitempty"`
	Data       json.RawMessage `json:"data"`
}
