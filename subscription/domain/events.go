package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewEvent builds an audit entry. Event IDs are ULIDs so the append-only
// trail sorts by creation time.
func NewEvent(subscriptionID, tenantID string, typ EventType, payload map[string]any, at time.Time) *SubscriptionEvent {
	return &SubscriptionEvent{
		SchemaVersion:  SchemaVersion,
		ID:             "evt_" + ulid.Make().String(),
		SubscriptionID: subscriptionID,
		TenantID:       tenantID,
		Type:           typ,
		Payload:        payload,
		CreatedAt:      at.UTC(),
	}
}
