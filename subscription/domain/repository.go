package domain

import "context"

// Repository persists subscriptions. Put must atomically write the record
// and the tenant secondary index; a tenant can only ever own one
// subscription.
type Repository interface {
	Put(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id string) (*Subscription, error)
	GetByTenant(ctx context.Context, tenantID string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
}

// BillingRepository persists finalized overage statements. Put also moves
// the tenant's current-billing pointer.
type BillingRepository interface {
	Put(ctx context.Context, billing *UsageBilling) error
	GetByID(ctx context.Context, id string) (*UsageBilling, error)
	GetCurrentForTenant(ctx context.Context, tenantID string) (*UsageBilling, error)
}

// EventRepository appends to the per-subscription audit list, trimming it to
// the retention cap.
type EventRepository interface {
	Append(ctx context.Context, event *SubscriptionEvent) error
	ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]SubscriptionEvent, error)
}
