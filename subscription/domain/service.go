package domain

import (
	"context"

	"github.com/nestwatch/payments/plan"
	settlementdomain "github.com/nestwatch/payments/settlement/domain"
)

// CreateSubscriptionRequest starts a tenant's billing relationship.
type CreateSubscriptionRequest struct {
	TenantID      string
	PlanID        string
	Yearly        bool
	PaymentMethod string
	// WalletAddress plus Wallet select wallet-path settlement. Both travel
	// with the request; nothing wallet-related is shared between calls.
	WalletAddress string
	Wallet        settlementdomain.WalletConnector
}

// UpgradeSubscriptionRequest moves the tenant to a different plan mid-period.
type UpgradeSubscriptionRequest struct {
	TenantID      string
	NewPlanID     string
	Yearly        bool
	WalletAddress string
	Wallet        settlementdomain.WalletConnector
}

// Result is the normalized outcome of a public lifecycle operation.
// Expected, recoverable conditions land here as Success=false rather than as
// Go errors, so callers branch on a flag.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Subscription *Subscription                        `json:"subscription,omitempty"`
	Transaction  *settlementdomain.PaymentTransaction `json:"transaction,omitempty"`
	Billing      *UsageBilling                        `json:"billing,omitempty"`
	// ProratedAmountWei is set by upgrades.
	ProratedAmountWei string `json:"prorated_amount_wei,omitempty"`
}

// StatusView is the read-only composite for display.
type StatusView struct {
	Subscription *Subscription                         `json:"subscription"`
	Plan         plan.Plan                             `json:"plan"`
	Usage        UsageCounters                         `json:"usage"`
	Billing      *UsageBilling                         `json:"billing,omitempty"`
	Transactions []settlementdomain.PaymentTransaction `json:"transactions,omitempty"`
}

// Service is the subscription lifecycle manager.
type Service interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) Result
	UpgradeSubscription(ctx context.Context, req UpgradeSubscriptionRequest) Result
	CancelSubscription(ctx context.Context, tenantID string, immediately bool) Result
	ProcessUsageBilling(ctx context.Context, tenantID string) Result
	// GetSubscriptionStatus returns nil when the tenant has no subscription.
	GetSubscriptionStatus(ctx context.Context, tenantID string) (*StatusView, error)
	// RecordUsage replaces the live usage counter block.
	RecordUsage(ctx context.Context, tenantID string, usage UsageCounters) error
	ListEvents(ctx context.Context, subscriptionID string, limit int) ([]SubscriptionEvent, error)
}
