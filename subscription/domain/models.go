// Package domain contains the billing records for subscriptions, usage
// statements and the lifecycle audit trail.
package domain

import (
	"errors"
	"time"

	"github.com/nestwatch/payments/plan"
)

// SchemaVersion tags every persisted record so the store can validate on
// read and reject malformed blobs instead of returning partially-typed data.
const SchemaVersion = 1

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
)

// UsageCounters is the live consumption block updated by the metering
// pipeline and read at overage-processing time.
type UsageCounters struct {
	Services       int       `json:"services"`
	Workers        int       `json:"workers"`
	Requests       int64     `json:"requests"`
	StorageBytes   int64     `json:"storage_bytes"`
	BandwidthBytes int64     `json:"bandwidth_bytes"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PaymentSummary is the last settled payment recorded on the subscription.
type PaymentSummary struct {
	TransactionID string    `json:"transaction_id"`
	AmountWei     string    `json:"amount_wei"`
	TxHash        string    `json:"tx_hash,omitempty"`
	PaidAt        time.Time `json:"paid_at"`
}

// Subscription is one tenant's billing relationship. Exactly one exists per
// tenant (enforced by the store's tenant index); it is never hard-deleted.
type Subscription struct {
	SchemaVersion      int                `json:"schema_version"`
	ID                 string             `json:"id"`
	TenantID           string             `json:"tenant_id"`
	PlanID             string             `json:"plan_id"`
	Tier               plan.Tier          `json:"tier"`
	Status             SubscriptionStatus `json:"status"`
	Yearly             bool               `json:"yearly"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	TrialEnd           *time.Time         `json:"trial_end,omitempty"`
	PaymentMethod      string             `json:"payment_method,omitempty"`
	LastPayment        *PaymentSummary    `json:"last_payment,omitempty"`
	Usage              UsageCounters      `json:"usage"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
}

// UsageBillingStatus is the statement lifecycle; a statement is immutable
// once finalized.
type UsageBillingStatus string

const (
	UsageBillingStatusDraft     UsageBillingStatus = "draft"
	UsageBillingStatusFinalized UsageBillingStatus = "finalized"
	UsageBillingStatusPaid      UsageBillingStatus = "paid"
)

// UsageBilling is a finalized overage statement for one billing period.
type UsageBilling struct {
	SchemaVersion  int                `json:"schema_version"`
	ID             string             `json:"id"`
	TenantID       string             `json:"tenant_id"`
	SubscriptionID string             `json:"subscription_id"`
	PeriodStart    time.Time          `json:"period_start"`
	PeriodEnd      time.Time          `json:"period_end"`
	Status         UsageBillingStatus `json:"status"`

	Requests       int64 `json:"requests"`
	StorageBytes   int64 `json:"storage_bytes"`
	BandwidthBytes int64 `json:"bandwidth_bytes"`

	OverageRequests    int64 `json:"overage_requests"`
	OverageStorageGB   int64 `json:"overage_storage_gb"`
	OverageBandwidthGB int64 `json:"overage_bandwidth_gb"`

	BaseCostWei      string `json:"base_cost_wei"`
	RequestsCostWei  string `json:"requests_cost_wei"`
	StorageCostWei   string `json:"storage_cost_wei"`
	BandwidthCostWei string `json:"bandwidth_cost_wei"`
	TotalCostWei     string `json:"total_cost_wei"`

	CreatedAt time.Time `json:"created_at"`
}

// EventType enumerates the append-only lifecycle audit entries.
type EventType string

const (
	EventCreated          EventType = "created"
	EventActivated        EventType = "activated"
	EventDeactivated      EventType = "deactivated"
	EventUpgraded         EventType = "upgraded"
	EventDowngraded       EventType = "downgraded"
	EventCancelled        EventType = "cancelled"
	EventRenewed          EventType = "renewed"
	EventPaymentFailed    EventType = "payment_failed"
	EventPaymentSucceeded EventType = "payment_succeeded"
)

// SubscriptionEvent is an audit-trail entry. Entries are never mutated;
// retention trims each subscription's list to the most recent N.
type SubscriptionEvent struct {
	SchemaVersion  int            `json:"schema_version"`
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	TenantID       string         `json:"tenant_id"`
	Type           EventType      `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrSubscriptionExists   = errors.New("subscription_exists")
	ErrSubscriptionInactive = errors.New("subscription_not_active")
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrBillingNotFound      = errors.New("billing_not_found")
)
