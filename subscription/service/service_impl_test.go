package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/nestwatch/payments/clock"
	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/plan"
	"github.com/nestwatch/payments/settlement/backend"
	settlementdomain "github.com/nestwatch/payments/settlement/domain"
	settlementservice "github.com/nestwatch/payments/settlement/service"
	"github.com/nestwatch/payments/store"
	"github.com/nestwatch/payments/subscription/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type lifecycleHarness struct {
	svc    domain.Service
	clock  *clock.FakeClock
	holder *config.SettlementHolder
	subs   domain.Repository
}

// setupLifecycle wires the full stack against miniredis with an
// always-succeeding simulated backend. Tests flip the holder config to
// exercise failure and policy branches.
func setupLifecycle(t *testing.T) *lifecycleHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.DefaultSettlementConfig()
	cfg.Simulated.SuccessRate = 1.0
	cfg.Simulated.DelayMs = 0
	holder := config.NewStaticSettlementHolder(cfg)

	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	subs := store.NewSubscriptionRepo(rdb, log)
	txs := store.NewTransactionRepo(rdb, log, holder)
	billing := store.NewBillingRepo(rdb, log, holder)
	events := store.NewEventRepo(rdb, log, holder)

	engine := settlementservice.NewEngine(settlementservice.EngineParam{
		Log:      log,
		GenID:    node,
		Clock:    fake,
		Holder:   holder,
		Backends: backend.NewRegistry(backend.NewSimulated(holder), backend.NewChain()),
		Repo:     txs,
		Subs:     subs,
		Events:   events,
	})

	svc := NewService(ServiceParam{
		Log:        log,
		GenID:      node,
		Clock:      fake,
		Holder:     holder,
		Catalog:    plan.NewCatalog(),
		Repo:       subs,
		Billing:    billing,
		Events:     events,
		Settlement: engine,
	})

	return &lifecycleHarness{svc: svc, clock: fake, holder: holder, subs: subs}
}

func (h *lifecycleHarness) setSuccessRate(t *testing.T, rate float64) {
	t.Helper()
	cfg := h.holder.Get()
	cfg.Simulated.SuccessRate = rate
	require.NoError(t, h.holder.Store(cfg))
}

func (h *lifecycleHarness) setEntitlement(t *testing.T, policy string) {
	t.Helper()
	cfg := h.holder.Get()
	cfg.UpgradeEntitlement = policy
	require.NoError(t, h.holder.Store(cfg))
}

func TestCreateSubscription_FreeTierSkipsSettlement(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()

	result := h.svc.CreateSubscription(ctx, domain.CreateSubscriptionRequest{
		TenantID: "nest_1",
		PlanID:   "free",
	})
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Subscription)
	assert.Equal(t, domain.SubscriptionStatusActive, result.Subscription.Status)
	assert.Nil(t, result.Transaction)

	// No payment was attempted.
	view, err := h.svc.GetSubscriptionStatus(ctx, "nest_1")
	require.NoError(t, err)
	assert.Empty(t, view.Transactions)

	events, err := h.svc.ListEvents(ctx, result.Subscription.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventActivated, events[0].Type)
	assert.Equal(t, domain.EventCreated, events[1].Type)
}

func TestCreateSubscription_PaidPlanChargesAndActivates(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()

	result := h.svc.CreateSubscription(ctx, domain.CreateSubscriptionRequest{
		TenantID: "nest_1",
		PlanID:   "pro",
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, domain.SubscriptionStatusActive, result.Subscription.Status)

	require.NotNil(t, result.Transaction)
	assert.Equal(t, settlementdomain.TransactionStatusConfirmed, result.Transaction.Status)
	assert.Equal(t, settlementdomain.TransactionTypeSubscription, result.Transaction.Type)
	assert.Equal(t, "50000000000000000", result.Transaction.AmountWei)

	require.NotNil(t, result.Subscription.LastPayment)
	assert.Equal(t, result.Transaction.ID, result.Subscription.LastPayment.TransactionID)
}

func TestCreateSubscription_YearlyUsesYearlyPriceAndPeriod(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()

	result := h.svc.CreateSubscription(ctx, domain.CreateSubscriptionRequest{
		TenantID: "nest_1",
		PlanID:   "pro",
		Yearly:   true,
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "500000000000000000", result.Transaction.AmountWei)

	period := result.Subscription.CurrentPeriodEnd.Sub(result.Subscription.CurrentPeriodStart)
	assert.Equal(t, 365*24*time.Hour, period)
}

func TestCreateSubscription_FailedChargeStaysPending(t *testing.T) {
	h := setupLifecycle(t)
	h.setSuccessRate(t, 0.0)
	ctx := context.Background()

	result := h.svc.CreateSubscription(ctx, domain.CreateSubscriptionRequest{
		TenantID: "nest_1",
		PlanID:   "pro",
	})
	require.False(t, result.Success)
	assert.Equal(t, "insufficient funds", result.Error)
	require.NotNil(t, result.Subscription)
	assert.Equal(t, domain.SubscriptionStatusPending, result.Subscription.Status)

	// The pending subscription is retained so a retry cannot double-create.
	stored, err := h.subs.GetByTenant(ctx, "nest_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPending, stored.Status)

	again := h.svc.CreateSubscription(ctx, domain.CreateSubscriptionRequest{
		TenantID: "nest_1",
		PlanID:   "pro",
	})
	assert.False(t, again.Success)
	assert.Equal(t, domain.ErrSubscriptionExists.Error(), again.Error)
}

func TestCreateSubscription_Validation(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()

	result := h.svc.CreateSubscription(ctx, domain.CreateSubscriptionRequest{PlanID: "pro"})
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrInvalidTenant.Error(), result.Error)

	result = h.svc.CreateSubscription(ctx, domain.CreateSubscriptionRequest{
		TenantID: "nest_1",
		PlanID:   "platinum",
	})
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrInvalidPlan.Error(), result.Error)
}

// activeSubscription creates and activates a subscription on the given plan.
func activeSubscription(h *lifecycleHarness, t *testing.T, tenant, planID string) *domain.Subscription {
	t.Helper()
	result := h.svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		TenantID: tenant,
		PlanID:   planID,
	})
	require.True(t, result.Success, result.Error)
	return result.Subscription
}

func TestUpgradeSubscription_ProratedCharge(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	sub := activeSubscription(h, t, "nest_1", "pro")

	// 20 days into a 30-day period leaves 10 days to prorate.
	h.clock.Advance(20 * 24 * time.Hour)

	result := h.svc.UpgradeSubscription(ctx, domain.UpgradeSubscriptionRequest{
		TenantID:  "nest_1",
		NewPlanID: "enterprise",
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "50000000000000000", result.ProratedAmountWei)
	assert.Equal(t, "enterprise", result.Subscription.PlanID)
	assert.Equal(t, plan.TierEnterprise, result.Subscription.Tier)

	require.NotNil(t, result.Transaction)
	assert.Equal(t, settlementdomain.TransactionTypeUpgrade, result.Transaction.Type)
	assert.Equal(t, settlementdomain.TransactionStatusConfirmed, result.Transaction.Status)

	// The plan change is recorded before the charge settles, so the newest
	// entries are the payment events.
	events, err := h.svc.ListEvents(ctx, sub.ID, 10)
	require.NoError(t, err)
	types := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, domain.EventUpgraded)
	assert.Contains(t, types, domain.EventPaymentSucceeded)
}

func TestUpgradeSubscription_OptimisticKeepsEntitlementOnFailure(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	activeSubscription(h, t, "nest_1", "pro")

	h.clock.Advance(20 * 24 * time.Hour)
	h.setSuccessRate(t, 0.0)

	result := h.svc.UpgradeSubscription(ctx, domain.UpgradeSubscriptionRequest{
		TenantID:  "nest_1",
		NewPlanID: "enterprise",
	})
	require.False(t, result.Success)
	assert.Equal(t, "insufficient funds", result.Error)

	// The plan change applied before the charge; the failed payment is
	// surfaced for compensation.
	stored, err := h.subs.GetByTenant(ctx, "nest_1")
	require.NoError(t, err)
	assert.Equal(t, "enterprise", stored.PlanID)
}

func TestUpgradeSubscription_OnConfirmGatesEntitlement(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	activeSubscription(h, t, "nest_1", "pro")

	h.clock.Advance(20 * 24 * time.Hour)
	h.setEntitlement(t, config.EntitlementOnConfirm)
	h.setSuccessRate(t, 0.0)

	result := h.svc.UpgradeSubscription(ctx, domain.UpgradeSubscriptionRequest{
		TenantID:  "nest_1",
		NewPlanID: "enterprise",
	})
	require.False(t, result.Success)

	// The old plan still stands.
	stored, err := h.subs.GetByTenant(ctx, "nest_1")
	require.NoError(t, err)
	assert.Equal(t, "pro", stored.PlanID)

	// Once the charge succeeds the entitlement follows.
	h.setSuccessRate(t, 1.0)
	result = h.svc.UpgradeSubscription(ctx, domain.UpgradeSubscriptionRequest{
		TenantID:  "nest_1",
		NewPlanID: "enterprise",
	})
	require.True(t, result.Success, result.Error)
	stored, err = h.subs.GetByTenant(ctx, "nest_1")
	require.NoError(t, err)
	assert.Equal(t, "enterprise", stored.PlanID)
}

func TestUpgradeSubscription_DowngradeChargesNothing(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	sub := activeSubscription(h, t, "nest_1", "enterprise")

	h.clock.Advance(20 * 24 * time.Hour)

	result := h.svc.UpgradeSubscription(ctx, domain.UpgradeSubscriptionRequest{
		TenantID:  "nest_1",
		NewPlanID: "pro",
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "0", result.ProratedAmountWei)
	assert.Nil(t, result.Transaction)
	assert.Equal(t, "pro", result.Subscription.PlanID)

	events, err := h.svc.ListEvents(ctx, sub.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.EventDowngraded, eventTypeAt(events, 0, t))
}

func TestUpgradeSubscription_SamePlanRejected(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	activeSubscription(h, t, "nest_1", "pro")

	result := h.svc.UpgradeSubscription(ctx, domain.UpgradeSubscriptionRequest{
		TenantID:  "nest_1",
		NewPlanID: "pro",
	})
	assert.False(t, result.Success)
	assert.Equal(t, "plan_unchanged", result.Error)
}

func TestUpgradeSubscription_NoSubscription(t *testing.T) {
	h := setupLifecycle(t)

	result := h.svc.UpgradeSubscription(context.Background(), domain.UpgradeSubscriptionRequest{
		TenantID:  "nest_ghost",
		NewPlanID: "pro",
	})
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrSubscriptionNotFound.Error(), result.Error)
}

func TestCancelSubscription_Immediately(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	activeSubscription(h, t, "nest_1", "pro")

	h.clock.Advance(5 * 24 * time.Hour)
	now := h.clock.Now()

	result := h.svc.CancelSubscription(ctx, "nest_1", true)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, domain.SubscriptionStatusCancelled, result.Subscription.Status)
	assert.Equal(t, now, result.Subscription.CurrentPeriodEnd)
	require.NotNil(t, result.Subscription.CancelledAt)

	again := h.svc.CancelSubscription(ctx, "nest_1", true)
	assert.False(t, again.Success)
	assert.Equal(t, "already_cancelled", again.Error)
}

func TestCancelSubscription_AtPeriodEnd(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	sub := activeSubscription(h, t, "nest_1", "pro")

	result := h.svc.CancelSubscription(ctx, "nest_1", false)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, domain.SubscriptionStatusActive, result.Subscription.Status)
	assert.True(t, result.Subscription.CancelAtPeriodEnd)
	assert.Equal(t, sub.CurrentPeriodEnd, result.Subscription.CurrentPeriodEnd)
}

func TestProcessUsageBilling_WithinLimitsIsQuietSuccess(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	activeSubscription(h, t, "nest_1", "free")

	require.NoError(t, h.svc.RecordUsage(ctx, "nest_1", domain.UsageCounters{
		Requests:     5_000,
		StorageBytes: 1 << 29,
	}))

	result := h.svc.ProcessUsageBilling(ctx, "nest_1")
	require.True(t, result.Success, result.Error)
	assert.Nil(t, result.Billing)
	assert.Nil(t, result.Transaction)

	// No statement was written.
	view, err := h.svc.GetSubscriptionStatus(ctx, "nest_1")
	require.NoError(t, err)
	assert.Nil(t, view.Billing)
}

func TestProcessUsageBilling_OverageChargesAndFinalizes(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	activeSubscription(h, t, "nest_1", "free")

	gb := int64(1) << 30
	require.NoError(t, h.svc.RecordUsage(ctx, "nest_1", domain.UsageCounters{
		Requests:       12_500, // 3 blocks over
		StorageBytes:   3 * gb, // 2 GB over
		BandwidthBytes: 7 * gb, // 2 GB over
	}))

	result := h.svc.ProcessUsageBilling(ctx, "nest_1")
	require.True(t, result.Success, result.Error)

	require.NotNil(t, result.Billing)
	assert.Equal(t, domain.UsageBillingStatusFinalized, result.Billing.Status)
	assert.Equal(t, int64(3000), result.Billing.OverageRequests)
	assert.Equal(t, int64(2), result.Billing.OverageStorageGB)
	assert.Equal(t, int64(2), result.Billing.OverageBandwidthGB)
	assert.Equal(t, "1700000000000000", result.Billing.TotalCostWei)

	require.NotNil(t, result.Transaction)
	assert.Equal(t, settlementdomain.TransactionTypeOverage, result.Transaction.Type)
	assert.Equal(t, settlementdomain.TransactionStatusConfirmed, result.Transaction.Status)
	assert.Equal(t, "1700000000000000", result.Transaction.AmountWei)

	// The statement shows up as the tenant's current billing.
	view, err := h.svc.GetSubscriptionStatus(ctx, "nest_1")
	require.NoError(t, err)
	require.NotNil(t, view.Billing)
	assert.Equal(t, result.Billing.ID, view.Billing.ID)
}

func TestProcessUsageBilling_RequiresActiveSubscription(t *testing.T) {
	h := setupLifecycle(t)
	h.setSuccessRate(t, 0.0)
	ctx := context.Background()

	// A failed first charge leaves the subscription pending.
	created := h.svc.CreateSubscription(ctx, domain.CreateSubscriptionRequest{
		TenantID: "nest_1",
		PlanID:   "pro",
	})
	require.False(t, created.Success)

	result := h.svc.ProcessUsageBilling(ctx, "nest_1")
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrSubscriptionInactive.Error(), result.Error)

	missing := h.svc.ProcessUsageBilling(ctx, "nest_ghost")
	assert.False(t, missing.Success)
	assert.Equal(t, domain.ErrSubscriptionNotFound.Error(), missing.Error)
}

func TestGetSubscriptionStatus_ComposesView(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	sub := activeSubscription(h, t, "nest_1", "pro")

	view, err := h.svc.GetSubscriptionStatus(ctx, "nest_1")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, sub.ID, view.Subscription.ID)
	assert.Equal(t, "pro", view.Plan.ID)
	require.Len(t, view.Transactions, 1)
	assert.Equal(t, settlementdomain.TransactionStatusConfirmed, view.Transactions[0].Status)

	none, err := h.svc.GetSubscriptionStatus(ctx, "nest_ghost")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRecordUsage_ReplacesCountersAndStampsTime(t *testing.T) {
	h := setupLifecycle(t)
	ctx := context.Background()
	activeSubscription(h, t, "nest_1", "free")

	h.clock.Advance(time.Hour)
	usage := domain.UsageCounters{Services: 2, Workers: 1, Requests: 123}
	require.NoError(t, h.svc.RecordUsage(ctx, "nest_1", usage))

	stored, err := h.subs.GetByTenant(ctx, "nest_1")
	require.NoError(t, err)
	assert.Equal(t, int64(123), stored.Usage.Requests)
	assert.Equal(t, h.clock.Now(), stored.Usage.UpdatedAt)

	assert.ErrorIs(t, h.svc.RecordUsage(ctx, "nest_ghost", usage), domain.ErrSubscriptionNotFound)
}

func eventTypeAt(events []domain.SubscriptionEvent, i int, t *testing.T) domain.EventType {
	t.Helper()
	require.Greater(t, len(events), i)
	return events[i].Type
}
