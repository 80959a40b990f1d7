// Package service implements the subscription lifecycle manager.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/nestwatch/payments/clock"
	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/plan"
	"github.com/nestwatch/payments/pricing"
	settlementdomain "github.com/nestwatch/payments/settlement/domain"
	"github.com/nestwatch/payments/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/nestwatch/payments/subscription")

const (
	monthlyPeriod = 30 * 24 * time.Hour
	yearlyPeriod  = 365 * 24 * time.Hour
)

type Service struct {
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	holder *config.SettlementHolder

	catalog    *plan.Catalog
	repo       domain.Repository
	billing    domain.BillingRepository
	events     domain.EventRepository
	settlement settlementdomain.Service
}

type ServiceParam struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Holder *config.SettlementHolder

	Catalog    *plan.Catalog
	Repo       domain.Repository
	Billing    domain.BillingRepository
	Events     domain.EventRepository
	Settlement settlementdomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:        p.Log.Named("subscription.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		holder:     p.Holder,
		catalog:    p.Catalog,
		repo:       p.Repo,
		billing:    p.Billing,
		events:     p.Events,
		settlement: p.Settlement,
	}
}

// CreateSubscription builds a pending subscription and, unless the plan is
// free, charges the first period. A failed charge leaves the subscription
// pending so the caller can offer a retry without risking a double charge.
func (s *Service) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) domain.Result {
	ctx, span := tracer.Start(ctx, "subscription.Create", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("plan_id", req.PlanID),
	))
	defer span.End()

	if req.TenantID == "" {
		return failure(domain.ErrInvalidTenant)
	}

	p, err := s.catalog.Get(req.PlanID)
	if err != nil {
		return failure(domain.ErrInvalidPlan)
	}

	if _, err := s.repo.GetByTenant(ctx, req.TenantID); err == nil {
		return failure(domain.ErrSubscriptionExists)
	} else if err != domain.ErrSubscriptionNotFound {
		return s.internal("lookup existing subscription", err)
	}

	now := s.clock.Now()
	period := monthlyPeriod
	if req.Yearly {
		period = yearlyPeriod
	}

	sub := &domain.Subscription{
		SchemaVersion:      domain.SchemaVersion,
		ID:                 "sub_" + s.genID.Generate().String(),
		TenantID:           req.TenantID,
		PlanID:             p.ID,
		Tier:               p.Tier,
		Status:             domain.SubscriptionStatusPending,
		Yearly:             req.Yearly,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.Add(period),
		PaymentMethod:      req.PaymentMethod,
		Usage:              domain.UsageCounters{UpdatedAt: now},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Put(ctx, sub); err != nil {
		if err == domain.ErrSubscriptionExists {
			return failure(err)
		}
		return s.internal("persist subscription", err)
	}

	s.emit(ctx, domain.NewEvent(sub.ID, sub.TenantID, domain.EventCreated, map[string]any{
		"plan_id": p.ID,
		"tier":    string(p.Tier),
		"yearly":  req.Yearly,
	}, now))

	// Free tier needs no settlement at all.
	if p.IsFree() {
		sub.Status = domain.SubscriptionStatusActive
		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, sub); err != nil {
			return s.internal("activate free subscription", err)
		}
		s.emit(ctx, domain.NewEvent(sub.ID, sub.TenantID, domain.EventActivated, map[string]any{
			"plan_id": p.ID,
		}, sub.UpdatedAt))
		return domain.Result{Success: true, Subscription: sub}
	}

	price := p.MonthlyPriceWei
	if req.Yearly {
		price = p.YearlyPriceWei
	}

	tx, err := s.settlement.CreatePayment(ctx, settlementdomain.CreatePaymentRequest{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Type:           settlementdomain.TransactionTypeSubscription,
		AmountWei:      price,
		Description:    fmt.Sprintf("%s plan subscription", p.Name),
		FromAddress:    req.WalletAddress,
		Wallet:         req.Wallet,
	})
	if err != nil {
		return s.internal("create subscription payment", err)
	}

	if tx.Status != settlementdomain.TransactionStatusConfirmed {
		// Subscription stays pending; the caller presents a retry.
		return domain.Result{
			Success:      false,
			Error:        tx.FailureReason,
			Subscription: sub,
			Transaction:  tx,
		}
	}

	activated, err := s.repo.GetByID(ctx, sub.ID)
	if err != nil {
		return s.internal("reload activated subscription", err)
	}
	return domain.Result{Success: true, Subscription: activated, Transaction: tx}
}

// UpgradeSubscription changes the tenant's plan mid-period and charges the
// prorated difference. Whether the entitlement applies before or after the
// payment settles is governed by the upgradeEntitlement policy.
func (s *Service) UpgradeSubscription(ctx context.Context, req domain.UpgradeSubscriptionRequest) domain.Result {
	ctx, span := tracer.Start(ctx, "subscription.Upgrade", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("new_plan_id", req.NewPlanID),
	))
	defer span.End()

	sub, err := s.repo.GetByTenant(ctx, req.TenantID)
	if err != nil {
		if err == domain.ErrSubscriptionNotFound {
			return failure(err)
		}
		return s.internal("lookup subscription", err)
	}

	newPlan, err := s.catalog.Get(req.NewPlanID)
	if err != nil {
		return failure(domain.ErrInvalidPlan)
	}
	currentPlan, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return s.internal("lookup current plan", err)
	}
	if newPlan.ID == currentPlan.ID {
		return domain.Result{Success: false, Error: "plan_unchanged", Subscription: sub}
	}

	eventType := domain.EventUpgraded
	if plan.CanDowngrade(currentPlan.Tier, newPlan.Tier) {
		eventType = domain.EventDowngraded
	}

	now := s.clock.Now()
	daysRemaining := daysUntil(now, sub.CurrentPeriodEnd)

	proration, err := pricing.Proration(currentPlan, newPlan, daysRemaining, req.Yearly)
	if err != nil {
		return s.internal("compute proration", err)
	}

	policy := s.holder.Get().UpgradeEntitlement
	if policy == config.EntitlementOptimistic {
		if err := s.applyPlanChange(ctx, sub, currentPlan, newPlan, proration.AmountWei, eventType); err != nil {
			return s.internal("apply plan change", err)
		}
	}

	if proration.AmountWei == "0" {
		if policy == config.EntitlementOnConfirm {
			if err := s.applyPlanChange(ctx, sub, currentPlan, newPlan, proration.AmountWei, eventType); err != nil {
				return s.internal("apply plan change", err)
			}
		}
		return domain.Result{Success: true, Subscription: sub, ProratedAmountWei: proration.AmountWei}
	}

	tx, err := s.settlement.CreatePayment(ctx, settlementdomain.CreatePaymentRequest{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Type:           settlementdomain.TransactionTypeUpgrade,
		AmountWei:      proration.AmountWei,
		Description:    fmt.Sprintf("prorated change from %s to %s (%d days remaining)", currentPlan.Name, newPlan.Name, daysRemaining),
		FromAddress:    req.WalletAddress,
		Wallet:         req.Wallet,
	})
	if err != nil {
		return s.internal("create upgrade payment", err)
	}

	if tx.Status != settlementdomain.TransactionStatusConfirmed {
		// Under the optimistic policy the plan change already applied; the
		// caller decides whether to compensate. Under on_confirm the old
		// plan still stands.
		return domain.Result{
			Success:           false,
			Error:             tx.FailureReason,
			Subscription:      sub,
			Transaction:       tx,
			ProratedAmountWei: proration.AmountWei,
		}
	}

	if policy == config.EntitlementOnConfirm {
		if err := s.applyPlanChange(ctx, sub, currentPlan, newPlan, proration.AmountWei, eventType); err != nil {
			return s.internal("apply plan change", err)
		}
	}

	return domain.Result{
		Success:           true,
		Subscription:      sub,
		Transaction:       tx,
		ProratedAmountWei: proration.AmountWei,
	}
}

func (s *Service) applyPlanChange(ctx context.Context, sub *domain.Subscription, from, to plan.Plan, amountWei string, eventType domain.EventType) error {
	now := s.clock.Now()
	sub.PlanID = to.ID
	sub.Tier = to.Tier
	sub.UpdatedAt = now
	if err := s.repo.Update(ctx, sub); err != nil {
		return err
	}
	s.emit(ctx, domain.NewEvent(sub.ID, sub.TenantID, eventType, map[string]any{
		"from_plan_id": from.ID,
		"to_plan_id":   to.ID,
		"amount_wei":   amountWei,
	}, now))
	return nil
}

// CancelSubscription cancels now or flags cancellation at period end. The
// natural expiry of a flagged subscription is handled by an external
// scheduler, not this module.
func (s *Service) CancelSubscription(ctx context.Context, tenantID string, immediately bool) domain.Result {
	ctx, span := tracer.Start(ctx, "subscription.Cancel", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Bool("immediately", immediately),
	))
	defer span.End()

	sub, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		if err == domain.ErrSubscriptionNotFound {
			return failure(err)
		}
		return s.internal("lookup subscription", err)
	}
	if sub.Status == domain.SubscriptionStatusCancelled {
		return domain.Result{Success: false, Error: "already_cancelled", Subscription: sub}
	}

	now := s.clock.Now()
	if immediately {
		sub.Status = domain.SubscriptionStatusCancelled
		sub.CurrentPeriodEnd = now
		sub.CancelledAt = &now
	} else {
		sub.CancelAtPeriodEnd = true
	}
	sub.UpdatedAt = now
	if err := s.repo.Update(ctx, sub); err != nil {
		return s.internal("persist cancellation", err)
	}

	s.emit(ctx, domain.NewEvent(sub.ID, sub.TenantID, domain.EventCancelled, map[string]any{
		"immediately": immediately,
	}, now))

	return domain.Result{Success: true, Subscription: sub}
}

// ProcessUsageBilling finalizes an overage statement for the current period
// and charges it. Usage fully inside the plan limits is a successful no-op:
// no statement is written, keeping billing history free of empty rows.
func (s *Service) ProcessUsageBilling(ctx context.Context, tenantID string) domain.Result {
	ctx, span := tracer.Start(ctx, "subscription.ProcessUsageBilling", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
	))
	defer span.End()

	sub, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		if err == domain.ErrSubscriptionNotFound {
			return failure(err)
		}
		return s.internal("lookup subscription", err)
	}
	if sub.Status != domain.SubscriptionStatusActive {
		return failure(domain.ErrSubscriptionInactive)
	}

	p, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return s.internal("lookup plan", err)
	}

	cfg := s.holder.Get()
	rates, err := pricing.RateCardFromStrings(cfg.OverageRequestsWei, cfg.OverageStorageWei, cfg.OverageBandwidthWei)
	if err != nil {
		return s.internal("build rate card", err)
	}

	overage := pricing.OverageCosts(pricing.MeteredUsage{
		Requests:       sub.Usage.Requests,
		StorageBytes:   sub.Usage.StorageBytes,
		BandwidthBytes: sub.Usage.BandwidthBytes,
	}, p.Usage, rates)

	if !overage.HasOverage() {
		return domain.Result{Success: true, Subscription: sub}
	}

	now := s.clock.Now()
	baseCost := p.MonthlyPriceWei
	if sub.Yearly {
		baseCost = p.YearlyPriceWei
	}

	billing := &domain.UsageBilling{
		SchemaVersion:      domain.SchemaVersion,
		ID:                 "bill_" + s.genID.Generate().String(),
		TenantID:           sub.TenantID,
		SubscriptionID:     sub.ID,
		PeriodStart:        sub.CurrentPeriodStart,
		PeriodEnd:          sub.CurrentPeriodEnd,
		Status:             domain.UsageBillingStatusFinalized,
		Requests:           sub.Usage.Requests,
		StorageBytes:       sub.Usage.StorageBytes,
		BandwidthBytes:     sub.Usage.BandwidthBytes,
		OverageRequests:    overage.OverageRequests,
		OverageStorageGB:   overage.OverageStorageGB,
		OverageBandwidthGB: overage.OverageBandwidthGB,
		BaseCostWei:        baseCost,
		RequestsCostWei:    overage.RequestsCostWei,
		StorageCostWei:     overage.StorageCostWei,
		BandwidthCostWei:   overage.BandwidthCostWei,
		TotalCostWei:       overage.TotalWei,
		CreatedAt:          now,
	}
	if err := s.billing.Put(ctx, billing); err != nil {
		return s.internal("persist usage billing", err)
	}

	tx, err := s.settlement.CreatePayment(ctx, settlementdomain.CreatePaymentRequest{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Type:           settlementdomain.TransactionTypeOverage,
		AmountWei:      overage.TotalWei,
		Description:    fmt.Sprintf("usage overage %s - %s", billing.PeriodStart.Format("2006-01-02"), billing.PeriodEnd.Format("2006-01-02")),
	})
	if err != nil {
		return s.internal("create overage payment", err)
	}

	if tx.Status != settlementdomain.TransactionStatusConfirmed {
		return domain.Result{
			Success:      false,
			Error:        tx.FailureReason,
			Subscription: sub,
			Billing:      billing,
			Transaction:  tx,
		}
	}

	return domain.Result{Success: true, Subscription: sub, Billing: billing, Transaction: tx}
}

// GetSubscriptionStatus assembles the display view. A tenant without a
// subscription yields nil, not an error.
func (s *Service) GetSubscriptionStatus(ctx context.Context, tenantID string) (*domain.StatusView, error) {
	sub, err := s.repo.GetByTenant(ctx, tenantID)
	if err == domain.ErrSubscriptionNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return nil, err
	}

	view := &domain.StatusView{
		Subscription: sub,
		Plan:         p,
		Usage:        sub.Usage,
	}

	if billing, err := s.billing.GetCurrentForTenant(ctx, tenantID); err == nil {
		view.Billing = billing
	} else if err != domain.ErrBillingNotFound {
		return nil, err
	}

	txs, err := s.settlement.ListTransactions(ctx, tenantID, 10)
	if err != nil {
		return nil, err
	}
	view.Transactions = txs

	return view, nil
}

// RecordUsage replaces the live usage counters. Feature-cap violations do
// not reject the write; the metering pipeline reports what happened, and
// enforcement is a provisioning concern.
func (s *Service) RecordUsage(ctx context.Context, tenantID string, usage domain.UsageCounters) error {
	sub, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	p, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return err
	}
	if check := plan.ValidateUsage(plan.ResourceUsage{
		Services: usage.Services,
		Workers:  usage.Workers,
	}, p); !check.Valid {
		s.log.Warn("usage exceeds plan feature caps",
			zap.String("tenant_id", tenantID),
			zap.Strings("violations", check.Violations))
	}

	usage.UpdatedAt = s.clock.Now()
	sub.Usage = usage
	sub.UpdatedAt = usage.UpdatedAt
	return s.repo.Update(ctx, sub)
}

func (s *Service) ListEvents(ctx context.Context, subscriptionID string, limit int) ([]domain.SubscriptionEvent, error) {
	return s.events.ListBySubscription(ctx, subscriptionID, limit)
}

// daysUntil returns the whole days between now and end, rounded up.
func daysUntil(now, end time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

func failure(err error) domain.Result {
	return domain.Result{Success: false, Error: err.Error()}
}

// internal normalizes unexpected errors into the result shape; the module
// logs them but never crashes the caller.
func (s *Service) internal(op string, err error) domain.Result {
	s.log.Error(op, zap.Error(err))
	return domain.Result{Success: false, Error: err.Error()}
}

// emit appends an audit event; failures are logged and swallowed so a
// missing audit row never fails the operation it was recording.
func (s *Service) emit(ctx context.Context, event *domain.SubscriptionEvent) {
	if err := s.events.Append(ctx, event); err != nil {
		s.log.Warn("event append failed",
			zap.String("subscription_id", event.SubscriptionID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
