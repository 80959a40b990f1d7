// Package service implements the payment settlement engine.
package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/nestwatch/payments/clock"
	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/observability"
	"github.com/nestwatch/payments/pricing"
	"github.com/nestwatch/payments/settlement/backend"
	"github.com/nestwatch/payments/settlement/domain"
	subscriptiondomain "github.com/nestwatch/payments/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/nestwatch/payments/settlement")

type Engine struct {
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	holder *config.SettlementHolder

	backends *backend.Registry
	repo     domain.Repository
	subs     subscriptiondomain.Repository
	events   subscriptiondomain.EventRepository
	metrics  *observability.Metrics
}

type EngineParam struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Holder *config.SettlementHolder

	Backends *backend.Registry
	Repo     domain.Repository
	Subs     subscriptiondomain.Repository
	Events   subscriptiondomain.EventRepository
	Metrics  *observability.Metrics `optional:"true"`
}

func NewEngine(p EngineParam) domain.Service {
	return &Engine{
		log:      p.Log.Named("settlement.engine"),
		genID:    p.GenID,
		clock:    p.Clock,
		holder:   p.Holder,
		backends: p.Backends,
		repo:     p.Repo,
		subs:     p.Subs,
		events:   p.Events,
		metrics:  p.Metrics,
	}
}

// CreatePayment records a pending transaction, settles it through the
// configured backend, and applies the outcome. The pending write is durable
// before any external call so a crash leaves an "attempted but unresolved"
// record for reconciliation.
func (e *Engine) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentTransaction, error) {
	ctx, span := tracer.Start(ctx, "settlement.CreatePayment", trace.WithAttributes(
		attribute.String("payment.type", string(req.Type)),
		attribute.String("payment.tenant_id", req.TenantID),
	))
	defer span.End()

	if req.TenantID == "" || req.SubscriptionID == "" {
		return nil, domain.ErrInvalidTransaction
	}
	switch req.Type {
	case domain.TransactionTypeSubscription, domain.TransactionTypeUpgrade, domain.TransactionTypeOverage:
	default:
		return nil, domain.ErrInvalidTransaction
	}
	if _, err := pricing.ParseWei(req.AmountWei); err != nil {
		return nil, domain.ErrInvalidAmount
	}

	cfg := e.holder.Get()
	now := e.clock.Now()

	tx := &domain.PaymentTransaction{
		SchemaVersion:  domain.SchemaVersion,
		ID:             "txn_" + e.genID.Generate().String(),
		TenantID:       req.TenantID,
		SubscriptionID: req.SubscriptionID,
		Type:           req.Type,
		AmountWei:      req.AmountWei,
		Currency:       cfg.Currency,
		Status:         domain.TransactionStatusPending,
		Description:    req.Description,
		CreatedAt:      now,
	}
	if err := e.repo.Put(ctx, tx); err != nil {
		return nil, err
	}

	b, err := e.backends.Get(cfg.Backend)
	if err != nil {
		return nil, err
	}

	tx.Status = domain.TransactionStatusProcessing
	if err := e.repo.Update(ctx, tx); err != nil {
		return nil, err
	}

	started := e.clock.Now()
	outcome, err := b.Settle(ctx, domain.SettleRequest{
		Transaction:     tx,
		TreasuryAddress: cfg.TreasuryAddress,
		FromAddress:     req.FromAddress,
		Wallet:          req.Wallet,
	})
	elapsed := e.clock.Now().Sub(started)
	if err != nil {
		// Infrastructure fault: the transaction stays processing for
		// reconciliation, the caller gets the error.
		e.metrics.ObserveSettlement(b.Name(), "error", elapsed)
		e.log.Error("settlement attempt errored",
			zap.String("transaction_id", tx.ID),
			zap.String("backend", b.Name()),
			zap.Error(err))
		return tx, err
	}

	if outcome.Success {
		e.metrics.ObserveSettlement(b.Name(), "confirmed", elapsed)
		return tx, e.confirm(ctx, tx, outcome)
	}

	e.metrics.ObserveSettlement(b.Name(), "failed", elapsed)
	return tx, e.fail(ctx, tx, outcome)
}

func (e *Engine) confirm(ctx context.Context, tx *domain.PaymentTransaction, outcome domain.SettleOutcome) error {
	now := e.clock.Now()
	tx.Status = domain.TransactionStatusConfirmed
	tx.ConfirmedAt = &now
	tx.Chain = outcome.Chain
	if err := e.repo.Update(ctx, tx); err != nil {
		return err
	}

	e.log.Info("payment confirmed",
		zap.String("transaction_id", tx.ID),
		zap.String("tenant_id", tx.TenantID),
		zap.String("amount_wei", tx.AmountWei))

	if err := e.activate(ctx, tx); err != nil {
		return err
	}

	e.emit(ctx, subscriptiondomain.NewEvent(tx.SubscriptionID, tx.TenantID,
		subscriptiondomain.EventPaymentSucceeded, map[string]any{
			"transaction_id": tx.ID,
			"type":           string(tx.Type),
			"amount_wei":     tx.AmountWei,
		}, now))
	return nil
}

func (e *Engine) fail(ctx context.Context, tx *domain.PaymentTransaction, outcome domain.SettleOutcome) error {
	now := e.clock.Now()
	tx.Status = domain.TransactionStatusFailed
	tx.FailedAt = &now
	tx.FailureReason = outcome.FailureReason
	tx.Chain = outcome.Chain
	if err := e.repo.Update(ctx, tx); err != nil {
		return err
	}

	e.log.Warn("payment failed",
		zap.String("transaction_id", tx.ID),
		zap.String("tenant_id", tx.TenantID),
		zap.String("reason", tx.FailureReason))

	e.emit(ctx, subscriptiondomain.NewEvent(tx.SubscriptionID, tx.TenantID,
		subscriptiondomain.EventPaymentFailed, map[string]any{
			"transaction_id": tx.ID,
			"type":           string(tx.Type),
			"amount_wei":     tx.AmountWei,
			"reason":         tx.FailureReason,
		}, now))
	return nil
}

// activate flips a pending subscription to active when its first
// subscription payment confirms. Only pending subscriptions activate, so a
// duplicate or replayed confirmation is a no-op.
func (e *Engine) activate(ctx context.Context, tx *domain.PaymentTransaction) error {
	if tx.Type != domain.TransactionTypeSubscription {
		return nil
	}

	sub, err := e.subs.GetByID(ctx, tx.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != subscriptiondomain.SubscriptionStatusPending {
		return nil
	}

	now := e.clock.Now()
	sub.Status = subscriptiondomain.SubscriptionStatusActive
	sub.UpdatedAt = now
	txHash := ""
	if tx.Chain != nil {
		txHash = tx.Chain.TxHash
	}
	sub.LastPayment = &subscriptiondomain.PaymentSummary{
		TransactionID: tx.ID,
		AmountWei:     tx.AmountWei,
		TxHash:        txHash,
		PaidAt:        now,
	}
	if err := e.subs.Update(ctx, sub); err != nil {
		return err
	}

	e.emit(ctx, subscriptiondomain.NewEvent(sub.ID, sub.TenantID,
		subscriptiondomain.EventActivated, map[string]any{
			"transaction_id": tx.ID,
			"plan_id":        sub.PlanID,
		}, now))
	return nil
}

// ApplyConfirmed re-runs the confirmation side effects for an already
// confirmed transaction. Reconcilers call this after a crash between the
// settlement and the activation write; it is idempotent.
func (e *Engine) ApplyConfirmed(ctx context.Context, transactionID string) error {
	tx, err := e.repo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.Status != domain.TransactionStatusConfirmed {
		return domain.ErrInvalidTransaction
	}
	return e.activate(ctx, tx)
}

func (e *Engine) GetTransaction(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	return e.repo.GetByID(ctx, id)
}

func (e *Engine) ListTransactions(ctx context.Context, tenantID string, limit int) ([]domain.PaymentTransaction, error) {
	return e.repo.ListByTenant(ctx, tenantID, limit)
}

// MarkRetryScheduled records that an external scheduler will retry a failed
// transaction. The engine never schedules retries itself; backoff policy is
// a deployment concern.
func (e *Engine) MarkRetryScheduled(ctx context.Context, transactionID string, at time.Time) error {
	tx, err := e.repo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.Status != domain.TransactionStatusFailed {
		return domain.ErrTransactionImmutable
	}
	tx.RetryCount++
	retryAt := at.UTC()
	tx.NextRetryAt = &retryAt
	return e.repo.Update(ctx, tx)
}

// emit appends an audit event. A missing audit entry must never fail the
// operation it records, so failures are logged and swallowed.
func (e *Engine) emit(ctx context.Context, event *subscriptiondomain.SubscriptionEvent) {
	if err := e.events.Append(ctx, event); err != nil {
		e.log.Warn("event append failed",
			zap.String("subscription_id", event.SubscriptionID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
