package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/subscription/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type BillingRepo struct {
	rdb    *redis.Client
	log    *zap.Logger
	holder *config.SettlementHolder
}

func NewBillingRepo(rdb *redis.Client, log *zap.Logger, holder *config.SettlementHolder) *BillingRepo {
	return &BillingRepo{rdb: rdb, log: log.Named("store.billing"), holder: holder}
}

var _ domain.BillingRepository = (*BillingRepo)(nil)

// Put writes the statement and repoints the tenant's current-billing
// pointer in one pipeline. Statements keep a two-year TTL by default.
func (r *BillingRepo) Put(ctx context.Context, billing *domain.UsageBilling) error {
	billing.SchemaVersion = domain.SchemaVersion
	data, err := json.Marshal(billing)
	if err != nil {
		return err
	}

	ttl := days(r.holder.Get().Retention.BillingTTLDays)

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, billingKey(billing.ID), data, ttl)
	pipe.Set(ctx, tenantCurrentBillingKey(billing.TenantID), billing.ID, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *BillingRepo) GetByID(ctx context.Context, id string) (*domain.UsageBilling, error) {
	data, err := r.rdb.Get(ctx, billingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrBillingNotFound
	}
	if err != nil {
		return nil, err
	}

	var billing domain.UsageBilling
	if err := decodeRecord(data, &billing, domain.SchemaVersion); err != nil {
		return nil, err
	}
	return &billing, nil
}

func (r *BillingRepo) GetCurrentForTenant(ctx context.Context, tenantID string) (*domain.UsageBilling, error) {
	id, err := r.rdb.Get(ctx, tenantCurrentBillingKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrBillingNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}
