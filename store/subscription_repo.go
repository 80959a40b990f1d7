package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nestwatch/payments/subscription/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type SubscriptionRepo struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewSubscriptionRepo(rdb *redis.Client, log *zap.Logger) *SubscriptionRepo {
	return &SubscriptionRepo{rdb: rdb, log: log.Named("store.subscription")}
}

var _ domain.Repository = (*SubscriptionRepo)(nil)

// Put writes the record and claims the tenant index in one pipeline. The
// index claim uses SETNX so a second subscription for the same tenant loses:
// the record write is rolled back and ErrSubscriptionExists returned.
func (r *SubscriptionRepo) Put(ctx context.Context, sub *domain.Subscription) error {
	sub.SchemaVersion = domain.SchemaVersion
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	set := pipe.Set(ctx, subscriptionKey(sub.ID), data, 0)
	claim := pipe.SetNX(ctx, tenantSubscriptionKey(sub.TenantID), sub.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if err := set.Err(); err != nil {
		return err
	}

	claimed, err := claim.Result()
	if err != nil {
		return err
	}
	if !claimed {
		owner, err := r.rdb.Get(ctx, tenantSubscriptionKey(sub.TenantID)).Result()
		if err != nil {
			return err
		}
		if owner != sub.ID {
			if err := r.rdb.Del(ctx, subscriptionKey(sub.ID)).Err(); err != nil {
				r.log.Warn("rollback of duplicate subscription failed",
					zap.String("subscription_id", sub.ID), zap.Error(err))
			}
			return domain.ErrSubscriptionExists
		}
	}
	return nil
}

func (r *SubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	data, err := r.rdb.Get(ctx, subscriptionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	var sub domain.Subscription
	if err := decodeRecord(data, &sub, domain.SchemaVersion); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepo) GetByTenant(ctx context.Context, tenantID string) (*domain.Subscription, error) {
	id, err := r.rdb.Get(ctx, tenantSubscriptionKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update overwrites an existing record by id.
func (r *SubscriptionRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	exists, err := r.rdb.Exists(ctx, subscriptionKey(sub.ID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrSubscriptionNotFound
	}

	sub.SchemaVersion = domain.SchemaVersion
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, subscriptionKey(sub.ID), data, 0).Err()
}
