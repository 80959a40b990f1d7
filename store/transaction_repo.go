package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/settlement/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type TransactionRepo struct {
	rdb    *redis.Client
	log    *zap.Logger
	holder *config.SettlementHolder
}

func NewTransactionRepo(rdb *redis.Client, log *zap.Logger, holder *config.SettlementHolder) *TransactionRepo {
	return &TransactionRepo{rdb: rdb, log: log.Named("store.transaction"), holder: holder}
}

var _ domain.Repository = (*TransactionRepo)(nil)

// Put writes the transaction and appends its id to the tenant's ordered
// list. Financial records keep a long TTL (default one year).
func (r *TransactionRepo) Put(ctx context.Context, tx *domain.PaymentTransaction) error {
	tx.SchemaVersion = domain.SchemaVersion
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	ttl := days(r.holder.Get().Retention.TransactionTTLDays)
	listKey := tenantTransactionsKey(tx.TenantID)

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, transactionKey(tx.ID), data, ttl)
	pipe.LPush(ctx, listKey, tx.ID)
	pipe.Expire(ctx, listKey, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	data, err := r.rdb.Get(ctx, transactionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	var tx domain.PaymentTransaction
	if err := decodeRecord(data, &tx, domain.SchemaVersion); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Update overwrites the record, preserving its remaining TTL.
func (r *TransactionRepo) Update(ctx context.Context, tx *domain.PaymentTransaction) error {
	exists, err := r.rdb.Exists(ctx, transactionKey(tx.ID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrTransactionNotFound
	}

	tx.SchemaVersion = domain.SchemaVersion
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, transactionKey(tx.ID), data, redis.KeepTTL).Err()
}

// ListByTenant returns the tenant's transactions, newest first. Ids whose
// records already expired are skipped.
func (r *TransactionRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := r.rdb.LRange(ctx, tenantTransactionsKey(tenantID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.PaymentTransaction, 0, len(ids))
	for _, id := range ids {
		tx, err := r.GetByID(ctx, id)
		if errors.Is(err, domain.ErrTransactionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, nil
}
