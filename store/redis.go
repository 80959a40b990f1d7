// Package store is the key-value persistence adapter, backed by Redis.
// Multi-key writes go through TxPipeline so each logical operation either
// fully applies or not at all. Retention is passive TTL; nothing sweeps.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nestwatch/payments/config"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func subscriptionKey(id string) string {
	return "sub:" + id
}

func tenantSubscriptionKey(tenantID string) string {
	return "sub:tenant:" + tenantID
}

func transactionKey(id string) string {
	return "txn:" + id
}

func tenantTransactionsKey(tenantID string) string {
	return "txn:tenant:" + tenantID
}

func billingKey(id string) string {
	return "bill:" + id
}

func tenantCurrentBillingKey(tenantID string) string {
	return "bill:current:" + tenantID
}

func subscriptionEventsKey(subscriptionID string) string {
	return "evt:sub:" + subscriptionID
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
