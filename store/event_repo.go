package store

import (
	"context"
	"encoding/json"

	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/subscription/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type EventRepo struct {
	rdb    *redis.Client
	log    *zap.Logger
	holder *config.SettlementHolder
}

func NewEventRepo(rdb *redis.Client, log *zap.Logger, holder *config.SettlementHolder) *EventRepo {
	return &EventRepo{rdb: rdb, log: log.Named("store.event"), holder: holder}
}

var _ domain.EventRepository = (*EventRepo)(nil)

// Append pushes the event onto the subscription's list and trims it to the
// retention cap. The audit trail is operational, not financial, so it is
// bounded per subscription rather than kept forever.
func (r *EventRepo) Append(ctx context.Context, event *domain.SubscriptionEvent) error {
	event.SchemaVersion = domain.SchemaVersion
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	retention := r.holder.Get().Retention
	key := subscriptionEventsKey(event.SubscriptionID)

	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(retention.EventKeep-1))
	pipe.Expire(ctx, key, days(retention.EventTTLDays))
	_, err = pipe.Exec(ctx)
	return err
}

// ListBySubscription returns events newest first.
func (r *EventRepo) ListBySubscription(ctx context.Context, subscriptionID string, limit int) ([]domain.SubscriptionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	blobs, err := r.rdb.LRange(ctx, subscriptionEventsKey(subscriptionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.SubscriptionEvent, 0, len(blobs))
	for _, blob := range blobs {
		var event domain.SubscriptionEvent
		if err := decodeRecord([]byte(blob), &event, domain.SchemaVersion); err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}
