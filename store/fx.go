package store

import (
	settlementdomain "github.com/nestwatch/payments/settlement/domain"
	subscriptiondomain "github.com/nestwatch/payments/subscription/domain"
	"go.uber.org/fx"
)

// Module wires the Redis client and every repository behind its domain
// interface.
var Module = fx.Module("store",
	fx.Provide(NewClient),
	fx.Provide(
		fx.Annotate(NewSubscriptionRepo, fx.As(new(subscriptiondomain.Repository))),
		fx.Annotate(NewTransactionRepo, fx.As(new(settlementdomain.Repository))),
		fx.Annotate(NewBillingRepo, fx.As(new(subscriptiondomain.BillingRepository))),
		fx.Annotate(NewEventRepo, fx.As(new(subscriptiondomain.EventRepository))),
	),
)
