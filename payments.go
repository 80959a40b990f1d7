// Package payments is the subscription and payment settlement library for
// the nestwatch platform. It tracks subscription lifecycle, computes
// proration and usage-overage charges in integer wei, and settles payments
// through a chain or simulated backend.
//
// The package ships fx modules so a host application wires it like any
// other platform service:
//
//	app := fx.New(
//		payments.Module,
//		fx.Invoke(func(subs subscriptiondomain.Service) { ... }),
//	)
package payments

import (
	"github.com/bwmarrin/snowflake"
	"github.com/nestwatch/payments/clock"
	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/logger"
	"github.com/nestwatch/payments/observability"
	"github.com/nestwatch/payments/plan"
	"github.com/nestwatch/payments/settlement"
	"github.com/nestwatch/payments/store"
	"github.com/nestwatch/payments/subscription"
	"go.uber.org/fx"
)

// NewSnowflakeNode builds the ID generator shared by all services.
func NewSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// Module aggregates every feature module needed to embed the library.
var Module = fx.Options(
	config.Module,
	logger.Module,
	clock.Module,
	observability.Module,
	fx.Provide(NewSnowflakeNode),

	plan.Module,
	store.Module,
	settlement.Module,
	subscription.Module,
)
