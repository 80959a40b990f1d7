package subscription

import (
	"github.com/nestwatch/payments/subscription/service"
	"go.uber.org/fx"
)

// Module wires the subscription lifecycle manager.
var Module = fx.Module("subscription.service",
	fx.Provide(service.NewService),
)
