package settlement

import (
	"github.com/nestwatch/payments/settlement/backend"
	"github.com/nestwatch/payments/settlement/domain"
	"github.com/nestwatch/payments/settlement/service"
	"go.uber.org/fx"
)

func newRegistry(simulated *backend.Simulated, chain *backend.Chain) *backend.Registry {
	return backend.NewRegistry(simulated, chain)
}

var _ domain.Backend = (*backend.Simulated)(nil)
var _ domain.Backend = (*backend.Chain)(nil)

// Module wires the settlement engine and both backends.
var Module = fx.Module("settlement.engine",
	fx.Provide(backend.NewSimulated),
	fx.Provide(backend.NewChain),
	fx.Provide(newRegistry),
	fx.Provide(service.NewEngine),
)
