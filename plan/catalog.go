package plan

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/fx"
)

var ErrPlanNotFound = errors.New("plan_not_found")

// Catalog is a read-only plan registry loaded once at process start.
type Catalog struct {
	plans map[string]Plan
}

func NewCatalog() *Catalog {
	c := &Catalog{plans: make(map[string]Plan, len(builtinPlans))}
	for _, p := range builtinPlans {
		c.plans[p.ID] = p
	}
	return c
}

func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// List returns all plans ordered by tier, cheapest first.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return tierRank[out[i].Tier] < tierRank[out[j].Tier]
	})
	return out
}

// CanUpgrade reports whether moving from one tier to another is an upgrade.
func CanUpgrade(from, to Tier) bool {
	fromRank, ok := tierRank[from]
	if !ok {
		return false
	}
	toRank, ok := tierRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// CanDowngrade is the logical inverse of CanUpgrade for non-equal tiers.
func CanDowngrade(from, to Tier) bool {
	fromRank, ok := tierRank[from]
	if !ok {
		return false
	}
	toRank, ok := tierRank[to]
	if !ok {
		return false
	}
	return toRank < fromRank
}

// ValidationResult lists one violation per exceeded dimension.
type ValidationResult struct {
	Valid      bool
	Violations []string
}

// ValidateUsage compares provisioned resources against a plan's feature caps.
func ValidateUsage(usage ResourceUsage, p Plan) ValidationResult {
	var violations []string
	if usage.Services > p.Features.MaxServices {
		violations = append(violations, fmt.Sprintf("services: %d exceeds plan limit of %d", usage.Services, p.Features.MaxServices))
	}
	if usage.Workers > p.Features.MaxWorkers {
		violations = append(violations, fmt.Sprintf("workers: %d exceeds plan limit of %d", usage.Workers, p.Features.MaxWorkers))
	}
	if usage.Regions > p.Features.MaxRegions {
		violations = append(violations, fmt.Sprintf("regions: %d exceeds plan limit of %d", usage.Regions, p.Features.MaxRegions))
	}
	return ValidationResult{Valid: len(violations) == 0, Violations: violations}
}

var builtinPlans = []Plan{
	{
		ID:              "free",
		Name:            "Free",
		Tier:            TierFree,
		MonthlyPriceWei: "0",
		YearlyPriceWei:  "0",
		Features: FeatureLimits{
			MaxServices:             3,
			MaxWorkers:              1,
			MaxRegions:              1,
			MinCheckIntervalSeconds: 300,
			HistoryRetentionDays:    7,
		},
		Usage: UsageLimits{
			RequestsPerMonth: 10_000,
			StorageGB:        1,
			BandwidthGB:      5,
		},
	},
	{
		ID:              "pro",
		Name:            "Pro",
		Tier:            TierPro,
		MonthlyPriceWei: "50000000000000000",
		YearlyPriceWei:  "500000000000000000",
		Features: FeatureLimits{
			MaxServices:             25,
			MaxWorkers:              10,
			MaxRegions:              3,
			MinCheckIntervalSeconds: 60,
			HistoryRetentionDays:    90,
			CustomAlerts:            true,
			APIAccess:               true,
		},
		Usage: UsageLimits{
			RequestsPerMonth: 1_000_000,
			StorageGB:        50,
			BandwidthGB:      250,
		},
	},
	{
		ID:              "enterprise",
		Name:            "Enterprise",
		Tier:            TierEnterprise,
		MonthlyPriceWei: "200000000000000000",
		YearlyPriceWei:  "2000000000000000000",
		Features: FeatureLimits{
			MaxServices:             500,
			MaxWorkers:              100,
			MaxRegions:              10,
			MinCheckIntervalSeconds: 10,
			HistoryRetentionDays:    365,
			CustomAlerts:            true,
			APIAccess:               true,
			PrioritySupport:         true,
		},
		Usage: UsageLimits{
			RequestsPerMonth: 50_000_000,
			StorageGB:        1_000,
			BandwidthGB:      5_000,
		},
	},
}

// Module wires the plan catalog.
var Module = fx.Module("plan.catalog",
	fx.Provide(NewCatalog),
)
