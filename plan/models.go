// Package plan holds the static subscription plan catalog.
package plan

// Tier is a subscription level. Tiers are totally ordered:
// free < pro < enterprise.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

var tierRank = map[Tier]int{
	TierFree:       0,
	TierPro:        1,
	TierEnterprise: 2,
}

func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// FeatureLimits caps what a tenant may provision.
type FeatureLimits struct {
	MaxServices             int  `json:"max_services"`
	MaxWorkers              int  `json:"max_workers"`
	MaxRegions              int  `json:"max_regions"`
	MinCheckIntervalSeconds int  `json:"min_check_interval_seconds"`
	HistoryRetentionDays    int  `json:"history_retention_days"`
	CustomAlerts            bool `json:"custom_alerts"`
	APIAccess               bool `json:"api_access"`
	PrioritySupport         bool `json:"priority_support"`
}

// UsageLimits caps metered consumption included in the plan price.
// Consumption beyond these limits is billed as overage.
type UsageLimits struct {
	RequestsPerMonth int64 `json:"requests_per_month"`
	StorageGB        int64 `json:"storage_gb"`
	BandwidthGB      int64 `json:"bandwidth_gb"`
}

// Plan is immutable once the catalog is built. Prices are integer wei,
// string-encoded so they survive JSON without precision loss.
type Plan struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Tier            Tier          `json:"tier"`
	MonthlyPriceWei string        `json:"monthly_price_wei"`
	YearlyPriceWei  string        `json:"yearly_price_wei"`
	Features        FeatureLimits `json:"features"`
	Usage           UsageLimits   `json:"usage"`
}

func (p Plan) IsFree() bool {
	return p.Tier == TierFree
}

// ResourceUsage is the provisioned-resource view a catalog validation
// compares against FeatureLimits.
type ResourceUsage struct {
	Services int
	Workers  int
	Regions  int
}
