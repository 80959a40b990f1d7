package pricing

import (
	"math/big"

	"github.com/nestwatch/payments/plan"
)

// bytesPerGB is the conversion used for storage and bandwidth metering.
const bytesPerGB = int64(1) << 30

const requestsPerBlock = 1000

// RateCard holds the three overage unit rates in wei. Rates apply per
// 1000-request block and per whole GB; partial blocks round up, so
// under-rounding can never undercharge.
type RateCard struct {
	RequestsPer1000Wei *big.Int
	StoragePerGBWei    *big.Int
	BandwidthPerGBWei  *big.Int
}

// DefaultRateCard: 0.0001 ETH per 1000-request block, 0.0005 ETH per GB of
// storage, 0.0002 ETH per GB of bandwidth.
func DefaultRateCard() RateCard {
	return RateCard{
		RequestsPer1000Wei: big.NewInt(100_000_000_000_000),
		StoragePerGBWei:    big.NewInt(500_000_000_000_000),
		BandwidthPerGBWei:  big.NewInt(200_000_000_000_000),
	}
}

// RateCardFromStrings builds a rate card from wei strings, falling back to
// the default for any empty field.
func RateCardFromStrings(requests, storage, bandwidth string) (RateCard, error) {
	rc := DefaultRateCard()
	if requests != "" {
		v, err := ParseWei(requests)
		if err != nil {
			return RateCard{}, err
		}
		rc.RequestsPer1000Wei = v
	}
	if storage != "" {
		v, err := ParseWei(storage)
		if err != nil {
			return RateCard{}, err
		}
		rc.StoragePerGBWei = v
	}
	if bandwidth != "" {
		v, err := ParseWei(bandwidth)
		if err != nil {
			return RateCard{}, err
		}
		rc.BandwidthPerGBWei = v
	}
	return rc, nil
}

// MeteredUsage is the raw consumption for one billing period.
type MeteredUsage struct {
	Requests       int64
	StorageBytes   int64
	BandwidthBytes int64
}

// OverageResult itemizes the three overage categories. Quantities are the
// billed units (request blocks are reported as request counts rounded to the
// block); costs are wei strings.
type OverageResult struct {
	OverageRequests    int64
	OverageStorageGB   int64
	OverageBandwidthGB int64

	RequestsCostWei  string
	StorageCostWei   string
	BandwidthCostWei string
	TotalWei         string
}

// HasOverage reports whether anything is billable.
func (r OverageResult) HasOverage() bool {
	return r.TotalWei != "0"
}

// OverageCosts computes usage beyond plan limits. Request overage is billed
// in 1000-request blocks, storage and bandwidth per whole GB, all rounded up.
func OverageCosts(usage MeteredUsage, limits plan.UsageLimits, rates RateCard) OverageResult {
	overageRequests := max(int64(0), usage.Requests-limits.RequestsPerMonth)
	overageStorageBytes := max(int64(0), usage.StorageBytes-limits.StorageGB*bytesPerGB)
	overageBandwidthBytes := max(int64(0), usage.BandwidthBytes-limits.BandwidthGB*bytesPerGB)

	requestBlocks := ceilDiv(big.NewInt(overageRequests), big.NewInt(requestsPerBlock))
	storageGB := ceilDiv(big.NewInt(overageStorageBytes), big.NewInt(bytesPerGB))
	bandwidthGB := ceilDiv(big.NewInt(overageBandwidthBytes), big.NewInt(bytesPerGB))

	requestsCost := new(big.Int).Mul(requestBlocks, rates.RequestsPer1000Wei)
	storageCost := new(big.Int).Mul(storageGB, rates.StoragePerGBWei)
	bandwidthCost := new(big.Int).Mul(bandwidthGB, rates.BandwidthPerGBWei)

	total := new(big.Int).Add(requestsCost, storageCost)
	total.Add(total, bandwidthCost)

	return OverageResult{
		OverageRequests:    requestBlocks.Int64() * requestsPerBlock,
		OverageStorageGB:   storageGB.Int64(),
		OverageBandwidthGB: bandwidthGB.Int64(),
		RequestsCostWei:    requestsCost.String(),
		StorageCostWei:     storageCost.String(),
		BandwidthCostWei:   bandwidthCost.String(),
		TotalWei:           total.String(),
	}
}
