package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalog_GetAndList(t *testing.T) {
	c := NewCatalog()

	p, err := c.Get("pro")
	assert.NoError(t, err)
	assert.Equal(t, TierPro, p.Tier)
	assert.Equal(t, "50000000000000000", p.MonthlyPriceWei)

	_, err = c.Get("platinum")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	plans := c.List()
	assert.Len(t, plans, 3)
	assert.Equal(t, TierFree, plans[0].Tier)
	assert.Equal(t, TierPro, plans[1].Tier)
	assert.Equal(t, TierEnterprise, plans[2].Tier)
}

func TestTierOrdering(t *testing.T) {
	assert.True(t, CanUpgrade(TierFree, TierPro))
	assert.True(t, CanUpgrade(TierPro, TierEnterprise))
	assert.True(t, CanUpgrade(TierFree, TierEnterprise))
	assert.False(t, CanUpgrade(TierEnterprise, TierFree))
	assert.False(t, CanUpgrade(TierPro, TierPro))
	assert.False(t, CanUpgrade(TierPro, Tier("platinum")))

	// CanDowngrade is the exact inverse for any non-equal pair.
	tiers := []Tier{TierFree, TierPro, TierEnterprise}
	for _, from := range tiers {
		for _, to := range tiers {
			if from == to {
				assert.False(t, CanUpgrade(from, to))
				assert.False(t, CanDowngrade(from, to))
				continue
			}
			assert.Equal(t, CanUpgrade(from, to), !CanDowngrade(from, to),
				"from=%s to=%s", from, to)
		}
	}
}

func TestValidateUsage(t *testing.T) {
	c := NewCatalog()
	free, _ := c.Get("free")

	ok := ValidateUsage(ResourceUsage{Services: 3, Workers: 1, Regions: 1}, free)
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Violations)

	bad := ValidateUsage(ResourceUsage{Services: 5, Workers: 2, Regions: 1}, free)
	assert.False(t, bad.Valid)
	assert.Len(t, bad.Violations, 2)
	assert.Contains(t, bad.Violations[0], "services")
	assert.Contains(t, bad.Violations[1], "workers")
}
