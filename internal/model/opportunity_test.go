package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func poolAt(chain string, price float64) PoolSnapshot {
	return PoolSnapshot{Chain: chain, Price: decimal.NewFromFloat(price)}
}

func TestDetectOpportunity_PicksCheaperVenueAsBuySide(t *testing.T) {
	opp := DetectOpportunity(poolAt("polygon", 3010), poolAt("arbitrum", 3000), 0.1)
	assert.Equal(t, "arbitrum", opp.BuyChain)
	assert.Equal(t, "polygon", opp.SellChain)
	assert.True(t, opp.SellPrice.GreaterThanOrEqual(opp.BuyPrice))
}

func TestDetectOpportunity_SpreadRelativeToCheaperVenue(t *testing.T) {
	opp := DetectOpportunity(poolAt("polygon", 3000), poolAt("arbitrum", 3030), 0.1)
	assert.InEpsilon(t, 1.0, opp.SpreadPercent, 1e-9)
	assert.True(t, opp.Actionable)
}

func TestDetectOpportunity_BelowThresholdIsNotActionable(t *testing.T) {
	opp := DetectOpportunity(poolAt("polygon", 3000), poolAt("arbitrum", 3001), 0.1)
	assert.False(t, opp.Actionable)
	assert.InDelta(t, 0.0333, opp.SpreadPercent, 0.001)
}

func TestDetectOpportunity_EqualPrices(t *testing.T) {
	opp := DetectOpportunity(poolAt("polygon", 3000), poolAt("arbitrum", 3000), 0.1)
	assert.Zero(t, opp.SpreadPercent)
	assert.False(t, opp.Actionable)
}

func TestCostBreakdownTotal(t *testing.T) {
	costs := CostBreakdown{
		GasCostUsd:      1.2,
		SlippageUsd:     1.8,
		FeesUsd:         9.4,
		BridgingFeesUsd: 3.0,
	}
	assert.InEpsilon(t, 15.4, costs.TotalUsd(), 1e-9)
}

func TestRiskAssessmentHelpers(t *testing.T) {
	allLow := RiskAssessment{Slippage: RiskLow, MEV: RiskLow, Timing: RiskLow}
	assert.True(t, allLow.AllLow())
	assert.False(t, allLow.AnyHigh())
	assert.Zero(t, allLow.MediumCount())

	mixed := RiskAssessment{Slippage: RiskMedium, MEV: RiskMedium, Timing: RiskHigh}
	assert.True(t, mixed.AnyHigh())
	assert.Equal(t, 2, mixed.MediumCount())
	assert.False(t, mixed.AllLow())
}
