package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is the result of comparing live prices on two venues.
type Opportunity struct {
	BuyChain      string          `json:"buyChain"`  // cheaper venue
	SellChain     string          `json:"sellChain"` // dearer venue
	BuyPrice      decimal.Decimal `json:"buyPrice"`
	SellPrice     decimal.Decimal `json:"sellPrice"`
	SpreadPercent float64         `json:"spreadPercent"`
	Actionable    bool            `json:"actionable"`
	DetectedAt    time.Time       `json:"detectedAt"`
}

// DetectOpportunity compares two pool snapshots and reports the profitable
// direction. The spread is relative to the cheaper venue; Actionable is gated
// by minSpreadPercent.
func DetectOpportunity(a, b PoolSnapshot, minSpreadPercent float64) Opportunity {
	buy, sell := a, b
	if b.Price.LessThan(a.Price) {
		buy, sell = b, a
	}

	spread := decimal.Zero
	if !buy.Price.IsZero() {
		spread = sell.Price.Sub(buy.Price).Div(buy.Price).Mul(decimal.NewFromInt(100))
	}
	spreadPct, _ := spread.Float64()

	return Opportunity{
		BuyChain:      buy.Chain,
		SellChain:     sell.Chain,
		BuyPrice:      buy.Price,
		SellPrice:     sell.Price,
		SpreadPercent: spreadPct,
		Actionable:    spreadPct >= minSpreadPercent,
		DetectedAt:    time.Now().UTC(),
	}
}
