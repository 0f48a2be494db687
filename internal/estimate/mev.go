package estimate

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/santu8597/Arbiata/internal/chain"
	"github.com/santu8597/Arbiata/internal/model"
)

// MEV exposure thresholds. Priority pressure is read from the suggested tip;
// trade size raises the incentive for reordering.
const (
	tipGweiMedium = 20.0
	tipGweiHigh   = 50.0

	tradeUsdMedium = 10_000.0
	tradeUsdHigh   = 50_000.0

	// Builder tip budget by trade size, in basis points of trade value.
	builderTipBpsSmall  = 1.0
	builderTipBpsMedium = 2.0
	builderTipBpsLarge  = 5.0

	defaultTipGwei = 2.0
)

// MevEstimate is the priority-fee and builder-tip exposure of one trade.
type MevEstimate struct {
	TipGwei        float64
	PriorityFeeUsd float64
	BuilderTipUsd  float64
	TotalUsd       float64
	Risk           model.RiskLevel
	Degraded       bool // default tip assumed, fee data unavailable
}

// MevEstimator derives reordering exposure from the destination chain's
// current tip market and the trade's notional size.
type MevEstimator struct {
	logger   *slog.Logger
	registry *chain.Registry
}

func NewMevEstimator(logger *slog.Logger, registry *chain.Registry) *MevEstimator {
	return &MevEstimator{logger: logger, registry: registry}
}

// Estimate never fails the cycle: when tip data is unreachable it assumes a
// default tip and flags the result as degraded.
func (e *MevEstimator) Estimate(ctx context.Context, chainName string, tradeValueUsd, ethUsd float64) MevEstimate {
	tipGwei := defaultTipGwei
	degraded := false

	client, err := e.registry.Client(chainName)
	if err != nil {
		degraded = true
	} else {
		tip, tipErr := client.SuggestGasTipCap(ctx)
		if tipErr != nil {
			degraded = true
		} else {
			f, _ := new(big.Float).SetInt(tip).Float64()
			tipGwei = f / 1e9
		}
	}
	if degraded {
		e.logger.Warn("tip data unavailable, assuming default", "chain", chainName, "tipGwei", defaultTipGwei)
	}

	priorityFeeUsd := tipGwei * 1e9 * swapGasUnits / weiPerEth * ethUsd

	builderBps := builderTipBpsSmall
	switch {
	case tradeValueUsd >= tradeUsdHigh:
		builderBps = builderTipBpsLarge
	case tradeValueUsd >= tradeUsdMedium:
		builderBps = builderTipBpsMedium
	}
	builderTipUsd := tradeValueUsd * builderBps / 10_000

	return MevEstimate{
		TipGwei:        tipGwei,
		PriorityFeeUsd: priorityFeeUsd,
		BuilderTipUsd:  builderTipUsd,
		TotalUsd:       priorityFeeUsd + builderTipUsd,
		Risk:           classifyMevRisk(tipGwei, tradeValueUsd),
		Degraded:       degraded,
	}
}

func classifyMevRisk(tipGwei, tradeValueUsd float64) model.RiskLevel {
	switch {
	case tipGwei > tipGweiHigh || tradeValueUsd > tradeUsdHigh:
		return model.RiskHigh
	case tipGwei > tipGweiMedium || tradeValueUsd > tradeUsdMedium:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
