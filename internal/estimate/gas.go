package estimate

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/santu8597/Arbiata/internal/chain"
)

// Gas units per leg of the cross-chain flow. The swap figure matches a
// medium-complexity V3 swap crossing a handful of ticks; the bridge figure
// covers the source-chain deposit call.
const (
	bridgeInitGasUnits = 90_000
	swapGasUnits       = 165_000

	weiPerEth = 1e18
)

// LegCost is the fee-market pricing of one leg of the flow.
type LegCost struct {
	Chain        string
	GasUnits     uint64
	GasPriceWei  *big.Int // legacy pricing
	BaseFeeWei   *big.Int // nil when the chain has no base fee
	TipCapWei    *big.Int // nil when tip pricing is unavailable
	CostWei      *big.Int
	CostUsd      float64
	TipBasedUsed bool
}

// GasEstimate sums the gas cost of every leg of the full flow. No leg is
// ever omitted; a chain without tip-based pricing falls back to legacy.
type GasEstimate struct {
	BridgeInit LegCost
	SwapLeg    LegCost
	TotalWei   *big.Int
	TotalUsd   float64
	TipGweiMax float64
}

// GasEstimator prices the bridge-initiation leg on the source chain and the
// swap leg on the destination chain from live fee-market data.
type GasEstimator struct {
	logger   *slog.Logger
	registry *chain.Registry
}

func NewGasEstimator(logger *slog.Logger, registry *chain.Registry) *GasEstimator {
	return &GasEstimator{logger: logger, registry: registry}
}

// Estimate prices both legs with the shared ETH/USD reference. swapGasUnits
// may be overridden by a quoter-reported figure; zero keeps the default.
func (e *GasEstimator) Estimate(ctx context.Context, sourceChain, destChain string, quotedSwapGas uint64, ethUsd float64) (GasEstimate, error) {
	bridgeLeg, err := e.priceLeg(ctx, sourceChain, bridgeInitGasUnits, ethUsd)
	if err != nil {
		return GasEstimate{}, err
	}

	swapUnits := uint64(swapGasUnits)
	if quotedSwapGas > 0 {
		swapUnits = quotedSwapGas
	}
	swapLeg, err := e.priceLeg(ctx, destChain, swapUnits, ethUsd)
	if err != nil {
		return GasEstimate{}, err
	}

	total := new(big.Int).Add(bridgeLeg.CostWei, swapLeg.CostWei)
	est := GasEstimate{
		BridgeInit: bridgeLeg,
		SwapLeg:    swapLeg,
		TotalWei:   total,
		TotalUsd:   bridgeLeg.CostUsd + swapLeg.CostUsd,
		TipGweiMax: maxTipGwei(bridgeLeg, swapLeg),
	}

	e.logger.Debug("gas estimate",
		"sourceChain", sourceChain,
		"destChain", destChain,
		"totalWei", total.String(),
		"totalUsd", est.TotalUsd,
	)
	return est, nil
}

func (e *GasEstimator) priceLeg(ctx context.Context, chainName string, gasUnits uint64, ethUsd float64) (LegCost, error) {
	client, err := e.registry.Client(chainName)
	if err != nil {
		return LegCost{}, err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return LegCost{}, fmt.Errorf("%w: %s gas price: %v", chain.ErrUpstreamUnavailable, chainName, err)
	}

	leg := LegCost{
		Chain:       chainName,
		GasUnits:    gasUnits,
		GasPriceWei: gasPrice,
	}

	// Prefer tip-based pricing when the chain supports it.
	header, headerErr := client.HeaderByNumber(ctx, nil)
	if headerErr == nil && header.BaseFee != nil {
		tip, tipErr := client.SuggestGasTipCap(ctx)
		if tipErr == nil {
			leg.BaseFeeWei = header.BaseFee
			leg.TipCapWei = tip
			leg.TipBasedUsed = true
		}
	}

	perGas := gasPrice
	if leg.TipBasedUsed {
		perGas = new(big.Int).Add(leg.BaseFeeWei, leg.TipCapWei)
	}
	leg.CostWei = new(big.Int).Mul(perGas, new(big.Int).SetUint64(gasUnits))
	leg.CostUsd = weiToUsd(leg.CostWei, ethUsd)
	return leg, nil
}

func weiToUsd(wei *big.Int, ethUsd float64) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f / weiPerEth * ethUsd
}

func maxTipGwei(legs ...LegCost) float64 {
	max := 0.0
	for _, l := range legs {
		if l.TipCapWei == nil {
			continue
		}
		f, _ := new(big.Float).SetInt(l.TipCapWei).Float64()
		if g := f / 1e9; g > max {
			max = g
		}
	}
	return max
}
