package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/santu8597/Arbiata/internal/config"
	"github.com/santu8597/Arbiata/internal/model"
)

// ErrInvalidAmount rejects a non-positive or missing trade amount before any
// upstream call is made.
var ErrInvalidAmount = errors.New("amount must be positive")

// PoolSource reads a fresh pool snapshot for one chain.
type PoolSource interface {
	Snapshot(ctx context.Context, chain string, feeTier uint32) (*model.PoolSnapshot, error)
}

// SwapQuoter simulates the destination swap for an exact input.
type SwapQuoter interface {
	Estimate(ctx context.Context, snap *model.PoolSnapshot, amountIn *big.Int) (SlippageEstimate, error)
}

// GasPricer prices both legs of the cross-chain flow.
type GasPricer interface {
	Estimate(ctx context.Context, sourceChain, destChain string, quotedSwapGas uint64, ethUsd float64) (GasEstimate, error)
}

// BridgeQuoter quotes the relayer fee for a cross-chain transfer.
type BridgeQuoter interface {
	Estimate(ctx context.Context, sourceChain, destChain string, amountUsd float64) BridgeQuote
}

// MevProfiler derives priority-fee exposure for a trade.
type MevProfiler interface {
	Estimate(ctx context.Context, chainName string, tradeValueUsd, ethUsd float64) MevEstimate
}

// Simulator runs one deterministic cost simulation: it reads both venues,
// fans out to every estimator with a single shared ETH/USD reference, and
// joins the results into a SimulationResult.
type Simulator struct {
	logger *slog.Logger
	pools  PoolSource
	swaps  SwapQuoter
	gas    GasPricer
	bridge BridgeQuoter
	mev    MevProfiler
	cfg    config.ArbitrageConfig
}

func NewSimulator(logger *slog.Logger, pools PoolSource, swaps SwapQuoter, gas GasPricer, bridge BridgeQuoter, mev MevProfiler, cfg config.ArbitrageConfig) *Simulator {
	return &Simulator{
		logger: logger,
		pools:  pools,
		swaps:  swaps,
		gas:    gas,
		bridge: bridge,
		mev:    mev,
		cfg:    cfg,
	}
}

// Snapshots reads both venues concurrently. A failed read on either venue is
// fatal; the primary venue's error is reported first.
func (s *Simulator) Snapshots(ctx context.Context) (primary, secondary *model.PoolSnapshot, err error) {
	var g errgroup.Group
	var primaryErr, secondaryErr error
	g.Go(func() error {
		primary, primaryErr = s.pools.Snapshot(ctx, s.cfg.PrimaryChain, s.cfg.FeeTier)
		return nil
	})
	g.Go(func() error {
		secondary, secondaryErr = s.pools.Snapshot(ctx, s.cfg.SecondaryChain, s.cfg.FeeTier)
		return nil
	})
	_ = g.Wait()

	if primaryErr != nil {
		return nil, nil, fmt.Errorf("primary venue %s: %w", s.cfg.PrimaryChain, primaryErr)
	}
	if secondaryErr != nil {
		return nil, nil, fmt.Errorf("secondary venue %s: %w", s.cfg.SecondaryChain, secondaryErr)
	}
	return primary, secondary, nil
}

// Simulate runs the full pipeline for one trade amount in base-token raw
// units. The result is request-scoped and never cached.
func (s *Simulator) Simulate(ctx context.Context, amountIn *big.Int) (*model.SimulationResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	primary, secondary, err := s.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	return s.SimulateWithSnapshots(ctx, primary, secondary, amountIn)
}

// SimulateWithSnapshots runs the estimator fan-out against already-fetched
// snapshots. All four estimators see the same amount and the same ETH/USD
// reference, taken from the buy-side venue.
func (s *Simulator) SimulateWithSnapshots(ctx context.Context, primary, secondary *model.PoolSnapshot, amountIn *big.Int) (*model.SimulationResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	opp := model.DetectOpportunity(*primary, *secondary, s.cfg.MinSpreadPercent)
	buySnap := primary
	if opp.BuyChain == secondary.Chain {
		buySnap = secondary
	}
	sellSnap := primary
	if buySnap == primary {
		sellSnap = secondary
	}

	ethUsd := opp.BuyPrice.InexactFloat64()
	amountEth := weiToEth(amountIn, buySnap.BaseDecimals)
	tradeValueUsd := amountEth * ethUsd

	var (
		g                   errgroup.Group
		slippage            SlippageEstimate
		gas                 GasEstimate
		bridgeQuote         BridgeQuote
		mev                 MevEstimate
		slippageErr, gasErr error
	)

	g.Go(func() error {
		// Gas pricing runs after the quoter so the destination swap leg
		// is priced with the quoted gas figure, not the static default.
		slippage, slippageErr = s.swaps.Estimate(ctx, sellSnap, amountIn)
		if slippageErr != nil {
			return nil
		}
		gas, gasErr = s.gas.Estimate(ctx, opp.BuyChain, opp.SellChain, slippage.SwapGasEstimate, ethUsd)
		return nil
	})
	g.Go(func() error {
		bridgeQuote = s.bridge.Estimate(ctx, opp.BuyChain, opp.SellChain, tradeValueUsd)
		return nil
	})
	g.Go(func() error {
		mev = s.mev.Estimate(ctx, opp.SellChain, tradeValueUsd, ethUsd)
		return nil
	})
	_ = g.Wait()

	if slippageErr != nil {
		return nil, fmt.Errorf("swap quote: %w", slippageErr)
	}
	if gasErr != nil {
		return nil, fmt.Errorf("gas estimate: %w", gasErr)
	}

	costs := model.CostBreakdown{
		GasCostUsd:        gas.TotalUsd,
		AmmSlippageUsd:    slippage.SlippageUsd,
		BridgeSlippageUsd: bridgeQuote.SlippageUsd,
		SwapFeeUsd:        slippage.SwapFeeUsd,
		MevCostUsd:        mev.TotalUsd,
		BridgingFeesUsd:   bridgeQuote.RelayerFeeUsd,
		EthUsdReference:   ethUsd,
	}
	costs.SlippageUsd = costs.AmmSlippageUsd + costs.BridgeSlippageUsd
	costs.FeesUsd = costs.SwapFeeUsd + costs.MevCostUsd
	if bridgeQuote.Degraded {
		costs.Warnings = append(costs.Warnings, "bridge fee defaulted: quote service unreachable")
	}
	if mev.Degraded {
		costs.Warnings = append(costs.Warnings, "mev estimate defaulted: tip data unavailable")
	}

	grossProfitUsd := amountEth * opp.SellPrice.Sub(opp.BuyPrice).InexactFloat64()
	result := &model.SimulationResult{
		BuyChain:           opp.BuyChain,
		SellChain:          opp.SellChain,
		BuyPrice:           opp.BuyPrice,
		SellPrice:          opp.SellPrice,
		SpreadPercent:      opp.SpreadPercent,
		AmountIn:           new(big.Int).Set(amountIn),
		AmountInEth:        amountEth,
		GrossProfitUsd:     grossProfitUsd,
		Costs:              costs,
		NetProfitUsd:       grossProfitUsd - costs.TotalUsd(),
		PriceImpactPercent: slippage.PriceImpactPercent,
		MevRisk:            mev.Risk,
		SimulatedAt:        time.Now().UTC(),
	}

	s.logger.Info("simulation complete",
		"buyChain", result.BuyChain,
		"sellChain", result.SellChain,
		"spreadPercent", result.SpreadPercent,
		"grossProfitUsd", result.GrossProfitUsd,
		"totalCostUsd", costs.TotalUsd(),
		"netProfitUsd", result.NetProfitUsd,
		"warnings", len(costs.Warnings),
	)
	return result, nil
}

func weiToEth(wei *big.Int, decimals int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(math.Pow10(decimals)),
	).Float64()
	return f
}
