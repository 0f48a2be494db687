package chain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/santu8597/Arbiata/internal/config"
	"github.com/santu8597/Arbiata/internal/model"
)

// Liquidity scoring thresholds: USD depth plus populated-tick occupancy each
// contribute 0-2 points; total >=3 is high, >=1 medium, else low.
const (
	liquidityUsdMedium = 1_000_000.0
	liquidityUsdHigh   = 5_000_000.0
	tickCountMedium    = 10
	tickCountHigh      = 30

	// tickWindowWords bounds the bitmap scan to one word each side of the
	// word holding the current tick.
	tickWindowWords = 1
)

// PoolReader reads the current state of the configured AMM pool on a chain
// and produces a request-scoped PoolSnapshot.
type PoolReader struct {
	logger     *slog.Logger
	registry   *Registry
	factoryABI abi.ABI
	poolABI    abi.ABI
}

// NewPoolReader creates a PoolReader bound to the chain registry.
func NewPoolReader(logger *slog.Logger, registry *Registry) (*PoolReader, error) {
	fABI, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory ABI: %w", err)
	}
	pABI, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool ABI: %w", err)
	}
	return &PoolReader{
		logger:     logger,
		registry:   registry,
		factoryABI: fABI,
		poolABI:    pABI,
	}, nil
}

// Snapshot fetches price, liquidity and tick occupancy for the base/stable
// pool at the given fee tier. The primary stablecoin pairing is tried first,
// then the secondary one; ErrPoolNotFound if neither pool exists.
func (p *PoolReader) Snapshot(ctx context.Context, chainName string, feeTier uint32) (*model.PoolSnapshot, error) {
	client, err := p.registry.Client(chainName)
	if err != nil {
		return nil, err
	}
	cfg, err := p.registry.Config(chainName)
	if err != nil {
		return nil, err
	}

	base := common.HexToAddress(cfg.BaseToken.Address)
	var (
		poolAddr common.Address
		quote    config.TokenConfig
	)
	for _, stable := range []config.TokenConfig{cfg.PrimaryStable, cfg.SecondaryStable} {
		if stable.Address == "" {
			continue
		}
		addr, lookupErr := p.lookupPool(ctx, client, cfg, base, common.HexToAddress(stable.Address), feeTier)
		if lookupErr != nil {
			return nil, fmt.Errorf("%w: %s factory lookup: %v", ErrUpstreamUnavailable, chainName, lookupErr)
		}
		if addr != (common.Address{}) {
			poolAddr = addr
			quote = stable
			break
		}
	}
	if poolAddr == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s %s fee=%d", ErrPoolNotFound, chainName, cfg.BaseToken.Symbol, feeTier)
	}

	pool := bind.NewBoundContract(poolAddr, p.poolABI, client, client, client)
	opts := &bind.CallOpts{Context: ctx}

	var slot0Out []interface{}
	if err := pool.Call(opts, &slot0Out, "slot0"); err != nil {
		return nil, fmt.Errorf("%w: %s slot0: %v", ErrUpstreamUnavailable, chainName, err)
	}
	sqrtPriceX96 := slot0Out[0].(*big.Int)
	tick := int32(slot0Out[1].(*big.Int).Int64())

	var liqOut []interface{}
	if err := pool.Call(opts, &liqOut, "liquidity"); err != nil {
		return nil, fmt.Errorf("%w: %s liquidity: %v", ErrUpstreamUnavailable, chainName, err)
	}
	liquidity := liqOut[0].(*big.Int)

	var spacingOut []interface{}
	if err := pool.Call(opts, &spacingOut, "tickSpacing"); err != nil {
		return nil, fmt.Errorf("%w: %s tickSpacing: %v", ErrUpstreamUnavailable, chainName, err)
	}
	spacing := int32(spacingOut[0].(*big.Int).Int64())

	populatedTicks, err := p.countInitializedTicks(ctx, pool, opts, tick, spacing)
	if err != nil {
		return nil, fmt.Errorf("%w: %s tickBitmap: %v", ErrUpstreamUnavailable, chainName, err)
	}

	baseIsToken0 := bytes.Compare(base.Bytes(), common.HexToAddress(quote.Address).Bytes()) < 0
	price := priceFromSqrtX96(sqrtPriceX96, cfg.BaseToken.Decimals, quote.Decimals, baseIsToken0)
	liqUsd := estimateLiquidityUSD(liquidity, sqrtPriceX96, quote.Decimals, !baseIsToken0)

	snap := &model.PoolSnapshot{
		Chain:          chainName,
		ChainID:        cfg.ChainID,
		PoolAddress:    poolAddr,
		BaseToken:      base,
		BaseDecimals:   cfg.BaseToken.Decimals,
		QuoteToken:     common.HexToAddress(quote.Address),
		QuoteSymbol:    quote.Symbol,
		QuoteDecimals:  quote.Decimals,
		Price:          price,
		SqrtPriceX96:   sqrtPriceX96,
		Tick:           tick,
		Liquidity:      liquidity,
		LiquidityUSD:   liqUsd,
		LiquidityLevel: classifyLiquidity(liqUsd, populatedTicks),
		FeeTier:        feeTier,
		ObservedAt:     time.Now().UTC(),
	}

	p.logger.Debug("pool snapshot",
		"chain", chainName,
		"pool", poolAddr.Hex(),
		"price", price.String(),
		"liquidityUsd", liqUsd,
		"liquidityLevel", snap.LiquidityLevel,
		"populatedTicks", populatedTicks,
	)
	return snap, nil
}

func (p *PoolReader) lookupPool(ctx context.Context, client *ethclient.Client, cfg config.ChainConfig, tokenA, tokenB common.Address, feeTier uint32) (common.Address, error) {
	factory := bind.NewBoundContract(common.HexToAddress(cfg.FactoryAddress), p.factoryABI, client, client, client)
	var out []interface{}
	err := factory.Call(&bind.CallOpts{Context: ctx}, &out, "getPool", tokenA, tokenB, big.NewInt(int64(feeTier)))
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// countInitializedTicks counts populated ticks in the tick bitmap words
// around the current tick, bounded to tickWindowWords each side.
func (p *PoolReader) countInitializedTicks(ctx context.Context, pool *bind.BoundContract, opts *bind.CallOpts, tick, spacing int32) (int, error) {
	if spacing <= 0 {
		return 0, nil
	}
	compressed := floorDiv(tick, spacing)
	currentWord := floorDiv(compressed, 256)

	count := 0
	for word := currentWord - tickWindowWords; word <= currentWord+tickWindowWords; word++ {
		var out []interface{}
		if err := pool.Call(opts, &out, "tickBitmap", int16(word)); err != nil {
			return 0, err
		}
		bitmap := out[0].(*big.Int)
		for bit := 0; bit < 256; bit++ {
			if bitmap.Bit(bit) == 1 {
				count++
			}
		}
	}
	return count, nil
}

// priceFromSqrtX96 converts the pool's sqrt-price representation to a
// decimal-normalized quote-per-base price.
func priceFromSqrtX96(sqrtPriceX96 *big.Int, baseDecimals, quoteDecimals int, baseIsToken0 bool) decimal.Decimal {
	q96 := decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)
	s := decimal.NewFromBigInt(sqrtPriceX96, 0).DivRound(q96, 24)
	raw := s.Mul(s) // token1 raw units per token0 raw unit
	if !baseIsToken0 {
		if raw.IsZero() {
			return decimal.Zero
		}
		raw = decimal.NewFromInt(1).DivRound(raw, 24)
	}
	return raw.Shift(int32(baseDecimals - quoteDecimals))
}

// estimateLiquidityUSD values in-range liquidity at twice its
// stable-denominated side. A coarse figure, but it only feeds the
// three-bucket classification.
func estimateLiquidityUSD(liquidity, sqrtPriceX96 *big.Int, stableDecimals int, stableIsToken1 bool) float64 {
	if liquidity.Sign() == 0 || sqrtPriceX96.Sign() == 0 {
		return 0
	}
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	var stableRaw *big.Int
	if stableIsToken1 {
		stableRaw = new(big.Int).Div(new(big.Int).Mul(liquidity, sqrtPriceX96), q96)
	} else {
		stableRaw = new(big.Int).Div(new(big.Int).Mul(liquidity, q96), sqrtPriceX96)
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(stableRaw),
		big.NewFloat(math.Pow10(stableDecimals)),
	).Float64()
	return 2 * f
}

func classifyLiquidity(usd float64, populatedTicks int) model.LiquidityLevel {
	score := 0
	switch {
	case usd >= liquidityUsdHigh:
		score += 2
	case usd >= liquidityUsdMedium:
		score++
	}
	switch {
	case populatedTicks >= tickCountHigh:
		score += 2
	case populatedTicks >= tickCountMedium:
		score++
	}
	switch {
	case score >= 3:
		return model.LiquidityHigh
	case score >= 1:
		return model.LiquidityMedium
	default:
		return model.LiquidityLow
	}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
