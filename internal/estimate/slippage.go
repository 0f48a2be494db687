package estimate

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/santu8597/Arbiata/internal/chain"
	"github.com/santu8597/Arbiata/internal/model"
)

// QuoterV2 exposes the swap simulation used for exact-output quoting.
const quoterABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// SlippageEstimate compares the quoted output of a swap against the ideal
// spot-price output for the same input.
type SlippageEstimate struct {
	QuotedOut          *big.Int
	SpotOutUsd         float64
	QuotedOutUsd       float64
	SlippageUsd        float64 // execution shortfall net of the pool fee
	SwapFeeUsd         float64
	PriceImpactPercent float64
	TicksCrossed       uint32
	SwapGasEstimate    uint64
}

// SlippageEstimator simulates the destination-chain swap through the
// QuoterV2 contract and attributes the shortfall against spot.
type SlippageEstimator struct {
	logger   *slog.Logger
	registry *chain.Registry
	abi      abi.ABI
}

func NewSlippageEstimator(logger *slog.Logger, registry *chain.Registry) (*SlippageEstimator, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterABI))
	if err != nil {
		return nil, fmt.Errorf("parse quoter ABI: %w", err)
	}
	return &SlippageEstimator{logger: logger, registry: registry, abi: parsed}, nil
}

// Estimate quotes a base-for-quote swap of amountIn raw units against the
// pool in snap and splits the shortfall into pool fee and slippage.
func (e *SlippageEstimator) Estimate(ctx context.Context, snap *model.PoolSnapshot, amountIn *big.Int) (SlippageEstimate, error) {
	client, err := e.registry.Client(snap.Chain)
	if err != nil {
		return SlippageEstimate{}, err
	}
	cfg, err := e.registry.Config(snap.Chain)
	if err != nil {
		return SlippageEstimate{}, err
	}

	quoter := bind.NewBoundContract(common.HexToAddress(cfg.QuoterAddress), e.abi, client, client, client)
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           snap.BaseToken,
		TokenOut:          snap.QuoteToken,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(snap.FeeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	var out []interface{}
	if err := quoter.Call(&bind.CallOpts{Context: ctx}, &out, "quoteExactInputSingle", params); err != nil {
		return SlippageEstimate{}, fmt.Errorf("%w: %s quoter: %v", chain.ErrUpstreamUnavailable, snap.Chain, err)
	}
	quotedOut := out[0].(*big.Int)
	ticksCrossed := out[2].(uint32)
	gasEstimate := out[3].(*big.Int)

	amountBase := decimal.NewFromBigInt(amountIn, -int32(snap.BaseDecimals))
	spotOut := amountBase.Mul(snap.Price)
	quotedHuman := decimal.NewFromBigInt(quotedOut, -int32(snap.QuoteDecimals))

	// Quote token is a stablecoin, so quote units read directly as USD.
	spotUsd := spotOut.InexactFloat64()
	quotedUsd := quotedHuman.InexactFloat64()
	swapFeeUsd := spotUsd * float64(snap.FeeTier) / 1e6

	slippageUsd := spotUsd - quotedUsd - swapFeeUsd
	if slippageUsd < 0 {
		slippageUsd = 0
	}

	impact := 0.0
	if spotUsd > 0 {
		impact = (spotUsd - quotedUsd) / spotUsd * 100
		if impact < 0 {
			impact = 0
		}
	}

	est := SlippageEstimate{
		QuotedOut:          quotedOut,
		SpotOutUsd:         spotUsd,
		QuotedOutUsd:       quotedUsd,
		SlippageUsd:        slippageUsd,
		SwapFeeUsd:         swapFeeUsd,
		PriceImpactPercent: impact,
		TicksCrossed:       ticksCrossed,
		SwapGasEstimate:    gasEstimate.Uint64(),
	}

	e.logger.Debug("swap quote",
		"chain", snap.Chain,
		"amountIn", amountIn.String(),
		"quotedOutUsd", quotedUsd,
		"slippageUsd", slippageUsd,
		"priceImpactPercent", impact,
		"ticksCrossed", ticksCrossed,
	)
	return est, nil
}
