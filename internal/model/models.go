package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RiskLevel is a qualitative bucket for one risk dimension.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// MarginClass buckets net profit relative to the gas spent earning it.
type MarginClass string

const (
	MarginSafe       MarginClass = "safe"
	MarginAcceptable MarginClass = "acceptable"
	MarginThin       MarginClass = "thin"
)

// Verdict is the final call of the decision engine for one cycle.
type Verdict string

const (
	VerdictExecute Verdict = "EXECUTE"
	VerdictSkip    Verdict = "SKIP"
)

// LiquidityLevel classifies how deep a pool is around the current price.
type LiquidityLevel string

const (
	LiquidityLow    LiquidityLevel = "low"
	LiquidityMedium LiquidityLevel = "medium"
	LiquidityHigh   LiquidityLevel = "high"
)

// PoolSnapshot is the observed state of one AMM pool. It is fetched fresh for
// every decision cycle and never cached across cycles.
type PoolSnapshot struct {
	Chain          string          `json:"chain"`
	ChainID        uint64          `json:"chainId"`
	PoolAddress    common.Address  `json:"poolAddress"`
	BaseToken      common.Address  `json:"baseToken"`
	BaseDecimals   int             `json:"baseDecimals"`
	QuoteToken     common.Address  `json:"quoteToken"`
	QuoteSymbol    string          `json:"quoteSymbol"`
	QuoteDecimals  int             `json:"quoteDecimals"`
	Price          decimal.Decimal `json:"price"` // quote per base, decimal-normalized
	SqrtPriceX96   *big.Int        `json:"-"`
	Tick           int32           `json:"tick"`
	Liquidity      *big.Int        `json:"liquidity"`
	LiquidityUSD   float64         `json:"liquidityUsd"`
	LiquidityLevel LiquidityLevel  `json:"liquidityLevel"`
	FeeTier        uint32          `json:"feeTier"` // Uniswap units, 1e-6 (500 = 5 bps)
	ObservedAt     time.Time       `json:"observedAt"`
}

// FeeBps returns the pool fee tier in basis points.
func (p PoolSnapshot) FeeBps() float64 {
	return float64(p.FeeTier) / 100.0
}

// CostBreakdown itemizes every cost of the full cross-chain flow in USD.
// All components are denominated with the single EthUsdReference captured at
// estimation time; mixing references within one cycle is a bug.
type CostBreakdown struct {
	GasCostUsd        float64 `json:"gasCostUsd"`
	SlippageUsd       float64 `json:"slippageUsd"` // AmmSlippageUsd + BridgeSlippageUsd
	AmmSlippageUsd    float64 `json:"ammSlippageUsd"`
	BridgeSlippageUsd float64 `json:"bridgeSlippageUsd"`
	FeesUsd           float64 `json:"feesUsd"` // SwapFeeUsd + MevCostUsd
	SwapFeeUsd        float64 `json:"swapFeeUsd"`
	MevCostUsd        float64 `json:"mevCostUsd"`
	BridgingFeesUsd   float64 `json:"bridgingFeesUsd"` // relayer fee, owned here only

	EthUsdReference float64  `json:"ethUsdReference"`
	Warnings        []string `json:"warnings,omitempty"` // degraded estimates, e.g. bridge default
}

// TotalUsd is the sum of the four top-level cost components.
func (c CostBreakdown) TotalUsd() float64 {
	return c.GasCostUsd + c.SlippageUsd + c.FeesUsd + c.BridgingFeesUsd
}

// SimulationResult is the outcome of one deterministic cost simulation.
// It is derived per request and never persisted as-is.
type SimulationResult struct {
	BuyChain      string          `json:"buyChain"`
	SellChain     string          `json:"sellChain"`
	BuyPrice      decimal.Decimal `json:"buyPrice"`
	SellPrice     decimal.Decimal `json:"sellPrice"`
	SpreadPercent float64         `json:"spreadPercent"`

	AmountIn    *big.Int `json:"amountInWei"`
	AmountInEth float64  `json:"amountInEth"`

	GrossProfitUsd     float64       `json:"grossProfitUsd"`
	Costs              CostBreakdown `json:"costs"`
	NetProfitUsd       float64       `json:"netProfitUsd"`
	PriceImpactPercent float64       `json:"priceImpactPercent"`

	MevRisk     RiskLevel `json:"mevRisk"`
	SimulatedAt time.Time `json:"simulatedAt"`
}

// RiskAssessment carries the three independent risk buckets plus the
// profit-margin class that together feed the final verdict.
type RiskAssessment struct {
	Slippage     RiskLevel   `json:"slippage"`
	MEV          RiskLevel   `json:"mev"`
	Timing       RiskLevel   `json:"timing"`
	ProfitMargin MarginClass `json:"profitMargin"`
}

// AnyHigh reports whether any risk dimension is high.
func (r RiskAssessment) AnyHigh() bool {
	return r.Slippage == RiskHigh || r.MEV == RiskHigh || r.Timing == RiskHigh
}

// MediumCount counts dimensions at medium.
func (r RiskAssessment) MediumCount() int {
	n := 0
	for _, l := range []RiskLevel{r.Slippage, r.MEV, r.Timing} {
		if l == RiskMedium {
			n++
		}
	}
	return n
}

// AllLow reports whether every risk dimension is low.
func (r RiskAssessment) AllLow() bool {
	return r.Slippage == RiskLow && r.MEV == RiskLow && r.Timing == RiskLow
}

// Decision is the immutable verdict for one simulation cycle. A SKIP is a
// correct outcome, not a failure; cycles are never retried automatically.
type Decision struct {
	ID         string         `json:"id"`
	Verdict    Verdict        `json:"verdict"`
	Reason     string         `json:"reason"`
	Confidence float64        `json:"confidence"`
	Risk       RiskAssessment `json:"risk"`
	Source     string         `json:"source"` // "gate", "advisor" or "fallback"
	DecidedAt  time.Time      `json:"decidedAt"`
}

// Transaction is one append-only ledger record for an executed swap.
type Transaction struct {
	Timestamp    time.Time `json:"timestamp"`
	AmountIn     *big.Int  `json:"amountIn"`
	Profit       *big.Int  `json:"profit"`
	ViaFixedPath bool      `json:"executedViaFixedPath"`
}

// DecisionRecord is the persisted audit row for one decision cycle.
type DecisionRecord struct {
	ID            int64     `db:"id"`
	DecisionID    string    `db:"decision_id"`
	Timestamp     time.Time `db:"timestamp"`
	Verdict       string    `db:"verdict"`
	Reason        string    `db:"reason"`
	Confidence    float64   `db:"confidence"`
	Source        string    `db:"source"`
	BuyChain      string    `db:"buy_chain"`
	SellChain     string    `db:"sell_chain"`
	SpreadPercent float64   `db:"spread_percent"`
	NetProfitUsd  float64   `db:"net_profit_usd"`
}

// ExecutionRecord is the persisted audit row for one settled swap.
type ExecutionRecord struct {
	ID           int64     `db:"id"`
	DecisionID   string    `db:"decision_id"`
	Timestamp    time.Time `db:"timestamp"`
	Account      string    `db:"account"`
	AmountInWei  string    `db:"amount_in_wei"`
	ProfitWei    string    `db:"profit_wei"`
	NetProfitUsd float64   `db:"net_profit_usd"`
}
