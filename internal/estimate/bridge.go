package estimate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"github.com/santu8597/Arbiata/internal/config"
)

// BridgeQuote is the cost of moving the trade amount across chains. The
// relayer fee already embeds the liquidity-provider cut and capital cost.
type BridgeQuote struct {
	RelayerFeeBps float64
	RelayerFeeUsd float64
	SlippageBps   float64
	SlippageUsd   float64
	Degraded      bool // fixed default applied, quote service unreachable
}

type bridgeQuoteResponse struct {
	RelayerFeeBps float64 `json:"relayerFeeBps"`
	SlippageBps   float64 `json:"slippageBps"`
}

// BridgeEstimator asks the bridge's fee-quoting service for the relayer fee
// on a transfer. An unreachable service degrades to a fixed basis-point
// default instead of failing the cycle.
type BridgeEstimator struct {
	logger      *slog.Logger
	client      *resty.Client
	endpoint    string
	fallbackBps float64
}

func NewBridgeEstimator(logger *slog.Logger, cfg config.BridgeConfig) *BridgeEstimator {
	return &BridgeEstimator{
		logger:      logger,
		client:      resty.New().SetTimeout(cfg.Timeout()),
		endpoint:    cfg.QuoteEndpoint,
		fallbackBps: float64(cfg.FallbackFeeBps),
	}
}

// Estimate returns the bridging cost for a transfer worth amountUsd. It
// never returns an error for an unreachable quote service; the caller sees
// Degraded=true and the fallback rate instead.
func (e *BridgeEstimator) Estimate(ctx context.Context, sourceChain, destChain string, amountUsd float64) BridgeQuote {
	if e.endpoint == "" {
		return e.fallback(amountUsd, "no quote endpoint configured")
	}

	var quote bridgeQuoteResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fromChain": sourceChain,
			"toChain":   destChain,
			"amountUsd": fmt.Sprintf("%.2f", amountUsd),
		}).
		SetResult(&quote).
		Get(e.endpoint)
	if err != nil {
		return e.fallback(amountUsd, err.Error())
	}
	if resp.IsError() {
		return e.fallback(amountUsd, fmt.Sprintf("quote service returned %d", resp.StatusCode()))
	}
	if quote.RelayerFeeBps <= 0 {
		return e.fallback(amountUsd, "quote service returned non-positive fee")
	}

	return BridgeQuote{
		RelayerFeeBps: quote.RelayerFeeBps,
		RelayerFeeUsd: amountUsd * quote.RelayerFeeBps / 10_000,
		SlippageBps:   quote.SlippageBps,
		SlippageUsd:   amountUsd * quote.SlippageBps / 10_000,
	}
}

func (e *BridgeEstimator) fallback(amountUsd float64, reason string) BridgeQuote {
	e.logger.Warn("bridge quote degraded to default rate", "reason", reason, "fallbackBps", e.fallbackBps)
	return BridgeQuote{
		RelayerFeeBps: e.fallbackBps,
		RelayerFeeUsd: amountUsd * e.fallbackBps / 10_000,
		Degraded:      true,
	}
}
