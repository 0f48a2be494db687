package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/santu8597/Arbiata/internal/config"
	"github.com/santu8597/Arbiata/internal/model"
)

// Decision sources.
const (
	SourceGate     = "gate"
	SourceAdvisor  = "advisor"
	SourceFallback = "fallback"
)

// Gate reasons. The gate always wins over any advisory opinion.
const (
	ReasonNonPositiveProfit = "non-positive profit"
	ReasonBelowMinimum      = "below minimum threshold"
	ReasonAnomalousSpread   = "anomalous spread"
)

// Risk classification thresholds as a fraction of net profit consumed by
// one cost dimension.
const (
	costRatioHigh   = 0.50
	costRatioMedium = 0.30

	marginSafeRatio       = 5.0
	marginAcceptableRatio = 3.0

	executeProfitFloorUsd = 5.0
	executeConfidence     = 0.75
	skipConfidence        = 0.60
)

// Advice is the advisory capability's answer. Any response that does not
// decode into exactly this shape is treated as advisory-unavailable.
type Advice struct {
	Decision   string  `json:"decision"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Valid reports whether the advice satisfies the strict response contract.
func (a Advice) Valid() bool {
	if a.Decision != string(model.VerdictExecute) && a.Decision != string(model.VerdictSkip) {
		return false
	}
	if a.Reason == "" {
		return false
	}
	return a.Confidence >= 0 && a.Confidence <= 1
}

// Advisor consults an external capability about a simulated trade.
type Advisor interface {
	Advise(ctx context.Context, result *model.SimulationResult, risk model.RiskAssessment) (Advice, error)
}

// Engine turns a simulation result into an immutable verdict. The
// deterministic gate always runs first; the advisory path is optional and
// every advisory failure routes silently to the rule-based fallback. Ties
// and ambiguous states resolve to SKIP.
type Engine struct {
	logger  *slog.Logger
	advisor Advisor // nil disables the advisory path
	cfg     config.ArbitrageConfig
}

func NewEngine(logger *slog.Logger, advisor Advisor, cfg config.ArbitrageConfig) *Engine {
	return &Engine{logger: logger, advisor: advisor, cfg: cfg}
}

// Decide runs the full two-phase judgment for one cycle.
func (e *Engine) Decide(ctx context.Context, result *model.SimulationResult) model.Decision {
	risk := e.Assess(result)
	return e.DecideWithRisk(ctx, result, risk)
}

// DecideWithRisk runs the judgment against precomputed risk levels. The
// gate is still applied; callers cannot bypass it.
func (e *Engine) DecideWithRisk(ctx context.Context, result *model.SimulationResult, risk model.RiskAssessment) model.Decision {
	if d, gated := e.gate(result, risk); gated {
		return d
	}

	if e.advisor != nil {
		advice, err := e.advisor.Advise(ctx, result, risk)
		if err == nil && advice.Valid() {
			return e.finalize(model.Verdict(advice.Decision), advice.Reason, advice.Confidence, risk, SourceAdvisor)
		}
		if err != nil {
			e.logger.Warn("advisor unavailable, using fallback rules", "error", err)
		} else {
			e.logger.Warn("advisor response failed schema validation, using fallback rules")
		}
	}

	return e.fallback(result, risk)
}

// gate applies the three ordered deterministic checks. The first match
// short-circuits the rest of the pipeline with full confidence.
func (e *Engine) gate(result *model.SimulationResult, risk model.RiskAssessment) (model.Decision, bool) {
	switch {
	case result.NetProfitUsd <= 0:
		return e.finalize(model.VerdictSkip, ReasonNonPositiveProfit, 1.0, risk, SourceGate), true
	case result.NetProfitUsd < e.cfg.MinProfitUsd:
		return e.finalize(model.VerdictSkip, ReasonBelowMinimum, 1.0, risk, SourceGate), true
	case result.SpreadPercent > e.cfg.MaxSpreadPercent:
		return e.finalize(model.VerdictSkip, ReasonAnomalousSpread, 1.0, risk, SourceGate), true
	}
	return model.Decision{}, false
}

func (e *Engine) fallback(result *model.SimulationResult, risk model.RiskAssessment) model.Decision {
	switch {
	case risk.AnyHigh() || risk.MediumCount() >= 2:
		return e.finalize(model.VerdictSkip, "risk profile too hostile", skipConfidence, risk, SourceFallback)
	case risk.ProfitMargin == model.MarginThin:
		return e.finalize(model.VerdictSkip, "profit margin too thin against gas", skipConfidence, risk, SourceFallback)
	case result.NetProfitUsd >= executeProfitFloorUsd && risk.AllLow() && risk.ProfitMargin == model.MarginSafe:
		return e.finalize(model.VerdictExecute, "all risks low with safe margin", executeConfidence, risk, SourceFallback)
	default:
		return e.finalize(model.VerdictSkip, "conditions ambiguous, defaulting to skip", skipConfidence, risk, SourceFallback)
	}
}

// Assess classifies the three risk dimensions from cost ratios and buckets
// the profit margin against gas. For MEV the estimator's own qualitative
// level can only raise the classification, never lower it.
func (e *Engine) Assess(result *model.SimulationResult) model.RiskAssessment {
	mev := classifyCostRatio(result.Costs.FeesUsd-result.Costs.SwapFeeUsd, result.NetProfitUsd)
	if worse(result.MevRisk, mev) {
		mev = result.MevRisk
	}
	return model.RiskAssessment{
		Slippage:     classifyCostRatio(result.Costs.SlippageUsd, result.NetProfitUsd),
		MEV:          mev,
		Timing:       classifyCostRatio(result.Costs.GasCostUsd, result.NetProfitUsd),
		ProfitMargin: classifyMargin(result.NetProfitUsd, result.Costs.GasCostUsd),
	}
}

func (e *Engine) finalize(verdict model.Verdict, reason string, confidence float64, risk model.RiskAssessment, source string) model.Decision {
	d := model.Decision{
		ID:         uuid.NewString(),
		Verdict:    verdict,
		Reason:     reason,
		Confidence: confidence,
		Risk:       risk,
		Source:     source,
		DecidedAt:  time.Now().UTC(),
	}
	e.logger.Info("decision",
		"id", d.ID,
		"verdict", d.Verdict,
		"reason", d.Reason,
		"confidence", d.Confidence,
		"source", d.Source,
	)
	return d
}

func classifyCostRatio(costUsd, netProfitUsd float64) model.RiskLevel {
	if netProfitUsd <= 0 {
		return model.RiskHigh
	}
	ratio := costUsd / netProfitUsd
	switch {
	case ratio > costRatioHigh:
		return model.RiskHigh
	case ratio > costRatioMedium:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func classifyMargin(netProfitUsd, gasCostUsd float64) model.MarginClass {
	if gasCostUsd <= 0 {
		return model.MarginSafe
	}
	ratio := netProfitUsd / gasCostUsd
	switch {
	case ratio >= marginSafeRatio:
		return model.MarginSafe
	case ratio >= marginAcceptableRatio:
		return model.MarginAcceptable
	default:
		return model.MarginThin
	}
}

func worse(a, b model.RiskLevel) bool {
	rank := map[model.RiskLevel]int{model.RiskLow: 0, model.RiskMedium: 1, model.RiskHigh: 2}
	return rank[a] > rank[b]
}
