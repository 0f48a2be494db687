package decision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"github.com/santu8597/Arbiata/internal/config"
	"github.com/santu8597/Arbiata/internal/model"
)

// advisoryRequest is the payload sent to the advisory capability. It carries
// only derived figures, never credentials or account state.
type advisoryRequest struct {
	Model         string               `json:"model,omitempty"`
	BuyChain      string               `json:"buyChain"`
	SellChain     string               `json:"sellChain"`
	SpreadPercent float64              `json:"spreadPercent"`
	NetProfitUsd  float64              `json:"netProfitUsd"`
	Costs         model.CostBreakdown  `json:"costs"`
	Risk          model.RiskAssessment `json:"risk"`
}

// RemoteAdvisor consults an external advisory model over HTTP with a bounded
// timeout. It only reports what the service said; schema enforcement and
// fallback routing belong to the Engine.
type RemoteAdvisor struct {
	logger *slog.Logger
	client *resty.Client
	cfg    config.AdvisorConfig
}

func NewRemoteAdvisor(logger *slog.Logger, cfg config.AdvisorConfig) *RemoteAdvisor {
	client := resty.New().SetTimeout(cfg.Timeout())
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &RemoteAdvisor{logger: logger, client: client, cfg: cfg}
}

// Advise posts the simulation summary and decodes the strict response
// schema. Transport errors, non-2xx statuses and timeouts surface as errors
// so the engine can fall back.
func (a *RemoteAdvisor) Advise(ctx context.Context, result *model.SimulationResult, risk model.RiskAssessment) (Advice, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()

	req := advisoryRequest{
		Model:         a.cfg.Model,
		BuyChain:      result.BuyChain,
		SellChain:     result.SellChain,
		SpreadPercent: result.SpreadPercent,
		NetProfitUsd:  result.NetProfitUsd,
		Costs:         result.Costs,
		Risk:          risk,
	}

	var advice Advice
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&advice).
		Post(a.cfg.Endpoint)
	if err != nil {
		return Advice{}, fmt.Errorf("advisory call: %w", err)
	}
	if resp.IsError() {
		return Advice{}, fmt.Errorf("advisory call: status %d", resp.StatusCode())
	}
	return advice, nil
}
