package server

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/santu8597/Arbiata/internal/chain"
	"github.com/santu8597/Arbiata/internal/config"
	"github.com/santu8597/Arbiata/internal/database"
	"github.com/santu8597/Arbiata/internal/estimate"
	"github.com/santu8597/Arbiata/internal/model"
	"github.com/santu8597/Arbiata/internal/settlement"
)

// Simulator runs one cost-simulation cycle.
type Simulator interface {
	Snapshots(ctx context.Context) (primary, secondary *model.PoolSnapshot, err error)
	Simulate(ctx context.Context, amountIn *big.Int) (*model.SimulationResult, error)
}

// Decider turns a simulation result into a verdict.
type Decider interface {
	Decide(ctx context.Context, result *model.SimulationResult) model.Decision
	DecideWithRisk(ctx context.Context, result *model.SimulationResult, risk model.RiskAssessment) model.Decision
}

// PoolSource reads one venue's live snapshot.
type PoolSource interface {
	Snapshot(ctx context.Context, chainName string, feeTier uint32) (*model.PoolSnapshot, error)
}

// SettlementLedger is the per-account balance custodian with the
// profit-enforced swap entrypoint. Implemented in-process by the ledger and
// on chain by the contract-backed ledger.
type SettlementLedger interface {
	Deposit(ctx context.Context, addr common.Address, amount *big.Int) error
	Withdraw(ctx context.Context, addr common.Address, amount *big.Int) error
	ExecuteSwap(ctx context.Context, addr common.Address, amountIn, minProfit *big.Int) (model.Transaction, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	Transactions(ctx context.Context, addr common.Address) ([]model.Transaction, error)
}

// PricesPayload is the shared payload shape of GET /api/v1/prices and the
// websocket stream. Polling and push must converge on it.
type PricesPayload struct {
	Snapshots   []*model.PoolSnapshot `json:"snapshots"`
	Opportunity model.Opportunity     `json:"opportunity"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Server exposes the read, estimate and decision endpoints plus the live
// price stream. The audit repository is optional; persistence failures are
// logged and never fail a request.
type Server struct {
	logger *slog.Logger
	pools  PoolSource
	sim    Simulator
	engine Decider
	ledger SettlementLedger
	audit  database.Repository
	hub    *Hub
	cfg    config.Config
}

func New(logger *slog.Logger, pools PoolSource, sim Simulator, engine Decider, ledger SettlementLedger, audit database.Repository, cfg config.Config) *Server {
	s := &Server{
		logger: logger,
		pools:  pools,
		sim:    sim,
		engine: engine,
		ledger: ledger,
		audit:  audit,
		cfg:    cfg,
	}
	s.hub = NewHub(logger)
	return s
}

// Hub exposes the stream hub so main can run its broadcast loop.
func (s *Server) StreamHub() *Hub {
	return s.hub
}

// PricesSnapshot builds the shared payload from live venue reads.
func (s *Server) PricesSnapshot(ctx context.Context) (PricesPayload, error) {
	primary, secondary, err := s.sim.Snapshots(ctx)
	if err != nil {
		return PricesPayload{}, err
	}
	return PricesPayload{
		Snapshots:   []*model.PoolSnapshot{primary, secondary},
		Opportunity: model.DetectOpportunity(*primary, *secondary, s.cfg.Arbitrage.MinSpreadPercent),
		Timestamp:   time.Now().UTC(),
	}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ws", s.hub.HandleUpgrade)

	api := r.Group("/api/v1")
	api.GET("/price/:chain", s.handlePrice)
	api.GET("/prices", s.handlePrices)
	api.GET("/opportunity", s.handleOpportunity)
	api.POST("/estimate", s.handleEstimate)
	api.POST("/decide", s.handleDecide)

	ledger := api.Group("/ledger")
	ledger.POST("/deposit", s.handleDeposit)
	ledger.POST("/withdraw", s.handleWithdraw)
	ledger.POST("/execute", s.handleExecute)
	ledger.GET("/balance/:account", s.handleBalance)
	ledger.GET("/transactions/:account", s.handleTransactions)

	return r
}

func (s *Server) handlePrice(c *gin.Context) {
	chainName := c.Param("chain")
	snap, err := s.pools.Snapshot(c.Request.Context(), chainName, s.cfg.Arbitrage.FeeTier)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handlePrices(c *gin.Context) {
	payload, err := s.PricesSnapshot(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleOpportunity(c *gin.Context) {
	payload, err := s.PricesSnapshot(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload.Opportunity)
}

type estimateRequest struct {
	AmountInWei string `json:"amountInWei" binding:"required"`
}

func (s *Server) handleEstimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amountInWei is required"})
		return
	}
	amountIn, ok := new(big.Int).SetString(req.AmountInWei, 10)
	if !ok || amountIn.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amountInWei must be a positive integer"})
		return
	}

	result, err := s.sim.Simulate(c.Request.Context(), amountIn)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type decideRequest struct {
	Simulation *model.SimulationResult `json:"simulation" binding:"required"`
	Risk       *model.RiskAssessment   `json:"risk"`
}

func (s *Server) handleDecide(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Simulation == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "simulation is required"})
		return
	}

	var decision model.Decision
	if req.Risk != nil {
		decision = s.engine.DecideWithRisk(c.Request.Context(), req.Simulation, *req.Risk)
	} else {
		decision = s.engine.Decide(c.Request.Context(), req.Simulation)
	}

	s.logDecision(c.Request.Context(), req.Simulation, decision)
	c.JSON(http.StatusOK, decision)
}

// logDecision appends the audit row. Best effort only.
func (s *Server) logDecision(ctx context.Context, result *model.SimulationResult, decision model.Decision) {
	if s.audit == nil {
		return
	}
	record := model.DecisionRecord{
		DecisionID:    decision.ID,
		Timestamp:     decision.DecidedAt,
		Verdict:       string(decision.Verdict),
		Reason:        decision.Reason,
		Confidence:    decision.Confidence,
		Source:        decision.Source,
		BuyChain:      result.BuyChain,
		SellChain:     result.SellChain,
		SpreadPercent: result.SpreadPercent,
		NetProfitUsd:  result.NetProfitUsd,
	}
	if err := s.audit.LogDecision(ctx, record); err != nil {
		s.logger.Error("failed to persist decision", "decisionId", decision.ID, "error", err)
	}
}

type ledgerRequest struct {
	Account   string `json:"account" binding:"required"`
	AmountWei string `json:"amountWei" binding:"required"`
}

type executeRequest struct {
	Account      string `json:"account" binding:"required"`
	AmountInWei  string `json:"amountInWei" binding:"required"`
	MinProfitWei string `json:"minProfitWei"`
	DecisionID   string `json:"decisionId"`
}

func parseAccount(raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseWei(raw string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req ledgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account and amountWei are required"})
		return
	}
	addr, ok := parseAccount(req.Account)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account must be a hex address"})
		return
	}
	amount, ok := parseWei(req.AmountWei)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amountWei must be a non-negative integer"})
		return
	}
	if err := s.ledger.Deposit(c.Request.Context(), addr, amount); err != nil {
		s.renderError(c, err)
		return
	}
	s.renderBalance(c, addr)
}

func (s *Server) handleWithdraw(c *gin.Context) {
	var req ledgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account and amountWei are required"})
		return
	}
	addr, ok := parseAccount(req.Account)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account must be a hex address"})
		return
	}
	amount, ok := parseWei(req.AmountWei)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amountWei must be a non-negative integer"})
		return
	}
	if err := s.ledger.Withdraw(c.Request.Context(), addr, amount); err != nil {
		s.renderError(c, err)
		return
	}
	s.renderBalance(c, addr)
}

func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account and amountInWei are required"})
		return
	}
	addr, ok := parseAccount(req.Account)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account must be a hex address"})
		return
	}
	amountIn, ok := parseWei(req.AmountInWei)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amountInWei must be a non-negative integer"})
		return
	}
	minProfit := new(big.Int)
	if req.MinProfitWei != "" {
		if minProfit, ok = parseWei(req.MinProfitWei); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "minProfitWei must be a non-negative integer"})
			return
		}
	}

	tx, err := s.ledger.ExecuteSwap(c.Request.Context(), addr, amountIn, minProfit)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.logExecution(c.Request.Context(), req.DecisionID, addr, tx)
	balance, err := s.ledger.Balance(c.Request.Context(), addr)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transaction": tx,
		"balanceWei":  balance.String(),
	})
}

func (s *Server) renderBalance(c *gin.Context, addr common.Address) {
	balance, err := s.ledger.Balance(c.Request.Context(), addr)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": addr.Hex(), "balanceWei": balance.String()})
}

func (s *Server) handleBalance(c *gin.Context) {
	addr, ok := parseAccount(c.Param("account"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account must be a hex address"})
		return
	}
	s.renderBalance(c, addr)
}

func (s *Server) handleTransactions(c *gin.Context) {
	addr, ok := parseAccount(c.Param("account"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account must be a hex address"})
		return
	}
	txs, err := s.ledger.Transactions(c.Request.Context(), addr)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": addr.Hex(), "transactions": txs})
}

// logExecution appends the settled-swap audit row. Best effort only.
func (s *Server) logExecution(ctx context.Context, decisionID string, addr common.Address, tx model.Transaction) {
	if s.audit == nil {
		return
	}
	record := model.ExecutionRecord{
		DecisionID:  decisionID,
		Timestamp:   tx.Timestamp,
		Account:     addr.Hex(),
		AmountInWei: tx.AmountIn.String(),
		ProfitWei:   tx.Profit.String(),
	}
	if err := s.audit.LogExecution(ctx, record); err != nil {
		s.logger.Error("failed to persist execution", "account", addr.Hex(), "error", err)
	}
}

func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, estimate.ErrInvalidAmount), errors.Is(err, settlement.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, settlement.ErrInsufficientBalance), errors.Is(err, settlement.ErrProfitBelowMinimum):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, settlement.ErrNotOperator):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, chain.ErrPoolNotFound), errors.Is(err, chain.ErrUnknownChain):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chain.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
