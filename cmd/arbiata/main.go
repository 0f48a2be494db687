package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"

	"github.com/santu8597/Arbiata/internal/chain"
	"github.com/santu8597/Arbiata/internal/config"
	"github.com/santu8597/Arbiata/internal/database"
	"github.com/santu8597/Arbiata/internal/decision"
	"github.com/santu8597/Arbiata/internal/estimate"
	"github.com/santu8597/Arbiata/internal/server"
	"github.com/santu8597/Arbiata/internal/settlement"
)

// buildLedger prefers the on-chain settlement contract when the primary
// chain declares one and an operator key is present. Otherwise swaps settle
// on paper against live venue prices.
func buildLedger(logger *slog.Logger, registry *chain.Registry, simulator *estimate.Simulator, cfg config.Config) (server.SettlementLedger, error) {
	chainCfg := cfg.Chains[cfg.Arbitrage.PrimaryChain]
	keyHex := os.Getenv("OPERATOR_PRIVATE_KEY")

	if chainCfg.SettlementAddress == "" || keyHex == "" {
		logger.Info("settling swaps on paper", "reason", "no settlement contract configured")
		return settlement.NewLedger(logger, settlement.NewPaperRouter(logger, simulator.Snapshots)), nil
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	client, err := registry.Client(cfg.Arbitrage.PrimaryChain)
	if err != nil {
		return nil, err
	}
	contract, err := settlement.NewContractClient(logger, client, common.HexToAddress(chainCfg.SettlementAddress), chainCfg.ChainID, key)
	if err != nil {
		return nil, err
	}
	operator := crypto.PubkeyToAddress(key.PublicKey)
	logger.Info("settling swaps on chain",
		"contract", chainCfg.SettlementAddress,
		"operator", operator.Hex(),
	)
	return settlement.NewChainLedger(logger, contract, operator), nil
}

func main() {
	// Missing .env is fine; config falls back to the yaml file and the
	// process environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := chain.NewRegistry(ctx, logger, cfg.Chains)
	if err != nil {
		log.Fatalf("cannot connect to chains: %v", err)
	}
	defer registry.Close()

	reader, err := chain.NewPoolReader(logger, registry)
	if err != nil {
		log.Fatalf("cannot build pool reader: %v", err)
	}
	slippage, err := estimate.NewSlippageEstimator(logger, registry)
	if err != nil {
		log.Fatalf("cannot build slippage estimator: %v", err)
	}

	simulator := estimate.NewSimulator(
		logger,
		reader,
		slippage,
		estimate.NewGasEstimator(logger, registry),
		estimate.NewBridgeEstimator(logger, cfg.Bridge),
		estimate.NewMevEstimator(logger, registry),
		cfg.Arbitrage,
	)

	var advisor decision.Advisor
	if cfg.Advisor.Enabled {
		advisor = decision.NewRemoteAdvisor(logger, cfg.Advisor)
	}
	engine := decision.NewEngine(logger, advisor, cfg.Arbitrage)

	ledger, err := buildLedger(logger, registry, simulator, cfg)
	if err != nil {
		log.Fatalf("cannot build settlement ledger: %v", err)
	}

	var audit database.Repository
	if cfg.Database.Enabled {
		repo, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("cannot connect to database: %v", err)
		}
		defer repo.Pool.Close()
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("cannot migrate database: %v", err)
		}
		audit = repo
	}

	srv := server.New(logger, reader, simulator, engine, ledger, audit, cfg)
	go srv.StreamHub().Run(ctx, cfg.Arbitrage.StreamInterval(), srv.PricesSnapshot)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
