package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/santu8597/Arbiata/internal/model"
)

// Repository is the audit log for decisions and executions. Entries are
// append-only; nothing in the pipeline reads them back at runtime.
type Repository interface {
	LogDecision(ctx context.Context, record model.DecisionRecord) error
	LogExecution(ctx context.Context, record model.ExecutionRecord) error
	Migrate(ctx context.Context) error
}

// PostgresRepository stores audit rows in Postgres through a pgx pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Migrate creates the audit tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS decisions (
		id SERIAL PRIMARY KEY,
		decision_id VARCHAR(36) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		verdict VARCHAR(10) NOT NULL,
		reason TEXT NOT NULL,
		confidence NUMERIC(4, 3) NOT NULL,
		source VARCHAR(10) NOT NULL,
		buy_chain VARCHAR(50) NOT NULL,
		sell_chain VARCHAR(50) NOT NULL,
		spread_percent NUMERIC(10, 6) NOT NULL,
		net_profit_usd NUMERIC(20, 8) NOT NULL
	);
	CREATE TABLE IF NOT EXISTS executions (
		id SERIAL PRIMARY KEY,
		decision_id VARCHAR(36) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		account VARCHAR(42) NOT NULL,
		amount_in_wei VARCHAR(78) NOT NULL,
		profit_wei VARCHAR(78) NOT NULL,
		net_profit_usd NUMERIC(20, 8) NOT NULL
	);`
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit tables: %w", err)
	}
	return nil
}

// LogDecision appends one decision row.
func (r *PostgresRepository) LogDecision(ctx context.Context, record model.DecisionRecord) error {
	const query = `
	INSERT INTO decisions (decision_id, timestamp, verdict, reason, confidence, source, buy_chain, sell_chain, spread_percent, net_profit_usd)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.Pool.Exec(ctx, query,
		record.DecisionID,
		record.Timestamp,
		record.Verdict,
		record.Reason,
		record.Confidence,
		record.Source,
		record.BuyChain,
		record.SellChain,
		record.SpreadPercent,
		record.NetProfitUsd,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// LogExecution appends one settled-swap row.
func (r *PostgresRepository) LogExecution(ctx context.Context, record model.ExecutionRecord) error {
	const query = `
	INSERT INTO executions (decision_id, timestamp, account, amount_in_wei, profit_wei, net_profit_usd)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.Pool.Exec(ctx, query,
		record.DecisionID,
		record.Timestamp,
		record.Account,
		record.AmountInWei,
		record.ProfitWei,
		record.NetProfitUsd,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}
