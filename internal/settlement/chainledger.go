package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/santu8597/Arbiata/internal/model"
)

// ChainLedger settles against the on-chain contract instead of in-process
// state. The contract is the single source of truth: every mutation is a
// signed transaction held until its receipt, and the profit floor travels
// in the executeSwap calldata so the chain enforces it atomically. Mutations
// are restricted to the operator account the client signs for; balances and
// transaction logs are readable for any account.
type ChainLedger struct {
	logger   *slog.Logger
	contract *ContractClient
	operator common.Address
}

func NewChainLedger(logger *slog.Logger, contract *ContractClient, operator common.Address) *ChainLedger {
	return &ChainLedger{
		logger:   logger,
		contract: contract,
		operator: operator,
	}
}

func (c *ChainLedger) guard(addr common.Address) error {
	if addr != c.operator {
		return fmt.Errorf("%w: %s", ErrNotOperator, addr.Hex())
	}
	return nil
}

// Deposit sends amount wei into the contract for the operator.
func (c *ChainLedger) Deposit(ctx context.Context, addr common.Address, amount *big.Int) error {
	if err := c.guard(addr); err != nil {
		return err
	}
	receipt, err := c.contract.Deposit(ctx, amount)
	if err != nil {
		return fmt.Errorf("chain deposit: %w", err)
	}
	c.logger.Info("deposit mined", "account", addr.Hex(), "tx", receipt.TxHash.Hex())
	return nil
}

// Withdraw debits amount wei from the contract back to the operator.
func (c *ChainLedger) Withdraw(ctx context.Context, addr common.Address, amount *big.Int) error {
	if err := c.guard(addr); err != nil {
		return err
	}
	receipt, err := c.contract.Withdraw(ctx, amount)
	if err != nil {
		return fmt.Errorf("chain withdraw: %w", err)
	}
	c.logger.Info("withdrawal mined", "account", addr.Hex(), "tx", receipt.TxHash.Hex())
	return nil
}

// ExecuteSwap submits the swap with the caller's real profit floor and waits
// for the receipt. The contract reverts the whole call when realized profit
// is below minProfit, so a mined success implies the invariant held and a
// revert leaves the chain untouched. The returned transaction is decoded
// from the SwapExecuted event in the receipt.
func (c *ChainLedger) ExecuteSwap(ctx context.Context, addr common.Address, amountIn, minProfit *big.Int) (model.Transaction, error) {
	if err := c.guard(addr); err != nil {
		return model.Transaction{}, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return model.Transaction{}, ErrInvalidAmount
	}
	if minProfit == nil {
		minProfit = new(big.Int)
	}

	receipt, err := c.contract.ExecuteSwap(ctx, amountIn, minProfit)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("chain swap: %w", err)
	}

	for _, entry := range receipt.Logs {
		ev, err := c.contract.ParseSwapExecuted(*entry)
		if err != nil {
			continue
		}
		c.logger.Info("chain swap settled",
			"account", addr.Hex(),
			"tx", receipt.TxHash.Hex(),
			"profit", ev.Profit.String(),
		)
		return model.Transaction{
			Timestamp:    ev.Timestamp,
			AmountIn:     new(big.Int).Set(amountIn),
			Profit:       ev.Profit,
			ViaFixedPath: true,
		}, nil
	}
	return model.Transaction{}, fmt.Errorf("receipt %s carries no SwapExecuted event", receipt.TxHash.Hex())
}

// Balance reads the contract balance for addr.
func (c *ChainLedger) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.contract.GetBalance(ctx, addr)
}

// Transactions reads the contract's append-only transaction log for addr.
func (c *ChainLedger) Transactions(ctx context.Context, addr common.Address) ([]model.Transaction, error) {
	return c.contract.GetTransactions(ctx, addr)
}
