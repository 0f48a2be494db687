package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/santu8597/Arbiata/internal/model"
)

// Settlement contract surface: balance custody plus the profit-enforcing
// swap entrypoint. executeSwap reverts on-chain when realized profit is
// under minProfit.
const settlementABI = `[
	{"inputs": [], "name": "deposit", "outputs": [], "stateMutability": "payable", "type": "function"},
	{"inputs": [{"internalType": "uint256", "name": "amount", "type": "uint256"}], "name": "withdraw", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
	{"inputs": [
		{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
		{"internalType": "uint256", "name": "minProfit", "type": "uint256"}
	], "name": "executeSwap", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
	{"inputs": [{"internalType": "address", "name": "user", "type": "address"}], "name": "getBalance", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"inputs": [{"internalType": "address", "name": "user", "type": "address"}], "name": "getTransactions", "outputs": [
		{"components": [
			{"internalType": "uint256", "name": "timestamp", "type": "uint256"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "int256", "name": "profit", "type": "int256"},
			{"internalType": "bool", "name": "viaFixedPath", "type": "bool"}
		], "internalType": "struct Settlement.Transaction[]", "name": "", "type": "tuple[]"}
	], "stateMutability": "view", "type": "function"},
	{"anonymous": false, "inputs": [
		{"indexed": true, "internalType": "address", "name": "user", "type": "address"},
		{"indexed": false, "internalType": "uint256", "name": "balanceBefore", "type": "uint256"},
		{"indexed": false, "internalType": "uint256", "name": "balanceAfter", "type": "uint256"}
	], "name": "Deposited", "type": "event"},
	{"anonymous": false, "inputs": [
		{"indexed": true, "internalType": "address", "name": "user", "type": "address"},
		{"indexed": false, "internalType": "uint256", "name": "balanceBefore", "type": "uint256"},
		{"indexed": false, "internalType": "uint256", "name": "balanceAfter", "type": "uint256"}
	], "name": "Withdrawn", "type": "event"},
	{"anonymous": false, "inputs": [
		{"indexed": true, "internalType": "address", "name": "user", "type": "address"},
		{"indexed": false, "internalType": "uint256", "name": "balanceBefore", "type": "uint256"},
		{"indexed": false, "internalType": "uint256", "name": "balanceAfter", "type": "uint256"},
		{"indexed": false, "internalType": "int256", "name": "profit", "type": "int256"}
	], "name": "SwapExecuted", "type": "event"}
]`

// ContractClient signs and submits settlement contract calls for one
// operator key. View calls need no key.
type ContractClient struct {
	logger     *slog.Logger
	client     *ethclient.Client
	address    common.Address
	privateKey *ecdsa.PrivateKey
	chainID    *big.Int
	abi        abi.ABI
}

func NewContractClient(logger *slog.Logger, client *ethclient.Client, contractAddr common.Address, chainID uint64, privateKey *ecdsa.PrivateKey) (*ContractClient, error) {
	parsed, err := abi.JSON(strings.NewReader(settlementABI))
	if err != nil {
		return nil, fmt.Errorf("parse settlement ABI: %w", err)
	}
	return &ContractClient{
		logger:     logger,
		client:     client,
		address:    contractAddr,
		privateKey: privateKey,
		chainID:    new(big.Int).SetUint64(chainID),
		abi:        parsed,
	}, nil
}

// Deposit sends value wei to the contract's deposit entrypoint and waits
// for the transaction to mine.
func (c *ContractClient) Deposit(ctx context.Context, value *big.Int) (*ethtypes.Receipt, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	data, err := c.abi.Pack("deposit")
	if err != nil {
		return nil, fmt.Errorf("pack deposit: %w", err)
	}
	return c.submit(ctx, data, value)
}

// Withdraw debits amount wei back to the operator address and waits for
// the transaction to mine.
func (c *ContractClient) Withdraw(ctx context.Context, amount *big.Int) (*ethtypes.Receipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	data, err := c.abi.Pack("withdraw", amount)
	if err != nil {
		return nil, fmt.Errorf("pack withdraw: %w", err)
	}
	return c.submit(ctx, data, nil)
}

// ExecuteSwap submits the profit-enforced swap and waits for the receipt.
// The contract reverts the whole call when realized profit is below
// minProfit, so a successful receipt implies the invariant held.
func (c *ContractClient) ExecuteSwap(ctx context.Context, amountIn, minProfit *big.Int) (*ethtypes.Receipt, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if minProfit == nil {
		minProfit = new(big.Int)
	}
	data, err := c.abi.Pack("executeSwap", amountIn, minProfit)
	if err != nil {
		return nil, fmt.Errorf("pack executeSwap: %w", err)
	}
	return c.submit(ctx, data, nil)
}

// GetBalance reads the deposited balance for user.
func (c *ContractClient) GetBalance(ctx context.Context, user common.Address) (*big.Int, error) {
	data, err := c.abi.Pack("getBalance", user)
	if err != nil {
		return nil, fmt.Errorf("pack getBalance: %w", err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getBalance: %w", err)
	}
	var balance *big.Int
	if err := c.abi.UnpackIntoInterface(&balance, "getBalance", raw); err != nil {
		return nil, fmt.Errorf("decode getBalance: %w", err)
	}
	return balance, nil
}

// GetTransactions reads the append-only transaction log for user.
func (c *ContractClient) GetTransactions(ctx context.Context, user common.Address) ([]model.Transaction, error) {
	data, err := c.abi.Pack("getTransactions", user)
	if err != nil {
		return nil, fmt.Errorf("pack getTransactions: %w", err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getTransactions: %w", err)
	}

	var records []struct {
		Timestamp    *big.Int
		AmountIn     *big.Int
		Profit       *big.Int
		ViaFixedPath bool
	}
	if err := c.abi.UnpackIntoInterface(&records, "getTransactions", raw); err != nil {
		return nil, fmt.Errorf("decode getTransactions: %w", err)
	}

	out := make([]model.Transaction, 0, len(records))
	for _, r := range records {
		out = append(out, model.Transaction{
			Timestamp:    time.Unix(r.Timestamp.Int64(), 0).UTC(),
			AmountIn:     r.AmountIn,
			Profit:       r.Profit,
			ViaFixedPath: r.ViaFixedPath,
		})
	}
	return out, nil
}

// submit packs the standard nonce/gas/sign/send sequence for one call and
// blocks until the transaction mines. A receipt with a failed status is an
// error; the chain state is then exactly as it was before the call.
func (c *ContractClient) submit(ctx context.Context, data []byte, value *big.Int) (*ethtypes.Receipt, error) {
	if c.privateKey == nil {
		return nil, fmt.Errorf("no operator key configured")
	}
	if value == nil {
		value = new(big.Int)
	}
	from := crypto.PubkeyToAddress(c.privateKey.PublicKey)

	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch gas price: %w", err)
	}
	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.address,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, c.address, value, gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	c.logger.Info("settlement transaction submitted", "hash", signedTx.Hash().Hex(), "nonce", nonce)

	receipt, err := bind.WaitMined(ctx, c.client, signedTx)
	if err != nil {
		return nil, fmt.Errorf("wait for receipt %s: %w", signedTx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted on chain", signedTx.Hash().Hex())
	}
	return receipt, nil
}

// ParseSwapExecuted decodes a SwapExecuted event from a receipt log.
func (c *ContractClient) ParseSwapExecuted(log ethtypes.Log) (Event, error) {
	ev := c.abi.Events["SwapExecuted"]
	if len(log.Topics) < 2 || log.Topics[0] != ev.ID {
		return Event{}, fmt.Errorf("log is not a SwapExecuted event")
	}
	var payload struct {
		BalanceBefore *big.Int
		BalanceAfter  *big.Int
		Profit        *big.Int
	}
	if err := c.abi.UnpackIntoInterface(&payload, "SwapExecuted", log.Data); err != nil {
		return Event{}, fmt.Errorf("decode SwapExecuted: %w", err)
	}
	return Event{
		Type:          EventSwapExecuted,
		Account:       common.BytesToAddress(log.Topics[1].Bytes()),
		BalanceBefore: payload.BalanceBefore,
		BalanceAfter:  payload.BalanceAfter,
		Profit:        payload.Profit,
		Timestamp:     time.Now().UTC(),
	}, nil
}
