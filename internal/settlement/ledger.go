package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/santu8597/Arbiata/internal/model"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProfitBelowMinimum  = errors.New("profit below minimum")
	ErrNotOperator         = errors.New("account is not the configured operator")
)

// Event types emitted by the ledger.
const (
	EventDeposit      = "deposit"
	EventWithdrawal   = "withdrawal"
	EventSwapExecuted = "swap_executed"
)

// Event records one committed balance mutation with before and after
// balances. Reverted operations never emit an event.
type Event struct {
	Type          string         `json:"type"`
	Account       common.Address `json:"account"`
	BalanceBefore *big.Int       `json:"balanceBefore"`
	BalanceAfter  *big.Int       `json:"balanceAfter"`
	Profit        *big.Int       `json:"profit,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// SwapOutcome is what the router delivers after running the full multi-hop
// sequence with the entire input amount.
type SwapOutcome struct {
	AmountOut    *big.Int
	ViaFixedPath bool
}

// SwapRouter runs the asset -> intermediate -> asset sequence. Partial fills
// are not a valid outcome; the router either converts the full input or
// returns an error.
type SwapRouter interface {
	ExecuteSequence(ctx context.Context, account common.Address, amountIn *big.Int) (SwapOutcome, error)
}

// RouterFunc adapts a function to the SwapRouter interface.
type RouterFunc func(ctx context.Context, account common.Address, amountIn *big.Int) (SwapOutcome, error)

func (f RouterFunc) ExecuteSequence(ctx context.Context, account common.Address, amountIn *big.Int) (SwapOutcome, error) {
	return f(ctx, account, amountIn)
}

type account struct {
	mu      sync.Mutex
	balance *big.Int
	txs     []model.Transaction
}

// Ledger is the settlement state machine: one balance per account, an
// append-only transaction log, and an executeSwap that commits only when
// realized profit meets the caller's minimum. Operations on one account are
// serialized; all state transitions are whole-operation commit or revert.
type Ledger struct {
	logger *slog.Logger
	router SwapRouter

	mu       sync.Mutex
	accounts map[common.Address]*account

	listeners []func(Event)
}

func NewLedger(logger *slog.Logger, router SwapRouter) *Ledger {
	return &Ledger{
		logger:   logger,
		router:   router,
		accounts: make(map[common.Address]*account),
	}
}

// OnEvent registers a listener for committed mutations. Must be called
// before the ledger starts serving operations.
func (l *Ledger) OnEvent(fn func(Event)) {
	l.listeners = append(l.listeners, fn)
}

// account returns the record for addr, creating it on first use. Accounts
// are never deleted.
func (l *Ledger) account(addr common.Address) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[addr]
	if !ok {
		acct = &account{balance: new(big.Int)}
		l.accounts[addr] = acct
	}
	return acct
}

// Deposit credits amount to addr, creating the account if needed.
func (l *Ledger) Deposit(ctx context.Context, addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acct := l.account(addr)
	acct.mu.Lock()
	before := new(big.Int).Set(acct.balance)
	acct.balance.Add(acct.balance, amount)
	after := new(big.Int).Set(acct.balance)
	acct.mu.Unlock()

	l.emit(Event{Type: EventDeposit, Account: addr, BalanceBefore: before, BalanceAfter: after, Timestamp: time.Now().UTC()})
	return nil
}

// Withdraw debits amount from addr. It never succeeds when amount exceeds
// the current balance.
func (l *Ledger) Withdraw(ctx context.Context, addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acct := l.account(addr)
	acct.mu.Lock()
	if acct.balance.Cmp(amount) < 0 {
		acct.mu.Unlock()
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, acct.balance, amount)
	}
	before := new(big.Int).Set(acct.balance)
	acct.balance.Sub(acct.balance, amount)
	after := new(big.Int).Set(acct.balance)
	acct.mu.Unlock()

	l.emit(Event{Type: EventWithdrawal, Account: addr, BalanceBefore: before, BalanceAfter: after, Timestamp: time.Now().UTC()})
	return nil
}

// ExecuteSwap debits amountIn, runs the full swap sequence, and requires
// realized profit >= minProfit. On any failure the account is left exactly
// as it was before the call and no transaction is recorded. A rejected
// attempt is terminal; a new attempt needs a fresh decision cycle.
func (l *Ledger) ExecuteSwap(ctx context.Context, addr common.Address, amountIn, minProfit *big.Int) (model.Transaction, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return model.Transaction{}, ErrInvalidAmount
	}
	if minProfit == nil {
		minProfit = new(big.Int)
	}

	acct := l.account(addr)
	acct.mu.Lock()

	if acct.balance.Cmp(amountIn) < 0 {
		err := fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, acct.balance, amountIn)
		acct.mu.Unlock()
		return model.Transaction{}, err
	}
	before := new(big.Int).Set(acct.balance)

	// The sequence runs against the full input. Balance is only mutated
	// after every check below passes, so an early return reverts cleanly.
	outcome, err := l.router.ExecuteSequence(ctx, addr, amountIn)
	if err != nil {
		acct.mu.Unlock()
		l.logger.Warn("swap sequence failed, reverting", "account", addr.Hex(), "error", err)
		return model.Transaction{}, fmt.Errorf("swap sequence: %w", err)
	}
	if outcome.AmountOut == nil {
		acct.mu.Unlock()
		return model.Transaction{}, errors.New("swap sequence returned no output")
	}

	profit := new(big.Int).Sub(outcome.AmountOut, amountIn)
	if profit.Cmp(minProfit) < 0 {
		acct.mu.Unlock()
		l.logger.Info("profit below minimum, reverting",
			"account", addr.Hex(),
			"profit", profit.String(),
			"minProfit", minProfit.String(),
		)
		return model.Transaction{}, fmt.Errorf("%w: realized %s, required %s", ErrProfitBelowMinimum, profit, minProfit)
	}

	acct.balance.Add(acct.balance, profit)
	tx := model.Transaction{
		Timestamp:    time.Now().UTC(),
		AmountIn:     new(big.Int).Set(amountIn),
		Profit:       profit,
		ViaFixedPath: outcome.ViaFixedPath,
	}
	acct.txs = append(acct.txs, tx)
	after := new(big.Int).Set(acct.balance)
	acct.mu.Unlock()

	// Listeners run unlocked, like deposit and withdrawal, so they may
	// read the ledger without deadlocking.
	l.emit(Event{
		Type:          EventSwapExecuted,
		Account:       addr,
		BalanceBefore: before,
		BalanceAfter:  after,
		Profit:        profit,
		Timestamp:     tx.Timestamp,
	})
	return tx, nil
}

// Balance returns the current balance for addr; zero for unseen accounts.
func (l *Ledger) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	acct := l.account(addr)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return new(big.Int).Set(acct.balance), nil
}

// Transactions returns a copy of the append-only transaction log for addr.
func (l *Ledger) Transactions(ctx context.Context, addr common.Address) ([]model.Transaction, error) {
	acct := l.account(addr)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	out := make([]model.Transaction, len(acct.txs))
	copy(out, acct.txs)
	return out, nil
}

func (l *Ledger) emit(ev Event) {
	for _, fn := range l.listeners {
		fn(ev)
	}
}
