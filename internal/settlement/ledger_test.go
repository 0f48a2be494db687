package settlement

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santu8597/Arbiata/internal/model"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixedOutputRouter converts the full input into a fixed output amount.
func fixedOutputRouter(amountOut int64) SwapRouter {
	return RouterFunc(func(ctx context.Context, account common.Address, amountIn *big.Int) (SwapOutcome, error) {
		return SwapOutcome{AmountOut: big.NewInt(amountOut), ViaFixedPath: true}, nil
	})
}

func balanceOf(t *testing.T, ledger *Ledger, addr common.Address) *big.Int {
	t.Helper()
	balance, err := ledger.Balance(context.Background(), addr)
	require.NoError(t, err)
	return balance
}

func transactionsOf(t *testing.T, ledger *Ledger, addr common.Address) []model.Transaction {
	t.Helper()
	txs, err := ledger.Transactions(context.Background(), addr)
	require.NoError(t, err)
	return txs
}

func TestLedger_DepositCreatesAccountImplicitly(t *testing.T) {
	ledger := NewLedger(testLogger(), fixedOutputRouter(0))
	ctx := context.Background()

	assert.Equal(t, int64(0), balanceOf(t, ledger, testAccount).Int64())
	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(100)))
	assert.Equal(t, int64(100), balanceOf(t, ledger, testAccount).Int64())
}

func TestLedger_DepositRejectsNonPositiveAmount(t *testing.T) {
	ledger := NewLedger(testLogger(), fixedOutputRouter(0))
	ctx := context.Background()

	assert.ErrorIs(t, ledger.Deposit(ctx, testAccount, big.NewInt(0)), ErrInvalidAmount)
	assert.ErrorIs(t, ledger.Deposit(ctx, testAccount, big.NewInt(-10)), ErrInvalidAmount)
	assert.ErrorIs(t, ledger.Deposit(ctx, testAccount, nil), ErrInvalidAmount)
}

func TestLedger_WithdrawNeverExceedsBalance(t *testing.T) {
	ledger := NewLedger(testLogger(), fixedOutputRouter(0))
	ctx := context.Background()
	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(50)))

	err := ledger.Withdraw(ctx, testAccount, big.NewInt(51))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(50), balanceOf(t, ledger, testAccount).Int64())
}

func TestLedger_DepositWithdrawRoundTrip(t *testing.T) {
	ledger := NewLedger(testLogger(), fixedOutputRouter(0))
	ctx := context.Background()
	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(30)))

	before := balanceOf(t, ledger, testAccount)
	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(100)))
	require.NoError(t, ledger.Withdraw(ctx, testAccount, big.NewInt(100)))
	assert.Equal(t, before, balanceOf(t, ledger, testAccount))
}

func TestLedger_ExecuteSwapCommitsWhenProfitMeetsMinimum(t *testing.T) {
	// 1.0 in, 1.05 out: profit 0.05 against a 0.01 minimum.
	ledger := NewLedger(testLogger(), fixedOutputRouter(1_050_000))
	ctx := context.Background()
	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(2_000_000)))

	tx, err := ledger.ExecuteSwap(ctx, testAccount, big.NewInt(1_000_000), big.NewInt(10_000))
	require.NoError(t, err)

	assert.Equal(t, int64(50_000), tx.Profit.Int64())
	assert.True(t, tx.ViaFixedPath)
	assert.Equal(t, int64(2_050_000), balanceOf(t, ledger, testAccount).Int64())
	assert.Len(t, transactionsOf(t, ledger, testAccount), 1)
}

func TestLedger_ExecuteSwapRevertsWhenProfitBelowMinimum(t *testing.T) {
	// 1.0 in, 1.005 out: profit 0.005 misses the 0.01 minimum, so the
	// whole operation is undone.
	ledger := NewLedger(testLogger(), fixedOutputRouter(1_005_000))
	ctx := context.Background()
	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(2_000_000)))

	var events []Event
	ledger.OnEvent(func(ev Event) {
		if ev.Type == EventSwapExecuted {
			events = append(events, ev)
		}
	})

	_, err := ledger.ExecuteSwap(ctx, testAccount, big.NewInt(1_000_000), big.NewInt(10_000))
	assert.ErrorIs(t, err, ErrProfitBelowMinimum)
	assert.Equal(t, int64(2_000_000), balanceOf(t, ledger, testAccount).Int64())
	assert.Empty(t, transactionsOf(t, ledger, testAccount))
	assert.Empty(t, events)
}

func TestLedger_ExecuteSwapRevertsOnRouterFailure(t *testing.T) {
	router := RouterFunc(func(ctx context.Context, account common.Address, amountIn *big.Int) (SwapOutcome, error) {
		return SwapOutcome{}, errors.New("intermediate leg failed")
	})
	ledger := NewLedger(testLogger(), router)
	ctx := context.Background()
	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(2_000_000)))

	_, err := ledger.ExecuteSwap(ctx, testAccount, big.NewInt(1_000_000), big.NewInt(0))
	require.Error(t, err)
	assert.Equal(t, int64(2_000_000), balanceOf(t, ledger, testAccount).Int64())
	assert.Empty(t, transactionsOf(t, ledger, testAccount))
}

func TestLedger_ExecuteSwapRequiresSufficientBalance(t *testing.T) {
	ledger := NewLedger(testLogger(), fixedOutputRouter(1_050_000))
	ctx := context.Background()
	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(500_000)))

	_, err := ledger.ExecuteSwap(ctx, testAccount, big.NewInt(1_000_000), big.NewInt(0))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(500_000), balanceOf(t, ledger, testAccount).Int64())
}

func TestLedger_ExecuteSwapRejectsNonPositiveAmount(t *testing.T) {
	ledger := NewLedger(testLogger(), fixedOutputRouter(1_050_000))

	_, err := ledger.ExecuteSwap(context.Background(), testAccount, big.NewInt(0), big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedger_ProfitInvariantHoldsAcrossOutcomes(t *testing.T) {
	// Every executed swap must satisfy after-before >= minProfit, and
	// every rejected one must leave the balance untouched.
	outputs := []int64{900_000, 1_000_000, 1_009_999, 1_010_000, 1_200_000}
	minProfit := big.NewInt(10_000)
	ctx := context.Background()

	for _, out := range outputs {
		ledger := NewLedger(testLogger(), fixedOutputRouter(out))
		require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(2_000_000)))

		before := balanceOf(t, ledger, testAccount)
		_, err := ledger.ExecuteSwap(ctx, testAccount, big.NewInt(1_000_000), minProfit)
		after := balanceOf(t, ledger, testAccount)

		if err != nil {
			assert.Equal(t, before, after, "output %d: reverted swap must not move the balance", out)
			continue
		}
		delta := new(big.Int).Sub(after, before)
		assert.True(t, delta.Cmp(minProfit) >= 0, "output %d: committed profit %s under minimum", out, delta)
	}
}

func TestLedger_EventsCarryBeforeAndAfterBalances(t *testing.T) {
	ledger := NewLedger(testLogger(), fixedOutputRouter(1_050_000))
	ctx := context.Background()

	var events []Event
	ledger.OnEvent(func(ev Event) { events = append(events, ev) })

	require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(2_000_000)))
	_, err := ledger.ExecuteSwap(ctx, testAccount, big.NewInt(1_000_000), big.NewInt(0))
	require.NoError(t, err)
	require.NoError(t, ledger.Withdraw(ctx, testAccount, big.NewInt(50_000)))

	require.Len(t, events, 3)
	assert.Equal(t, EventDeposit, events[0].Type)
	assert.Equal(t, int64(0), events[0].BalanceBefore.Int64())
	assert.Equal(t, int64(2_000_000), events[0].BalanceAfter.Int64())

	assert.Equal(t, EventSwapExecuted, events[1].Type)
	assert.Equal(t, int64(2_000_000), events[1].BalanceBefore.Int64())
	assert.Equal(t, int64(2_050_000), events[1].BalanceAfter.Int64())
	assert.Equal(t, int64(50_000), events[1].Profit.Int64())

	assert.Equal(t, EventWithdrawal, events[2].Type)
	assert.Equal(t, int64(2_050_000), events[2].BalanceBefore.Int64())
	assert.Equal(t, int64(2_000_000), events[2].BalanceAfter.Int64())
}

func TestLedger_ListenersMayReadTheLedger(t *testing.T) {
	// A listener that reads back into the same account must not block;
	// every event is delivered with the account lock released.
	ledger := NewLedger(testLogger(), fixedOutputRouter(1_050_000))
	ctx := context.Background()

	var seen []int64
	ledger.OnEvent(func(ev Event) {
		seen = append(seen, balanceOf(t, ledger, ev.Account).Int64())
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, ledger.Deposit(ctx, testAccount, big.NewInt(2_000_000)))
		_, err := ledger.ExecuteSwap(ctx, testAccount, big.NewInt(1_000_000), big.NewInt(0))
		require.NoError(t, err)
		require.NoError(t, ledger.Withdraw(ctx, testAccount, big.NewInt(50_000)))
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ledger operation blocked while a listener read the account")
	}
	assert.Equal(t, []int64{2_000_000, 2_050_000, 2_000_000}, seen)
}
