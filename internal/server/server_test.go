package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/santu8597/Arbiata/internal/chain"
	"github.com/santu8597/Arbiata/internal/config"
	"github.com/santu8597/Arbiata/internal/model"
	"github.com/santu8597/Arbiata/internal/settlement"
)

type MockPoolSource struct {
	mock.Mock
}

func (m *MockPoolSource) Snapshot(ctx context.Context, chainName string, feeTier uint32) (*model.PoolSnapshot, error) {
	args := m.Called(ctx, chainName, feeTier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PoolSnapshot), args.Error(1)
}

type MockSimulator struct {
	mock.Mock
}

func (m *MockSimulator) Snapshots(ctx context.Context) (*model.PoolSnapshot, *model.PoolSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.PoolSnapshot), args.Get(1).(*model.PoolSnapshot), args.Error(2)
}

func (m *MockSimulator) Simulate(ctx context.Context, amountIn *big.Int) (*model.SimulationResult, error) {
	args := m.Called(ctx, amountIn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SimulationResult), args.Error(1)
}

type MockDecider struct {
	mock.Mock
}

func (m *MockDecider) Decide(ctx context.Context, result *model.SimulationResult) model.Decision {
	args := m.Called(ctx, result)
	return args.Get(0).(model.Decision)
}

func (m *MockDecider) DecideWithRisk(ctx context.Context, result *model.SimulationResult, risk model.RiskAssessment) model.Decision {
	args := m.Called(ctx, result, risk)
	return args.Get(0).(model.Decision)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.Config {
	return config.Config{
		Arbitrage: config.ArbitrageConfig{
			PrimaryChain:     "polygon",
			SecondaryChain:   "arbitrum",
			FeeTier:          3000,
			MinSpreadPercent: 0.1,
		},
	}
}

func snapshotAt(chainName string, price float64) *model.PoolSnapshot {
	return &model.PoolSnapshot{
		Chain:          chainName,
		Price:          decimal.NewFromFloat(price),
		LiquidityLevel: model.LiquidityHigh,
		FeeTier:        3000,
		ObservedAt:     time.Now().UTC(),
	}
}

// profitRouter yields a fixed 5% return on any swap.
func profitRouter() settlement.SwapRouter {
	return settlement.RouterFunc(func(ctx context.Context, account common.Address, amountIn *big.Int) (settlement.SwapOutcome, error) {
		out := new(big.Int).Mul(amountIn, big.NewInt(105))
		return settlement.SwapOutcome{AmountOut: out.Div(out, big.NewInt(100))}, nil
	})
}

func newTestServer(pools PoolSource, sim Simulator, engine Decider) *Server {
	ledger := settlement.NewLedger(testLogger(), profitRouter())
	return New(testLogger(), pools, sim, engine, ledger, nil, testConfig())
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(new(MockPoolSource), new(MockSimulator), new(MockDecider))

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_PriceEndpoint(t *testing.T) {
	pools := new(MockPoolSource)
	pools.On("Snapshot", mock.Anything, "polygon", uint32(3000)).Return(snapshotAt("polygon", 3000), nil)

	srv := newTestServer(pools, new(MockSimulator), new(MockDecider))

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/price/polygon", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var snap model.PoolSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "polygon", snap.Chain)
}

func TestServer_PriceEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"missing pool", chain.ErrPoolNotFound, http.StatusNotFound},
		{"unknown chain", chain.ErrUnknownChain, http.StatusNotFound},
		{"rpc down", chain.ErrUpstreamUnavailable, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pools := new(MockPoolSource)
			pools.On("Snapshot", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			srv := newTestServer(pools, new(MockSimulator), new(MockDecider))
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/price/polygon", nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestServer_EstimateEndpoint(t *testing.T) {
	sim := new(MockSimulator)
	sim.On("Simulate", mock.Anything, big.NewInt(1_000_000)).Return(&model.SimulationResult{
		BuyChain:     "polygon",
		SellChain:    "arbitrum",
		NetProfitUsd: 6.0,
	}, nil)

	srv := newTestServer(new(MockPoolSource), sim, new(MockDecider))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/estimate", strings.NewReader(`{"amountInWei": "1000000"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var result model.SimulationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 6.0, result.NetProfitUsd)
	sim.AssertExpectations(t)
}

func TestServer_EstimateEndpointRejectsBadAmounts(t *testing.T) {
	srv := newTestServer(new(MockPoolSource), new(MockSimulator), new(MockDecider))

	for _, body := range []string{
		`{}`,
		`{"amountInWei": "abc"}`,
		`{"amountInWei": "0"}`,
		`{"amountInWei": "-5"}`,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/estimate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		srv.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}
}

func TestServer_DecideEndpoint(t *testing.T) {
	engine := new(MockDecider)
	engine.On("Decide", mock.Anything, mock.Anything).Return(model.Decision{
		ID:      "d-1",
		Verdict: model.VerdictSkip,
		Reason:  "below minimum threshold",
	})

	srv := newTestServer(new(MockPoolSource), new(MockSimulator), engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decide", strings.NewReader(`{"simulation": {"netProfitUsd": 1.2}}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var decision model.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.Equal(t, model.VerdictSkip, decision.Verdict)
	engine.AssertNotCalled(t, "DecideWithRisk")
}

func TestServer_DecideEndpointWithPrecomputedRisk(t *testing.T) {
	engine := new(MockDecider)
	engine.On("DecideWithRisk", mock.Anything, mock.Anything, mock.Anything).Return(model.Decision{
		ID:      "d-2",
		Verdict: model.VerdictExecute,
	})

	srv := newTestServer(new(MockPoolSource), new(MockSimulator), engine)

	body := `{"simulation": {"netProfitUsd": 6.0}, "risk": {"slippage": "low", "mev": "low", "timing": "low", "profitMargin": "safe"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decide", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	engine.AssertNotCalled(t, "Decide")
	engine.AssertExpectations(t)
}

func TestServer_DecideEndpointRejectsMissingSimulation(t *testing.T) {
	srv := newTestServer(new(MockPoolSource), new(MockSimulator), new(MockDecider))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decide", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_PricesAndOpportunityShareOneShape(t *testing.T) {
	sim := new(MockSimulator)
	sim.On("Snapshots", mock.Anything).Return(snapshotAt("polygon", 3000), snapshotAt("arbitrum", 3010), nil)

	srv := newTestServer(new(MockPoolSource), sim, new(MockDecider))

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/prices", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var payload PricesPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Len(t, payload.Snapshots, 2)
	assert.Equal(t, "polygon", payload.Opportunity.BuyChain)
	assert.Equal(t, "arbitrum", payload.Opportunity.SellChain)
	assert.True(t, payload.Opportunity.Actionable)

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/opportunity", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var opp model.Opportunity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opp))
	assert.Equal(t, payload.Opportunity.BuyChain, opp.BuyChain)
	assert.InEpsilon(t, payload.Opportunity.SpreadPercent, opp.SpreadPercent, 1e-9)
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestServer_LedgerDepositWithdrawExecute(t *testing.T) {
	srv := newTestServer(new(MockPoolSource), new(MockSimulator), new(MockDecider))
	router := srv.Router()
	account := "0x1111111111111111111111111111111111111111"

	w := postJSON(t, router, "/api/v1/ledger/deposit", `{"account": "`+account+`", "amountWei": "1000000"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/api/v1/ledger/execute", `{"account": "`+account+`", "amountInWei": "1000000", "minProfitWei": "10000"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/balance/"+account, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var balance struct {
		BalanceWei string `json:"balanceWei"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	assert.Equal(t, "1050000", balance.BalanceWei)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/transactions/"+account, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"profit"`)

	w = postJSON(t, router, "/api/v1/ledger/withdraw", `{"account": "`+account+`", "amountWei": "1050000"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServer_LedgerErrorMapping(t *testing.T) {
	srv := newTestServer(new(MockPoolSource), new(MockSimulator), new(MockDecider))
	router := srv.Router()
	account := "0x2222222222222222222222222222222222222222"

	// Overdraft on an empty account.
	w := postJSON(t, router, "/api/v1/ledger/withdraw", `{"account": "`+account+`", "amountWei": "100"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Profit below the requested minimum reverts with a conflict.
	require.Equal(t, http.StatusOK, postJSON(t, router, "/api/v1/ledger/deposit", `{"account": "`+account+`", "amountWei": "1000000"}`).Code)
	w = postJSON(t, router, "/api/v1/ledger/execute", `{"account": "`+account+`", "amountInWei": "1000000", "minProfitWei": "99999999"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The reverted attempt left the balance untouched.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/balance/"+account, nil))
	assert.Contains(t, w.Body.String(), "1000000")

	// Malformed account and amount are validation errors.
	w = postJSON(t, router, "/api/v1/ledger/deposit", `{"account": "not-an-address", "amountWei": "100"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = postJSON(t, router, "/api/v1/ledger/deposit", `{"account": "`+account+`", "amountWei": "0"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHub_StreamDeliversPricesPayload(t *testing.T) {
	sim := new(MockSimulator)
	sim.On("Snapshots", mock.Anything).Return(snapshotAt("polygon", 3000), snapshotAt("arbitrum", 3010), nil)

	srv := newTestServer(new(MockPoolSource), sim, new(MockDecider))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	payload, err := srv.PricesSnapshot(context.Background())
	require.NoError(t, err)
	srv.StreamHub().Broadcast(payload)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var received PricesPayload
	require.NoError(t, conn.ReadJSON(&received))
	assert.Len(t, received.Snapshots, 2)
	assert.Equal(t, payload.Opportunity.BuyChain, received.Opportunity.BuyChain)
}
