package decision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santu8597/Arbiata/internal/config"
	"github.com/santu8597/Arbiata/internal/model"
)

func TestRemoteAdvisor_DecodesStrictSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req advisoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "polygon", req.BuyChain)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"decision": "SKIP", "reason": "spread decaying", "confidence": 0.8}`))
	}))
	defer srv.Close()

	advisor := NewRemoteAdvisor(testLogger(), config.AdvisorConfig{
		Endpoint:  srv.URL,
		APIKey:    "secret",
		TimeoutMS: 1000,
	})

	advice, err := advisor.Advise(context.Background(), simResult(6.0, 0.4, 1.0, 0.5, 0.3), model.RiskAssessment{})
	require.NoError(t, err)
	assert.True(t, advice.Valid())
	assert.Equal(t, "SKIP", advice.Decision)
	assert.Equal(t, 0.8, advice.Confidence)
}

func TestRemoteAdvisor_TimeoutSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	advisor := NewRemoteAdvisor(testLogger(), config.AdvisorConfig{
		Endpoint:  srv.URL,
		TimeoutMS: 50,
	})

	_, err := advisor.Advise(context.Background(), simResult(6.0, 0.4, 1.0, 0.5, 0.3), model.RiskAssessment{})
	assert.Error(t, err)
}

func TestRemoteAdvisor_ServerErrorSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	advisor := NewRemoteAdvisor(testLogger(), config.AdvisorConfig{Endpoint: srv.URL, TimeoutMS: 1000})

	_, err := advisor.Advise(context.Background(), simResult(6.0, 0.4, 1.0, 0.5, 0.3), model.RiskAssessment{})
	assert.Error(t, err)
}

func TestAdviceValid(t *testing.T) {
	assert.True(t, Advice{Decision: "EXECUTE", Reason: "ok", Confidence: 0.5}.Valid())
	assert.True(t, Advice{Decision: "SKIP", Reason: "ok", Confidence: 0}.Valid())
	assert.False(t, Advice{Decision: "execute", Reason: "ok", Confidence: 0.5}.Valid())
	assert.False(t, Advice{Decision: "EXECUTE", Reason: "", Confidence: 0.5}.Valid())
	assert.False(t, Advice{Decision: "EXECUTE", Reason: "ok", Confidence: -0.1}.Valid())
	assert.False(t, Advice{Decision: "EXECUTE", Reason: "ok", Confidence: 1.1}.Valid())
}
