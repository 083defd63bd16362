package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveProviderCall_RecordsOkAndError(t *testing.T) {
	before := testutil.ToFloat64(providerCallsTotal.WithLabelValues("claude", "draft", "ok"))

	ObserveProviderCall("claude", "draft", true, 120*time.Millisecond)

	after := testutil.ToFloat64(providerCallsTotal.WithLabelValues("claude", "draft", "ok"))
	assert.Equal(t, before+1, after)

	ObserveProviderCall("claude", "draft", false, 5*time.Second)
	errCount := testutil.ToFloat64(providerCallsTotal.WithLabelValues("claude", "draft", "error"))
	assert.GreaterOrEqual(t, errCount, 1.0)
}

func TestRecordUsage_AddsTokensAndCost(t *testing.T) {
	beforeIn := testutil.ToFloat64(tokensUsedTotal.WithLabelValues("gemini", "input"))
	beforeOut := testutil.ToFloat64(tokensUsedTotal.WithLabelValues("gemini", "output"))
	beforeCost := testutil.ToFloat64(costUSDTotal.WithLabelValues("gemini"))

	RecordUsage("gemini", 100, 50, 0.02)

	assert.Equal(t, beforeIn+100, testutil.ToFloat64(tokensUsedTotal.WithLabelValues("gemini", "input")))
	assert.Equal(t, beforeOut+50, testutil.ToFloat64(tokensUsedTotal.WithLabelValues("gemini", "output")))
	assert.InDelta(t, beforeCost+0.02, testutil.ToFloat64(costUSDTotal.WithLabelValues("gemini")), 0.0001)
}

func TestRecordBreakerTrip_Increments(t *testing.T) {
	before := testutil.ToFloat64(breakerTripsTotal.WithLabelValues("chatgpt"))
	RecordBreakerTrip("chatgpt")
	after := testutil.ToFloat64(breakerTripsTotal.WithLabelValues("chatgpt"))
	assert.Equal(t, before+1, after)
}

func TestSessionOpenedAndClosed_AdjustGauge(t *testing.T) {
	before := testutil.ToFloat64(activeSessions)

	SessionOpened()
	assert.Equal(t, before+1, testutil.ToFloat64(activeSessions))

	SessionClosed()
	assert.Equal(t, before, testutil.ToFloat64(activeSessions))
}
