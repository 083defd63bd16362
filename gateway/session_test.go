package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_PingBeforeAuthenticateIsAllowed(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	writeText(t, conn, `{"type":"ping"}`)
	frame := readFrame(t, conn)
	assert.Equal(t, "pong", frame["type"])
}

func TestSession_ChatBeforeAuthenticateIsRejected(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	writeText(t, conn, `{"type":"chat","payload":{}}`)
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "authenticate first")
}

func TestSession_Authenticate_ValidTokenTransitionsState(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	token := validToken(t, "user-1")
	writeText(t, conn, `{"type":"authenticate","payload":{"token":"`+token+`"}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "model_status", frame["type"])
	assert.Equal(t, "authenticated", frame["status"])
}

func TestSession_Authenticate_InvalidTokenReturnsError(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	writeText(t, conn, `{"type":"authenticate","payload":{"token":"not-a-real-jwt"}}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "authentication failed")
}

func TestSession_Authenticate_MalformedPayloadReturnsError(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	writeText(t, conn, `{"type":"authenticate","payload":"not an object"}`)

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "malformed authenticate frame")
}

func TestSession_MalformedFrameReturnsError(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	writeText(t, conn, `not json at all`)
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "malformed frame")
}

func TestSession_UnknownFrameTypeReturnsError(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	token := validToken(t, "user-1")
	writeText(t, conn, `{"type":"authenticate","payload":{"token":"`+token+`"}}`)
	_ = readFrame(t, conn)

	writeText(t, conn, `{"type":"not_a_real_frame"}`)
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "unknown message type")
}

func TestSession_ContextStatus_ReportsDefaults(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	token := validToken(t, "user-1")
	writeText(t, conn, `{"type":"authenticate","payload":{"token":"`+token+`"}}`)
	_ = readFrame(t, conn)

	writeText(t, conn, `{"type":"context_status"}`)
	frame := readFrame(t, conn)
	assert.Equal(t, "cost_info", frame["type"])
	assert.Equal(t, float64(16000), frame["maxContextSize"])
}

func TestSession_SetBudgetLimit_ConfirmsAndStoresCaps(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	token := validToken(t, "user-1")
	writeText(t, conn, `{"type":"authenticate","payload":{"token":"`+token+`"}}`)
	_ = readFrame(t, conn)

	writeText(t, conn, `{"type":"set_budget_limit","payload":{"capUSD":2.5,"dailyCapUSD":10}}`)
	frame := readFrame(t, conn)
	assert.Equal(t, "budget_limit_set", frame["type"])
}

func TestSession_GetDailyCost_DefaultsToZeroForFreshUser(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	token := validToken(t, "user-1")
	writeText(t, conn, `{"type":"authenticate","payload":{"token":"`+token+`"}}`)
	_ = readFrame(t, conn)

	writeText(t, conn, `{"type":"get_daily_cost"}`)
	frame := readFrame(t, conn)
	require.Equal(t, "daily_cost", frame["type"])
	assert.Equal(t, float64(0), frame["spentUSD"])
}

func TestSession_Command_ReportsUnconfigured(t *testing.T) {
	t.Parallel()
	srv := startGatewayServer(t, newTestDeps(t))
	conn := dialGateway(t, srv)

	token := validToken(t, "user-1")
	writeText(t, conn, `{"type":"authenticate","payload":{"token":"`+token+`"}}`)
	_ = readFrame(t, conn)

	writeText(t, conn, `{"type":"command","payload":{}}`)
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "external CLI collaborator not configured")
}
