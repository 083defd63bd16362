package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/budget"
	"github.com/BaSui01/agentflow/ctxstore"
	"github.com/BaSui01/agentflow/eventbus"
	"github.com/BaSui01/agentflow/registry"
	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
	"github.com/BaSui01/agentflow/workflow"
)

var testJWTSecret = []byte("test-signing-secret")

// scriptedAdapter is a stream.Adapter test double that emits a fixed
// response rather than calling out to a real provider.
type scriptedAdapter struct {
	provider types.Provider
	text     string
}

func (a *scriptedAdapter) Provider() types.Provider { return a.provider }

func (a *scriptedAdapter) Stream(ctx context.Context, req stream.Request) (<-chan stream.TokenChunk, *stream.CompletionSummary, error) {
	ch := make(chan stream.TokenChunk, 1)
	ch <- stream.TokenChunk{Text: a.text}
	close(ch)
	return ch, &stream.CompletionSummary{FinishReason: "stop", InputTokensUsed: 10, OutputTokensUsed: 20}, nil
}

func (a *scriptedAdapter) HealthCheck(ctx context.Context) error { return nil }

// testFactory builds a scripted adapter for every provider, standing in
// for registry.Factory without hitting any real HTTP endpoint.
func testFactory(p types.Provider, apiKey string) (stream.Adapter, error) {
	return &scriptedAdapter{provider: p, text: "a reply from " + string(p)}, nil
}

// newTestDeps wires every Deps field with an in-memory or fake backend:
// KeyStore has one key for "user-1" on every provider, CtxStore runs
// without a database (ctxstore.New tolerates a nil *gorm.DB), and Daily
// is backed by a miniredis instance so get_daily_cost round-trips for
// real instead of needing a live Redis server.
func newTestDeps(t *testing.T) Deps {
	t.Helper()
	keys := registry.NewKeyStore()
	for _, p := range types.AllProviders {
		keys.SetKey("user-1", p, "k-"+string(p))
	}
	logger := zap.NewNop()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := eventbus.New(logger)

	return Deps{
		Registry:  registry.New(keys, logger),
		KeyStore:  keys,
		Factory:   testFactory,
		CtxStore:  ctxstore.New(nil, logger),
		Daily:     budget.NewDailyAggregate(redisClient, logger),
		Bus:       bus,
		Engine:    workflow.New(bus, logger),
		JWTSecret: testJWTSecret,
		Logger:    logger,
	}
}

// wsURL converts an httptest server's http:// URL into a ws:// one.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startGatewayServer runs a Session over a real WebSocket connection
// accepted by an httptest.Server, mirroring the s2s provider test
// harness pattern of accepting inside the handler and serving until the
// client disconnects.
func startGatewayServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		sess := NewSession(conn, "sess-test", deps)
		sess.Serve(r.Context())
	}))
	t.Cleanup(srv.Close)
	return srv
}

// dialGateway opens a client-side connection to a test gateway server.
func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

// validToken signs an HS256 token carrying the given userId claim.
func validToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": userID})
	signed, err := tok.SignedString(testJWTSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func writeText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return v
}
