package providers

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
)

func TestNewClaude_Defaults(t *testing.T) {
	p := NewClaude(ClaudeConfig{APIKey: "k"}, nil)
	assert.Equal(t, types.ProviderClaude, p.Provider())
	assert.Equal(t, "https://api.anthropic.com", p.cfg.BaseURL)
}

func TestClaudeProvider_Stream_TranslatesContentBlockDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "text/event-stream")
		fw := bufio.NewWriter(w)
		fmt.Fprint(fw, "event: content_block_delta\n")
		fmt.Fprint(fw, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}`+"\n\n")
		fmt.Fprint(fw, `data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`+"\n\n")
		fmt.Fprint(fw, `data: {"type":"message_stop","usage":{"input_tokens":5,"output_tokens":2}}`+"\n\n")
		fw.Flush()
	}))
	t.Cleanup(server.Close)

	p := NewClaude(ClaudeConfig{APIKey: "test-key", BaseURL: server.URL}, zap.NewNop())
	ch, summary, err := p.Stream(context.Background(), stream.Request{SystemPrompt: "sys", UserPrompt: "hi"})
	require.NoError(t, err)

	var text string
	for chunk := range ch {
		text += chunk.Text
	}
	assert.Equal(t, "Hi", text)
	assert.Equal(t, "end_turn", summary.FinishReason)
	assert.Equal(t, 5, summary.InputTokensUsed)
	assert.Equal(t, 2, summary.OutputTokensUsed)
}

func TestClaudeProvider_Stream_ContentFilterSurfacesAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"message_delta","delta":{"stop_reason":"content_filter"}}`+"\n\n")
	}))
	t.Cleanup(server.Close)

	p := NewClaude(ClaudeConfig{APIKey: "k", BaseURL: server.URL}, zap.NewNop())
	_, _, err := p.Stream(context.Background(), stream.Request{})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrContentFiltered, typedErr.Code)
}

func TestClaudeProvider_Stream_HTTPErrorIsMapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"authentication_error","message":"invalid key"}}`)
	}))
	t.Cleanup(server.Close)

	p := NewClaude(ClaudeConfig{APIKey: "bad", BaseURL: server.URL}, zap.NewNop())
	_, _, err := p.Stream(context.Background(), stream.Request{})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrUnauthorized, typedErr.Code)
}

func TestClaudeProvider_HealthCheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	p := NewClaude(ClaudeConfig{APIKey: "k", BaseURL: server.URL}, zap.NewNop())
	assert.NoError(t, p.HealthCheck(context.Background()))
}
