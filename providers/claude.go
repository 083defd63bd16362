package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentflow/stream"
	"github.com/BaSui01/agentflow/types"
)

// ClaudeConfig configures the Claude adapter.
type ClaudeConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// ClaudeProvider implements stream.Adapter for Anthropic's Claude API,
// adapted from the teacher's providers/anthropic.ClaudeProvider: distinct
// x-api-key auth header, a separate `system` field instead of a system
// message in the transcript, and an SSE event-type switch rather than the
// flat data-line format the OpenAI-compatible family uses.
type ClaudeProvider struct {
	cfg    ClaudeConfig
	client *http.Client
	logger *zap.Logger
}

// NewClaude constructs a Claude adapter.
func NewClaude(cfg ClaudeConfig, logger *zap.Logger) *ClaudeProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second // Claude responses can run long
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaudeProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "providers.claude")),
	}
}

// Provider returns types.ProviderClaude.
func (p *ClaudeProvider) Provider() types.Provider { return types.ProviderClaude }

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Stream    bool            `json:"stream,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text,omitempty"`
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Usage *claudeUsage `json:"usage,omitempty"`
}

type claudeErrorResp struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stream issues a streaming /v1/messages request and adapts Claude's
// content_block_delta / message_delta / message_stop event sequence into
// the uniform TokenChunk stream. A content_filter stop_reason that arrives
// before any text surfaces as an explicit, non-retryable error, since a
// safety block is not something a retry can fix. One that arrives after
// text has been streamed ends the stream early without an error; it shows
// only as FinishReason "content_filter" on the summary.
func (p *ClaudeProvider) Stream(ctx context.Context, req stream.Request) (<-chan stream.TokenChunk, *stream.CompletionSummary, error) {
	model := req.ModelID
	if model == "" {
		model = p.cfg.DefaultModel
	}
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body := claudeRequest{
		Model:     model,
		System:    req.SystemPrompt,
		MaxTokens: maxTokens,
		Stream:    true,
		Messages:  []claudeMessage{{Role: "user", Content: req.UserPrompt}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, nil, &types.Error{Code: types.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: string(types.ProviderClaude)}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readClaudeErrorMessage(resp.Body)
		return nil, nil, mapHTTPError(resp.StatusCode, msg, types.ProviderClaude)
	}

	chunks := make(chan stream.TokenChunk)
	summary := &stream.CompletionSummary{}
	errCh := make(chan error, 1)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)
		reader := bufio.NewReader(resp.Body)
		for {
			line, readErr := reader.ReadString('\n')
			if readErr != nil {
				if readErr != io.EOF {
					errCh <- &types.Error{Code: types.ErrUpstreamError, Message: readErr.Error(), Retryable: true, Provider: string(types.ProviderClaude)}
				}
				close(errCh)
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "event:") || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var event claudeStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				errCh <- &types.Error{Code: types.ErrUpstreamError, Message: err.Error(), Retryable: true, Provider: string(types.ProviderClaude)}
				close(errCh)
				return
			}

			switch event.Type {
			case "content_block_delta":
				if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
					select {
					case <-ctx.Done():
						errCh <- ctx.Err()
						close(errCh)
						return
					case chunks <- stream.TokenChunk{Text: event.Delta.Text}:
					}
				}
			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					summary.FinishReason = event.Delta.StopReason
					if event.Delta.StopReason == "content_filter" {
						errCh <- &types.Error{Code: types.ErrContentFiltered, Message: "claude response blocked by safety filter", Provider: string(types.ProviderClaude)}
						close(errCh)
						return
					}
				}
			case "message_stop":
				if event.Usage != nil {
					summary.InputTokensUsed = event.Usage.InputTokens
					summary.OutputTokensUsed = event.Usage.OutputTokens
				}
				close(errCh)
				return
			}
		}
	}()

	// Return as soon as the first text chunk arrives, relaying it and the
	// rest; an error before any text is returned from Stream itself.
	if first, ok := <-chunks; ok {
		out := make(chan stream.TokenChunk, 1)
		out <- first
		go func() {
			defer close(out)
			for c := range chunks {
				out <- c
			}
		}()
		return out, summary, nil
	}
	if err := <-errCh; err != nil {
		return chunks, nil, err
	}
	return chunks, summary, nil
}

// HealthCheck probes /v1/models.
func (p *ClaudeProvider) HealthCheck(ctx context.Context) error {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	p.buildHeaders(httpReq)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("claude health check failed: status=%d", resp.StatusCode)
	}
	return nil
}

func (p *ClaudeProvider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func readClaudeErrorMessage(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp claudeErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
	}
	return string(data)
}
