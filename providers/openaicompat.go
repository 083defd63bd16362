// Package providers implements the per-provider stream.Adapter
// backends for the six supported models.
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

// OpenAICompatConfig holds the configuration shared by every OpenAI
// chat-completions-wire-compatible provider: chatgpt, grok, deepseek and
// llama all use OpenAICompatProvider and differ only in BaseURL,
// DefaultModel and MaxOutputTokens.
type OpenAICompatConfig struct {
	Provider       types.Provider
	APIKey         string
	BaseURL        string
	DefaultModel   string
	MaxOutputTokens int // output ceiling: 8k for DeepSeek, 4k for the rest (spec §4.2)
	Timeout        time.Duration
	EndpointPath   string
}

// OpenAICompatProvider is the shared stream.Adapter implementation for
// chatgpt, grok, deepseek and llama, adapted from the teacher's
// llm/providers/openaicompat.Provider base: same SSE-over-chat-completions
// wire shape, narrowed to the uniform TokenChunk/CompletionSummary
// contract instead of the teacher's tool-call-aware StreamChunk.
type OpenAICompatProvider struct {
	cfg    OpenAICompatConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompat constructs an adapter for one OpenAI-compatible backend.
func NewOpenAICompat(cfg OpenAICompatConfig, logger *zap.Logger) *OpenAICompatProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompatProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "providers."+string(cfg.Provider))),
	}
}

// Provider returns the fixed provider identifier.
func (p *OpenAICompatProvider) Provider() types.Provider { return p.cfg.Provider }

type openAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAICompatRequest struct {
	Model       string                 `json:"model"`
	Messages    []openAICompatMessage  `json:"messages"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Stream      bool                   `json:"stream"`
}

type openAICompatStreamChoice struct {
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
	Delta        struct {
		Content string `json:"content"`
	} `json:"delta"`
}

type openAICompatStreamResponse struct {
	ID      string                      `json:"id"`
	Model   string                      `json:"model"`
	Choices []openAICompatStreamChoice  `json:"choices"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Stream issues a streaming chat-completions request and translates the
// provider's SSE frames into the uniform TokenChunk stream.
func (p *OpenAICompatProvider) Stream(ctx context.Context, req stream.Request) (<-chan stream.TokenChunk, *stream.CompletionSummary, error) {
	model := req.ModelID
	if model == "" {
		model = p.cfg.DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 || (p.cfg.MaxOutputTokens > 0 && maxTokens > p.cfg.MaxOutputTokens) {
		maxTokens = p.cfg.MaxOutputTokens
	}

	body := openAICompatRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Stream:    true,
		Messages: []openAICompatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, nil, &types.Error{
			Code: types.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: string(p.cfg.Provider),
		}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		return nil, nil, mapHTTPError(resp.StatusCode, msg, p.cfg.Provider)
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
					errCh <- &types.Error{Code: types.ErrUpstreamError, Message: readErr.Error(), Retryable: true, Provider: string(p.cfg.Provider)}
				}
				close(errCh)
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				close(errCh)
				return
			}
			var sresp openAICompatStreamResponse
			if err := json.Unmarshal([]byte(data), &sresp); err != nil {
				errCh <- &types.Error{Code: types.ErrUpstreamError, Message: err.Error(), Retryable: true, Provider: string(p.cfg.Provider)}
				close(errCh)
				return
			}
			if sresp.Usage != nil {
				summary.InputTokensUsed = sresp.Usage.PromptTokens
				summary.OutputTokensUsed = sresp.Usage.CompletionTokens
			}
			for _, choice := range sresp.Choices {
				if choice.FinishReason != "" {
					summary.FinishReason = choice.FinishReason
				}
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					close(errCh)
					return
				case chunks <- stream.TokenChunk{Text: choice.Delta.Content}:
				}
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

// HealthCheck performs a lightweight models-list probe.
func (p *OpenAICompatProvider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s health check failed: status=%d", p.cfg.Provider, resp.StatusCode)
	}
	return nil
}

func (p *OpenAICompatProvider) endpoint() string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
}
