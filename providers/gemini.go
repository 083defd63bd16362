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

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// GeminiProvider implements stream.Adapter for Google's Gemini API,
// adapted from the teacher's providers/gemini.GeminiProvider.
//
// Two deliberate departures from the teacher (REDESIGN FLAGS, see
// SPEC_FULL.md): Gemini's native systemInstruction field is not used —
// the system prompt is instead folded in as a synthetic leading
// user/model turn pair. Each adapter decides how to send the SystemPrompt
// it is given (Claude in its system field, the OpenAI-compatible family
// as a system message), which keeps the prompt assembler (C7) provider-
// agnostic. And a safety-blocked candidate surfaces as a safe fallback
// string chunk rather than an error, since Gemini's finishReason=SAFETY
// can appear mid-stream after partial useful text has already been
// emitted.
type GeminiProvider struct {
	cfg    GeminiConfig
	client *http.Client
	logger *zap.Logger
}

// NewGemini constructs a Gemini adapter.
func NewGemini(cfg GeminiConfig, logger *zap.Logger) *GeminiProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "providers.gemini")),
	}
}

// Provider returns types.ProviderGemini.
func (p *GeminiProvider) Provider() types.Provider { return types.ProviderGemini }

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

const geminiSafetyFallback = "[gemini withheld this portion of the response: safety filter triggered]"

// Stream issues a streaming generateContent request and adapts Gemini's
// newline-delimited-JSON response stream into the uniform TokenChunk
// stream.
func (p *GeminiProvider) Stream(ctx context.Context, req stream.Request) (<-chan stream.TokenChunk, *stream.CompletionSummary, error) {
	model := req.ModelID
	if model == "" {
		model = p.cfg.DefaultModel
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	contents := []geminiContent{
		{Role: "user", Parts: []geminiPart{{Text: req.SystemPrompt}}},
		{Role: "model", Parts: []geminiPart{{Text: "Understood."}}},
		{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}},
	}
	body := geminiRequest{Contents: contents}
	if req.MaxTokens > 0 {
		body.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent", strings.TrimRight(p.cfg.BaseURL, "/"), model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, nil, &types.Error{Code: types.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: string(types.ProviderGemini)}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readGeminiErrorMessage(resp.Body)
		return nil, nil, mapHTTPError(resp.StatusCode, msg, types.ProviderGemini)
	}

	chunks := make(chan stream.TokenChunk)
	summary := &stream.CompletionSummary{}

	go func() {
		defer resp.Body.Close()
		defer close(chunks)
		reader := bufio.NewReader(resp.Body)
		for {
			line, readErr := reader.ReadString('\n')
			line = strings.TrimSpace(line)
			if line != "" && line != "[" && line != "]" && line != "," {
				trimmed := strings.TrimSuffix(strings.TrimPrefix(line, ","), ",")
				var gresp geminiResponse
				if err := json.Unmarshal([]byte(trimmed), &gresp); err == nil {
					for _, candidate := range gresp.Candidates {
						if candidate.FinishReason != "" {
							summary.FinishReason = candidate.FinishReason
						}
						text := ""
						for _, part := range candidate.Content.Parts {
							text += part.Text
						}
						if candidate.FinishReason == "SAFETY" && text == "" {
							text = geminiSafetyFallback
						}
						if text == "" {
							continue
						}
						select {
						case <-ctx.Done():
							return
						case chunks <- stream.TokenChunk{Text: text}:
						}
					}
					if gresp.UsageMetadata != nil {
						summary.InputTokensUsed = gresp.UsageMetadata.PromptTokenCount
						summary.OutputTokensUsed = gresp.UsageMetadata.CandidatesTokenCount
					}
				}
			}
			if readErr != nil {
				return
			}
		}
	}()

	return chunks, summary, nil
}

// HealthCheck probes /v1beta/models.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1beta/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini health check failed: status=%d", resp.StatusCode)
	}
	return nil
}

func readGeminiErrorMessage(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp geminiErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return string(data)
}
