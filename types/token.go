package types

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenUsage represents token consumption statistics.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
}

// Add adds another TokenUsage to this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

// Tokenizer defines the interface for token counting used by the budget
// governor (C3) and prompt assembler (C7). A real tiktoken-backed
// implementation and this char-based estimator both satisfy it.
type Tokenizer interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) int
	// CountMessageTokens counts tokens in a single message.
	CountMessageTokens(msg Message) int
	// CountMessagesTokens counts total tokens in a message slice.
	CountMessagesTokens(msgs []Message) int
}

// EstimateTokenizer provides a simple character-based token estimation.
type EstimateTokenizer struct {
	charsPerToken float64
	msgOverhead   int
}

// NewEstimateTokenizer creates a new EstimateTokenizer.
func NewEstimateTokenizer() *EstimateTokenizer {
	return &EstimateTokenizer{
		charsPerToken: 4.0,
		msgOverhead:   4,
	}
}

// CountTokens counts tokens in text.
func (t *EstimateTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var chineseCount, otherCount int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			chineseCount++
		} else {
			otherCount++
		}
	}
	tokens := float64(chineseCount)/1.5 + float64(otherCount)/4.0
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}

// CountMessageTokens counts tokens in a message.
func (t *EstimateTokenizer) CountMessageTokens(msg Message) int {
	return t.msgOverhead + t.CountTokens(msg.Content)
}

// CountMessagesTokens counts tokens in messages.
func (t *EstimateTokenizer) CountMessagesTokens(msgs []Message) int {
	total := 0
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}

// TiktokenCounter backs pre-flight cost estimates (C3) and prompt size
// bounding (C7) with real BPE token counts instead of the character
// heuristic, adapted from the teacher's llm/tokenizer.TiktokenTokenizer.
// Every one of the six providers is billed against an OpenAI-shaped token
// count here; it is an estimate, not the provider's own count, which is
// only known once CompletionSummary arrives.
type TiktokenCounter struct {
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
	fallback *EstimateTokenizer
}

// NewTiktokenCounter creates a counter using the cl100k_base encoding,
// the shared encoding family across the providers this module talks to.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{fallback: NewEstimateTokenizer()}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens counts text tokens, falling back to the character heuristic
// if the encoding failed to load (e.g. no network access to fetch the
// BPE rank file on first use).
func (t *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessageTokens counts one message's tokens plus the per-message
// role/framing overhead tiktoken-go's own chat helpers assume.
func (t *TiktokenCounter) CountMessageTokens(msg Message) int {
	if err := t.init(); err != nil {
		return t.fallback.CountMessageTokens(msg)
	}
	return 4 + len(t.enc.Encode(msg.Content, nil, nil))
}

// CountMessagesTokens counts a whole transcript plus the trailing
// conversation-end overhead.
func (t *TiktokenCounter) CountMessagesTokens(msgs []Message) int {
	total := 3
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}
