package types

import (
	"testing"
)

// These assertions hold whether or not the cl100k_base rank file could be
// fetched in the test environment: TiktokenCounter falls back to
// EstimateTokenizer on init failure, so every invariant checked here must
// survive either path.

func TestTiktokenCounter_EmptyTextIsZero(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter()
	if got := c.CountTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
}

func TestTiktokenCounter_NonEmptyTextIsPositive(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter()
	if got := c.CountTokens("hello, multi-agent world"); got <= 0 {
		t.Fatalf("expected positive token count, got %d", got)
	}
}

func TestTiktokenCounter_LongerTextCountsMoreTokens(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter()
	short := c.CountTokens("the quick brown fox")
	long := c.CountTokens("the quick brown fox jumps over the lazy dog repeatedly and without pause")

	if long <= short {
		t.Fatalf("expected longer text to count more tokens: short=%d long=%d", short, long)
	}
}

func TestTiktokenCounter_CountMessageTokens(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter()
	msg := Message{Role: RoleUser, Content: "what is the capital of France?"}

	if got := c.CountMessageTokens(msg); got <= 0 {
		t.Fatalf("expected positive message tokens, got %d", got)
	}
}

func TestTiktokenCounter_CountMessagesTokensSumsAboveSingle(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter()
	msg := Message{Role: RoleUser, Content: "a reasonably sized message for counting purposes"}

	single := c.CountMessageTokens(msg)
	total := c.CountMessagesTokens([]Message{msg, msg, msg})

	if total <= single {
		t.Fatalf("expected three messages to count more tokens than one: single=%d total=%d", single, total)
	}
}

func TestTiktokenCounter_CountMessagesTokensEmptySliceIsOverheadOnly(t *testing.T) {
	t.Parallel()

	c := NewTiktokenCounter()
	empty := c.CountMessagesTokens(nil)
	single := c.CountMessagesTokens([]Message{{Role: RoleUser, Content: "x"}})

	if empty < 0 {
		t.Fatalf("expected non-negative overhead for empty slice, got %d", empty)
	}
	if single <= empty {
		t.Fatalf("expected adding a message to increase the total: empty=%d single=%d", empty, single)
	}
}

func TestTiktokenCounter_SatisfiesTokenizerInterface(t *testing.T) {
	t.Parallel()

	var _ Tokenizer = NewTiktokenCounter()
}
