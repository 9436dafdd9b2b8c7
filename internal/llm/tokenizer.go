package llm

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens with tiktoken, falling back to a character heuristic
// when the BPE table cannot be loaded (cold Lambda without network access).
type Tokenizer struct {
	encoder  *tiktoken.Tiktoken
	fallback bool
	mu       sync.Mutex
}

var (
	tokenizers   = map[string]*Tokenizer{}
	tokenizersMu sync.Mutex
)

// TokenizerFor returns a shared tokenizer for model's encoding.
func TokenizerFor(model string) *Tokenizer {
	encoding := modelToEncoding(model)

	tokenizersMu.Lock()
	defer tokenizersMu.Unlock()
	if t, ok := tokenizers[encoding]; ok {
		return t
	}
	t := newTokenizer(encoding)
	tokenizers[encoding] = t
	return t
}

func newTokenizer(encoding string) *Tokenizer {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &Tokenizer{fallback: true}
	}
	return &Tokenizer{encoder: enc}
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicTokenCount(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// CountMessages adds the per-message overhead of the chat format.
func (t *Tokenizer) CountMessages(contents ...string) int {
	total := 3 // reply priming
	for _, c := range contents {
		total += 4 + t.Count(c)
	}
	return total
}

func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback
}

// roughly 4 characters per token for English text
func heuristicTokenCount(text string) int {
	n := len([]rune(text))
	estimate := (n + 3) / 4
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if strings.HasPrefix(m, "gpt-4o") || strings.HasPrefix(m, "gpt-4.1") ||
		strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") {
		return "o200k_base"
	}
	return "cl100k_base"
}

// HeuristicTokenizer never loads a BPE table.
func HeuristicTokenizer() *Tokenizer {
	return &Tokenizer{fallback: true}
}
