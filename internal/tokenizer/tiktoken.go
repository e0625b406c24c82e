package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding name is given.
const DefaultEncoding = "cl100k_base"

// TikToken wraps a tiktoken-go encoding.
//
// Supported encodings are those tiktoken-go knows, e.g.:
//   - cl100k_base: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
//   - p50k_base: GPT-3, Codex
//   - r50k_base: GPT-3, davinci-002, babbage-002
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

var encodings sync.Map // name -> *TikToken

// NewTikToken returns the tokenizer for encodingName. Loaded encodings are
// shared; an empty name selects DefaultEncoding.
func NewTikToken(encodingName string) (*TikToken, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	if t, ok := encodings.Load(encodingName); ok {
		return t.(*TikToken), nil
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	t, _ := encodings.LoadOrStore(encodingName, &TikToken{encoding: encoding, name: encodingName})
	return t.(*TikToken), nil
}

// Encode converts text to token IDs. Special tokens are encoded as plain
// text.
func (t *TikToken) Encode(text string) []int64 {
	tokens := t.encoding.Encode(text, nil, nil)
	out := make([]int64, len(tokens))
	for i, tok := range tokens {
		out[i] = int64(tok)
	}
	return out
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int64) string {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = int(tok)
	}
	return t.encoding.Decode(ids)
}

// Name returns the encoding name.
func (t *TikToken) Name() string { return t.name }
