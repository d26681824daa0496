// Package tokens estimates LLM token usage for metrics.
package tokens

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

type Counter interface {
	Count(text string) int
}

// Estimate is the fallback used when no BPE encoding is available: roughly
// four characters per token.
type Estimate struct{}

func (Estimate) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// New loads the named model's encoding. tiktoken-go may download the BPE
// ranks on first use; on any failure the rune estimate is returned instead.
func New(model string) Counter {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		slog.Warn("token_encoding_unavailable", "model", model, "error", err)
		return Estimate{}
	}
	return &Tiktoken{enc: enc}
}
