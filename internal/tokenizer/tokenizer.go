package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Approx estimates roughly four characters per token, never less than one
// token per word.
type Approx struct{}

func (Approx) Count(text string) int {
	if text == "" {
		return 0
	}
	byChars := (utf8.RuneCountInString(text) + 3) / 4
	byWords := len(strings.Fields(text))
	return max(byChars, byWords, 1)
}

// EncodingName maps an encoding alias to the tiktoken encoding that carries
// its ranks. GPT-2 shares its BPE ranks with r50k_base.
func EncodingName(encoding string) string {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "gpt2", "gpt-2":
		return tiktoken.MODEL_R50K_BASE
	default:
		return encoding
	}
}

// New returns a tiktoken counter for encoding. If the encoding cannot be
// loaded (the BPE ranks are fetched on first use) the approximate counter is
// returned instead.
func New(encoding string) Counter {
	enc, err := tiktoken.GetEncoding(EncodingName(encoding))
	if err != nil {
		log.Warn().Err(err).Str("encoding", encoding).Msg("Tokenizer unavailable, using approximate token counts")
		return Approx{}
	}
	return tiktokenCounter{enc: enc}
}
