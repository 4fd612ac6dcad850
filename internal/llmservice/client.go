package llmservice

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"policy-rag/internal/config"
	"policy-rag/internal/models"
)

// Client provides completion and translation over a langchaingo model.
type Client struct {
	llm    llms.Model
	model  string
	stream io.Writer
}

// NewModel builds the langchaingo model for cfg.
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating LLM client")
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case config.ProviderOpenAI:
		return openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func New(cfg *config.LLMConfig) (*Client, error) {
	llm, err := NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return NewWithModel(llm, cfg.Model), nil
}

// NewWithModel wraps an existing model.
func NewWithModel(llm llms.Model, name string) *Client {
	return &Client{llm: llm, model: name}
}

// StreamTo makes Complete copy response deltas to w as they arrive. The full
// reply is still returned only once the stream ends.
func (c *Client) StreamTo(w io.Writer) {
	c.stream = w
}

// Complete sends msgs to the model and returns the reply text. Failures are
// returned as *ProviderError.
func (c *Client) Complete(ctx context.Context, msgs []models.Message, p models.Params) (string, error) {
	opts := []llms.CallOption{
		llms.WithTemperature(p.Temperature),
		llms.WithMaxTokens(p.MaxTokens),
	}
	if c.stream != nil {
		w := c.stream
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			_, err := w.Write(chunk)
			return err
		}))
	}

	start := time.Now()
	res, err := c.llm.GenerateContent(ctx, toMessageContent(msgs), opts...)
	if err != nil {
		return "", Classify("complete", err)
	}
	if len(res.Choices) == 0 {
		return "", &ProviderError{Kind: ProviderUnavailable, Op: "complete", Err: fmt.Errorf("empty response from %s", c.model)}
	}
	log.Info().Str("model", c.model).Dur("elapsed", time.Since(start)).Int("messages", len(msgs)).Msg("Completion received")
	return res.Choices[0].Content, nil
}

// Translate asks the model to translate text into language.
func (c *Client) Translate(ctx context.Context, text, language string, maxTokens int) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, fmt.Sprintf(models.TranslatePromptTemplate, text, language)),
	}

	start := time.Now()
	res, err := c.llm.GenerateContent(ctx, msgs, llms.WithTemperature(0), llms.WithMaxTokens(maxTokens))
	if err != nil {
		return "", Classify("translate", err)
	}
	if len(res.Choices) == 0 {
		return "", &ProviderError{Kind: ProviderUnavailable, Op: "translate", Err: fmt.Errorf("empty response from %s", c.model)}
	}
	log.Info().Str("language", language).Dur("elapsed", time.Since(start)).Msg("Text translated")
	return res.Choices[0].Content, nil
}

func toMessageContent(msgs []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llms.TextParts(roleType(m.Role), m.Content))
	}
	return out
}

func roleType(role string) schema.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
