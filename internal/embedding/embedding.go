package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"policy-rag/internal/config"
	"policy-rag/internal/llmservice"
	"policy-rag/internal/models"
)

const defaultBatchSize = 64

// Embedder produces unit length embeddings for queries and chunks.
type Embedder struct {
	e         embeddings.Embedder
	batchSize int
}

// NewEmbedder creates an embedder for the openai or ollama endpoint in cfg.
func NewEmbedder(cfg *config.LLMConfig) (*Embedder, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		client = llm
	case config.ProviderOpenAI:
		llm, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}

	e, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(defaultBatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return New(e), nil
}

// New wraps an existing langchaingo embedder.
func New(e embeddings.Embedder) *Embedder {
	return &Embedder{e: e, batchSize: defaultBatchSize}
}

// EmbedQuery embeds a single text. Failures are returned as
// *llmservice.ProviderError.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.e.EmbedQuery(ctx, text)
	if err != nil {
		return nil, llmservice.Classify("embed", err)
	}
	return Normalize(v), nil
}

// EmbedChunks embeds chunk contents in batches and returns them keyed by
// chunk id.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []models.Chunk) (map[string][]float32, error) {
	out := make(map[string][]float32, len(chunks))
	start := time.Now()
	for i := 0; i < len(chunks); i += e.batchSize {
		end := min(i+e.batchSize, len(chunks))
		texts := make([]string, 0, end-i)
		for _, ch := range chunks[i:end] {
			texts = append(texts, ch.Content)
		}

		vecs, err := e.e.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, llmservice.Classify("embed", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
		}
		for j, v := range vecs {
			out[chunks[i+j].ID] = Normalize(v)
		}
		log.Debug().Int("done", end).Int("total", len(chunks)).Msg("Embedded chunk batch")
	}
	log.Info().Int("chunks", len(chunks)).Dur("elapsed", time.Since(start)).Msg("Chunks embedded")
	return out, nil
}

// Normalize scales v to unit length in place. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
