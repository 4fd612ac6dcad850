package rag

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/config"
	"policy-rag/internal/corpus"
	"policy-rag/internal/helper"
	"policy-rag/internal/llmservice"
	"policy-rag/internal/models"
	"policy-rag/internal/prompt"
	"policy-rag/internal/response"
	"policy-rag/internal/retrieval"
)

// Corpus is the read-only chunk store shared by all sessions.
type Corpus interface {
	retrieval.ChunkSource
	Embeddings() map[string][]float32
	Dimension() int
}

type Completer interface {
	Complete(ctx context.Context, msgs []models.Message, p models.Params) (string, error)
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Translator interface {
	Translate(ctx context.Context, text, language string, maxTokens int) (string, error)
}

// FAQ finds a pre-defined answer close enough to a query embedding.
type FAQ interface {
	Lookup(ctx context.Context, embedding []float32) (models.FAQMatch, bool, error)
}

// Service holds what every session shares: the corpus, the model
// capabilities and the retrieval settings.
type Service struct {
	corpus     Corpus
	completer  Completer
	embedder   Embedder
	translator Translator
	faq        FAQ

	assembler retrieval.Assembler
	cfg       config.RAGConfig
}

// NewService wires the capabilities together. cfg.SeparatorTokens must already
// hold the token cost of cfg.Separator.
func NewService(c Corpus, completer Completer, embedder Embedder, translator Translator, cfg config.RAGConfig) *Service {
	return &Service{
		corpus:     c,
		completer:  completer,
		embedder:   embedder,
		translator: translator,
		assembler: retrieval.Assembler{
			Budget:          cfg.ContextLength,
			Separator:       cfg.Separator,
			SeparatorTokens: cfg.SeparatorTokens,
		},
		cfg: cfg,
	}
}

// WithFAQ enables pre-defined answers.
func (s *Service) WithFAQ(f FAQ) *Service {
	s.faq = f
	return s
}

type SessionOption func(*Session)

// WithLanguages overrides the input and output languages of a session.
func WithLanguages(input, output string) SessionOption {
	return func(s *Session) {
		if input != "" {
			s.inputLanguage = input
		}
		if output != "" {
			s.outputLanguage = output
		}
	}
}

// Session is one conversation. Its log only grows; Answer calls on the same
// session are serialized.
type Session struct {
	ID string

	svc            *Service
	inputLanguage  string
	outputLanguage string

	mu  sync.Mutex
	log []models.Message
}

func (s *Service) NewSession(opts ...SessionOption) (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:             id,
		svc:            s,
		inputLanguage:  s.cfg.InputLanguage,
		outputLanguage: s.cfg.OutputLanguage,
	}
	for _, opt := range opts {
		opt(sess)
	}
	log.Debug().Str("session", id).Str("input_language", sess.inputLanguage).Str("output_language", sess.outputLanguage).Msg("Session created")
	return sess, nil
}

// Log returns a copy of the conversation so far.
func (s *Session) Log() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.log))
	copy(out, s.log)
	return out
}

// Answer runs one question through translation, retrieval, completion and
// parsing.
//
// A provider failure of the completion call is reported inside the returned
// Answer with a nil error. Translation and embedding failures, and a reply
// carrying the provider error marker, are returned as errors.
func (s *Session) Answer(ctx context.Context, question string) (models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc := s.svc
	cfg := svc.cfg
	l := log.With().Str("session", s.ID).Logger()

	if cfg.NeedsTranslation(s.inputLanguage) {
		translated, err := svc.translator.Translate(ctx, question, cfg.WorkingLanguage, cfg.MaxTokens)
		if err != nil {
			return models.Answer{}, fmt.Errorf("failed to translate question: %w", err)
		}
		l.Info().Str("from", s.inputLanguage).Msg("Question translated")
		question = translated
	}

	queryEmbedding, err := svc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to embed question: %w", err)
	}
	if want := svc.corpus.Dimension(); len(queryEmbedding) != want {
		return models.Answer{}, fmt.Errorf("failed to embed question: %w: got %d, want %d",
			corpus.ErrDimensionMismatch, len(queryEmbedding), want)
	}

	if svc.faq != nil {
		match, ok, err := svc.faq.Lookup(ctx, queryEmbedding)
		switch {
		case err != nil:
			l.Warn().Err(err).Msg("FAQ lookup failed, continuing with retrieval")
		case ok:
			l.Info().Str("faq_question", match.Question).Float32("similarity", match.Similarity).Msg("Answered from FAQ")
			s.log = append(s.log,
				models.Message{Role: models.RoleUser, Content: question},
				models.Message{Role: models.RoleAssistant, Content: match.Answer},
			)
			pct := int(math.Round(float64(match.Similarity)*10)) * 10
			detailed := fmt.Sprintf(models.FAQNoteTemplate, pct, match.Question)
			ans, err := s.localize(ctx, response.Normalize(match.Answer), detailed)
			if err != nil {
				return models.Answer{}, err
			}
			ans.Predefined = true
			return ans, nil
		}
	}

	ranked := retrieval.Rank(queryEmbedding, svc.corpus.Embeddings())
	pc, sources := svc.assembler.Assemble(ranked, svc.corpus)

	msgs := prompt.BuildMessages(s.log, question, pc)
	s.log = append(s.log, prompt.Turn(question, pc)...)

	raw, err := svc.completer.Complete(ctx, msgs, models.Params{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens})
	if err != nil {
		pe, _ := llmservice.AsProviderError(llmservice.Classify("complete", err))
		if pe.Kind == llmservice.Canceled {
			return models.Answer{}, pe
		}
		l.Error().Err(err).Str("kind", pe.Kind.String()).Msg("Completion failed")
		return models.Answer{Conclusion: pe.Kind.UserMessage(), Error: pe.Kind.String()}, nil
	}
	s.log = append(s.log, models.Message{Role: models.RoleAssistant, Content: raw})

	parsed, err := response.Parse(raw)
	if err != nil {
		return models.Answer{}, err
	}
	conclusion, detailed := response.Format(parsed)
	ans, err := s.localize(ctx, conclusion, detailed)
	if err != nil {
		return models.Answer{}, err
	}
	ans.DetailedAnswer += "\n" + response.FurtherReading(sources)
	return ans, nil
}

// localize translates the conclusion and the detailed answer into the
// session's output language when it differs from the working language.
func (s *Session) localize(ctx context.Context, conclusion, detailed string) (models.Answer, error) {
	cfg := s.svc.cfg
	if cfg.NeedsTranslation(s.outputLanguage) {
		var err error
		conclusion, err = s.svc.translator.Translate(ctx, models.ConclusionMarker+"\n"+conclusion, s.outputLanguage, cfg.MaxTokens)
		if err != nil {
			return models.Answer{}, fmt.Errorf("failed to translate conclusion: %w", err)
		}
		detailed, err = s.svc.translator.Translate(ctx, detailed, s.outputLanguage, cfg.MaxTokens)
		if err != nil {
			return models.Answer{}, fmt.Errorf("failed to translate detailed answer: %w", err)
		}
	}
	return models.Answer{Conclusion: conclusion, DetailedAnswer: detailed}, nil
}
