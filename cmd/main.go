package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"policy-rag/internal/chromemdb"
	"policy-rag/internal/config"
	"policy-rag/internal/corpus"
	"policy-rag/internal/db"
	"policy-rag/internal/embedding"
	"policy-rag/internal/helper"
	"policy-rag/internal/llmservice"
	"policy-rag/internal/models"
	"policy-rag/internal/parser"
	"policy-rag/internal/rag"
	"policy-rag/internal/tokenizer"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", defaultConfigPath, "Path to the config file")
	query := flag.String("query", "", "Question to be answered")
	chat := flag.Bool("chat", false, "Interactive conversation on stdin")
	ingest := flag.Bool("ingest", false, "Parse and embed the document files given as arguments")
	faqFile := flag.String("faq", "", "CSV or XLSX file of question,answer pairs to load into the FAQ store")
	initDB := flag.Bool("init-db", false, "Create the pgvector extension and the chunks table")
	resetDB := flag.Bool("reset-db", false, "Drop the chunks table before -init-db")
	dryRun := flag.Bool("dry-run", false, "With -ingest, print chunks without embedding or saving them")
	inputLang := flag.String("input-lang", "", "Language of the questions")
	outputLang := flag.String("output-lang", "", "Language of the answers")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case *initDB:
		err = initDatabase(ctx, cfg, *resetDB)
	case *ingest:
		err = ingestFiles(ctx, cfg, flag.Args(), *dryRun)
	case *faqFile != "":
		err = loadFAQ(ctx, cfg, *faqFile)
	case *query != "":
		err = answerOnce(ctx, cfg, *query, *inputLang, *outputLang)
	case *chat:
		err = chatLoop(ctx, cfg, os.Stdin, os.Stdout, *inputLang, *outputLang)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func answerOnce(ctx context.Context, cfg *config.Config, question, inputLang, outputLang string) error {
	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	sess, err := svc.NewSession(rag.WithLanguages(inputLang, outputLang))
	if err != nil {
		return err
	}
	ans, err := sess.Answer(ctx, question)
	if err != nil {
		return err
	}
	return helper.PrettyPrint(os.Stdout, ans)
}

func chatLoop(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, inputLang, outputLang string) error {
	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	sess, err := svc.NewSession(rag.WithLanguages(inputLang, outputLang))
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		q := strings.TrimSpace(scanner.Text())
		switch q {
		case "":
		case "exit", "quit":
			return nil
		default:
			ans, err := sess.Answer(ctx, q)
			if err != nil {
				if pe, ok := llmservice.AsProviderError(err); ok {
					fmt.Fprintln(out, pe.Kind.UserMessage())
				} else {
					log.Error().Err(err).Msg("Question failed")
				}
			} else if err := helper.PrettyPrint(out, ans); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func newService(ctx context.Context, cfg *config.Config) (*rag.Service, error) {
	c, err := loadCorpus(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RAG.SeparatorTokens == 0 {
		cfg.RAG.SeparatorTokens = tokenizer.New(cfg.RAG.Encoding).Count(cfg.RAG.Separator)
	}

	completer, err := llmservice.New(&cfg.ChatLLM)
	if err != nil {
		return nil, err
	}
	if cfg.ChatLLM.Stream {
		completer.StreamTo(os.Stderr)
	}
	translator, err := llmservice.New(&cfg.TranslateLLM)
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}

	svc := rag.NewService(c, completer, embedder, translator, cfg.RAG)
	if cfg.FAQ.Enabled {
		store, err := openFAQ(cfg, embedder)
		if err != nil {
			return nil, err
		}
		svc.WithFAQ(store)
	}
	return svc, nil
}

func loadCorpus(ctx context.Context, cfg *config.Config) (*corpus.Corpus, error) {
	if cfg.Corpus.Source == config.SourcePostgres {
		bunDB, err := db.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		defer bunDB.Close()
		return db.LoadCorpus(ctx, bunDB)
	}
	return corpus.LoadFiles(cfg.Corpus.ChunksFile, cfg.Corpus.EmbeddingsFile)
}

func openFAQ(cfg *config.Config, embedder *embedding.Embedder) (*chromemdb.FAQStore, error) {
	store, err := chromemdb.NewFAQStore(cfg.FAQ, cfg.RAG.EncryptionKey, embedder.EmbedQuery)
	if err != nil {
		return nil, err
	}
	if store.Count() == 0 && cfg.FAQ.ExportFile != "" {
		if _, statErr := os.Stat(cfg.FAQ.ExportFile); statErr == nil {
			if err := store.Import(); err != nil {
				return nil, err
			}
		}
	}
	return store, nil
}

func loadFAQ(ctx context.Context, cfg *config.Config, path string) error {
	entries, err := chromemdb.LoadEntries(path)
	if err != nil {
		return err
	}
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return err
	}
	store, err := chromemdb.NewFAQStore(cfg.FAQ, cfg.RAG.EncryptionKey, embedder.EmbedQuery)
	if err != nil {
		return err
	}
	if err := store.Add(ctx, entries); err != nil {
		return err
	}
	if cfg.FAQ.ExportFile != "" {
		return store.Export()
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, reset bool) error {
	bunDB, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	if reset {
		if err := db.DropChunks(ctx, bunDB); err != nil {
			return fmt.Errorf("failed to drop chunks: %w", err)
		}
	}
	if err := db.InitDB(ctx, bunDB); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Info().Msg("Database initialized")
	return nil
}

func ingestFiles(ctx context.Context, cfg *config.Config, files []string, dryRun bool) error {
	if len(files) == 0 {
		return errors.New("no files given to -ingest")
	}

	opts := parser.Options{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		BaseURL:      cfg.Corpus.BaseURL,
		Counter:      tokenizer.New(cfg.RAG.Encoding),
	}
	var chunks []models.Chunk
	for _, f := range files {
		parsed, err := parser.ParseDocument(f, opts)
		if err != nil {
			return err
		}
		log.Info().Str("file", f).Int("chunks", len(parsed)).Msg("Parsed document")
		chunks = append(chunks, parsed...)
	}
	if dryRun {
		return helper.PrettyPrint(os.Stdout, chunks)
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return err
	}
	embeddings, err := embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	if cfg.Corpus.Source == config.SourcePostgres {
		bunDB, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer bunDB.Close()
		return db.StoreChunks(ctx, bunDB, chunks, embeddings)
	}

	existing, err := corpus.LoadFiles(cfg.Corpus.ChunksFile, cfg.Corpus.EmbeddingsFile)
	switch {
	case err == nil:
		chunks, embeddings = merge(existing, chunks, embeddings)
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("failed to load existing corpus: %w", err)
	}
	if err := corpus.WriteFiles(cfg.Corpus.ChunksFile, cfg.Corpus.EmbeddingsFile, chunks, embeddings); err != nil {
		return err
	}
	log.Info().Int("chunks", len(chunks)).Str("file", cfg.Corpus.ChunksFile).Msg("Corpus written")
	return nil
}

// merge keeps existing chunks whose ids were not re-ingested.
func merge(existing *corpus.Corpus, chunks []models.Chunk, embeddings map[string][]float32) ([]models.Chunk, map[string][]float32) {
	var out []models.Chunk
	old := existing.Embeddings()
	for _, id := range existing.IDs() {
		if _, replaced := embeddings[id]; replaced {
			continue
		}
		ch, _ := existing.Chunk(id)
		out = append(out, ch)
		embeddings[id] = old[id]
	}
	return append(out, chunks...), embeddings
}
