package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"policy-rag/internal/config"
	"policy-rag/internal/corpus"
	"policy-rag/internal/models"
)

const insertBatch = 500

// ChunkRecord is one row of the policy_chunks table.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:policy_chunks,alias:pc"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Tokens        int             `bun:"tokens,notnull"`
	URL           string          `bun:"url"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPGDriver:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

// Open connects and returns a bun handle.
func Open(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewDB(sqldb, cfg.Debug), nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := db.NewCreateTable().Model((*ChunkRecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

// StoreChunks upserts chunks with their embeddings. Every chunk must have an
// embedding.
func StoreChunks(ctx context.Context, db *bun.DB, chunks []models.Chunk, embeddings map[string][]float32) error {
	records, err := toRecords(chunks, embeddings)
	if err != nil {
		return err
	}
	for i := 0; i < len(records); i += insertBatch {
		batch := records[i:min(i+insertBatch, len(records))]
		_, err := db.NewInsert().
			Model(&batch).
			On("CONFLICT (id) DO UPDATE").
			Set("content = EXCLUDED.content").
			Set("tokens = EXCLUDED.tokens").
			Set("url = EXCLUDED.url").
			Set("embedding = EXCLUDED.embedding").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
	}
	log.Info().Int("chunks", len(records)).Msg("Chunks stored")
	return nil
}

// LoadCorpus reads every stored chunk into a validated Corpus.
func LoadCorpus(ctx context.Context, db *bun.DB) (*corpus.Corpus, error) {
	var records []ChunkRecord
	if err := db.NewSelect().Model(&records).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	chunks, embeddings := fromRecords(records)
	log.Info().Int("chunks", len(chunks)).Msg("Document chunks loaded from database")
	return corpus.New(chunks, embeddings)
}

func DropChunks(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*ChunkRecord)(nil)).IfExists().Exec(ctx)
	return err
}

func toRecords(chunks []models.Chunk, embeddings map[string][]float32) ([]ChunkRecord, error) {
	records := make([]ChunkRecord, 0, len(chunks))
	for _, ch := range chunks {
		emb, ok := embeddings[ch.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", corpus.ErrMissingEmbedding, ch.ID)
		}
		records = append(records, ChunkRecord{
			ID:        ch.ID,
			Content:   ch.Content,
			Tokens:    ch.Tokens,
			URL:       ch.URL,
			Embedding: pgvector.NewVector(emb),
		})
	}
	return records, nil
}

func fromRecords(records []ChunkRecord) ([]models.Chunk, map[string][]float32) {
	chunks := make([]models.Chunk, 0, len(records))
	embeddings := make(map[string][]float32, len(records))
	for _, r := range records {
		chunks = append(chunks, models.Chunk{ID: r.ID, Content: r.Content, Tokens: r.Tokens, URL: r.URL})
		embeddings[r.ID] = r.Embedding.Slice()
	}
	return chunks, embeddings
}
