package chromemdb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"policy-rag/internal/config"
	"policy-rag/internal/models"
)

const (
	compress = false

	metaAnswer = "answer"
)

// Entry is one pre-defined question and its answer.
type Entry struct {
	Question string
	Answer   string
}

// FAQStore keeps FAQ questions embedded in a chromem collection, with the
// answer stored as document metadata.
type FAQStore struct {
	db            *chromem.DB
	collection    *chromem.Collection
	embed         chromem.EmbeddingFunc
	exportFile    string
	encryptionKey string
	threshold     float32
}

// NewFAQStore opens (or creates) the FAQ collection. embed is used for
// questions added without an embedding.
func NewFAQStore(cfg config.FAQConfig, encryptionKey string, embed chromem.EmbeddingFunc) (*FAQStore, error) {
	if encryptionKey != "" && len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(encryptionKey))
	}

	var db *chromem.DB
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	c, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	log.Debug().Str("collection", cfg.Collection).Int("entries", c.Count()).Bool("in_memory", cfg.InMemory).Msg("FAQ store opened")

	return &FAQStore{
		db:            db,
		collection:    c,
		embed:         embed,
		exportFile:    cfg.ExportFile,
		encryptionKey: encryptionKey,
		threshold:     float32(cfg.Threshold),
	}, nil
}

func (s *FAQStore) Count() int {
	return s.collection.Count()
}

// Add embeds and stores entries. Ids continue from the current count so
// repeated loads append rather than overwrite.
func (s *FAQStore) Add(ctx context.Context, entries []Entry) error {
	base := s.collection.Count()
	docs := make([]chromem.Document, 0, len(entries))
	for i, e := range entries {
		docs = append(docs, chromem.Document{
			ID:       fmt.Sprintf("faq-%d", base+i),
			Content:  e.Question,
			Metadata: map[string]string{metaAnswer: e.Answer},
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add FAQ entries: %w", err)
	}
	log.Info().Int("added", len(docs)).Int("total", s.collection.Count()).Msg("FAQ entries stored")
	return nil
}

// Lookup returns the closest FAQ entry when its similarity is strictly above
// the configured threshold.
func (s *FAQStore) Lookup(ctx context.Context, embedding []float32) (models.FAQMatch, bool, error) {
	if s.collection.Count() == 0 {
		return models.FAQMatch{}, false, nil
	}
	res, err := s.collection.QueryEmbedding(ctx, embedding, 1, nil, nil)
	if err != nil {
		return models.FAQMatch{}, false, fmt.Errorf("failed to query FAQ: %w", err)
	}
	if len(res) == 0 {
		return models.FAQMatch{}, false, nil
	}
	top := res[0]
	log.Debug().Str("question", top.Content).Float32("similarity", top.Similarity).Msg("Closest FAQ entry")
	if top.Similarity <= s.threshold {
		return models.FAQMatch{}, false, nil
	}
	return models.FAQMatch{Question: top.Content, Answer: top.Metadata[metaAnswer], Similarity: top.Similarity}, true, nil
}

// Export writes the collection to the configured export file.
func (s *FAQStore) Export() error {
	if s.exportFile == "" {
		return errors.New("faq.export_file is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.exportFile), 0o755); err != nil {
		return err
	}
	if err := s.db.ExportToFile(s.exportFile, compress, s.encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("failed to export FAQ: %w", err)
	}
	log.Info().Str("file", s.exportFile).Msg("FAQ exported")
	return nil
}

// Import loads the collection from the configured export file.
func (s *FAQStore) Import() error {
	if s.exportFile == "" {
		return errors.New("faq.export_file is required")
	}
	if err := s.db.ImportFromFile(s.exportFile, s.encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("failed to import FAQ: %w", err)
	}
	// ImportFromFile replaces the collection object held by the DB.
	c := s.db.GetCollection(s.collection.Name, s.embed)
	if c != nil {
		s.collection = c
	}
	log.Info().Str("file", s.exportFile).Int("entries", s.collection.Count()).Msg("FAQ imported")
	return nil
}

// LoadEntries reads question/answer pairs from a .csv or .xlsx file with a
// header row naming the "question" and "answer" columns.
func LoadEntries(path string) ([]Entry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return entriesFromRows(rows)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadEntries(f)
	}
}

// ReadEntries reads question/answer pairs from CSV.
func ReadEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return entriesFromRows(rows)
}

func entriesFromRows(rows [][]string) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, errors.New("empty FAQ file")
	}
	q, a := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "question":
			q = i
		case "answer":
			a = i
		}
	}
	if q < 0 || a < 0 {
		return nil, errors.New(`FAQ header must contain "question" and "answer"`)
	}

	var entries []Entry
	for _, row := range rows[1:] {
		if q >= len(row) || a >= len(row) {
			continue
		}
		question, answer := strings.TrimSpace(row[q]), strings.TrimSpace(row[a])
		if question == "" || answer == "" {
			continue
		}
		entries = append(entries, Entry{Question: question, Answer: answer})
	}
	return entries, nil
}
