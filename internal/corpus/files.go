package corpus

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/models"
)

// Column names of the chunks CSV.
const (
	ColumnID      = "doc_index"
	ColumnContent = "content"
	ColumnTokens  = "tokens"
	ColumnURL     = "url"
)

// LoadFiles reads the chunks CSV and the JSON embeddings file and returns a
// validated Corpus.
func LoadFiles(chunksPath, embeddingsPath string) (*Corpus, error) {
	f, err := os.Open(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunks file: %w", err)
	}
	defer f.Close()

	chunks, err := ReadChunks(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", chunksPath, err)
	}
	log.Info().Int("chunks", len(chunks)).Str("path", chunksPath).Msg("Document chunks loaded")

	ef, err := os.Open(embeddingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer ef.Close()

	embeddings, err := ReadEmbeddings(ef)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", embeddingsPath, err)
	}
	log.Info().Int("embeddings", len(embeddings)).Str("path", embeddingsPath).Msg("Document embeddings loaded")

	return New(chunks, embeddings)
}

// ReadChunks decodes chunk rows from CSV. The header row decides column order.
func ReadChunks(r io.Reader) ([]models.Chunk, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, name := range []string{ColumnID, ColumnContent, ColumnTokens, ColumnURL} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var chunks []models.Chunk
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i := cols[name]
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		tokens, err := strconv.Atoi(strings.TrimSpace(field(ColumnTokens)))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid token count: %w", line, err)
		}
		chunks = append(chunks, models.Chunk{
			ID:      strings.TrimSpace(field(ColumnID)),
			Content: field(ColumnContent),
			Tokens:  tokens,
			URL:     strings.TrimSpace(field(ColumnURL)),
		})
	}
	return chunks, nil
}

// ReadEmbeddings decodes a JSON object of chunk id -> vector.
func ReadEmbeddings(r io.Reader) (map[string][]float32, error) {
	var out map[string][]float32
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteFiles writes chunks and embeddings in the format LoadFiles reads.
func WriteFiles(chunksPath, embeddingsPath string, chunks []models.Chunk, embeddings map[string][]float32) error {
	for _, p := range []string{chunksPath, embeddingsPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}

	if err := writeFile(chunksPath, func(w io.Writer) error {
		return WriteChunks(w, chunks)
	}); err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}
	if err := writeFile(embeddingsPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(embeddings)
	}); err != nil {
		return fmt.Errorf("failed to write embeddings: %w", err)
	}
	return nil
}

// writeFile creates path, runs write against it and reports the first of the
// write or close errors.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func WriteChunks(w io.Writer, chunks []models.Chunk) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnID, ColumnContent, ColumnTokens, ColumnURL}); err != nil {
		return err
	}
	for _, ch := range chunks {
		if err := cw.Write([]string{ch.ID, ch.Content, strconv.Itoa(ch.Tokens), ch.URL}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
