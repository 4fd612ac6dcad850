package corpus

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"policy-rag/internal/models"
)

var (
	ErrInvalidChunkID    = errors.New("invalid chunk id")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMissingEmbedding  = errors.New("chunk has no embedding")
	ErrDuplicateChunkID  = errors.New("duplicate chunk id")
	ErrEmptyCorpus       = errors.New("corpus is empty")
)

// Corpus is the read-only set of chunks and their embeddings. It is safe for
// concurrent use once constructed.
type Corpus struct {
	chunks     map[string]models.Chunk
	embeddings map[string][]float32
	ids        []string
	dimension  int
}

// ParseChunkID splits an id of the form "{document}_{page}_{sub}". The
// document name is returned as written; sub keeps any further underscores.
func ParseChunkID(id string) (document, page, sub string, err error) {
	parts := strings.SplitN(id, models.ChunkIDDelimiter, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidChunkID, id)
	}
	return parts[0], parts[1], parts[2], nil
}

// FormatChunkID is the inverse of ParseChunkID.
func FormatChunkID(document string, page, sub int) string {
	return fmt.Sprintf("%s%s%d%s%d", document, models.ChunkIDDelimiter, page, models.ChunkIDDelimiter, sub)
}

// New validates chunks and embeddings and builds a Corpus. Chunk ids are
// parsed once here so later stages never re-split them.
func New(chunks []models.Chunk, embeddings map[string][]float32) (*Corpus, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}
	c := &Corpus{
		chunks:     make(map[string]models.Chunk, len(chunks)),
		embeddings: make(map[string][]float32, len(chunks)),
		ids:        make([]string, 0, len(chunks)),
	}
	for _, ch := range chunks {
		doc, page, sub, err := ParseChunkID(ch.ID)
		if err != nil {
			return nil, err
		}
		if _, ok := c.chunks[ch.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateChunkID, ch.ID)
		}
		if ch.Tokens < 0 {
			return nil, fmt.Errorf("chunk %q has negative token count", ch.ID)
		}
		emb, ok := embeddings[ch.ID]
		if !ok || len(emb) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingEmbedding, ch.ID)
		}
		if c.dimension == 0 {
			c.dimension = len(emb)
		} else if len(emb) != c.dimension {
			return nil, fmt.Errorf("%w: %q has %d, want %d", ErrDimensionMismatch, ch.ID, len(emb), c.dimension)
		}

		ch.DocumentName = strings.ToUpper(doc)
		ch.PageNumber = page
		ch.SubIndex = sub
		c.chunks[ch.ID] = ch
		c.embeddings[ch.ID] = emb
		c.ids = append(c.ids, ch.ID)
	}
	sort.Strings(c.ids)
	return c, nil
}

func (c *Corpus) Chunk(id string) (models.Chunk, bool) {
	ch, ok := c.chunks[id]
	return ch, ok
}

// Embeddings returns the id -> embedding mapping. Callers must not modify it.
func (c *Corpus) Embeddings() map[string][]float32 {
	return c.embeddings
}

// IDs returns the chunk ids in lexical order.
func (c *Corpus) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

func (c *Corpus) Len() int { return len(c.ids) }

func (c *Corpus) Dimension() int { return c.dimension }
