package retrieval

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/models"
)

// ChunkSource resolves chunk ids to their records.
type ChunkSource interface {
	Chunk(id string) (models.Chunk, bool)
}

// Assembler selects ranked chunks into a prompt context under a token budget.
type Assembler struct {
	// Budget is the maximum cumulative token cost of the context.
	Budget int
	// Separator is written before every selected chunk.
	Separator string
	// SeparatorTokens is the token cost charged per chunk for Separator.
	SeparatorTokens int
}

// Assemble walks ranked in order, charging each chunk its token count plus the
// separator cost. The first chunk that would push the total above Budget ends
// the walk; it and every lower ranked chunk are left out. An empty context is
// a valid result.
func (a Assembler) Assemble(ranked []models.RankedChunk, chunks ChunkSource) (models.PromptContext, *models.SourceMap) {
	var (
		pc       models.PromptContext
		rendered []string
		sources  = models.NewSourceMap()
	)

	for _, r := range ranked {
		ch, ok := chunks.Chunk(r.ChunkID)
		if !ok {
			log.Warn().Str("chunk_id", r.ChunkID).Msg("Ranked chunk missing from corpus")
			continue
		}
		cost := ch.Tokens + a.SeparatorTokens
		if pc.Tokens+cost > a.Budget {
			break
		}
		pc.Tokens += cost
		pc.Chunks = append(pc.Chunks, ch)
		rendered = append(rendered, a.render(ch))

		label := CitationLabel(ch)
		sources.Add(models.Source{Label: label, DocumentName: ch.DocumentName, Page: ch.PageNumber, URL: ch.URL})

		log.Debug().Str("section", label).Float64("similarity", r.Score).Msg("Selected document section")
	}

	pc.Body = strings.Join(rendered, " ")
	log.Debug().Int("sections", len(pc.Chunks)).Int("tokens", pc.Tokens).Int("budget", a.Budget).Msg("Assembled prompt context")
	return pc, sources
}

func (a Assembler) render(ch models.Chunk) string {
	header := fmt.Sprintf(models.ChunkHeaderTemplate, ch.DocumentName, ch.PageNumber, ch.URL)
	return a.Separator + header + strings.ReplaceAll(ch.Content, "\n", " ")
}

// CitationLabel returns "{DOC}, pg.{page}" for a chunk.
func CitationLabel(ch models.Chunk) string {
	return ch.DocumentName + ", pg." + ch.PageNumber
}
