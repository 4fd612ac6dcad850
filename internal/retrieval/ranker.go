package retrieval

import (
	"sort"

	"policy-rag/internal/models"
)

// Rank scores every embedding against query and returns the chunk ids in
// descending score order. Vectors are assumed unit length, so the dot product
// is the cosine similarity; no renormalisation is done. Ties keep lexical id
// order, which callers must not rely on.
func Rank(query []float32, embeddings map[string][]float32) []models.RankedChunk {
	ranked := make([]models.RankedChunk, 0, len(embeddings))
	for id, emb := range embeddings {
		ranked = append(ranked, models.RankedChunk{Score: Dot(query, emb), ChunkID: id})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})
	return ranked
}

// Dot returns the dot product over the shorter of the two vectors.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
