package retrieval

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"policy-rag/internal/models"
)

type chunkMap map[string]models.Chunk

func (m chunkMap) Chunk(id string) (models.Chunk, bool) {
	ch, ok := m[id]
	return ch, ok
}

func chunk(id, doc, page string, tokens int) models.Chunk {
	return models.Chunk{ID: id, DocumentName: doc, PageNumber: page, Tokens: tokens, Content: "content of " + id, URL: "https://policy.example/" + doc + ".pdf"}
}

func TestRankOrdersByDotProduct(t *testing.T) {
	t.Parallel()
	emb := map[string][]float32{
		"a_1_0": {1, 0},
		"b_1_0": {0, 1},
		"c_1_0": {0.6, 0.8},
	}
	got := Rank([]float32{0.8, 0.6}, emb)
	want := []string{"c_1_0", "a_1_0", "b_1_0"}
	for i, r := range got {
		if r.ChunkID != want[i] {
			t.Fatalf("Rank()[%d] = %s, want %s", i, r.ChunkID, want[i])
		}
	}
	if diff := got[0].Score - 0.96; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("top score = %v, want 0.96", got[0].Score)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("scores not descending: %v", got)
		}
	}
}

func TestRankIsDeterministic(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	emb := make(map[string][]float32)
	for i := 0; i < 50; i++ {
		v := make([]float32, 8)
		for j := range v {
			v[j] = rng.Float32()
		}
		emb[testID(i)] = v
	}
	q := []float32{0.1, 0.2, 0.3, 0.4, 0.1, 0.2, 0.3, 0.4}
	first := Rank(q, emb)
	second := Rank(q, emb)
	scores := func(r []models.RankedChunk) []float64 {
		out := make([]float64, len(r))
		for i := range r {
			out[i] = r[i].Score
		}
		return out
	}
	if !reflect.DeepEqual(scores(first), scores(second)) {
		t.Fatalf("Rank() score order differs between calls")
	}
}

func testID(i int) string {
	return "doc_" + strings.Repeat("1", i%3+1) + "_" + string(rune('a'+i%26)) + string(rune('a'+i/26))
}

func TestRankEmptyCorpus(t *testing.T) {
	t.Parallel()
	if got := Rank([]float32{1}, nil); len(got) != 0 {
		t.Fatalf("Rank(nil) = %v", got)
	}
}

func TestAssembleRespectsBudget(t *testing.T) {
	t.Parallel()
	chunks := chunkMap{
		"bem_1_0": chunk("bem_1_0", "BEM", "1", 40),
		"bem_2_0": chunk("bem_2_0", "BEM", "2", 30),
		"bam_5_0": chunk("bam_5_0", "BAM", "5", 50),
		"bam_6_0": chunk("bam_6_0", "BAM", "6", 5),
	}
	ranked := []models.RankedChunk{
		{Score: 0.9, ChunkID: "bem_1_0"},
		{Score: 0.8, ChunkID: "bem_2_0"},
		{Score: 0.7, ChunkID: "bam_5_0"},
		{Score: 0.6, ChunkID: "bam_6_0"},
	}
	a := Assembler{Budget: 100, Separator: "\n* ", SeparatorTokens: 3}
	pc, sources := a.Assemble(ranked, chunks)

	// 43 + 33 = 76; adding 53 crosses 100 and stops the walk even though
	// the 8-token chunk after it would fit.
	if len(pc.Chunks) != 2 {
		t.Fatalf("selected %d chunks, want 2", len(pc.Chunks))
	}
	if pc.Tokens != 76 {
		t.Fatalf("Tokens = %d, want 76", pc.Tokens)
	}
	if pc.Tokens > a.Budget {
		t.Fatalf("Tokens %d exceed budget %d", pc.Tokens, a.Budget)
	}
	if sources.Len() != 2 {
		t.Fatalf("sources = %d, want 2", sources.Len())
	}
	if _, ok := sources.URL("BAM, pg.6"); ok {
		t.Fatalf("chunk after the stop must not be cited")
	}
}

func TestAssembleBudgetInvariant(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		chunks := chunkMap{}
		var ranked []models.RankedChunk
		n := rng.Intn(12)
		for i := 0; i < n; i++ {
			id := testID(i)
			chunks[id] = chunk(id, "DOC", "1", rng.Intn(60))
			ranked = append(ranked, models.RankedChunk{Score: float64(n - i), ChunkID: id})
		}
		budget := rng.Intn(200)
		sep := rng.Intn(5)
		a := Assembler{Budget: budget, Separator: " ", SeparatorTokens: sep}
		pc, _ := a.Assemble(ranked, chunks)

		total := 0
		for _, ch := range pc.Chunks {
			total += ch.Tokens + sep
		}
		if total != pc.Tokens || total > budget {
			t.Fatalf("trial %d: total %d, reported %d, budget %d", trial, total, pc.Tokens, budget)
		}
		if len(pc.Chunks) < len(ranked) {
			next := chunks[ranked[len(pc.Chunks)].ChunkID]
			if total+next.Tokens+sep <= budget {
				t.Fatalf("trial %d: first excluded chunk would have fit", trial)
			}
		}
	}
}

func TestAssembleTopChunkOverBudget(t *testing.T) {
	t.Parallel()
	chunks := chunkMap{
		"bem_1_0": chunk("bem_1_0", "BEM", "1", 500),
		"bem_2_0": chunk("bem_2_0", "BEM", "2", 1),
	}
	ranked := []models.RankedChunk{{Score: 0.9, ChunkID: "bem_1_0"}, {Score: 0.1, ChunkID: "bem_2_0"}}
	pc, sources := Assembler{Budget: 100, Separator: "\n* ", SeparatorTokens: 3}.Assemble(ranked, chunks)
	if len(pc.Chunks) != 0 || pc.Body != "" || pc.Tokens != 0 {
		t.Fatalf("expected empty context, got %+v", pc)
	}
	if sources.Len() != 0 {
		t.Fatalf("expected empty source map, got %d", sources.Len())
	}
}

func TestAssembleRendersChunks(t *testing.T) {
	t.Parallel()
	chunks := chunkMap{
		"bem_4_0": {ID: "bem_4_0", DocumentName: "BEM", PageNumber: "4", Tokens: 5, Content: "first\nsecond", URL: "https://x/bem.pdf"},
		"bem_4_1": {ID: "bem_4_1", DocumentName: "BEM", PageNumber: "4", Tokens: 5, Content: "third", URL: "https://x/bem.pdf"},
	}
	ranked := []models.RankedChunk{{Score: 1, ChunkID: "bem_4_0"}, {Score: 0.5, ChunkID: "bem_4_1"}}
	pc, sources := Assembler{Budget: 100, Separator: "\n* ", SeparatorTokens: 3}.Assemble(ranked, chunks)

	want := "\n* Document Name: BEM, Page Number: 4, Document URL: https://x/bem.pdf\nfirst second" +
		" " +
		"\n* Document Name: BEM, Page Number: 4, Document URL: https://x/bem.pdf\nthird"
	if pc.Body != want {
		t.Fatalf("Body = %q, want %q", pc.Body, want)
	}
	// two sub-chunks of the same page share one label
	if sources.Len() != 1 {
		t.Fatalf("sources = %d, want 1", sources.Len())
	}
	if url, _ := sources.URL("BEM, pg.4"); url != "https://x/bem.pdf" {
		t.Fatalf("URL = %q", url)
	}
}

func TestAssembleSkipsUnknownIDs(t *testing.T) {
	t.Parallel()
	chunks := chunkMap{"bem_1_0": chunk("bem_1_0", "BEM", "1", 1)}
	ranked := []models.RankedChunk{{Score: 1, ChunkID: "ghost_1_0"}, {Score: 0.5, ChunkID: "bem_1_0"}}
	pc, _ := Assembler{Budget: 10, SeparatorTokens: 1}.Assemble(ranked, chunks)
	if len(pc.Chunks) != 1 || pc.Chunks[0].ID != "bem_1_0" {
		t.Fatalf("chunks = %+v", pc.Chunks)
	}
}
