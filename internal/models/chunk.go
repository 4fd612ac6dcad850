package models

// Chunk is one retrievable section of a policy document. It is immutable once
// the corpus is loaded.
type Chunk struct {
	ID           string `json:"id"`
	DocumentName string `json:"document_name"`
	PageNumber   string `json:"page_number"`
	SubIndex     string `json:"sub_index"`
	Content      string `json:"content"`
	Tokens       int    `json:"tokens"`
	URL          string `json:"url"`
}

// RankedChunk pairs a chunk id with its similarity to the query.
type RankedChunk struct {
	Score   float64
	ChunkID string
}

// PromptContext holds the chunks selected for a query in rank order.
// Tokens is the cumulative cost including one separator per chunk.
type PromptContext struct {
	Chunks []Chunk
	Tokens int
	Body   string
}

// Source is a single citation label and the URL it points to.
type Source struct {
	Label        string
	DocumentName string
	Page         string
	URL          string
}

// SourceMap maps citation labels ("{DOC}, pg.{page}") to URLs, keeping the
// order in which labels were first added.
type SourceMap struct {
	entries []Source
	index   map[string]int
}

func NewSourceMap() *SourceMap {
	return &SourceMap{index: make(map[string]int)}
}

// Add records label -> url. A repeated label keeps its position and takes the
// latest url.
func (m *SourceMap) Add(s Source) {
	if i, ok := m.index[s.Label]; ok {
		m.entries[i] = s
		return
	}
	m.index[s.Label] = len(m.entries)
	m.entries = append(m.entries, s)
}

func (m *SourceMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// URL returns the url for label.
func (m *SourceMap) URL(label string) (string, bool) {
	if m == nil {
		return "", false
	}
	i, ok := m.index[label]
	if !ok {
		return "", false
	}
	return m.entries[i].URL, true
}

// Entries returns a copy of the sources in insertion order.
func (m *SourceMap) Entries() []Source {
	if m == nil {
		return nil
	}
	out := make([]Source, len(m.entries))
	copy(out, m.entries)
	return out
}
