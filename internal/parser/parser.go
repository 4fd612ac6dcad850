package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"policy-rag/internal/corpus"
	"policy-rag/internal/models"
	"policy-rag/internal/tokenizer"
)

const (
	defaultChunkSize    = 1000 // chars
	defaultChunkOverlap = 200  // chars
)

// Page is the text of one page, slide or sheet. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// BaseURL is prefixed to the file name to form each chunk's url.
	BaseURL string
	Counter tokenizer.Counter
}

// ParseDocument splits a document into chunks with ids "{doc}_{page}_{sub}",
// where doc is the sanitized file name without extension.
func ParseDocument(filePath string, opts Options) ([]models.Chunk, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = defaultChunkOverlap
	}
	if opts.Counter == nil {
		opts.Counter = tokenizer.Approx{}
	}

	pages, err := ExtractPages(filePath)
	if err != nil {
		return nil, err
	}

	doc := DocumentName(filePath)
	url := opts.BaseURL + filepath.Base(filePath)

	var chunks []models.Chunk
	for _, p := range pages {
		for i, text := range chunkContent(p.Text, opts.ChunkSize, opts.ChunkOverlap) {
			chunks = append(chunks, models.Chunk{
				ID:      corpus.FormatChunkID(doc, p.Number, i),
				Content: text,
				Tokens:  opts.Counter.Count(text),
				URL:     url,
			})
		}
	}
	log.Debug().Str("file", filePath).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Document parsed")
	return chunks, nil
}

// DocumentName derives the id prefix for a file. The chunk id delimiter and
// spaces are replaced so the id stays parseable.
func DocumentName(filePath string) string {
	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(models.ChunkIDDelimiter, "-", " ", "-").Replace(name)
}

// ExtractPages returns the non-empty pages of a document.
func ExtractPages(filePath string) ([]Page, error) {
	var (
		pages []Page
		err   error
	)
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		pages, err = parsePDF(filePath)
	case ".docx":
		pages, err = parseDOCX(filePath)
	case ".pptx":
		pages, err = parsePPTX(filePath)
	case ".xlsx":
		pages, err = parseXLSX(filePath)
	case ".xlsm":
		pages, err = parseXLSM(filePath)
	case ".md", ".markdown":
		pages, err = parseMarkdown(filePath)
	case ".txt":
		pages, err = parseText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	out := pages[:0]
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func parsePDF(filePath string) ([]Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var pages []Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// DOCX has no stored page breaks, so the whole body is page 1.
func parseDOCX(filePath string) ([]Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	text := extractXMLText(r.Editable().GetContent(), "w:t", "</w:p>")
	return []Page{{Number: 1, Text: text}}, nil
}

func parsePPTX(filePath string) ([]Page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []Page
	for _, file := range f.File {
		n, ok := slideNumber(file.Name)
		if !ok {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Number: n, Text: extractXMLText(string(data), "a:t", "</a:p>")})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// slideNumber parses "ppt/slides/slide12.xml".
func slideNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "ppt/slides/slide")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".xml")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

func parseXLSX(filePath string) ([]Page, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []Page
	for i, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		pages = append(pages, Page{Number: i + 1, Text: renderSheet(sheet.Name, rows)})
	}
	return pages, nil
}

func parseXLSM(filePath string) ([]Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []Page
	for i, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		pages = append(pages, Page{Number: i + 1, Text: renderSheet(name, rows)})
	}
	return pages, nil
}

// renderSheet writes a sheet as a 2D list, the table form the prompt header
// describes to the model.
func renderSheet(name string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("Sheet: " + name + "\n[")
	n := 0
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString("[" + strings.Join(row, ", ") + "]")
		n++
	}
	b.WriteString("]")
	if n == 0 {
		return ""
	}
	return b.String()
}

func parseText(filePath string) ([]Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	// form feeds separate pages in text exported from PDF tools
	var pages []Page
	for i, text := range strings.Split(string(data), "\f") {
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	return pages, nil
}

func parseMarkdown(filePath string) ([]Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []Page{{Number: 1, Text: markdownToText(data)}}, nil
}

// extractXMLText concatenates the character data of every <tag> element and
// turns each paragraphEnd into a newline.
func extractXMLText(content, tag, paragraphEnd string) string {
	var b strings.Builder
	open, closing := "<"+tag, "</"+tag+">"
	for len(content) > 0 {
		i := strings.Index(content, open)
		p := strings.Index(content, paragraphEnd)
		if p >= 0 && (i < 0 || p < i) {
			b.WriteString("\n")
			content = content[p+len(paragraphEnd):]
			continue
		}
		if i < 0 {
			break
		}
		content = content[i+len(open):]
		// skip <w:tbl>, <a:tab/> and other tags sharing the prefix
		if len(content) == 0 || (content[0] != '>' && content[0] != ' ') {
			continue
		}
		gt := strings.IndexByte(content, '>')
		if gt < 0 {
			break
		}
		if gt > 0 && content[gt-1] == '/' {
			content = content[gt+1:]
			continue
		}
		content = content[gt+1:]
		end := strings.Index(content, closing)
		if end < 0 {
			break
		}
		b.WriteString(unescapeXML(content[:end]))
		content = content[end+len(closing):]
	}
	return strings.TrimSpace(b.String())
}

var xmlUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlUnescaper.Replace(s)
}

// chunkContent splits content into pieces of at most maxChars bytes, each
// starting maxChars-overlapChars after the previous one. Breaks are moved
// back to a space, newline or period found in the last tenth of a piece.
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= maxChars {
		return []string{content}
	}

	var chunks []string
	for start := 0; start < len(content); {
		end := min(start+maxChars, len(content))
		if end < len(content) {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
			end = runeBoundary(content, end, start)
		}
		if chunk := strings.TrimSpace(content[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(content) {
			break
		}
		start = runeBoundary(content, start+maxChars-overlapChars, start)
	}
	return chunks
}

// runeBoundary moves i back to the start of the rune containing it. If that
// would not get past floor it moves forward to the next rune start instead.
func runeBoundary(s string, i, floor int) int {
	if i >= len(s) {
		return len(s)
	}
	j := i
	for j > floor && !utf8.RuneStart(s[j]) {
		j--
	}
	if j > floor {
		return j
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
