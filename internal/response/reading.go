package response

import (
	"fmt"
	"strings"

	"policy-rag/internal/models"
)

const pageMarker = ", pg."

type docGroup struct {
	name  string
	pages []string
	url   string
}

// FurtherReading renders one numbered entry per cited document, listing every
// cited page and the url of the first source seen for that document.
// Documents appear in the order they were first cited.
func FurtherReading(sources *models.SourceMap) string {
	var (
		groups []*docGroup
		byName = make(map[string]*docGroup)
	)
	for _, s := range sources.Entries() {
		name, page, ok := strings.Cut(s.Label, pageMarker)
		if !ok {
			name, page = s.DocumentName, s.Page
		}
		name = strings.TrimSpace(name)
		key := strings.ToUpper(name)

		g, ok := byName[key]
		if !ok {
			g = &docGroup{name: name, url: s.URL}
			byName[key] = g
			groups = append(groups, g)
		}
		g.pages = append(g.pages, "pg."+page)
	}

	var b strings.Builder
	for i, g := range groups {
		fmt.Fprintf(&b, "%d. %s: %s\n\n   Link: %s\n", i+1, g.name, strings.Join(g.pages, ", "), g.url)
	}
	return b.String()
}
