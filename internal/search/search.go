package search

import (
	"context"
	"strings"

	"catty/api/internal/checklist"
)

// Result is a single file hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// Query describes a search request. Hits are limited to OwnerID's files
// unless AllOwners is set.
type Query struct {
	Text      string
	OwnerID   string
	AllOwners bool
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push files into a search index.
type Indexer interface {
	IndexFiles(records []FileRecord) error
	DeleteFile(id string) error
}

// FileRecord is the data we index for a file.
type FileRecord struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
	Text    string `json:"text"`
}

// DocumentText flattens the searchable text of a checklist: node codes,
// titles and descriptions in tree order, then text custom values.
func DocumentText(doc *checklist.Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	for _, node := range checklist.OrderedNodes(doc.Nodes) {
		add(node.Code)
		add(node.Title)
		add(node.Desc)
		for _, key := range doc.ColumnKeys() {
			if v, ok := node.Custom[key]; ok && (v.Kind == checklist.KindText || v.Kind == checklist.KindSelect) {
				add(v.Text)
			}
		}
	}
	return b.String()
}
