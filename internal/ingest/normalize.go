package ingest

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// FoldDiacritics strips combining marks: "título" becomes "titulo".
func FoldDiacritics(s string) string {
	// transformer chains keep state, so each call builds its own
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(folder, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeFieldName folds diacritics, lower-cases and joins whitespace runs
// with "_", so "Título Corto" and "titulo_corto" compare equal.
func NormalizeFieldName(key string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(FoldDiacritics(key)), "_")
}

// Record is one decoded JSON (or YAML) object.
type Record map[string]any

func asRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case map[string]any:
		return Record(m), true
	case Record:
		return m, true
	}
	return nil, false
}

// keys returns the record's keys sorted, so the fuzzy passes pick the same
// field on every run.
func (r Record) keys() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
