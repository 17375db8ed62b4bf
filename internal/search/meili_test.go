package search

import (
	"encoding/json"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestHitToResultPrefersFormatted(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`"f1"`),
		"code":       json.RawMessage(`"F-ABC123"`),
		"name":       json.RawMessage(`"Auditoría"`),
		"text":       json.RawMessage(`"acta firmada"`),
		"_formatted": json.RawMessage(`{"name":"Auditoría","text":"<mark>acta</mark> firmada","ownerId":7}`),
	}
	got := hitToResult(hit)
	want := Result{ID: "f1", Code: "F-ABC123", Name: "Auditoría", Snippet: "<mark>acta</mark> firmada"}
	if got != want {
		t.Fatalf("hitToResult() = %+v, want %+v", got, want)
	}
}

func TestHitToResultWithoutFormatted(t *testing.T) {
	hit := meili.Hit{
		"id":   json.RawMessage(`"f1"`),
		"name": json.RawMessage(`"Plan"`),
		"text": json.RawMessage(`42`),
	}
	got := hitToResult(hit)
	if got.Name != "Plan" || got.Snippet != "" || got.Code != "" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestPageLimit(t *testing.T) {
	cases := map[int]int{0: 20, -3: 20, 15: 15, 500: 100}
	for in, want := range cases {
		if got := pageLimit(in); got != want {
			t.Errorf("pageLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
