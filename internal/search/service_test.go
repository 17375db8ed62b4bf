package search

import (
	"context"
	"errors"
	"testing"

	"catty/api/internal/checklist"
)

type fakePrimary struct {
	healthy  bool
	searchFn func(q Query) ([]Result, int, error)
	indexed  []FileRecord
	deleted  []string
}

func (f *fakePrimary) Healthy() bool { return f.healthy }

func (f *fakePrimary) Search(_ context.Context, q Query) ([]Result, int, error) {
	return f.searchFn(q)
}

func (f *fakePrimary) IndexFiles(records []FileRecord) error {
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakePrimary) DeleteFile(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeFallback struct {
	searchFn func(q Query) ([]Result, int, error)
	records  []FileRecord
}

func (f *fakeFallback) Healthy() bool { return true }

func (f *fakeFallback) Search(_ context.Context, q Query) ([]Result, int, error) {
	return f.searchFn(q)
}

func (f *fakeFallback) LoadAllRecords(context.Context) ([]FileRecord, error) {
	return f.records, nil
}

func newTestService(primary *fakePrimary, fallback *fakeFallback) *Service {
	s := &Service{async: func(fn func()) { fn() }}
	if primary != nil {
		s.primary = primary
	}
	if fallback != nil {
		s.fallback = fallback
	}
	return s
}

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakePrimary{healthy: true, searchFn: func(q Query) ([]Result, int, error) {
		if q.OwnerID != "u1" {
			t.Fatalf("owner not forwarded: %+v", q)
		}
		return []Result{{ID: "f1", Code: "F-ABC123"}}, 1, nil
	}}
	fallback := &fakeFallback{searchFn: func(Query) ([]Result, int, error) {
		t.Fatal("fallback should not run")
		return nil, 0, nil
	}}

	resp := newTestService(primary, fallback).Search(context.Background(), Query{Text: "acta", OwnerID: "u1"})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Query != "acta" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchFallsBack(t *testing.T) {
	fallbackHit := []Result{{ID: "f2"}}
	fallback := &fakeFallback{searchFn: func(Query) ([]Result, int, error) { return fallbackHit, 1, nil }}

	t.Run("primary error", func(t *testing.T) {
		primary := &fakePrimary{healthy: true, searchFn: func(Query) ([]Result, int, error) {
			return nil, 0, errors.New("boom")
		}}
		resp := newTestService(primary, fallback).Search(context.Background(), Query{Text: "x"})
		if len(resp.Results) != 1 || resp.Results[0].ID != "f2" {
			t.Fatalf("unexpected response: %+v", resp)
		}
	})

	t.Run("primary unhealthy", func(t *testing.T) {
		primary := &fakePrimary{healthy: false}
		resp := newTestService(primary, fallback).Search(context.Background(), Query{Text: "x"})
		if resp.Total != 1 {
			t.Fatalf("unexpected response: %+v", resp)
		}
	})

	t.Run("no primary configured", func(t *testing.T) {
		resp := newTestService(nil, fallback).Search(context.Background(), Query{Text: "x"})
		if resp.Total != 1 {
			t.Fatalf("unexpected response: %+v", resp)
		}
	})
}

func TestSearchFallbackErrorGivesEmptyResults(t *testing.T) {
	fallback := &fakeFallback{searchFn: func(Query) ([]Result, int, error) { return nil, 0, errors.New("db down") }}
	resp := newTestService(nil, fallback).Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestIndexingSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakePrimary{healthy: false}
	svc := newTestService(primary, nil)
	svc.IndexFile(FileRecord{ID: "f1"})
	svc.DeleteFile("f1")
	if len(primary.indexed) != 0 || len(primary.deleted) != 0 {
		t.Fatalf("unhealthy primary was written: %+v", primary)
	}

	primary.healthy = true
	svc.IndexFile(FileRecord{ID: "f1"})
	svc.DeleteFile("f1")
	if len(primary.indexed) != 1 || len(primary.deleted) != 1 {
		t.Fatalf("healthy primary not written: %+v", primary)
	}
}

func TestReindexAllFromPG(t *testing.T) {
	primary := &fakePrimary{healthy: true}
	fallback := &fakeFallback{records: []FileRecord{{ID: "a"}, {ID: "b"}}}
	newTestService(primary, fallback).ReindexAllFromPG(context.Background())
	if len(primary.indexed) != 2 {
		t.Fatalf("indexed %d records, want 2", len(primary.indexed))
	}
}

func TestDocumentText(t *testing.T) {
	doc := checklist.NewDocument()
	doc.Columns = []checklist.Column{
		{ID: "EVID", Key: "EVID", Label: "Evidencia", Type: checklist.ColumnText, AppliesTo: checklist.AppliesItem},
		{ID: "DONE", Key: "DONE", Label: "Hecho", Type: checklist.ColumnBoolean, AppliesTo: checklist.AppliesItem},
	}
	level := checklist.NewNode(checklist.NumericID(1), checklist.TypeLevel, checklist.NodeID{})
	level.Code, level.Title, level.Order = "1", "Seguridad", 10
	item := checklist.NewNode(checklist.NumericID(2), checklist.TypeItem, level.ID)
	item.Code, item.Title, item.Order = "1.1", "Extintores", 10
	item.Custom["EVID"] = checklist.TextValue("acta firmada")
	item.Custom["DONE"] = checklist.BoolValue(true)
	doc.Nodes = []checklist.Node{item, level}

	got := DocumentText(doc)
	want := "1 Seguridad 1.1 Extintores acta firmada"
	if got != want {
		t.Fatalf("DocumentText() = %q, want %q", got, want)
	}
	if DocumentText(nil) != "" {
		t.Fatal("nil document should give empty text")
	}
}
