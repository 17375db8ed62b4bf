package search

import (
	"context"
	"log"
)

type primaryIndex interface {
	Searcher
	Indexer
}

type fallbackSource interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]FileRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  primaryIndex
	fallback fallbackSource
	// async runs index writes; tests swap it for a synchronous call.
	async func(func())
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{async: func(fn func()) { go fn() }}
	if meili != nil {
		s.primary = meili
	}
	if pgfts != nil {
		s.fallback = pgfts
	}
	return s
}

func (s *Service) primaryReady() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primaryReady() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexFile indexes a file (fire-and-forget to Meilisearch).
func (s *Service) IndexFile(record FileRecord) {
	if !s.primaryReady() {
		return
	}
	s.async(func() {
		if err := s.primary.IndexFiles([]FileRecord{record}); err != nil {
			log.Printf("search: index file %s: %v", record.ID, err)
		}
	})
}

// DeleteFile removes a file from the search index (fire-and-forget).
func (s *Service) DeleteFile(id string) {
	if !s.primaryReady() {
		return
	}
	s.async(func() {
		if err := s.primary.DeleteFile(id); err != nil {
			log.Printf("search: delete file %s: %v", id, err)
		}
	})
}

// ReindexAllFromPG pushes every stored file into Meilisearch. It runs at
// startup when Meilisearch is reachable.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.primaryReady() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.primary.IndexFiles(records); err != nil {
		log.Printf("search: reindex files: %v", err)
		return
	}
	log.Printf("search: reindexed %d files", len(records))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
