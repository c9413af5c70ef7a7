package search

import (
	"context"
	"log"
)

const (
	SourceMeili = "meilisearch"
	SourceStore = "store"
)

// Service is the facade that tries Meilisearch first and falls back to the store.
type Service struct {
	meili    *Meili
	fallback *StoreFallback
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback *StoreFallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise falls back to the store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceMeili}
		}
		log.Printf("search: meilisearch error, falling back to store: %v", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: store fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Source: SourceStore}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceStore}
}

// IndexNote indexes a note (fire-and-forget to Meilisearch).
func (s *Service) IndexNote(note NoteRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNote(note); err != nil {
			log.Printf("search: index note %s: %v", note.ID, err)
		}
	}()
}

// DeleteNote removes a note from the search index (fire-and-forget).
func (s *Service) DeleteNote(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNote(id); err != nil {
			log.Printf("search: delete note %s: %v", id, err)
		}
	}()
}

// ReindexProject pushes every note of a project to Meilisearch.
func (s *Service) ReindexProject(notes []NoteRecord) int {
	if s.meili == nil || !s.meili.Healthy() {
		return 0
	}
	if err := s.meili.IndexNotes(notes); err != nil {
		log.Printf("search: reindex notes: %v", err)
		return 0
	}
	return len(notes)
}

// Source reports which backend currently answers queries.
func (s *Service) Source() string {
	if s.meili != nil && s.meili.Healthy() {
		return SourceMeili
	}
	return SourceStore
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
