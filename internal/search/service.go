package search

import (
	"context"
	"log"
)

// Fallback is the authoritative, grant-aware search path (the store's
// substring match).
type Fallback interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Service tries Meilisearch first and falls back to the store.
type Service struct {
	meili    *Meili
	fallback Fallback
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to store: %v", err)
	}

	results, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: store fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: len(results), Query: q.Text}
}

// IndexPrompt indexes a prompt (fire-and-forget to Meilisearch).
func (s *Service) IndexPrompt(record PromptRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPrompt(record); err != nil {
			log.Printf("search: index prompt %s: %v", record.ID, err)
		}
	}()
}

// DeletePrompt removes a prompt from the index (fire-and-forget).
func (s *Service) DeletePrompt(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePrompt(id); err != nil {
			log.Printf("search: delete prompt %s: %v", id, err)
		}
	}()
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
