package search

import (
	"context"

	"promptforge/api/internal/store"
)

type promptSearcher interface {
	SearchPrompts(ctx context.Context, query, category string, tags []string, actorID string) ([]store.Prompt, error)
}

// StoreFallback adapts the store's grant-aware substring search to the
// search result shape. It is the authoritative search path; Meilisearch
// only accelerates it.
type StoreFallback struct {
	store promptSearcher
}

func NewStoreFallback(s promptSearcher) *StoreFallback {
	return &StoreFallback{store: s}
}

func (f *StoreFallback) Search(ctx context.Context, q Query) ([]Result, error) {
	prompts, err := f.store.SearchPrompts(ctx, q.Text, q.Category, q.Tags, q.ActorID)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(prompts) > q.Limit {
		prompts = prompts[:q.Limit]
	}
	results := make([]Result, 0, len(prompts))
	for _, prompt := range prompts {
		results = append(results, Result{
			ID:          prompt.ID,
			Title:       prompt.Title,
			Description: prompt.Description,
			Category:    prompt.Category,
			Tags:        prompt.Tags,
			AuthorName:  prompt.AuthorName,
		})
	}
	return results, nil
}
