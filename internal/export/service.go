// Package export produces portable prompt bundles: the current projection,
// the full version history and the rating summary, serialized as JSON and
// uploaded to object storage. Bundles are read-only artifacts; re-importing
// one must go through the regular create/update paths so the version chain
// invariants hold.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"promptforge/api/internal/store"
)

type Bundle struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Prompt      PromptExport    `json:"prompt"`
	Versions    []VersionExport `json:"versions"`
	Stats       StatsExport     `json:"stats"`
}

type PromptExport struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	AuthorName  string    `json:"authorName"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type VersionExport struct {
	Version     int       `json:"version"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	ChangeNote  string    `json:"changeNote"`
	ActorName   string    `json:"actorName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type StatsExport struct {
	Average      float64     `json:"average"`
	Total        int         `json:"total"`
	Distribution map[int]int `json:"distribution"`
}

// BuildBundle assembles the export payload. Versions are emitted oldest
// first so a reader can replay the chain in order.
func BuildBundle(prompt store.Prompt, versions []store.PromptVersion, stats store.RatingStats) Bundle {
	exported := make([]VersionExport, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		exported = append(exported, VersionExport{
			Version:     v.Version,
			Title:       v.Title,
			Description: v.Description,
			Content:     v.Content,
			Category:    v.Category,
			Tags:        v.Tags,
			ChangeNote:  v.ChangeNote,
			ActorName:   v.ActorName,
			CreatedAt:   v.CreatedAt,
		})
	}

	return Bundle{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Prompt: PromptExport{
			ID:          prompt.ID,
			Title:       prompt.Title,
			Description: prompt.Description,
			Content:     prompt.Content,
			Category:    prompt.Category,
			Tags:        prompt.Tags,
			AuthorName:  prompt.AuthorName,
			IsPublic:    prompt.IsPublic,
			CreatedAt:   prompt.CreatedAt,
			UpdatedAt:   prompt.UpdatedAt,
		},
		Versions: exported,
		Stats: StatsExport{
			Average:      stats.Average,
			Total:        stats.Total,
			Distribution: stats.Distribution,
		},
	}
}

// Service uploads bundles to an S3-compatible bucket.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

// Upload stores the bundle and returns its object key.
func (s *Service) Upload(ctx context.Context, bundle Bundle) (string, error) {
	payload, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}

	key := fmt.Sprintf("prompts/%s/%s.json", bundle.Prompt.ID, bundle.ID)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload bundle: %w", err)
	}
	return key, nil
}
