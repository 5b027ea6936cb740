package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"promptforge/api/internal/util"
)

// AppendVersionParams carries the versioned fields for one snapshot.
type AppendVersionParams struct {
	PromptID    string
	Title       string
	Description string
	Content     string
	Category    string
	Tags        []string
	ChangeNote  string
	ActorID     string
	ActorName   string
}

// CreatePrompt inserts the projection row and its version 1 snapshot in a
// single transaction.
func (s *PostgresStore) CreatePrompt(ctx context.Context, prompt Prompt) (PromptVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PromptVersion{}, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO prompts (id, author_id, author_name, title, description, content, category, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, prompt.ID, prompt.AuthorID, prompt.AuthorName, prompt.Title, prompt.Description, prompt.Content, prompt.Category, prompt.IsPublic); err != nil {
		return PromptVersion{}, fmt.Errorf("insert prompt: %w", err)
	}

	if err := syncPromptTags(ctx, tx, prompt.ID, prompt.Tags); err != nil {
		return PromptVersion{}, err
	}

	version, err := insertVersion(ctx, tx, AppendVersionParams{
		PromptID:    prompt.ID,
		Title:       prompt.Title,
		Description: prompt.Description,
		Content:     prompt.Content,
		Category:    prompt.Category,
		Tags:        prompt.Tags,
		ChangeNote:  "Initial version",
		ActorID:     prompt.AuthorID,
		ActorName:   prompt.AuthorName,
	}, 1)
	if err != nil {
		return PromptVersion{}, err
	}

	if err := tx.Commit(); err != nil {
		return PromptVersion{}, fmt.Errorf("commit create tx: %w", err)
	}
	return version, nil
}

// AppendVersion claims the next version number and updates the projection in
// the same transaction, so the head snapshot and the projection can never
// diverge. The prompt row is locked for the duration; the unique index on
// (prompt_id, version) backs this up against racing writers on other
// connections, and a writer that loses that race retries once with a fresh
// max.
func (s *PostgresStore) AppendVersion(ctx context.Context, params AppendVersionParams) (PromptVersion, error) {
	version, err := s.appendVersionOnce(ctx, params)
	if IsUniqueViolation(err) {
		return s.appendVersionOnce(ctx, params)
	}
	return version, err
}

func (s *PostgresStore) appendVersionOnce(ctx context.Context, params AppendVersionParams) (PromptVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PromptVersion{}, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM prompts WHERE id=$1 FOR UPDATE
	`, params.PromptID).Scan(&lockedID); err != nil {
		if err == sql.ErrNoRows {
			return PromptVersion{}, sql.ErrNoRows
		}
		return PromptVersion{}, fmt.Errorf("lock prompt: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM prompt_versions WHERE prompt_id=$1
	`, params.PromptID).Scan(&next); err != nil {
		return PromptVersion{}, fmt.Errorf("next version number: %w", err)
	}

	version, err := insertVersion(ctx, tx, params, next)
	if err != nil {
		return PromptVersion{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE prompts
		SET title=$2, description=$3, content=$4, category=$5, updated_at=NOW()
		WHERE id=$1
	`, params.PromptID, params.Title, params.Description, params.Content, params.Category); err != nil {
		return PromptVersion{}, fmt.Errorf("update projection: %w", err)
	}

	if err := syncPromptTags(ctx, tx, params.PromptID, params.Tags); err != nil {
		return PromptVersion{}, err
	}

	if err := tx.Commit(); err != nil {
		return PromptVersion{}, fmt.Errorf("commit append tx: %w", err)
	}
	return version, nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, params AppendVersionParams, number int) (PromptVersion, error) {
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return PromptVersion{}, fmt.Errorf("marshal version tags: %w", err)
	}

	version := PromptVersion{
		ID:          util.NewID("ver"),
		PromptID:    params.PromptID,
		Version:     number,
		Title:       params.Title,
		Description: params.Description,
		Content:     params.Content,
		Category:    params.Category,
		Tags:        tags,
		ChangeNote:  params.ChangeNote,
		ActorID:     params.ActorID,
		ActorName:   params.ActorName,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO prompt_versions (id, prompt_id, version, title, description, content, category, tags, change_note, actor_id, actor_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11)
		RETURNING created_at
	`, version.ID, version.PromptID, version.Version, version.Title, version.Description,
		version.Content, version.Category, string(encodedTags), version.ChangeNote,
		version.ActorID, version.ActorName).Scan(&version.CreatedAt)
	if err != nil {
		return PromptVersion{}, fmt.Errorf("insert version: %w", err)
	}
	return version, nil
}

const versionColumns = `
	id, prompt_id, version, title, description, content, category,
	tags, change_note, actor_id, actor_name, created_at
`

func scanVersion(row interface{ Scan(...any) error }) (PromptVersion, error) {
	var item PromptVersion
	var tagsRaw []byte
	err := row.Scan(
		&item.ID,
		&item.PromptID,
		&item.Version,
		&item.Title,
		&item.Description,
		&item.Content,
		&item.Category,
		&tagsRaw,
		&item.ChangeNote,
		&item.ActorID,
		&item.ActorName,
		&item.CreatedAt,
	)
	if err != nil {
		return PromptVersion{}, err
	}
	_ = json.Unmarshal(tagsRaw, &item.Tags)
	return item, nil
}

// ListVersions returns the full chain, newest first.
func (s *PostgresStore) ListVersions(ctx context.Context, promptID string) ([]PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM prompt_versions
		WHERE prompt_id=$1
		ORDER BY version DESC
	`, promptID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]PromptVersion, 0)
	for rows.Next() {
		item, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, promptID string, number int) (PromptVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM prompt_versions
		WHERE prompt_id=$1 AND version=$2
	`, promptID, number)
	item, err := scanVersion(row)
	if err != nil {
		return PromptVersion{}, err
	}
	return item, nil
}

// SetPromptVisibility flips the public flag. Visibility is projection
// metadata and never creates a version.
func (s *PostgresStore) SetPromptVisibility(ctx context.Context, promptID string, isPublic bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE prompts SET is_public=$2, updated_at=NOW() WHERE id=$1
	`, promptID, isPublic)
	if err != nil {
		return fmt.Errorf("set prompt visibility: %w", err)
	}
	return nil
}
