package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"promptforge/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) EnsureUser(ctx context.Context, userID, displayName string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name
		RETURNING id, display_name, email, created_at
	`, userID, displayName).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

const promptColumns = `
	p.id, p.author_id, p.author_name, p.title, p.description, p.content,
	p.category, p.is_public, p.views, p.likes, p.created_at, p.updated_at, p.deleted_at
`

func scanPrompt(row interface{ Scan(...any) error }) (Prompt, error) {
	var item Prompt
	err := row.Scan(
		&item.ID,
		&item.AuthorID,
		&item.AuthorName,
		&item.Title,
		&item.Description,
		&item.Content,
		&item.Category,
		&item.IsPublic,
		&item.Views,
		&item.Likes,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DeletedAt,
	)
	return item, err
}

// GetPrompt returns the prompt row including soft-deleted ones; the service
// layer decides whether the caller may see a deleted prompt.
func (s *PostgresStore) GetPrompt(ctx context.Context, promptID string) (Prompt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts p WHERE p.id=$1`, promptID)
	item, err := scanPrompt(row)
	if err != nil {
		return Prompt{}, err
	}
	tags, err := s.promptTags(ctx, item.ID)
	if err != nil {
		return Prompt{}, err
	}
	item.Tags = tags
	return item, nil
}

// ListPrompts returns live prompts visible to the actor: public ones, their
// own, and ones they hold an active grant on.
func (s *PostgresStore) ListPrompts(ctx context.Context, actorID string) ([]Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+promptColumns+`
		FROM prompts p
		WHERE p.deleted_at IS NULL
		  AND (p.is_public OR p.author_id=$1 OR EXISTS (
			SELECT 1 FROM permissions pm
			WHERE pm.prompt_id=p.id AND pm.user_id=$1 AND pm.revoked_at IS NULL
		  ))
		ORDER BY p.updated_at DESC
	`, actorID)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()
	return s.collectPrompts(ctx, rows)
}

// SearchPrompts performs a substring match over title/description/content
// with optional category equality and tag-set intersection, restricted to
// prompts the actor can view.
func (s *PostgresStore) SearchPrompts(ctx context.Context, query, category string, tags []string, actorID string) ([]Prompt, error) {
	where := []string{
		"p.deleted_at IS NULL",
		`(p.is_public OR p.author_id=$1 OR EXISTS (
			SELECT 1 FROM permissions pm
			WHERE pm.prompt_id=p.id AND pm.user_id=$1 AND pm.revoked_at IS NULL
		))`,
	}
	args := []any{actorID}
	argN := 2

	if strings.TrimSpace(query) != "" {
		where = append(where, fmt.Sprintf(
			"(p.title ILIKE '%%' || $%d || '%%' OR p.description ILIKE '%%' || $%d || '%%' OR p.content ILIKE '%%' || $%d || '%%')",
			argN, argN, argN))
		args = append(args, query)
		argN++
	}
	if category != "" {
		where = append(where, fmt.Sprintf("p.category=$%d", argN))
		args = append(args, category)
		argN++
	}
	for _, tag := range tags {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM prompt_tags pt JOIN tags t ON t.id=pt.tag_id
			WHERE pt.prompt_id=p.id AND t.name=$%d
		)`, argN))
		args = append(args, tag)
		argN++
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+promptColumns+`
		FROM prompts p
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY p.updated_at DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search prompts: %w", err)
	}
	defer rows.Close()
	return s.collectPrompts(ctx, rows)
}

func (s *PostgresStore) collectPrompts(ctx context.Context, rows *sql.Rows) ([]Prompt, error) {
	items := make([]Prompt, 0)
	for rows.Next() {
		item, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompts: %w", err)
	}
	for i := range items {
		tags, err := s.promptTags(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Tags = tags
	}
	return items, nil
}

func (s *PostgresStore) promptTags(ctx context.Context, promptID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name
		FROM prompt_tags pt
		JOIN tags t ON t.id=pt.tag_id
		WHERE pt.prompt_id=$1
		ORDER BY t.name ASC
	`, promptID)
	if err != nil {
		return nil, fmt.Errorf("list prompt tags: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return names, nil
}

// SoftDeletePrompt stamps deleted_at. Versions, comments and ratings are
// retained; nothing cascades.
func (s *PostgresStore) SoftDeletePrompt(ctx context.Context, promptID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE prompts SET deleted_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, promptID)
	if err != nil {
		return false, fmt.Errorf("soft delete prompt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete prompt rows: %w", err)
	}
	return affected > 0, nil
}

// IncrementViews bumps the view counter only; views are never versioned.
func (s *PostgresStore) IncrementViews(ctx context.Context, promptID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE prompts SET views=views+1 WHERE id=$1 AND deleted_at IS NULL
	`, promptID)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

// ToggleLike flips the actor's like on a prompt. The per-(prompt, user) row
// makes the toggle idempotent; the counter is clamped at zero regardless.
func (s *PostgresStore) ToggleLike(ctx context.Context, promptID, userID string) (bool, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin like tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM prompt_likes WHERE prompt_id=$1 AND user_id=$2
	`, promptID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("delete prompt like: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("delete prompt like rows: %w", err)
	}

	liked := removed == 0
	var likes int
	if liked {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prompt_likes (prompt_id, user_id) VALUES ($1, $2)
		`, promptID, userID); err != nil {
			return false, 0, fmt.Errorf("insert prompt like: %w", err)
		}
		err = tx.QueryRowContext(ctx, `
			UPDATE prompts SET likes=likes+1 WHERE id=$1 RETURNING likes
		`, promptID).Scan(&likes)
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE prompts SET likes=GREATEST(likes-1, 0) WHERE id=$1 RETURNING likes
		`, promptID).Scan(&likes)
	}
	if err != nil {
		return false, 0, fmt.Errorf("update like count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit like tx: %w", err)
	}
	return liked, likes, nil
}

// syncPromptTags reconciles the prompt's tag set inside the caller's
// transaction, keeping tag ref_counts consistent.
func syncPromptTags(ctx context.Context, tx *sql.Tx, promptID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE tags SET ref_count=GREATEST(ref_count-1, 0)
		WHERE id IN (SELECT tag_id FROM prompt_tags WHERE prompt_id=$1)
	`, promptID); err != nil {
		return fmt.Errorf("decrement tag refs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_tags WHERE prompt_id=$1`, promptID); err != nil {
		return fmt.Errorf("clear prompt tags: %w", err)
	}

	for _, name := range tags {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var tagID string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tags (id, name, ref_count)
			VALUES ($1, $2, 0)
			ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
			RETURNING id
		`, util.NewID("tag"), name).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("ensure tag %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prompt_tags (prompt_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT (prompt_id, tag_id) DO NOTHING
		`, promptID, tagID); err != nil {
			return fmt.Errorf("link tag %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET ref_count=ref_count+1 WHERE id=$1
		`, tagID); err != nil {
			return fmt.Errorf("increment tag ref %s: %w", name, err)
		}
	}
	return nil
}

// ListTags returns all tags with their reference counts.
func (s *PostgresStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, ref_count FROM tags WHERE ref_count > 0 ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.Name, &item.RefCount); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
// AppendVersion retries once when a racing writer trips the
// (prompt_id, version) index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqlErr interface{ SQLState() string }
	if errors.As(err, &sqlErr) {
		return sqlErr.SQLState() == "23505"
	}
	return false
}
