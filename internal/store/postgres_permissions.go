package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ActiveGrant returns the single non-revoked grant for (prompt, user), or
// nil when none exists.
func (s *PostgresStore) ActiveGrant(ctx context.Context, promptID, userID string) (*Permission, error) {
	var item Permission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, prompt_id, user_id, role, granted_by, granted_at, revoked_at
		FROM permissions
		WHERE prompt_id=$1 AND user_id=$2 AND revoked_at IS NULL
	`, promptID, userID).Scan(
		&item.ID,
		&item.PromptID,
		&item.UserID,
		&item.Role,
		&item.GrantedBy,
		&item.GrantedAt,
		&item.RevokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup active grant: %w", err)
	}
	return &item, nil
}

// UpsertGrant closes any active grant for the pair and inserts the new one
// in a single transaction. The partial unique index on
// (prompt_id, user_id) WHERE revoked_at IS NULL makes a racing duplicate
// fail rather than slip through.
func (s *PostgresStore) UpsertGrant(ctx context.Context, grant Permission) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin grant tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE permissions SET revoked_at=NOW()
		WHERE prompt_id=$1 AND user_id=$2 AND revoked_at IS NULL
	`, grant.PromptID, grant.UserID); err != nil {
		return "", fmt.Errorf("close prior grant: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO permissions (id, prompt_id, user_id, role, granted_by)
		VALUES ($1, $2, $3, $4, $5)
	`, grant.ID, grant.PromptID, grant.UserID, grant.Role, grant.GrantedBy); err != nil {
		return "", fmt.Errorf("insert grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit grant tx: %w", err)
	}
	return grant.ID, nil
}

func (s *PostgresStore) GetPermission(ctx context.Context, permissionID string) (Permission, error) {
	var item Permission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, prompt_id, user_id, role, granted_by, granted_at, revoked_at
		FROM permissions
		WHERE id=$1
	`, permissionID).Scan(
		&item.ID,
		&item.PromptID,
		&item.UserID,
		&item.Role,
		&item.GrantedBy,
		&item.GrantedAt,
		&item.RevokedAt,
	)
	if err != nil {
		return Permission{}, err
	}
	return item, nil
}

// RevokeGrant stamps revoked_at; the row is retained for audit.
func (s *PostgresStore) RevokeGrant(ctx context.Context, permissionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE permissions SET revoked_at=NOW()
		WHERE id=$1 AND revoked_at IS NULL
	`, permissionID)
	if err != nil {
		return false, fmt.Errorf("revoke grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke grant rows: %w", err)
	}
	return affected > 0, nil
}

// ListGrants returns active grants for a prompt with joined user details.
func (s *PostgresStore) ListGrants(ctx context.Context, promptID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pm.id, pm.prompt_id, pm.user_id, pm.role, pm.granted_by, pm.granted_at, pm.revoked_at,
			COALESCE(u.display_name, ''), COALESCE(u.email, '')
		FROM permissions pm
		LEFT JOIN users u ON u.id = pm.user_id
		WHERE pm.prompt_id=$1 AND pm.revoked_at IS NULL
		ORDER BY pm.granted_at ASC
	`, promptID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	items := make([]Permission, 0)
	for rows.Next() {
		var item Permission
		if err := rows.Scan(
			&item.ID,
			&item.PromptID,
			&item.UserID,
			&item.Role,
			&item.GrantedBy,
			&item.GrantedAt,
			&item.RevokedAt,
			&item.UserName,
			&item.UserEmail,
		); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertShareLink(ctx context.Context, link ShareLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_links (id, token, prompt_id, created_by, password_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, link.ID, link.Token, link.PromptID, link.CreatedBy, link.PasswordHash, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert share link: %w", err)
	}
	return nil
}

// GetShareLinkByToken returns an active, unexpired link, or nil.
func (s *PostgresStore) GetShareLinkByToken(ctx context.Context, token string) (*ShareLink, error) {
	var item ShareLink
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token, prompt_id, created_by, password_hash, expires_at,
			access_count, last_accessed_at, created_at, revoked_at
		FROM share_links
		WHERE token=$1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > NOW())
	`, token).Scan(
		&item.ID,
		&item.Token,
		&item.PromptID,
		&item.CreatedBy,
		&item.PasswordHash,
		&item.ExpiresAt,
		&item.AccessCount,
		&item.LastAccessedAt,
		&item.CreatedAt,
		&item.RevokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get share link: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) ListShareLinks(ctx context.Context, promptID string) ([]ShareLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, prompt_id, created_by, password_hash, expires_at,
			access_count, last_accessed_at, created_at, revoked_at
		FROM share_links
		WHERE prompt_id=$1 AND revoked_at IS NULL
		ORDER BY created_at DESC
	`, promptID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	defer rows.Close()

	items := make([]ShareLink, 0)
	for rows.Next() {
		var item ShareLink
		if err := rows.Scan(
			&item.ID,
			&item.Token,
			&item.PromptID,
			&item.CreatedBy,
			&item.PasswordHash,
			&item.ExpiresAt,
			&item.AccessCount,
			&item.LastAccessedAt,
			&item.CreatedAt,
			&item.RevokedAt,
		); err != nil {
			return nil, fmt.Errorf("scan share link: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share links: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RevokeShareLink(ctx context.Context, linkID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL
	`, linkID)
	if err != nil {
		return false, fmt.Errorf("revoke share link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke share link rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) IncrementShareLinkAccess(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET access_count=access_count+1, last_accessed_at=NOW()
		WHERE id=$1
	`, linkID)
	if err != nil {
		return fmt.Errorf("increment share link access: %w", err)
	}
	return nil
}
