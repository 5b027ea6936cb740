package store

import (
	"context"
	"database/sql"
	"fmt"
)

const commentColumns = `
	id, prompt_id, discussion_id, parent_id, author_id, author_name,
	content, like_count, created_at, updated_at, deleted_at
`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var item Comment
	err := row.Scan(
		&item.ID,
		&item.PromptID,
		&item.DiscussionID,
		&item.ParentID,
		&item.AuthorID,
		&item.AuthorName,
		&item.Content,
		&item.LikeCount,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DeletedAt,
	)
	return item, err
}

// InsertComment writes the comment and, when it belongs to a discussion,
// bumps that discussion's denormalized counters in the same transaction.
func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin comment tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, prompt_id, discussion_id, parent_id, author_id, author_name, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, comment.ID, comment.PromptID, comment.DiscussionID, comment.ParentID, comment.AuthorID, comment.AuthorName, comment.Content); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	if comment.DiscussionID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE discussions
			SET comment_count=comment_count+1, last_comment_at=NOW(), updated_at=NOW()
			WHERE id=$1
		`, *comment.DiscussionID); err != nil {
			return fmt.Errorf("bump discussion counters: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit comment tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+` FROM comments WHERE id=$1
	`, commentID)
	item, err := scanComment(row)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

// ListComments returns live comments for a prompt, oldest first.
// Soft-deleted comments are excluded; their children remain.
func (s *PostgresStore) ListComments(ctx context.Context, promptID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE prompt_id=$1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, promptID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	return collectComments(rows)
}

func (s *PostgresStore) ListDiscussionComments(ctx context.Context, discussionID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE discussion_id=$1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, discussionID)
	if err != nil {
		return nil, fmt.Errorf("list discussion comments: %w", err)
	}
	defer rows.Close()
	return collectComments(rows)
}

func collectComments(rows *sql.Rows) ([]Comment, error) {
	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SoftDeleteComment(ctx context.Context, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments SET deleted_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, commentID)
	if err != nil {
		return false, fmt.Errorf("soft delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete comment rows: %w", err)
	}
	return affected > 0, nil
}

// ToggleCommentLike flips the actor's like. Double-liking never
// double-counts: the (comment, user) row is the source of truth.
func (s *PostgresStore) ToggleCommentLike(ctx context.Context, commentID, userID string) (bool, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin comment like tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM comment_likes WHERE comment_id=$1 AND user_id=$2
	`, commentID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("delete comment like: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("delete comment like rows: %w", err)
	}

	liked := removed == 0
	var count int
	if liked {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comment_likes (comment_id, user_id) VALUES ($1, $2)
		`, commentID, userID); err != nil {
			return false, 0, fmt.Errorf("insert comment like: %w", err)
		}
		err = tx.QueryRowContext(ctx, `
			UPDATE comments SET like_count=like_count+1 WHERE id=$1 RETURNING like_count
		`, commentID).Scan(&count)
	} else {
		err = tx.QueryRowContext(ctx, `
			UPDATE comments SET like_count=GREATEST(like_count-1, 0) WHERE id=$1 RETURNING like_count
		`, commentID).Scan(&count)
	}
	if err != nil {
		return false, 0, fmt.Errorf("update comment like count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit comment like tx: %w", err)
	}
	return liked, count, nil
}

func (s *PostgresStore) InsertDiscussion(ctx context.Context, discussion Discussion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discussions (id, prompt_id, title, description, author_id, author_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, discussion.ID, discussion.PromptID, discussion.Title, discussion.Description,
		discussion.AuthorID, discussion.AuthorName, discussion.Status)
	if err != nil {
		return fmt.Errorf("insert discussion: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDiscussion(ctx context.Context, discussionID string) (Discussion, error) {
	var item Discussion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, prompt_id, title, description, author_id, author_name, status,
			comment_count, last_comment_at, created_at, updated_at
		FROM discussions
		WHERE id=$1
	`, discussionID).Scan(
		&item.ID,
		&item.PromptID,
		&item.Title,
		&item.Description,
		&item.AuthorID,
		&item.AuthorName,
		&item.Status,
		&item.CommentCount,
		&item.LastCommentAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Discussion{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListDiscussions(ctx context.Context, promptID string) ([]Discussion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt_id, title, description, author_id, author_name, status,
			comment_count, last_comment_at, created_at, updated_at
		FROM discussions
		WHERE prompt_id=$1
		ORDER BY created_at DESC
	`, promptID)
	if err != nil {
		return nil, fmt.Errorf("list discussions: %w", err)
	}
	defer rows.Close()

	items := make([]Discussion, 0)
	for rows.Next() {
		var item Discussion
		if err := rows.Scan(
			&item.ID,
			&item.PromptID,
			&item.Title,
			&item.Description,
			&item.AuthorID,
			&item.AuthorName,
			&item.Status,
			&item.CommentCount,
			&item.LastCommentAt,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan discussion: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discussions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetDiscussionStatus(ctx context.Context, discussionID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE discussions SET status=$2, updated_at=NOW() WHERE id=$1
	`, discussionID, status)
	if err != nil {
		return false, fmt.Errorf("set discussion status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set discussion status rows: %w", err)
	}
	return affected > 0, nil
}

// UpsertRating inserts or replaces the actor's rating; the unique index on
// (prompt_id, user_id) guarantees one row per pair even under races.
func (s *PostgresStore) UpsertRating(ctx context.Context, rating Rating) (Rating, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ratings (id, prompt_id, user_id, user_name, score, feedback, helpfulness, accuracy, relevance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (prompt_id, user_id) DO UPDATE SET
			user_name=EXCLUDED.user_name,
			score=EXCLUDED.score,
			feedback=EXCLUDED.feedback,
			helpfulness=EXCLUDED.helpfulness,
			accuracy=EXCLUDED.accuracy,
			relevance=EXCLUDED.relevance,
			updated_at=NOW()
		RETURNING id, created_at, updated_at
	`, rating.ID, rating.PromptID, rating.UserID, rating.UserName, rating.Score,
		rating.Feedback, rating.Helpfulness, rating.Accuracy, rating.Relevance).
		Scan(&rating.ID, &rating.CreatedAt, &rating.UpdatedAt)
	if err != nil {
		return Rating{}, fmt.Errorf("upsert rating: %w", err)
	}
	return rating, nil
}

func (s *PostgresStore) GetRating(ctx context.Context, ratingID string) (Rating, error) {
	var item Rating
	err := s.db.QueryRowContext(ctx, `
		SELECT id, prompt_id, user_id, user_name, score, feedback, helpfulness, accuracy, relevance, created_at, updated_at
		FROM ratings
		WHERE id=$1
	`, ratingID).Scan(
		&item.ID,
		&item.PromptID,
		&item.UserID,
		&item.UserName,
		&item.Score,
		&item.Feedback,
		&item.Helpfulness,
		&item.Accuracy,
		&item.Relevance,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Rating{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteRating(ctx context.Context, ratingID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ratings WHERE id=$1`, ratingID)
	if err != nil {
		return false, fmt.Errorf("delete rating: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rating rows: %w", err)
	}
	return affected > 0, nil
}

// RatingStats aggregates the live rating rows. Nothing is cached: a delete
// is visible on the very next call.
func (s *PostgresStore) RatingStats(ctx context.Context, promptID string) (RatingStats, error) {
	stats := RatingStats{PromptID: promptID, Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(AVG(score), 0),
			COALESCE(AVG(helpfulness), 0),
			COALESCE(AVG(accuracy), 0),
			COALESCE(AVG(relevance), 0)
		FROM ratings
		WHERE prompt_id=$1
	`, promptID).Scan(&stats.Total, &stats.Average, &stats.AvgHelpfulness, &stats.AvgAccuracy, &stats.AvgRelevance)
	if err != nil {
		return RatingStats{}, fmt.Errorf("aggregate ratings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT score, COUNT(*)::int
		FROM ratings
		WHERE prompt_id=$1
		GROUP BY score
	`, promptID)
	if err != nil {
		return RatingStats{}, fmt.Errorf("rating distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var score, count int
		if err := rows.Scan(&score, &count); err != nil {
			return RatingStats{}, fmt.Errorf("scan rating distribution: %w", err)
		}
		stats.Distribution[score] = count
	}
	if err := rows.Err(); err != nil {
		return RatingStats{}, fmt.Errorf("iterate rating distribution: %w", err)
	}
	return stats, nil
}
