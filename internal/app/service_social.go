package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"promptforge/api/internal/rbac"
	"promptforge/api/internal/store"
	"promptforge/api/internal/util"
)

type CreateCommentInput struct {
	Content      string  `json:"content"`
	ParentID     *string `json:"parentId"`
	DiscussionID *string `json:"discussionId"`
}

type CreateDiscussionInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type RatePromptInput struct {
	Score       int    `json:"score"`
	Feedback    string `json:"feedback"`
	Helpfulness int    `json:"helpfulness"`
	Accuracy    int    `json:"accuracy"`
	Relevance   int    `json:"relevance"`
}

// CreateComment adds a comment to a prompt, optionally as a reply or inside
// a discussion. Replies must target a comment on the same prompt.
func (s *Service) CreateComment(ctx context.Context, session Session, promptID string, input CreateCommentInput) (store.Comment, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.Comment{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapComment); err != nil {
		return store.Comment{}, err
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return store.Comment{}, validationError("Invalid comment", map[string]string{
			"content": "content is required",
		})
	}

	if input.ParentID != nil {
		parent, err := s.store.GetComment(ctx, *input.ParentID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.Comment{}, notFound("Parent comment not found")
		}
		if err != nil {
			return store.Comment{}, fmt.Errorf("get parent comment: %w", err)
		}
		if parent.PromptID != promptID {
			return store.Comment{}, validationError("Invalid parent", map[string]string{
				"parentId": "parent comment belongs to a different prompt",
			})
		}
	}

	if input.DiscussionID != nil {
		discussion, err := s.store.GetDiscussion(ctx, *input.DiscussionID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.Comment{}, notFound("Discussion not found")
		}
		if err != nil {
			return store.Comment{}, fmt.Errorf("get discussion: %w", err)
		}
		if discussion.PromptID != promptID {
			return store.Comment{}, validationError("Invalid discussion", map[string]string{
				"discussionId": "discussion belongs to a different prompt",
			})
		}
	}

	comment := store.Comment{
		ID:           util.NewID("cmt"),
		PromptID:     promptID,
		DiscussionID: input.DiscussionID,
		ParentID:     input.ParentID,
		AuthorID:     session.UserID,
		AuthorName:   session.UserName,
		Content:      content,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return store.Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	created, err := s.store.GetComment(ctx, comment.ID)
	if err != nil {
		return store.Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return created, nil
}

func (s *Service) ListComments(ctx context.Context, session Session, promptID string) ([]store.Comment, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	if comments == nil {
		comments = []store.Comment{}
	}
	return comments, nil
}

// DeleteComment soft-deletes a comment. Only its author may do so; replies
// to a deleted comment stay visible.
func (s *Service) DeleteComment(ctx context.Context, session Session, promptID, commentID string) error {
	if _, err := s.loadLivePrompt(ctx, promptID); err != nil {
		return err
	}

	comment, err := s.store.GetComment(ctx, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("Comment not found")
	}
	if err != nil {
		return fmt.Errorf("get comment: %w", err)
	}
	if comment.PromptID != promptID || comment.DeletedAt != nil {
		return notFound("Comment not found")
	}
	if comment.AuthorID != session.UserID {
		return forbidden("Only the comment author can delete it")
	}

	deleted, err := s.store.SoftDeleteComment(ctx, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if !deleted {
		return notFound("Comment not found")
	}
	return nil
}

func (s *Service) ToggleCommentLike(ctx context.Context, session Session, promptID, commentID string) (bool, int, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return false, 0, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return false, 0, err
	}

	comment, err := s.store.GetComment(ctx, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, notFound("Comment not found")
	}
	if err != nil {
		return false, 0, fmt.Errorf("get comment: %w", err)
	}
	if comment.PromptID != promptID || comment.DeletedAt != nil {
		return false, 0, notFound("Comment not found")
	}

	liked, likes, err := s.store.ToggleCommentLike(ctx, commentID, session.UserID)
	if err != nil {
		return false, 0, fmt.Errorf("toggle comment like: %w", err)
	}
	return liked, likes, nil
}

func (s *Service) CreateDiscussion(ctx context.Context, session Session, promptID string, input CreateDiscussionInput) (store.Discussion, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.Discussion{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapComment); err != nil {
		return store.Discussion{}, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Discussion{}, validationError("Invalid discussion", map[string]string{
			"title": "title is required",
		})
	}

	discussion := store.Discussion{
		ID:          util.NewID("dsc"),
		PromptID:    promptID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		AuthorID:    session.UserID,
		AuthorName:  session.UserName,
		Status:      "open",
	}
	if err := s.store.InsertDiscussion(ctx, discussion); err != nil {
		return store.Discussion{}, fmt.Errorf("insert discussion: %w", err)
	}

	created, err := s.store.GetDiscussion(ctx, discussion.ID)
	if err != nil {
		return store.Discussion{}, fmt.Errorf("get discussion: %w", err)
	}
	return created, nil
}

func (s *Service) ListDiscussions(ctx context.Context, session Session, promptID string) ([]store.Discussion, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return nil, err
	}
	discussions, err := s.store.ListDiscussions(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("list discussions: %w", err)
	}
	if discussions == nil {
		discussions = []store.Discussion{}
	}
	return discussions, nil
}

func (s *Service) DiscussionComments(ctx context.Context, session Session, promptID, discussionID string) ([]store.Comment, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return nil, err
	}

	discussion, err := s.store.GetDiscussion(ctx, discussionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("Discussion not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get discussion: %w", err)
	}
	if discussion.PromptID != promptID {
		return nil, notFound("Discussion not found")
	}

	comments, err := s.store.ListDiscussionComments(ctx, discussionID)
	if err != nil {
		return nil, fmt.Errorf("list discussion comments: %w", err)
	}
	if comments == nil {
		comments = []store.Comment{}
	}
	return comments, nil
}

// SetDiscussionStatus moves a discussion between open, resolved and closed.
// Any transition between the three is legal; edit or above is required.
func (s *Service) SetDiscussionStatus(ctx context.Context, session Session, promptID, discussionID, status string) (store.Discussion, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.Discussion{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapEdit); err != nil {
		return store.Discussion{}, err
	}

	status = strings.ToLower(strings.TrimSpace(status))
	if _, ok := allowedDiscussionStatuses[status]; !ok {
		return store.Discussion{}, validationError("Invalid status", map[string]string{
			"status": "must be one of open, resolved, closed",
		})
	}

	discussion, err := s.store.GetDiscussion(ctx, discussionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Discussion{}, notFound("Discussion not found")
	}
	if err != nil {
		return store.Discussion{}, fmt.Errorf("get discussion: %w", err)
	}
	if discussion.PromptID != promptID {
		return store.Discussion{}, notFound("Discussion not found")
	}

	updated, err := s.store.SetDiscussionStatus(ctx, discussionID, status)
	if err != nil {
		return store.Discussion{}, fmt.Errorf("set discussion status: %w", err)
	}
	if !updated {
		return store.Discussion{}, notFound("Discussion not found")
	}

	discussion, err = s.store.GetDiscussion(ctx, discussionID)
	if err != nil {
		return store.Discussion{}, fmt.Errorf("get discussion: %w", err)
	}
	return discussion, nil
}

// RatePrompt records or replaces the actor's rating. One rating per
// (prompt, user); rating again overwrites the previous one.
func (s *Service) RatePrompt(ctx context.Context, session Session, promptID string, input RatePromptInput) (store.Rating, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.Rating{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return store.Rating{}, err
	}

	details := map[string]string{}
	if input.Score < 1 || input.Score > 5 {
		details["score"] = "score must be between 1 and 5"
	}
	for field, value := range map[string]int{
		"helpfulness": input.Helpfulness,
		"accuracy":    input.Accuracy,
		"relevance":   input.Relevance,
	} {
		if value < 0 || value > 100 {
			details[field] = field + " must be between 0 and 100"
		}
	}
	if len(details) > 0 {
		return store.Rating{}, validationError("Invalid rating", details)
	}

	rating, err := s.store.UpsertRating(ctx, store.Rating{
		ID:          util.NewID("rat"),
		PromptID:    promptID,
		UserID:      session.UserID,
		UserName:    session.UserName,
		Score:       input.Score,
		Feedback:    strings.TrimSpace(input.Feedback),
		Helpfulness: input.Helpfulness,
		Accuracy:    input.Accuracy,
		Relevance:   input.Relevance,
	})
	if err != nil {
		return store.Rating{}, fmt.Errorf("upsert rating: %w", err)
	}
	return rating, nil
}

// DeleteRating removes the rating entirely. Only the rater can delete their
// own rating; stats reflect the removal on the next read.
func (s *Service) DeleteRating(ctx context.Context, session Session, promptID, ratingID string) error {
	if _, err := s.loadLivePrompt(ctx, promptID); err != nil {
		return err
	}

	rating, err := s.store.GetRating(ctx, ratingID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("Rating not found")
	}
	if err != nil {
		return fmt.Errorf("get rating: %w", err)
	}
	if rating.PromptID != promptID {
		return notFound("Rating not found")
	}
	if rating.UserID != session.UserID {
		return forbidden("Only the rater can delete their rating")
	}

	deleted, err := s.store.DeleteRating(ctx, ratingID)
	if err != nil {
		return fmt.Errorf("delete rating: %w", err)
	}
	if !deleted {
		return notFound("Rating not found")
	}
	return nil
}

// RatingStats recomputes the aggregate from live rows on every call.
func (s *Service) RatingStats(ctx context.Context, session Session, promptID string) (store.RatingStats, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.RatingStats{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return store.RatingStats{}, err
	}
	stats, err := s.store.RatingStats(ctx, promptID)
	if err != nil {
		return store.RatingStats{}, fmt.Errorf("rating stats: %w", err)
	}
	return stats, nil
}
