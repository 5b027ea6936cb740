package app

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"promptforge/api/internal/auth"
	"promptforge/api/internal/config"
	"promptforge/api/internal/diff"
	"promptforge/api/internal/export"
	"promptforge/api/internal/rbac"
	"promptforge/api/internal/search"
	"promptforge/api/internal/store"
	"promptforge/api/internal/util"
	"promptforge/api/internal/views"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

type CreatePromptInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"isPublic"`
}

type UpdatePromptInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Content     *string   `json:"content"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
	IsPublic    *bool     `json:"isPublic"`
	ChangeNote  string    `json:"changeNote"`
}

type CompareResult struct {
	PromptID      string        `json:"promptId"`
	FromVersion   int           `json:"fromVersion"`
	ToVersion     int           `json:"toVersion"`
	ChangedFields []string      `json:"changedFields"`
	ContentDiff   []diff.Change `json:"contentDiff"`
}

var allowedDiscussionStatuses = map[string]struct{}{
	"open":     {},
	"resolved": {},
	"closed":   {},
}

type dataStore interface {
	Ping(context.Context) error
	EnsureUser(context.Context, string, string) (store.User, error)
	GetUser(context.Context, string) (store.User, error)
	GetPrompt(context.Context, string) (store.Prompt, error)
	ListPrompts(context.Context, string) ([]store.Prompt, error)
	SearchPrompts(context.Context, string, string, []string, string) ([]store.Prompt, error)
	CreatePrompt(context.Context, store.Prompt) (store.PromptVersion, error)
	AppendVersion(context.Context, store.AppendVersionParams) (store.PromptVersion, error)
	ListVersions(context.Context, string) ([]store.PromptVersion, error)
	GetVersion(context.Context, string, int) (store.PromptVersion, error)
	SetPromptVisibility(context.Context, string, bool) error
	SoftDeletePrompt(context.Context, string) (bool, error)
	IncrementViews(context.Context, string) error
	ToggleLike(context.Context, string, string) (bool, int, error)
	ListTags(context.Context) ([]store.Tag, error)
	ActiveGrant(context.Context, string, string) (*store.Permission, error)
	UpsertGrant(context.Context, store.Permission) (string, error)
	GetPermission(context.Context, string) (store.Permission, error)
	RevokeGrant(context.Context, string) (bool, error)
	ListGrants(context.Context, string) ([]store.Permission, error)
	InsertShareLink(context.Context, store.ShareLink) error
	GetShareLinkByToken(context.Context, string) (*store.ShareLink, error)
	ListShareLinks(context.Context, string) ([]store.ShareLink, error)
	RevokeShareLink(context.Context, string) (bool, error)
	IncrementShareLinkAccess(context.Context, string) error
	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	ListDiscussionComments(context.Context, string) ([]store.Comment, error)
	SoftDeleteComment(context.Context, string) (bool, error)
	ToggleCommentLike(context.Context, string, string) (bool, int, error)
	InsertDiscussion(context.Context, store.Discussion) error
	GetDiscussion(context.Context, string) (store.Discussion, error)
	ListDiscussions(context.Context, string) ([]store.Discussion, error)
	SetDiscussionStatus(context.Context, string, string) (bool, error)
	UpsertRating(context.Context, store.Rating) (store.Rating, error)
	GetRating(context.Context, string) (store.Rating, error)
	DeleteRating(context.Context, string) (bool, error)
	RatingStats(context.Context, string) (store.RatingStats, error)
}

type viewTracker interface {
	ShouldCount(ctx context.Context, promptID, actorID string) (bool, error)
}

type bundleUploader interface {
	Upload(context.Context, export.Bundle) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	search   *search.Service
	views    viewTracker
	exporter bundleUploader
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchSvc *search.Service, tracker *views.Tracker, exporter *export.Service) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		search: searchSvc,
	}
	if tracker != nil {
		s.views = tracker
	}
	if exporter != nil {
		s.exporter = exporter
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login resolves a display name to a stable user id and issues a token.
// Identity verification happens upstream; this endpoint only mints the
// actor token the rest of the API consumes.
func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUser(ctx, userIDFromName(userName), userName)
	if err != nil {
		return Session{}, fmt.Errorf("ensure user: %w", err)
	}

	expiresAt := time.Now().Add(s.cfg.TokenTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func userIDFromName(name string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(name))))
	return "user_" + hex.EncodeToString(sum[:8])
}

func (s *Service) ListPrompts(ctx context.Context, session Session) ([]store.Prompt, error) {
	prompts, err := s.store.ListPrompts(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	if prompts == nil {
		prompts = []store.Prompt{}
	}
	return prompts, nil
}

// GetPrompt loads a prompt the actor may view. Soft-deleted prompts read as
// missing for everyone except the author looking up their own prompt by id.
func (s *Service) GetPrompt(ctx context.Context, session Session, promptID string) (store.Prompt, error) {
	prompt, err := s.readPrompt(ctx, session, promptID)
	if err != nil {
		return store.Prompt{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return store.Prompt{}, err
	}
	return prompt, nil
}

// readPrompt is the read-path load: the author still sees their own
// soft-deleted prompt (history and audit stay reachable), everyone else
// gets NotFound.
func (s *Service) readPrompt(ctx context.Context, session Session, promptID string) (store.Prompt, error) {
	prompt, err := s.getPrompt(ctx, promptID)
	if err != nil {
		return store.Prompt{}, err
	}
	if prompt.DeletedAt != nil && session.UserID != prompt.AuthorID {
		return store.Prompt{}, notFound("Prompt not found")
	}
	return prompt, nil
}

// loadLivePrompt is the mutation-path load: soft-deleted prompts cannot be
// edited, commented on, granted or rated by anyone.
func (s *Service) loadLivePrompt(ctx context.Context, promptID string) (store.Prompt, error) {
	prompt, err := s.getPrompt(ctx, promptID)
	if err != nil {
		return store.Prompt{}, err
	}
	if prompt.DeletedAt != nil {
		return store.Prompt{}, notFound("Prompt not found")
	}
	return prompt, nil
}

func (s *Service) getPrompt(ctx context.Context, promptID string) (store.Prompt, error) {
	prompt, err := s.store.GetPrompt(ctx, promptID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Prompt{}, notFound("Prompt not found")
	}
	if err != nil {
		return store.Prompt{}, fmt.Errorf("get prompt: %w", err)
	}
	return prompt, nil
}

func (s *Service) CreatePrompt(ctx context.Context, session Session, input CreatePromptInput) (store.Prompt, error) {
	if details := validatePromptFields(input.Title, input.Content); details != nil {
		return store.Prompt{}, validationError("Invalid prompt", details)
	}

	prompt := store.Prompt{
		ID:          util.NewID("pmt"),
		AuthorID:    session.UserID,
		AuthorName:  session.UserName,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Content:     input.Content,
		Category:    strings.TrimSpace(input.Category),
		IsPublic:    input.IsPublic,
		Tags:        normalizeTags(input.Tags),
	}
	if _, err := s.store.CreatePrompt(ctx, prompt); err != nil {
		return store.Prompt{}, fmt.Errorf("create prompt: %w", err)
	}

	created, err := s.loadLivePrompt(ctx, prompt.ID)
	if err != nil {
		return store.Prompt{}, err
	}
	s.indexPrompt(created)
	return created, nil
}

// UpdatePrompt appends a new version when at least one versioned field
// (title, description, content, category, tags) changes. Visibility is a
// metadata change and never creates a version; flipping it requires manage.
func (s *Service) UpdatePrompt(ctx context.Context, session Session, promptID string, input UpdatePromptInput) (store.Prompt, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.Prompt{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapEdit); err != nil {
		return store.Prompt{}, err
	}

	next := store.AppendVersionParams{
		PromptID:    prompt.ID,
		Title:       prompt.Title,
		Description: prompt.Description,
		Content:     prompt.Content,
		Category:    prompt.Category,
		Tags:        prompt.Tags,
		ChangeNote:  strings.TrimSpace(input.ChangeNote),
		ActorID:     session.UserID,
		ActorName:   session.UserName,
	}
	if input.Title != nil {
		next.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		next.Description = strings.TrimSpace(*input.Description)
	}
	if input.Content != nil {
		next.Content = *input.Content
	}
	if input.Category != nil {
		next.Category = strings.TrimSpace(*input.Category)
	}
	if input.Tags != nil {
		next.Tags = normalizeTags(*input.Tags)
	}
	if details := validatePromptFields(next.Title, next.Content); details != nil {
		return store.Prompt{}, validationError("Invalid prompt", details)
	}

	// All capability checks happen before any write. A denied visibility
	// flip must not leave a freshly appended version behind.
	flipVisibility := input.IsPublic != nil && *input.IsPublic != prompt.IsPublic
	if flipVisibility {
		if err := s.authorize(ctx, session, prompt, rbac.CapManage); err != nil {
			return store.Prompt{}, err
		}
	}

	if versionedFieldsChanged(prompt, next) {
		if next.ChangeNote == "" {
			next.ChangeNote = "Updated"
		}
		if _, err := s.store.AppendVersion(ctx, next); err != nil {
			return store.Prompt{}, fmt.Errorf("append version: %w", err)
		}
	}

	if flipVisibility {
		if err := s.store.SetPromptVisibility(ctx, prompt.ID, *input.IsPublic); err != nil {
			return store.Prompt{}, fmt.Errorf("set visibility: %w", err)
		}
	}

	updated, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.Prompt{}, err
	}
	s.indexPrompt(updated)
	return updated, nil
}

func (s *Service) DeletePrompt(ctx context.Context, session Session, promptID string) error {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapDelete); err != nil {
		return err
	}
	deleted, err := s.store.SoftDeletePrompt(ctx, promptID)
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	if !deleted {
		return notFound("Prompt not found")
	}
	if s.search != nil {
		s.search.DeletePrompt(promptID)
	}
	return nil
}

func (s *Service) History(ctx context.Context, session Session, promptID string) ([]store.PromptVersion, error) {
	prompt, err := s.readPrompt(ctx, session, promptID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	if versions == nil {
		versions = []store.PromptVersion{}
	}
	return versions, nil
}

func (s *Service) GetVersion(ctx context.Context, session Session, promptID string, number int) (store.PromptVersion, error) {
	prompt, err := s.readPrompt(ctx, session, promptID)
	if err != nil {
		return store.PromptVersion{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return store.PromptVersion{}, err
	}
	version, err := s.store.GetVersion(ctx, promptID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return store.PromptVersion{}, notFound("Version not found")
	}
	if err != nil {
		return store.PromptVersion{}, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Revert restores the snapshot of an earlier version by appending a new
// version with that content. The chain is never rewritten.
func (s *Service) Revert(ctx context.Context, session Session, promptID string, number int) (store.PromptVersion, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.PromptVersion{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapEdit); err != nil {
		return store.PromptVersion{}, err
	}

	snapshot, err := s.store.GetVersion(ctx, promptID, number)
	if errors.Is(err, sql.ErrNoRows) {
		return store.PromptVersion{}, notFound("Version not found")
	}
	if err != nil {
		return store.PromptVersion{}, fmt.Errorf("get version: %w", err)
	}

	appended, err := s.store.AppendVersion(ctx, store.AppendVersionParams{
		PromptID:    promptID,
		Title:       snapshot.Title,
		Description: snapshot.Description,
		Content:     snapshot.Content,
		Category:    snapshot.Category,
		Tags:        snapshot.Tags,
		ChangeNote:  fmt.Sprintf("Revert to version %d", number),
		ActorID:     session.UserID,
		ActorName:   session.UserName,
	})
	if err != nil {
		return store.PromptVersion{}, fmt.Errorf("append revert version: %w", err)
	}

	if updated, err := s.loadLivePrompt(ctx, promptID); err == nil {
		s.indexPrompt(updated)
	}
	return appended, nil
}

// Compare diffs two versions of the same prompt. Pure read; no storage side
// effects.
func (s *Service) Compare(ctx context.Context, session Session, promptID string, from, to int) (CompareResult, error) {
	prompt, err := s.readPrompt(ctx, session, promptID)
	if err != nil {
		return CompareResult{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return CompareResult{}, err
	}

	fromVersion, err := s.store.GetVersion(ctx, promptID, from)
	if errors.Is(err, sql.ErrNoRows) {
		return CompareResult{}, notFound(fmt.Sprintf("Version %d not found", from))
	}
	if err != nil {
		return CompareResult{}, fmt.Errorf("get version: %w", err)
	}
	toVersion, err := s.store.GetVersion(ctx, promptID, to)
	if errors.Is(err, sql.ErrNoRows) {
		return CompareResult{}, notFound(fmt.Sprintf("Version %d not found", to))
	}
	if err != nil {
		return CompareResult{}, fmt.Errorf("get version: %w", err)
	}

	return CompareResult{
		PromptID:      promptID,
		FromVersion:   from,
		ToVersion:     to,
		ChangedFields: changedVersionFields(fromVersion, toVersion),
		ContentDiff:   diff.Words(fromVersion.Content, toVersion.Content),
	}, nil
}

// RecordView bumps the view counter at most once per actor per window. The
// counter lives in Postgres; Redis only de-duplicates. When Redis is down
// the view counts anyway rather than failing the read path.
func (s *Service) RecordView(ctx context.Context, session Session, promptID string) (store.Prompt, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.Prompt{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return store.Prompt{}, err
	}

	count := true
	if s.views != nil {
		fresh, err := s.views.ShouldCount(ctx, promptID, session.UserID)
		if err == nil {
			count = fresh
		}
	}
	if count {
		if err := s.store.IncrementViews(ctx, promptID); err != nil {
			return store.Prompt{}, fmt.Errorf("increment views: %w", err)
		}
		prompt.Views++
	}
	return prompt, nil
}

func (s *Service) ToggleLike(ctx context.Context, session Session, promptID string) (bool, int, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return false, 0, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapView); err != nil {
		return false, 0, err
	}
	liked, likes, err := s.store.ToggleLike(ctx, promptID, session.UserID)
	if err != nil {
		return false, 0, fmt.Errorf("toggle like: %w", err)
	}
	return liked, likes, nil
}

func (s *Service) Search(ctx context.Context, session Session, text, category string, tags []string, limit int) search.Response {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := search.Query{
		Text:     strings.TrimSpace(text),
		Category: strings.TrimSpace(category),
		Tags:     normalizeTags(tags),
		ActorID:  session.UserID,
		Limit:    limit,
	}
	if s.search != nil {
		return s.search.Search(ctx, query)
	}
	prompts, err := s.store.SearchPrompts(ctx, query.Text, query.Category, query.Tags, query.ActorID)
	if err != nil {
		return search.Response{Results: []search.Result{}, Query: query.Text}
	}
	results := make([]search.Result, 0, len(prompts))
	for i, prompt := range prompts {
		if i >= limit {
			break
		}
		results = append(results, search.Result{
			ID:          prompt.ID,
			Title:       prompt.Title,
			Description: prompt.Description,
			Category:    prompt.Category,
			Tags:        prompt.Tags,
			AuthorName:  prompt.AuthorName,
		})
	}
	return search.Response{Results: results, Total: len(results), Query: query.Text}
}

func (s *Service) ListTags(ctx context.Context) ([]store.Tag, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	if tags == nil {
		tags = []store.Tag{}
	}
	return tags, nil
}

// Export builds a bundle of the prompt, its full history and rating summary
// and uploads it to object storage.
func (s *Service) Export(ctx context.Context, session Session, promptID string) (string, error) {
	if s.exporter == nil {
		return "", domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export storage not configured", nil)
	}
	prompt, err := s.GetPrompt(ctx, session, promptID)
	if err != nil {
		return "", err
	}
	versions, err := s.store.ListVersions(ctx, promptID)
	if err != nil {
		return "", fmt.Errorf("list versions: %w", err)
	}
	stats, err := s.store.RatingStats(ctx, promptID)
	if err != nil {
		return "", fmt.Errorf("rating stats: %w", err)
	}
	key, err := s.exporter.Upload(ctx, export.BuildBundle(prompt, versions, stats))
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	return key, nil
}

func (s *Service) indexPrompt(prompt store.Prompt) {
	if s.search == nil {
		return
	}
	s.search.IndexPrompt(search.PromptRecord{
		ID:          prompt.ID,
		Title:       prompt.Title,
		Description: prompt.Description,
		Content:     prompt.Content,
		Category:    prompt.Category,
		Tags:        prompt.Tags,
		AuthorID:    prompt.AuthorID,
		AuthorName:  prompt.AuthorName,
		IsPublic:    prompt.IsPublic,
	})
}

func validatePromptFields(title, content string) map[string]string {
	details := map[string]string{}
	if strings.TrimSpace(title) == "" {
		details["title"] = "title is required"
	}
	if strings.TrimSpace(content) == "" {
		details["content"] = "content is required"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := strings.ToLower(strings.TrimSpace(tag))
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

func versionedFieldsChanged(current store.Prompt, next store.AppendVersionParams) bool {
	return current.Title != next.Title ||
		current.Description != next.Description ||
		current.Content != next.Content ||
		current.Category != next.Category ||
		!sameTags(current.Tags, next.Tags)
}

func changedVersionFields(from, to store.PromptVersion) []string {
	fields := []string{}
	if from.Title != to.Title {
		fields = append(fields, "title")
	}
	if from.Description != to.Description {
		fields = append(fields, "description")
	}
	if from.Content != to.Content {
		fields = append(fields, "content")
	}
	if from.Category != to.Category {
		fields = append(fields, "category")
	}
	if !sameTags(from.Tags, to.Tags) {
		fields = append(fields, "tags")
	}
	return fields
}

func sameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	left := append([]string(nil), a...)
	right := append([]string(nil), b...)
	sort.Strings(left)
	sort.Strings(right)
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}
