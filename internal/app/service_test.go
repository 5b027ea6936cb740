package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"promptforge/api/internal/config"
	"promptforge/api/internal/store"
)

type fakeStore struct {
	getPromptFn           func(context.Context, string) (store.Prompt, error)
	listPromptsFn         func(context.Context, string) ([]store.Prompt, error)
	searchPromptsFn       func(context.Context, string, string, []string, string) ([]store.Prompt, error)
	createPromptFn        func(context.Context, store.Prompt) (store.PromptVersion, error)
	appendVersionFn       func(context.Context, store.AppendVersionParams) (store.PromptVersion, error)
	listVersionsFn        func(context.Context, string) ([]store.PromptVersion, error)
	getVersionFn          func(context.Context, string, int) (store.PromptVersion, error)
	setVisibilityFn       func(context.Context, string, bool) error
	softDeletePromptFn    func(context.Context, string) (bool, error)
	incrementViewsFn      func(context.Context, string) error
	toggleLikeFn          func(context.Context, string, string) (bool, int, error)
	activeGrantFn         func(context.Context, string, string) (*store.Permission, error)
	upsertGrantFn         func(context.Context, store.Permission) (string, error)
	getPermissionFn       func(context.Context, string) (store.Permission, error)
	revokeGrantFn         func(context.Context, string) (bool, error)
	listGrantsFn          func(context.Context, string) ([]store.Permission, error)
	insertCommentFn       func(context.Context, store.Comment) error
	getCommentFn          func(context.Context, string) (store.Comment, error)
	softDeleteCommentFn   func(context.Context, string) (bool, error)
	toggleCommentLikeFn   func(context.Context, string, string) (bool, int, error)
	insertDiscussionFn    func(context.Context, store.Discussion) error
	getDiscussionFn       func(context.Context, string) (store.Discussion, error)
	setDiscussionStatusFn func(context.Context, string, string) (bool, error)
	upsertRatingFn        func(context.Context, store.Rating) (store.Rating, error)
	getRatingFn           func(context.Context, string) (store.Rating, error)
	deleteRatingFn        func(context.Context, string) (bool, error)
	ratingStatsFn         func(context.Context, string) (store.RatingStats, error)
	getShareLinkByTokenFn func(context.Context, string) (*store.ShareLink, error)
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) EnsureUser(ctx context.Context, userID, displayName string) (store.User, error) {
	return store.User{ID: userID, DisplayName: displayName}, nil
}
func (f *fakeStore) GetUser(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetPrompt(ctx context.Context, promptID string) (store.Prompt, error) {
	if f.getPromptFn != nil {
		return f.getPromptFn(ctx, promptID)
	}
	return store.Prompt{}, sql.ErrNoRows
}
func (f *fakeStore) ListPrompts(ctx context.Context, actorID string) ([]store.Prompt, error) {
	if f.listPromptsFn != nil {
		return f.listPromptsFn(ctx, actorID)
	}
	return nil, nil
}
func (f *fakeStore) SearchPrompts(ctx context.Context, query, category string, tags []string, actorID string) ([]store.Prompt, error) {
	if f.searchPromptsFn != nil {
		return f.searchPromptsFn(ctx, query, category, tags, actorID)
	}
	return nil, nil
}
func (f *fakeStore) CreatePrompt(ctx context.Context, prompt store.Prompt) (store.PromptVersion, error) {
	if f.createPromptFn != nil {
		return f.createPromptFn(ctx, prompt)
	}
	return store.PromptVersion{PromptID: prompt.ID, Version: 1}, nil
}
func (f *fakeStore) AppendVersion(ctx context.Context, params store.AppendVersionParams) (store.PromptVersion, error) {
	if f.appendVersionFn != nil {
		return f.appendVersionFn(ctx, params)
	}
	return store.PromptVersion{PromptID: params.PromptID, Version: 2}, nil
}
func (f *fakeStore) ListVersions(ctx context.Context, promptID string) ([]store.PromptVersion, error) {
	if f.listVersionsFn != nil {
		return f.listVersionsFn(ctx, promptID)
	}
	return nil, nil
}
func (f *fakeStore) GetVersion(ctx context.Context, promptID string, number int) (store.PromptVersion, error) {
	if f.getVersionFn != nil {
		return f.getVersionFn(ctx, promptID, number)
	}
	return store.PromptVersion{}, sql.ErrNoRows
}
func (f *fakeStore) SetPromptVisibility(ctx context.Context, promptID string, isPublic bool) error {
	if f.setVisibilityFn != nil {
		return f.setVisibilityFn(ctx, promptID, isPublic)
	}
	return nil
}
func (f *fakeStore) SoftDeletePrompt(ctx context.Context, promptID string) (bool, error) {
	if f.softDeletePromptFn != nil {
		return f.softDeletePromptFn(ctx, promptID)
	}
	return true, nil
}
func (f *fakeStore) IncrementViews(ctx context.Context, promptID string) error {
	if f.incrementViewsFn != nil {
		return f.incrementViewsFn(ctx, promptID)
	}
	return nil
}
func (f *fakeStore) ToggleLike(ctx context.Context, promptID, userID string) (bool, int, error) {
	if f.toggleLikeFn != nil {
		return f.toggleLikeFn(ctx, promptID, userID)
	}
	return true, 1, nil
}
func (f *fakeStore) ListTags(context.Context) ([]store.Tag, error) { return nil, nil }
func (f *fakeStore) ActiveGrant(ctx context.Context, promptID, userID string) (*store.Permission, error) {
	if f.activeGrantFn != nil {
		return f.activeGrantFn(ctx, promptID, userID)
	}
	return nil, nil
}
func (f *fakeStore) UpsertGrant(ctx context.Context, grant store.Permission) (string, error) {
	if f.upsertGrantFn != nil {
		return f.upsertGrantFn(ctx, grant)
	}
	return grant.ID, nil
}
func (f *fakeStore) GetPermission(ctx context.Context, permissionID string) (store.Permission, error) {
	if f.getPermissionFn != nil {
		return f.getPermissionFn(ctx, permissionID)
	}
	return store.Permission{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeGrant(ctx context.Context, permissionID string) (bool, error) {
	if f.revokeGrantFn != nil {
		return f.revokeGrantFn(ctx, permissionID)
	}
	return true, nil
}
func (f *fakeStore) ListGrants(ctx context.Context, promptID string) ([]store.Permission, error) {
	if f.listGrantsFn != nil {
		return f.listGrantsFn(ctx, promptID)
	}
	return nil, nil
}
func (f *fakeStore) InsertShareLink(context.Context, store.ShareLink) error { return nil }
func (f *fakeStore) GetShareLinkByToken(ctx context.Context, token string) (*store.ShareLink, error) {
	if f.getShareLinkByTokenFn != nil {
		return f.getShareLinkByTokenFn(ctx, token)
	}
	return nil, nil
}
func (f *fakeStore) ListShareLinks(context.Context, string) ([]store.ShareLink, error) {
	return nil, nil
}
func (f *fakeStore) RevokeShareLink(context.Context, string) (bool, error) { return true, nil }
func (f *fakeStore) IncrementShareLinkAccess(context.Context, string) error { return nil }
func (f *fakeStore) InsertComment(ctx context.Context, comment store.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, comment)
	}
	return nil
}
func (f *fakeStore) GetComment(ctx context.Context, commentID string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, commentID)
	}
	return store.Comment{}, sql.ErrNoRows
}
func (f *fakeStore) ListComments(context.Context, string) ([]store.Comment, error) {
	return nil, nil
}
func (f *fakeStore) ListDiscussionComments(context.Context, string) ([]store.Comment, error) {
	return nil, nil
}
func (f *fakeStore) SoftDeleteComment(ctx context.Context, commentID string) (bool, error) {
	if f.softDeleteCommentFn != nil {
		return f.softDeleteCommentFn(ctx, commentID)
	}
	return true, nil
}
func (f *fakeStore) ToggleCommentLike(ctx context.Context, commentID, userID string) (bool, int, error) {
	if f.toggleCommentLikeFn != nil {
		return f.toggleCommentLikeFn(ctx, commentID, userID)
	}
	return true, 1, nil
}
func (f *fakeStore) InsertDiscussion(ctx context.Context, discussion store.Discussion) error {
	if f.insertDiscussionFn != nil {
		return f.insertDiscussionFn(ctx, discussion)
	}
	return nil
}
func (f *fakeStore) GetDiscussion(ctx context.Context, discussionID string) (store.Discussion, error) {
	if f.getDiscussionFn != nil {
		return f.getDiscussionFn(ctx, discussionID)
	}
	return store.Discussion{}, sql.ErrNoRows
}
func (f *fakeStore) ListDiscussions(context.Context, string) ([]store.Discussion, error) {
	return nil, nil
}
func (f *fakeStore) SetDiscussionStatus(ctx context.Context, discussionID, status string) (bool, error) {
	if f.setDiscussionStatusFn != nil {
		return f.setDiscussionStatusFn(ctx, discussionID, status)
	}
	return true, nil
}
func (f *fakeStore) UpsertRating(ctx context.Context, rating store.Rating) (store.Rating, error) {
	if f.upsertRatingFn != nil {
		return f.upsertRatingFn(ctx, rating)
	}
	return rating, nil
}
func (f *fakeStore) GetRating(ctx context.Context, ratingID string) (store.Rating, error) {
	if f.getRatingFn != nil {
		return f.getRatingFn(ctx, ratingID)
	}
	return store.Rating{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteRating(ctx context.Context, ratingID string) (bool, error) {
	if f.deleteRatingFn != nil {
		return f.deleteRatingFn(ctx, ratingID)
	}
	return true, nil
}
func (f *fakeStore) RatingStats(ctx context.Context, promptID string) (store.RatingStats, error) {
	if f.ratingStatsFn != nil {
		return f.ratingStatsFn(ctx, promptID)
	}
	return store.RatingStats{PromptID: promptID, Distribution: map[int]int{}}, nil
}

func newTestService(fake *fakeStore) *Service {
	return &Service{
		cfg:   config.Config{TokenSecret: "test-secret", TokenTTL: time.Hour},
		store: fake,
	}
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
}

func livePrompt(authorID string, isPublic bool) store.Prompt {
	return store.Prompt{
		ID:       "pmt_1",
		AuthorID: authorID,
		Title:    "Summarizer",
		Content:  "Summarize {{input}}.",
		Category: "writing",
		Tags:     []string{"nlp"},
		IsPublic: isPublic,
	}
}

func TestUpdatePromptVersionPolicy(t *testing.T) {
	appendCalls := 0
	var lastParams store.AppendVersionParams
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_a", false), nil
		},
		appendVersionFn: func(_ context.Context, params store.AppendVersionParams) (store.PromptVersion, error) {
			appendCalls++
			lastParams = params
			return store.PromptVersion{PromptID: params.PromptID, Version: 2}, nil
		},
	}
	service := newTestService(fake)
	session := Session{UserID: "user_a", UserName: "Ana"}

	sameTitle := "Summarizer"
	sameContent := "Summarize {{input}}."
	if _, err := service.UpdatePrompt(context.Background(), session, "pmt_1", UpdatePromptInput{
		Title:   &sameTitle,
		Content: &sameContent,
	}); err != nil {
		t.Fatalf("unchanged update: %v", err)
	}
	if appendCalls != 0 {
		t.Fatalf("unchanged update created a version")
	}

	newContent := "Summarize {{input}} in three bullets."
	if _, err := service.UpdatePrompt(context.Background(), session, "pmt_1", UpdatePromptInput{
		Content: &newContent,
	}); err != nil {
		t.Fatalf("changed update: %v", err)
	}
	if appendCalls != 1 {
		t.Fatalf("changed update did not create a version")
	}
	if lastParams.Content != newContent {
		t.Fatalf("version content = %q", lastParams.Content)
	}
	if lastParams.ChangeNote != "Updated" {
		t.Fatalf("default change note = %q", lastParams.ChangeNote)
	}
	if lastParams.Title != "Summarizer" {
		t.Fatalf("unchanged fields must carry over, title = %q", lastParams.Title)
	}
}

func TestUpdatePromptVisibilityNeedsManage(t *testing.T) {
	appendCalls := 0
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_a", false), nil
		},
		appendVersionFn: func(_ context.Context, params store.AppendVersionParams) (store.PromptVersion, error) {
			appendCalls++
			return store.PromptVersion{}, nil
		},
		activeGrantFn: func(_ context.Context, _, userID string) (*store.Permission, error) {
			if userID == "user_b" {
				return &store.Permission{Role: "editor"}, nil
			}
			return nil, nil
		},
	}
	service := newTestService(fake)

	public := true
	_, err := service.UpdatePrompt(context.Background(), Session{UserID: "user_b"}, "pmt_1", UpdatePromptInput{
		IsPublic: &public,
	})
	assertDomainCode(t, err, "FORBIDDEN")
	if appendCalls != 0 {
		t.Fatalf("visibility flip must not create a version")
	}
}

func TestUpdatePromptDeniedVisibilityFlipWritesNothing(t *testing.T) {
	appendCalls := 0
	visibilityCalls := 0
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_a", false), nil
		},
		appendVersionFn: func(_ context.Context, params store.AppendVersionParams) (store.PromptVersion, error) {
			appendCalls++
			return store.PromptVersion{}, nil
		},
		setVisibilityFn: func(context.Context, string, bool) error {
			visibilityCalls++
			return nil
		},
		activeGrantFn: func(_ context.Context, _, userID string) (*store.Permission, error) {
			if userID == "user_b" {
				return &store.Permission{Role: "editor"}, nil
			}
			return nil, nil
		},
	}
	service := newTestService(fake)

	content := "new content"
	public := true
	_, err := service.UpdatePrompt(context.Background(), Session{UserID: "user_b"}, "pmt_1", UpdatePromptInput{
		Content:  &content,
		IsPublic: &public,
	})
	assertDomainCode(t, err, "FORBIDDEN")
	if appendCalls != 0 {
		t.Fatalf("denied update appended %d versions, want 0", appendCalls)
	}
	if visibilityCalls != 0 {
		t.Fatalf("denied update changed visibility %d times, want 0", visibilityCalls)
	}
}

func TestRevertAppendsForwardVersion(t *testing.T) {
	var appended store.AppendVersionParams
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_a", false), nil
		},
		getVersionFn: func(_ context.Context, promptID string, number int) (store.PromptVersion, error) {
			if number != 2 {
				return store.PromptVersion{}, sql.ErrNoRows
			}
			return store.PromptVersion{
				PromptID: promptID,
				Version:  2,
				Title:    "Old title",
				Content:  "Old content",
				Tags:     []string{"legacy"},
			}, nil
		},
		appendVersionFn: func(_ context.Context, params store.AppendVersionParams) (store.PromptVersion, error) {
			appended = params
			return store.PromptVersion{PromptID: params.PromptID, Version: 6}, nil
		},
	}
	service := newTestService(fake)
	session := Session{UserID: "user_a", UserName: "Ana"}

	version, err := service.Revert(context.Background(), session, "pmt_1", 2)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if version.Version != 6 {
		t.Fatalf("revert must append forward, got version %d", version.Version)
	}
	if appended.Content != "Old content" || appended.Title != "Old title" {
		t.Fatalf("revert did not restore snapshot: %+v", appended)
	}
	if appended.ChangeNote != "Revert to version 2" {
		t.Fatalf("change note = %q", appended.ChangeNote)
	}

	_, err = service.Revert(context.Background(), session, "pmt_1", 99)
	assertDomainCode(t, err, "NOT_FOUND")
}

func TestAuthorizeResolutionOrder(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
		activeGrantFn: func(_ context.Context, _, userID string) (*store.Permission, error) {
			if userID == "user_editor" {
				return &store.Permission{ID: "perm_1", Role: "editor"}, nil
			}
			return nil, nil
		},
	}
	service := newTestService(fake)

	cases := []struct {
		name    string
		session Session
		wantErr string
	}{
		{name: "author can delete", session: Session{UserID: "user_author"}},
		{name: "editor grant cannot delete", session: Session{UserID: "user_editor"}, wantErr: "FORBIDDEN"},
		{name: "public fallback cannot delete", session: Session{UserID: "user_stranger"}, wantErr: "FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := service.DeletePrompt(context.Background(), tc.session, "pmt_1")
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertDomainCode(t, err, tc.wantErr)
		})
	}
}

func TestPrivatePromptInvisibleWithoutGrant(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", false), nil
		},
	}
	service := newTestService(fake)

	_, err := service.GetPrompt(context.Background(), Session{UserID: "user_stranger"}, "pmt_1")
	assertDomainCode(t, err, "FORBIDDEN")

	if _, err := service.GetPrompt(context.Background(), Session{UserID: "user_author"}, "pmt_1"); err != nil {
		t.Fatalf("author read: %v", err)
	}
}

func TestSoftDeletedPromptVisibility(t *testing.T) {
	deletedAt := time.Now()
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			prompt := livePrompt("user_author", true)
			prompt.DeletedAt = &deletedAt
			return prompt, nil
		},
	}
	service := newTestService(fake)

	// Gone for everyone else, even though the prompt was public.
	_, err := service.GetPrompt(context.Background(), Session{UserID: "user_stranger"}, "pmt_1")
	assertDomainCode(t, err, "NOT_FOUND")

	// The author can still inspect it and its history by id.
	if _, err := service.GetPrompt(context.Background(), Session{UserID: "user_author"}, "pmt_1"); err != nil {
		t.Fatalf("author read of deleted prompt: %v", err)
	}
	if _, err := service.History(context.Background(), Session{UserID: "user_author"}, "pmt_1"); err != nil {
		t.Fatalf("author history of deleted prompt: %v", err)
	}

	// Mutations are off for everyone, the author included.
	content := "new content"
	_, err = service.UpdatePrompt(context.Background(), Session{UserID: "user_author"}, "pmt_1", UpdatePromptInput{Content: &content})
	assertDomainCode(t, err, "NOT_FOUND")
}

func TestGrantPermissionValidation(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", false), nil
		},
		getPermissionFn: func(_ context.Context, id string) (store.Permission, error) {
			return store.Permission{ID: id, PromptID: "pmt_1", Role: "editor"}, nil
		},
	}
	service := newTestService(fake)
	owner := Session{UserID: "user_author", UserName: "Ana"}

	_, err := service.GrantPermission(context.Background(), owner, "pmt_1", GrantPermissionInput{
		UserName: "Ben", Role: "admin",
	})
	assertDomainCode(t, err, "VALIDATION_ERROR")

	_, err = service.GrantPermission(context.Background(), owner, "pmt_1", GrantPermissionInput{
		UserID: "user_author", Role: "editor",
	})
	assertDomainCode(t, err, "CONFLICT")

	_, err = service.GrantPermission(context.Background(), Session{UserID: "user_stranger"}, "pmt_1", GrantPermissionInput{
		UserName: "Ben", Role: "editor",
	})
	assertDomainCode(t, err, "FORBIDDEN")

	if _, err := service.GrantPermission(context.Background(), owner, "pmt_1", GrantPermissionInput{
		UserName: "Ben", Role: "editor",
	}); err != nil {
		t.Fatalf("valid grant: %v", err)
	}
}

func TestGrantReplacesExistingGrant(t *testing.T) {
	var upserted store.Permission
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", false), nil
		},
		upsertGrantFn: func(_ context.Context, grant store.Permission) (string, error) {
			upserted = grant
			return grant.ID, nil
		},
		getPermissionFn: func(_ context.Context, id string) (store.Permission, error) {
			return store.Permission{ID: id, PromptID: "pmt_1", Role: upserted.Role}, nil
		},
	}
	service := newTestService(fake)

	grant, err := service.GrantPermission(context.Background(), Session{UserID: "user_author"}, "pmt_1", GrantPermissionInput{
		UserName: "Ben", Role: "viewer",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if grant.Role != "viewer" {
		t.Fatalf("role = %q", grant.Role)
	}
	if upserted.UserID == "" || upserted.GrantedBy != "user_author" {
		t.Fatalf("upserted grant incomplete: %+v", upserted)
	}
}

func TestRevokePermissionTwiceConflicts(t *testing.T) {
	revokedAt := time.Now()
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", false), nil
		},
		getPermissionFn: func(_ context.Context, id string) (store.Permission, error) {
			return store.Permission{ID: id, PromptID: "pmt_1", Role: "editor", RevokedAt: &revokedAt}, nil
		},
	}
	service := newTestService(fake)

	err := service.RevokePermission(context.Background(), Session{UserID: "user_author"}, "pmt_1", "perm_1")
	assertDomainCode(t, err, "CONFLICT")
}

func TestCreateCommentParentValidation(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
		getCommentFn: func(_ context.Context, commentID string) (store.Comment, error) {
			if commentID == "cmt_other" {
				return store.Comment{ID: commentID, PromptID: "pmt_other"}, nil
			}
			if commentID == "cmt_here" {
				return store.Comment{ID: commentID, PromptID: "pmt_1"}, nil
			}
			return store.Comment{}, sql.ErrNoRows
		},
	}
	service := newTestService(fake)
	session := Session{UserID: "user_b", UserName: "Ben"}

	otherParent := "cmt_other"
	_, err := service.CreateComment(context.Background(), session, "pmt_1", CreateCommentInput{
		Content: "Reply", ParentID: &otherParent,
	})
	assertDomainCode(t, err, "VALIDATION_ERROR")

	missing := "cmt_missing"
	_, err = service.CreateComment(context.Background(), session, "pmt_1", CreateCommentInput{
		Content: "Reply", ParentID: &missing,
	})
	assertDomainCode(t, err, "NOT_FOUND")

	goodParent := "cmt_here"
	if _, err := service.CreateComment(context.Background(), session, "pmt_1", CreateCommentInput{
		Content: "Reply", ParentID: &goodParent,
	}); err != nil {
		t.Fatalf("valid reply: %v", err)
	}
}

func TestPublicViewerCannotComment(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
	}
	service := newTestService(fake)

	_, err := service.CreateComment(context.Background(), Session{UserID: "user_stranger"}, "pmt_1", CreateCommentInput{
		Content: "Hi",
	})
	assertDomainCode(t, err, "FORBIDDEN")
}

func TestDeleteCommentAuthorOnly(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
		getCommentFn: func(_ context.Context, commentID string) (store.Comment, error) {
			return store.Comment{ID: commentID, PromptID: "pmt_1", AuthorID: "user_b"}, nil
		},
	}
	service := newTestService(fake)

	// The prompt author still may not delete someone else's comment.
	err := service.DeleteComment(context.Background(), Session{UserID: "user_author"}, "pmt_1", "cmt_1")
	assertDomainCode(t, err, "FORBIDDEN")

	if err := service.DeleteComment(context.Background(), Session{UserID: "user_b"}, "pmt_1", "cmt_1"); err != nil {
		t.Fatalf("author delete: %v", err)
	}
}

func TestSetDiscussionStatus(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
		getDiscussionFn: func(_ context.Context, discussionID string) (store.Discussion, error) {
			return store.Discussion{ID: discussionID, PromptID: "pmt_1", Status: "open"}, nil
		},
		activeGrantFn: func(_ context.Context, _, userID string) (*store.Permission, error) {
			if userID == "user_commenter" {
				return &store.Permission{Role: "commenter"}, nil
			}
			return nil, nil
		},
	}
	service := newTestService(fake)
	owner := Session{UserID: "user_author"}

	_, err := service.SetDiscussionStatus(context.Background(), owner, "pmt_1", "dsc_1", "archived")
	assertDomainCode(t, err, "VALIDATION_ERROR")

	_, err = service.SetDiscussionStatus(context.Background(), Session{UserID: "user_commenter"}, "pmt_1", "dsc_1", "resolved")
	assertDomainCode(t, err, "FORBIDDEN")

	if _, err := service.SetDiscussionStatus(context.Background(), owner, "pmt_1", "dsc_1", "resolved"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Reopening a resolved discussion is legal.
	if _, err := service.SetDiscussionStatus(context.Background(), owner, "pmt_1", "dsc_1", "open"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestRatePromptValidation(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
	}
	service := newTestService(fake)
	session := Session{UserID: "user_b", UserName: "Ben"}

	for _, score := range []int{0, 6, -1} {
		_, err := service.RatePrompt(context.Background(), session, "pmt_1", RatePromptInput{Score: score})
		assertDomainCode(t, err, "VALIDATION_ERROR")
	}

	_, err := service.RatePrompt(context.Background(), session, "pmt_1", RatePromptInput{Score: 4, Helpfulness: 101})
	assertDomainCode(t, err, "VALIDATION_ERROR")

	rating, err := service.RatePrompt(context.Background(), session, "pmt_1", RatePromptInput{
		Score: 4, Helpfulness: 80, Accuracy: 90, Relevance: 70,
	})
	if err != nil {
		t.Fatalf("valid rating: %v", err)
	}
	if rating.UserID != "user_b" || rating.Score != 4 {
		t.Fatalf("rating = %+v", rating)
	}
}

func TestDeleteRatingRaterOnly(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
		getRatingFn: func(_ context.Context, ratingID string) (store.Rating, error) {
			return store.Rating{ID: ratingID, PromptID: "pmt_1", UserID: "user_b"}, nil
		},
	}
	service := newTestService(fake)

	err := service.DeleteRating(context.Background(), Session{UserID: "user_author"}, "pmt_1", "rat_1")
	assertDomainCode(t, err, "FORBIDDEN")

	if err := service.DeleteRating(context.Background(), Session{UserID: "user_b"}, "pmt_1", "rat_1"); err != nil {
		t.Fatalf("rater delete: %v", err)
	}
}

type fakeTracker struct {
	count bool
}

func (f *fakeTracker) ShouldCount(context.Context, string, string) (bool, error) {
	return f.count, nil
}

func TestRecordViewDeduplicates(t *testing.T) {
	increments := 0
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
		incrementViewsFn: func(context.Context, string) error {
			increments++
			return nil
		},
	}
	service := newTestService(fake)
	session := Session{UserID: "user_b"}

	service.views = &fakeTracker{count: true}
	if _, err := service.RecordView(context.Background(), session, "pmt_1"); err != nil {
		t.Fatalf("first view: %v", err)
	}
	if increments != 1 {
		t.Fatalf("first view not counted")
	}

	service.views = &fakeTracker{count: false}
	if _, err := service.RecordView(context.Background(), session, "pmt_1"); err != nil {
		t.Fatalf("repeat view: %v", err)
	}
	if increments != 1 {
		t.Fatalf("repeat view within window must not count")
	}
}

func TestCompareReportsChangedFields(t *testing.T) {
	fake := &fakeStore{
		getPromptFn: func(context.Context, string) (store.Prompt, error) {
			return livePrompt("user_author", true), nil
		},
		getVersionFn: func(_ context.Context, promptID string, number int) (store.PromptVersion, error) {
			if number == 1 {
				return store.PromptVersion{PromptID: promptID, Version: 1, Title: "A", Content: "one two"}, nil
			}
			return store.PromptVersion{PromptID: promptID, Version: 2, Title: "B", Content: "one three"}, nil
		},
	}
	service := newTestService(fake)

	result, err := service.Compare(context.Background(), Session{UserID: "user_b"}, "pmt_1", 1, 2)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	wantFields := map[string]bool{"title": true, "content": true}
	if len(result.ChangedFields) != 2 {
		t.Fatalf("changed fields = %v", result.ChangedFields)
	}
	for _, field := range result.ChangedFields {
		if !wantFields[field] {
			t.Fatalf("unexpected changed field %q", field)
		}
	}
	if len(result.ContentDiff) == 0 {
		t.Fatalf("expected a content diff")
	}
}

func TestLoginIssuesStableUserID(t *testing.T) {
	service := newTestService(&fakeStore{})

	first, err := service.Login(context.Background(), "Ana")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := service.Login(context.Background(), "ana ")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if first.UserID != second.UserID {
		t.Fatalf("user id must be stable per name: %s vs %s", first.UserID, second.UserID)
	}

	parsed, err := service.SessionFromToken(context.Background(), first.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if parsed.UserID != first.UserID {
		t.Fatalf("token round trip lost user id")
	}
}
