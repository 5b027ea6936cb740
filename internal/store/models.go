package store

import "time"

type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

// Prompt is the mutable current projection of a shared prompt. The versioned
// fields (title, description, content, category, tags) always mirror the
// highest-numbered PromptVersion; views and likes are metadata only.
type Prompt struct {
	ID          string
	AuthorID    string
	AuthorName  string
	Title       string
	Description string
	Content     string
	Category    string
	IsPublic    bool
	Tags        []string
	Views       int
	Likes       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// PromptVersion is an immutable content snapshot. Version numbers are
// gap-free per prompt, starting at 1.
type PromptVersion struct {
	ID          string
	PromptID    string
	Version     int
	Title       string
	Description string
	Content     string
	Category    string
	Tags        []string
	ChangeNote  string
	ActorID     string
	ActorName   string
	CreatedAt   time.Time
}

// Permission is a role grant on a prompt. At most one active (non-revoked)
// row exists per (prompt, user) pair; revocation stamps RevokedAt.
type Permission struct {
	ID        string
	PromptID  string
	UserID    string
	Role      string
	GrantedBy string
	GrantedAt time.Time
	RevokedAt *time.Time
	// Joined fields for API responses
	UserName  string
	UserEmail string
}

type Comment struct {
	ID           string
	PromptID     string
	DiscussionID *string
	ParentID     *string
	AuthorID     string
	AuthorName   string
	Content      string
	LikeCount    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

type Discussion struct {
	ID            string
	PromptID      string
	Title         string
	Description   string
	AuthorID      string
	AuthorName    string
	Status        string
	CommentCount  int
	LastCommentAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Rating struct {
	ID          string
	PromptID    string
	UserID      string
	UserName    string
	Score       int
	Feedback    string
	Helpfulness int
	Accuracy    int
	Relevance   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RatingStats is recomputed from the live rating rows on every read.
type RatingStats struct {
	PromptID       string
	Average        float64
	Total          int
	AvgHelpfulness float64
	AvgAccuracy    float64
	AvgRelevance   float64
	Distribution   map[int]int
}

type Tag struct {
	ID       string
	Name     string
	RefCount int
}

// ShareLink grants anonymous viewer access to a prompt by token.
type ShareLink struct {
	ID             string
	Token          string
	PromptID       string
	CreatedBy      string
	PasswordHash   *string
	ExpiresAt      *time.Time
	AccessCount    int
	LastAccessedAt *time.Time
	CreatedAt      time.Time
	RevokedAt      *time.Time
}
