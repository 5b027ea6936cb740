package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"promptforge/api/internal/rbac"
	"promptforge/api/internal/store"
	"promptforge/api/internal/util"
)

type GrantPermissionInput struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

type CreateShareLinkInput struct {
	Password  string     `json:"password"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// SharedPrompt is the read-only view handed out for a share-link access.
type SharedPrompt struct {
	Prompt   store.Prompt          `json:"prompt"`
	Versions []store.PromptVersion `json:"versions"`
}

// roleFor resolves the actor's effective role on a prompt. Resolution order:
// author, then the single active grant, then public viewership. A missing
// role means no access at all.
func (s *Service) roleFor(ctx context.Context, session Session, prompt store.Prompt) (rbac.Role, bool, error) {
	if session.UserID != "" && session.UserID == prompt.AuthorID {
		return rbac.RoleOwner, true, nil
	}
	if session.UserID != "" {
		grant, err := s.store.ActiveGrant(ctx, prompt.ID, session.UserID)
		if err != nil {
			return "", false, fmt.Errorf("lookup grant: %w", err)
		}
		if grant != nil {
			role, ok := rbac.ParseRole(grant.Role)
			if !ok {
				return "", false, fmt.Errorf("grant %s has malformed role %q", grant.ID, grant.Role)
			}
			return role, true, nil
		}
	}
	if prompt.IsPublic {
		return rbac.RoleViewer, true, nil
	}
	return "", false, nil
}

func (s *Service) authorize(ctx context.Context, session Session, prompt store.Prompt, cap rbac.Capability) error {
	role, ok, err := s.roleFor(ctx, session, prompt)
	if err != nil {
		return err
	}
	if !ok || !rbac.Can(role, cap) {
		return forbidden("You do not have permission to perform this action")
	}
	return nil
}

// GrantPermission gives a user a role on a prompt. The actor needs manage.
// Granting replaces any existing active grant for the same user; at most one
// active grant per (prompt, user) pair exists at any time.
func (s *Service) GrantPermission(ctx context.Context, session Session, promptID string, input GrantPermissionInput) (store.Permission, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.Permission{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapManage); err != nil {
		return store.Permission{}, err
	}

	role, ok := rbac.ParseRole(strings.TrimSpace(input.Role))
	if !ok {
		return store.Permission{}, validationError("Invalid role", map[string]string{
			"role": "must be one of viewer, commenter, editor, owner",
		})
	}

	granteeID := strings.TrimSpace(input.UserID)
	granteeName := strings.TrimSpace(input.UserName)
	if granteeID == "" && granteeName != "" {
		granteeID = userIDFromName(granteeName)
	}
	if granteeID == "" {
		return store.Permission{}, validationError("Invalid grantee", map[string]string{
			"userId": "userId or userName is required",
		})
	}
	if granteeID == prompt.AuthorID {
		return store.Permission{}, conflict("The author already holds every capability")
	}
	if granteeName != "" {
		if _, err := s.store.EnsureUser(ctx, granteeID, granteeName); err != nil {
			return store.Permission{}, fmt.Errorf("ensure grantee: %w", err)
		}
	} else if _, err := s.store.GetUser(ctx, granteeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Permission{}, notFound("User not found")
		}
		return store.Permission{}, fmt.Errorf("get grantee: %w", err)
	}

	grantID, err := s.store.UpsertGrant(ctx, store.Permission{
		ID:        util.NewID("perm"),
		PromptID:  promptID,
		UserID:    granteeID,
		Role:      string(role),
		GrantedBy: session.UserID,
	})
	if err != nil {
		return store.Permission{}, fmt.Errorf("upsert grant: %w", err)
	}

	grant, err := s.store.GetPermission(ctx, grantID)
	if err != nil {
		return store.Permission{}, fmt.Errorf("get grant: %w", err)
	}
	return grant, nil
}

// RevokePermission stamps revoked_at on a grant. The row stays for audit.
func (s *Service) RevokePermission(ctx context.Context, session Session, promptID, permissionID string) error {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapManage); err != nil {
		return err
	}

	grant, err := s.store.GetPermission(ctx, permissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("Permission not found")
	}
	if err != nil {
		return fmt.Errorf("get grant: %w", err)
	}
	if grant.PromptID != promptID {
		return notFound("Permission not found")
	}
	if grant.RevokedAt != nil {
		return conflict("Permission already revoked")
	}

	revoked, err := s.store.RevokeGrant(ctx, permissionID)
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	if !revoked {
		return conflict("Permission already revoked")
	}
	return nil
}

func (s *Service) ListPermissions(ctx context.Context, session Session, promptID string) ([]store.Permission, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapManage); err != nil {
		return nil, err
	}
	grants, err := s.store.ListGrants(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	if grants == nil {
		grants = []store.Permission{}
	}
	return grants, nil
}

// CreateShareLink mints a token granting anonymous viewer access, optionally
// password protected and time limited.
func (s *Service) CreateShareLink(ctx context.Context, session Session, promptID string, input CreateShareLinkInput) (store.ShareLink, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return store.ShareLink{}, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapManage); err != nil {
		return store.ShareLink{}, err
	}
	if input.ExpiresAt != nil && input.ExpiresAt.Before(time.Now()) {
		return store.ShareLink{}, validationError("Invalid expiry", map[string]string{
			"expiresAt": "must be in the future",
		})
	}

	link := store.ShareLink{
		ID:        util.NewID("lnk"),
		Token:     util.NewID("share"),
		PromptID:  promptID,
		CreatedBy: session.UserID,
		ExpiresAt: input.ExpiresAt,
	}
	if input.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return store.ShareLink{}, fmt.Errorf("hash password: %w", err)
		}
		hash := string(hashed)
		link.PasswordHash = &hash
	}

	if err := s.store.InsertShareLink(ctx, link); err != nil {
		return store.ShareLink{}, fmt.Errorf("insert share link: %w", err)
	}
	return link, nil
}

func (s *Service) ListShareLinks(ctx context.Context, session Session, promptID string) ([]store.ShareLink, error) {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapManage); err != nil {
		return nil, err
	}
	links, err := s.store.ListShareLinks(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	if links == nil {
		links = []store.ShareLink{}
	}
	return links, nil
}

func (s *Service) RevokeShareLink(ctx context.Context, session Session, promptID, linkID string) error {
	prompt, err := s.loadLivePrompt(ctx, promptID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, session, prompt, rbac.CapManage); err != nil {
		return err
	}
	revoked, err := s.store.RevokeShareLink(ctx, linkID)
	if err != nil {
		return fmt.Errorf("revoke share link: %w", err)
	}
	if !revoked {
		return notFound("Share link not found")
	}
	return nil
}

// ResolveShareLink grants anonymous viewer access by token. Revoked or
// expired tokens read as missing; a wrong password is Forbidden.
func (s *Service) ResolveShareLink(ctx context.Context, token, password string) (SharedPrompt, error) {
	link, err := s.store.GetShareLinkByToken(ctx, token)
	if err != nil {
		return SharedPrompt{}, fmt.Errorf("get share link: %w", err)
	}
	if link == nil {
		return SharedPrompt{}, notFound("Share link not found")
	}
	if link.PasswordHash != nil {
		if bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)) != nil {
			return SharedPrompt{}, forbidden("Password required")
		}
	}

	prompt, err := s.loadLivePrompt(ctx, link.PromptID)
	if err != nil {
		return SharedPrompt{}, err
	}
	versions, err := s.store.ListVersions(ctx, link.PromptID)
	if err != nil {
		return SharedPrompt{}, fmt.Errorf("list versions: %w", err)
	}
	if versions == nil {
		versions = []store.PromptVersion{}
	}

	if err := s.store.IncrementShareLinkAccess(ctx, link.ID); err != nil {
		return SharedPrompt{}, fmt.Errorf("count share access: %w", err)
	}
	return SharedPrompt{Prompt: prompt, Versions: versions}, nil
}
