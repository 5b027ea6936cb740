package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"promptforge/api/internal/auth"
	"promptforge/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     session.Token,
			"userId":    session.UserID,
			"userName":  session.UserName,
			"expiresAt": session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
		})
		return
	}

	// Share links need no session
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/share/") {
		token := strings.TrimPrefix(r.URL.Path, "/api/share/")
		if token != "" {
			shared, err := s.service.ResolveShareLink(r.Context(), token, r.URL.Query().Get("password"))
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"prompt":   promptJSON(shared.Prompt),
				"versions": versionsJSON(shared.Versions),
			})
			return
		}
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := r.URL.Query()
		limit := 20
		if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		var tags []string
		if raw := strings.TrimSpace(q.Get("tags")); raw != "" {
			tags = strings.Split(raw, ",")
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), session, q.Get("q"), q.Get("category"), tags, limit))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/tags" {
		tags, err := s.service.ListTags(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(tags))
		for _, tag := range tags {
			payload = append(payload, map[string]any{"id": tag.ID, "name": tag.Name, "refCount": tag.RefCount})
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": payload})
		return
	}

	if r.URL.Path == "/api/prompts" {
		switch r.Method {
		case http.MethodGet:
			prompts, err := s.service.ListPrompts(r.Context(), session)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"prompts": promptsJSON(prompts)})
		case http.MethodPost:
			var input CreatePromptInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			prompt, err := s.service.CreatePrompt(r.Context(), session, input)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, promptJSON(prompt))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "prompts" {
		s.handlePrompt(w, r, session, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handlePrompt dispatches everything under /api/prompts/{id}.
func (s *HTTPServer) handlePrompt(w http.ResponseWriter, r *http.Request, session Session, promptID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			prompt, err := s.service.GetPrompt(ctx, session, promptID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, promptJSON(prompt))
		case http.MethodPut:
			var input UpdatePromptInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			prompt, err := s.service.UpdatePrompt(ctx, session, promptID, input)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, promptJSON(prompt))
		case http.MethodDelete:
			if err := s.service.DeletePrompt(ctx, session, promptID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[0] {
	case "view":
		if r.Method != http.MethodPost {
			break
		}
		prompt, err := s.service.RecordView(ctx, session, promptID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"views": prompt.Views})
		return

	case "like":
		if r.Method != http.MethodPost {
			break
		}
		liked, likes, err := s.service.ToggleLike(ctx, session, promptID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"liked": liked, "likes": likes})
		return

	case "versions":
		s.handleVersions(w, r, session, promptID, rest[1:])
		return

	case "compare":
		if r.Method != http.MethodGet {
			break
		}
		from, err1 := strconv.Atoi(r.URL.Query().Get("from"))
		to, err2 := strconv.Atoi(r.URL.Query().Get("to"))
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from and to must be version numbers", nil)
			return
		}
		result, err := s.service.Compare(ctx, session, promptID, from, to)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return

	case "permissions":
		s.handlePermissions(w, r, session, promptID, rest[1:])
		return

	case "share-links":
		s.handleShareLinks(w, r, session, promptID, rest[1:])
		return

	case "comments":
		s.handleComments(w, r, session, promptID, rest[1:])
		return

	case "discussions":
		s.handleDiscussions(w, r, session, promptID, rest[1:])
		return

	case "ratings":
		s.handleRatings(w, r, session, promptID, rest[1:])
		return

	case "export":
		if r.Method != http.MethodPost {
			break
		}
		key, err := s.service.Export(ctx, session, promptID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"objectKey": key})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, session Session, promptID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		versions, err := s.service.History(ctx, session, promptID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versionsJSON(versions)})
		return
	}

	number, err := strconv.Atoi(rest[0])
	if err != nil || number < 1 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
		return
	}

	if len(rest) == 1 && r.Method == http.MethodGet {
		version, err := s.service.GetVersion(ctx, session, promptID, number)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, versionJSON(version))
		return
	}

	if len(rest) == 2 && rest[1] == "revert" && r.Method == http.MethodPost {
		version, err := s.service.Revert(ctx, session, promptID, number)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, versionJSON(version))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePermissions(w http.ResponseWriter, r *http.Request, session Session, promptID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			grants, err := s.service.ListPermissions(ctx, session, promptID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"permissions": permissionsJSON(grants)})
		case http.MethodPost:
			var input GrantPermissionInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			grant, err := s.service.GrantPermission(ctx, session, promptID, input)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, permissionJSON(grant))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && r.Method == http.MethodDelete {
		if err := s.service.RevokePermission(ctx, session, promptID, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleShareLinks(w http.ResponseWriter, r *http.Request, session Session, promptID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			links, err := s.service.ListShareLinks(ctx, session, promptID)
			if err != nil {
				s.fail(w, err)
				return
			}
			payload := make([]map[string]any, 0, len(links))
			for _, link := range links {
				payload = append(payload, shareLinkJSON(link))
			}
			writeJSON(w, http.StatusOK, map[string]any{"shareLinks": payload})
		case http.MethodPost:
			var input CreateShareLinkInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			link, err := s.service.CreateShareLink(ctx, session, promptID, input)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, shareLinkJSON(link))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && r.Method == http.MethodDelete {
		if err := s.service.RevokeShareLink(ctx, session, promptID, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, session Session, promptID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			comments, err := s.service.ListComments(ctx, session, promptID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"comments": commentsJSON(comments)})
		case http.MethodPost:
			var input CreateCommentInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			comment, err := s.service.CreateComment(ctx, session, promptID, input)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, commentJSON(comment))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && r.Method == http.MethodDelete {
		if err := s.service.DeleteComment(ctx, session, promptID, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(rest) == 2 && rest[1] == "like" && r.Method == http.MethodPost {
		liked, likes, err := s.service.ToggleCommentLike(ctx, session, promptID, rest[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"liked": liked, "likes": likes})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDiscussions(w http.ResponseWriter, r *http.Request, session Session, promptID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			discussions, err := s.service.ListDiscussions(ctx, session, promptID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"discussions": discussionsJSON(discussions)})
		case http.MethodPost:
			var input CreateDiscussionInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			discussion, err := s.service.CreateDiscussion(ctx, session, promptID, input)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, discussionJSON(discussion))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodGet {
		comments, err := s.service.DiscussionComments(ctx, session, promptID, rest[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": commentsJSON(comments)})
		return
	}

	if len(rest) == 2 && rest[1] == "status" && r.Method == http.MethodPut {
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		discussion, err := s.service.SetDiscussionStatus(ctx, session, promptID, rest[0], body.Status)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, discussionJSON(discussion))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRatings(w http.ResponseWriter, r *http.Request, session Session, promptID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 && r.Method == http.MethodPost {
		var input RatePromptInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		rating, err := s.service.RatePrompt(ctx, session, promptID, input)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ratingJSON(rating))
		return
	}

	if len(rest) == 1 && rest[0] == "stats" && r.Method == http.MethodGet {
		stats, err := s.service.RatingStats(ctx, session, promptID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"promptId":       stats.PromptID,
			"average":        stats.Average,
			"total":          stats.Total,
			"avgHelpfulness": stats.AvgHelpfulness,
			"avgAccuracy":    stats.AvgAccuracy,
			"avgRelevance":   stats.AvgRelevance,
			"distribution":   stats.Distribution,
		})
		return
	}

	if len(rest) == 1 && r.Method == http.MethodDelete {
		if err := s.service.DeleteRating(ctx, session, promptID, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func promptJSON(p store.Prompt) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"authorId":    p.AuthorID,
		"authorName":  p.AuthorName,
		"title":       p.Title,
		"description": p.Description,
		"content":     p.Content,
		"category":    p.Category,
		"isPublic":    p.IsPublic,
		"tags":        p.Tags,
		"views":       p.Views,
		"likes":       p.Likes,
		"createdAt":   p.CreatedAt,
		"updatedAt":   p.UpdatedAt,
	}
}

func promptsJSON(prompts []store.Prompt) []map[string]any {
	out := make([]map[string]any, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, promptJSON(p))
	}
	return out
}

func versionJSON(v store.PromptVersion) map[string]any {
	return map[string]any{
		"id":          v.ID,
		"promptId":    v.PromptID,
		"version":     v.Version,
		"title":       v.Title,
		"description": v.Description,
		"content":     v.Content,
		"category":    v.Category,
		"tags":        v.Tags,
		"changeNote":  v.ChangeNote,
		"actorId":     v.ActorID,
		"actorName":   v.ActorName,
		"createdAt":   v.CreatedAt,
	}
}

func versionsJSON(versions []store.PromptVersion) []map[string]any {
	out := make([]map[string]any, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionJSON(v))
	}
	return out
}

func permissionJSON(p store.Permission) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"promptId":  p.PromptID,
		"userId":    p.UserID,
		"userName":  p.UserName,
		"userEmail": p.UserEmail,
		"role":      p.Role,
		"grantedBy": p.GrantedBy,
		"grantedAt": p.GrantedAt,
		"revokedAt": p.RevokedAt,
	}
}

func permissionsJSON(grants []store.Permission) []map[string]any {
	out := make([]map[string]any, 0, len(grants))
	for _, grant := range grants {
		out = append(out, permissionJSON(grant))
	}
	return out
}

func commentJSON(c store.Comment) map[string]any {
	return map[string]any{
		"id":           c.ID,
		"promptId":     c.PromptID,
		"discussionId": c.DiscussionID,
		"parentId":     c.ParentID,
		"authorId":     c.AuthorID,
		"authorName":   c.AuthorName,
		"content":      c.Content,
		"likeCount":    c.LikeCount,
		"createdAt":    c.CreatedAt,
	}
}

func commentsJSON(comments []store.Comment) []map[string]any {
	out := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentJSON(c))
	}
	return out
}

func discussionJSON(d store.Discussion) map[string]any {
	return map[string]any{
		"id":            d.ID,
		"promptId":      d.PromptID,
		"title":         d.Title,
		"description":   d.Description,
		"authorId":      d.AuthorID,
		"authorName":    d.AuthorName,
		"status":        d.Status,
		"commentCount":  d.CommentCount,
		"lastCommentAt": d.LastCommentAt,
		"createdAt":     d.CreatedAt,
	}
}

func discussionsJSON(discussions []store.Discussion) []map[string]any {
	out := make([]map[string]any, 0, len(discussions))
	for _, d := range discussions {
		out = append(out, discussionJSON(d))
	}
	return out
}

func ratingJSON(rating store.Rating) map[string]any {
	return map[string]any{
		"id":          rating.ID,
		"promptId":    rating.PromptID,
		"userId":      rating.UserID,
		"userName":    rating.UserName,
		"score":       rating.Score,
		"feedback":    rating.Feedback,
		"helpfulness": rating.Helpfulness,
		"accuracy":    rating.Accuracy,
		"relevance":   rating.Relevance,
		"updatedAt":   rating.UpdatedAt,
	}
}

func shareLinkJSON(link store.ShareLink) map[string]any {
	return map[string]any{
		"id":          link.ID,
		"token":       link.Token,
		"promptId":    link.PromptID,
		"createdBy":   link.CreatedBy,
		"hasPassword": link.PasswordHash != nil,
		"expiresAt":   link.ExpiresAt,
		"accessCount": link.AccessCount,
		"createdAt":   link.CreatedAt,
		"revokedAt":   link.RevokedAt,
	}
}
