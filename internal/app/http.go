package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deckvault/api/internal/annot"
	"deckvault/api/internal/auth"
	"deckvault/api/internal/cards"
	"deckvault/api/internal/deck"
	"deckvault/api/internal/export"
	"deckvault/api/internal/images"
	"deckvault/api/internal/merge"
	"deckvault/api/internal/search"
	"deckvault/api/internal/store"
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
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
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
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": session.UserName, "userId": session.UserID})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeSession(w, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Everything below requires a session.
	session, err := s.service.SessionFromToken(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "search":
		if r.Method == http.MethodGet && len(parts) == 2 {
			s.handleSearch(w, r, session)
			return
		}
	case "cards":
		if r.Method == http.MethodGet && len(parts) == 3 {
			s.handleCard(w, r, parts[2])
			return
		}
		if r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "image" {
			s.handleCardImage(w, r, parts[2])
			return
		}
	case "decks":
		s.handleDecks(w, r, session, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDecks(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	// /api/decks
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			decks, err := s.service.ListDecks(r.Context(), session)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			payload := make([]map[string]any, 0, len(decks))
			for _, d := range decks {
				payload = append(payload, deckPayload(d))
			}
			writeJSON(w, http.StatusOK, map[string]any{"decks": payload})
		case http.MethodPost:
			var input CreateDeckInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			created, err := s.service.CreateDeck(r.Context(), session, input)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, deckPayload(created))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	deckID := parts[0]
	rest := parts[1:]

	// /api/decks/{id}
	if len(rest) == 0 {
		if r.Method == http.MethodDelete {
			if err := s.service.DeleteDeck(r.Context(), session, deckID); err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		detail, err := s.service.GetDeck(r.Context(), session, deckID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		variants := make([]map[string]any, 0, len(detail.Variants))
		for _, v := range detail.Variants {
			variants = append(variants, variantPayload(v))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"deck":     deckPayload(detail.Deck),
			"snapshot": detail.Snapshot,
			"head":     commitPayload(detail.Head),
			"variants": variants,
		})
		return
	}

	switch rest[0] {
	case "diff":
		if r.Method == http.MethodPost && len(rest) == 1 {
			var input SaveInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			preview, err := s.service.PreviewSave(r.Context(), session, deckID, input)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"diff":    preview.Diff,
				"summary": preview.Summary,
			})
			return
		}
	case "save":
		if r.Method == http.MethodPost && len(rest) == 1 {
			var input SaveInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.SaveSnapshot(r.Context(), session, deckID, input)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"commit":  commitPayload(result.Commit),
				"diff":    result.Diff,
				"summary": result.Summary,
			})
			return
		}
	case "history":
		if r.Method == http.MethodGet && len(rest) == 1 {
			limit := queryInt(r, "limit", 50)
			entries, err := s.service.History(r.Context(), session, deckID, r.URL.Query().Get("variantId"), limit)
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			payload := make([]map[string]any, 0, len(entries))
			for _, entry := range entries {
				annotations := entry.Annotations
				if annotations == nil {
					annotations = []annot.Annotation{}
				}
				payload = append(payload, map[string]any{
					"commit":      commitPayload(entry.Commit),
					"message":     entry.Primary,
					"annotations": annotations,
				})
			}
			writeJSON(w, http.StatusOK, map[string]any{"history": payload})
			return
		}
	case "snapshots":
		if r.Method == http.MethodGet && len(rest) == 2 {
			snapshot, err := s.service.SnapshotAt(r.Context(), session, deckID, rest[1])
			if err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"snapshot": snapshot})
			return
		}
	case "variants":
		if len(rest) == 1 {
			switch r.Method {
			case http.MethodGet:
				variants, err := s.service.ListVariants(r.Context(), session, deckID)
				if err != nil {
					s.writeServiceError(w, err)
					return
				}
				payload := make([]map[string]any, 0, len(variants))
				for _, v := range variants {
					payload = append(payload, variantPayload(v))
				}
				writeJSON(w, http.StatusOK, map[string]any{"variants": payload})
			case http.MethodPost:
				var body struct {
					Name string `json:"name"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				variant, err := s.service.CreateVariant(r.Context(), session, deckID, body.Name)
				if err != nil {
					s.writeServiceError(w, err)
					return
				}
				writeJSON(w, http.StatusCreated, variantPayload(variant))
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		}
		if r.Method == http.MethodPost && len(rest) == 3 && rest[2] == "abandon" {
			if err := s.service.AbandonVariant(r.Context(), session, deckID, rest[1]); err != nil {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "merge":
		if len(rest) == 2 {
			switch r.Method {
			case http.MethodGet:
				preview, err := s.service.PreviewMerge(r.Context(), session, deckID, rest[1])
				if err != nil {
					s.writeServiceError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, mergePreviewPayload(preview))
			case http.MethodPost:
				var body struct {
					Resolutions map[string]merge.Resolution `json:"resolutions"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				result, err := s.service.ApplyMerge(r.Context(), session, deckID, rest[1], body.Resolutions)
				if err != nil {
					s.writeServiceError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"commit":   commitPayload(result.Commit),
					"snapshot": result.Snapshot,
					"summary":  result.Summary,
				})
			default:
				writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			}
			return
		}
	case "export":
		if r.Method == http.MethodGet && len(rest) == 1 {
			s.handleExport(w, r, session, deckID)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSession(w, session)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeSession(w, session)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	q := search.Query{
		Text:   r.URL.Query().Get("q"),
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}
	switch r.URL.Query().Get("type") {
	case "deck":
		q.FilterType = search.ResultDeck
	case "card":
		q.FilterType = search.ResultCard
	}
	if r.URL.Query().Get("owner") == "me" {
		q.FilterOwnerID = session.UserID
	}
	writeJSON(w, http.StatusOK, s.service.Search(q))
}

func (s *HTTPServer) handleCard(w http.ResponseWriter, r *http.Request, cardID string) {
	info, err := s.service.Card(r.Context(), cardID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *HTTPServer) handleCardImage(w http.ResponseWriter, r *http.Request, cardID string) {
	body, err := s.service.CardImage(r.Context(), cardID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session, deckID string) {
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatPDF
	}
	version := r.URL.Query().Get("version")
	result, err := s.service.ExportDeck(r.Context(), session, deckID, version, format)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("app: internal error: %v", err)
	}
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, cards.ErrCardNotFound) {
		return http.StatusNotFound, "CARD_NOT_FOUND", "Card not found", nil
	}
	if errors.Is(err, images.ErrImageNotFound) {
		return http.StatusNotFound, "IMAGE_NOT_FOUND", "Card image not found", nil
	}
	if errors.Is(err, deck.ErrInvalidSnapshot) {
		return http.StatusUnprocessableEntity, "INVALID_SNAPSHOT", err.Error(), nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil
	}
	return http.StatusInternalServerError, "INTERNAL", "Internal error", nil
}

func writeSession(w http.ResponseWriter, session Session) {
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func deckPayload(d store.Deck) map[string]any {
	return map[string]any{
		"id":        d.ID,
		"ownerId":   d.OwnerID,
		"name":      d.Name,
		"format":    d.Format,
		"createdAt": d.CreatedAt,
		"updatedAt": d.UpdatedAt,
	}
}

func variantPayload(v store.Variant) map[string]any {
	return map[string]any{
		"id":         v.ID,
		"deckId":     v.DeckID,
		"name":       v.Name,
		"branchName": v.BranchName,
		"status":     v.Status,
		"createdBy":  v.CreatedBy,
		"createdAt":  v.CreatedAt,
	}
}

func commitPayload(c store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      c.Hash,
		"message":   c.Message,
		"author":    c.Author,
		"createdAt": c.CreatedAt,
	}
}

func mergePreviewPayload(p MergePreview) map[string]any {
	conflicts := make([]map[string]any, 0, len(p.Conflicts))
	for _, c := range p.Conflicts {
		conflicts = append(conflicts, map[string]any{
			"key":          c.Key(),
			"cardId":       c.CardID,
			"zone":         c.Zone,
			"slot":         c.Slot,
			"sourceChange": c.Source,
			"targetChange": c.Target,
		})
	}
	return map[string]any{
		"variant":       variantPayload(p.Variant),
		"base":          commitPayload(p.Base),
		"sourceDiff":    p.SourceDiff,
		"targetDiff":    p.TargetDiff,
		"sourceSummary": p.SourceSummary,
		"targetSummary": p.TargetSummary,
		"conflicts":     conflicts,
	}
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
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
