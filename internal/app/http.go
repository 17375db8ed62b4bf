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
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"catty/api/internal/checklist"
	"catty/api/internal/export"
	"catty/api/internal/rbac"
	"catty/api/internal/store"
)

// maxBodyBytes bounds request bodies; checklists are at most a few MB.
const maxBodyBytes = 16 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	validate   *validator.Validate
	metrics    *metrics
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		validate:   newValidator(),
		metrics:    newMetrics(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type createFileRequest struct {
	TemplateID string `json:"template_id" validate:"required,uuid"`
	Name       string `json:"name" validate:"required,notblank,max=120"`
}

type updateFileRequest struct {
	FileJSON json.RawMessage `json:"file_json" validate:"required,jsonobject"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("jsonobject", func(fl validator.FieldLevel) bool {
		raw := strings.TrimSpace(string(fl.Field().Bytes()))
		return strings.HasPrefix(raw, "{")
	})
	return v
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

		ready, checks := s.service.Readiness(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ready {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.handler().ServeHTTP(w, r)
		return
	}

	// Routes that need no session
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		var body registerRequest
		if !s.decodeValid(w, r, &body) {
			return
		}
		user, err := s.service.Register(r.Context(), body.Email, body.Password, body.FullName)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, userPayload(user))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		var body loginRequest
		if !s.decodeValid(w, r, &body) {
			return
		}
		session, err := s.service.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body refreshRequest
		if !s.decodeValid(w, r, &body) {
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			status, code, message, details := mapError(err)
			if status == http.StatusNotFound || status == http.StatusInternalServerError {
				status, code, message, details = http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil
			}
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
			log.Printf("auth: logout: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)

	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "share" {
		file, err := s.service.SharedFile(r.Context(), parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sharedFilePayload(file))
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/me" {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        session.UserID,
			"email":     session.Email,
			"full_name": session.FullName,
			"is_admin":  session.IsAdmin(),
			"role":      session.Role,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/admin/ping" {
		if !rbac.Can(session.Role, rbac.ActionAdmin, false) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin only", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Bienvenido admin", "email": session.Email})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/templates" {
		templates, err := s.service.ListTemplates(r.Context(), session)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list templates", nil)
			return
		}
		items := make([]map[string]any, 0, len(templates))
		for _, tpl := range templates {
			items = append(items, templatePayload(tpl))
		}
		writeJSON(w, http.StatusOK, items)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		query := r.URL.Query()
		limit, err := intParam(query.Get("limit"), 20)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		offset, err := intParam(query.Get("offset"), 0)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), session, strings.TrimSpace(query.Get("q")), limit, offset))
		return
	}

	if r.URL.Path == "/api/files" {
		switch r.Method {
		case http.MethodGet:
			files, err := s.service.ListFiles(r.Context(), session)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list files", nil)
				return
			}
			items := make([]map[string]any, 0, len(files))
			for _, file := range files {
				items = append(items, fileSummaryPayload(file))
			}
			writeJSON(w, http.StatusOK, items)
		case http.MethodPost:
			var body createFileRequest
			if !s.decodeValid(w, r, &body) {
				return
			}
			file, err := s.service.CreateFile(r.Context(), session, body.TemplateID, body.Name)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, filePayload(file))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "files" {
		s.handleFiles(w, r, session, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request, session Session, fileID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			file, err := s.service.GetFile(r.Context(), session, fileID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, filePayload(file))
		case http.MethodPut:
			var body updateFileRequest
			if !s.decodeValid(w, r, &body) {
				return
			}
			file, warnings, err := s.service.UpdateFile(r.Context(), session, fileID, body.FileJSON)
			if err != nil {
				s.countValidationFailure(err)
				writeMappedError(w, err)
				return
			}
			payload := filePayload(file)
			if len(warnings) > 0 {
				payload["warnings"] = warnings
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteFile(r.Context(), session, fileID); err != nil {
				writeMappedError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "validate" && r.Method == http.MethodPost {
		report, err := s.service.ValidateFile(r.Context(), session, fileID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if !report.Valid {
			s.metrics.validationFailures.Inc()
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodGet {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		archive := r.URL.Query().Get("archive") == "true"
		result, link, err := s.service.ExportFile(r.Context(), session, fileID, format, archive)
		if err != nil {
			s.countValidationFailure(err)
			writeMappedError(w, err)
			return
		}
		s.metrics.exports.WithLabelValues(string(format), strconv.FormatBool(archive)).Inc()
		if link != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"filename": result.Filename,
				"mimeType": result.MimeType,
				"archive":  link,
			})
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) countValidationFailure(err error) {
	var validationErr *checklist.ValidationError
	if errors.As(err, &validationErr) {
		s.metrics.validationFailures.Inc()
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusInternalServerError {
			message = "Session lookup failed"
		}
		writeError(w, status, code, message, details)
		return Session{}, false
	}
	return session, true
}

// decodeValid decodes the JSON body into target and runs its validate
// tags, writing the error response itself when either fails.
func (s *HTTPServer) decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	if err := s.validate.Struct(target); err != nil {
		writeMappedError(w, err)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		if r.URL.Path != "/metrics" {
			s.metrics.observe(r.Method, r.URL.Path, writer.status, elapsed)
		}
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			elapsed.Milliseconds(),
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
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
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

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("api: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
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

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// Response payloads use the snake_case field names of the files API.

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":            user.ID,
		"email":         user.Email,
		"full_name":     user.FullName,
		"is_admin":      user.IsAdmin,
		"is_active":     user.IsActive,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
	}
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"tokenType":    "bearer",
		"expiresAt":    session.ExpiresAt.Unix(),
		"user": map[string]any{
			"id":        session.UserID,
			"email":     session.Email,
			"full_name": session.FullName,
			"is_admin":  session.IsAdmin(),
		},
	}
}

func templatePayload(tpl store.Template) map[string]any {
	return map[string]any{
		"id":               tpl.ID,
		"code":             tpl.Code,
		"name":             tpl.Name,
		"description":      tpl.Description,
		"version":          tpl.Version,
		"visibility":       tpl.Visibility,
		"is_user_template": tpl.IsUserTemplate,
		"owner_id":         tpl.OwnerID,
		"updated_at":       tpl.UpdatedAt,
	}
}

func fileSummaryPayload(file store.FileSummary) map[string]any {
	return map[string]any{
		"id":         file.ID,
		"code":       file.Code,
		"name":       file.Name,
		"size_bytes": file.SizeBytes,
		"created_at": file.CreatedAt,
		"updated_at": file.UpdatedAt,
	}
}

func filePayload(file store.File) map[string]any {
	return map[string]any{
		"id":             file.ID,
		"code":           file.Code,
		"name":           file.Name,
		"owner_id":       file.OwnerID,
		"template_id":    file.TemplateID,
		"is_public":      file.IsPublic,
		"share_token":    file.ShareToken,
		"share_enabled":  file.ShareEnabled,
		"file_json":      file.FileJSON,
		"size_bytes":     file.SizeBytes,
		"last_opened_at": file.LastOpenedAt,
		"created_at":     file.CreatedAt,
		"updated_at":     file.UpdatedAt,
	}
}

func sharedFilePayload(file store.File) map[string]any {
	return map[string]any{
		"code":       file.Code,
		"name":       file.Name,
		"file_json":  file.FileJSON,
		"updated_at": file.UpdatedAt,
	}
}
