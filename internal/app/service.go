package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"catty/api/internal/auth"
	"catty/api/internal/authpw"
	"catty/api/internal/blob"
	"catty/api/internal/checklist"
	"catty/api/internal/config"
	"catty/api/internal/export"
	"catty/api/internal/ingest"
	"catty/api/internal/rbac"
	"catty/api/internal/search"
	"catty/api/internal/session"
	"catty/api/internal/store"
	"catty/api/internal/util"
)

const (
	fileCodePrefix = "F-"
	fileCodeLength = 6
	// attempts at drawing a free file code and share token
	maxCodeAttempts = 5
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	FullName     string
	Role         rbac.Role
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) IsAdmin() bool { return s.Role == rbac.RoleAdmin }

type dataStore interface {
	authpw.UserStore
	GetUserByID(context.Context, string) (store.User, error)
	EnsureAdmin(context.Context, store.User) error
	ListTemplates(context.Context, string, bool) ([]store.Template, error)
	GetActiveTemplate(context.Context, string) (store.Template, error)
	ListFiles(context.Context, string) ([]store.FileSummary, error)
	GetFile(context.Context, string) (store.File, error)
	GetFileByShareToken(context.Context, string) (store.File, error)
	InsertFile(context.Context, store.File) (store.File, error)
	UpdateFileJSON(context.Context, string, []byte, string) (store.File, error)
	TouchFileOpened(context.Context, string, time.Time) error
	DeleteFile(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, store.User, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	Ping(ctx context.Context) error
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexFile(search.FileRecord)
	DeleteFile(string)
	ReindexAllFromPG(context.Context)
}

type archiveStore interface {
	Key(ownerID, fileCode, filename string) string
	Put(ctx context.Context, key, filename, mimeType string, data []byte) (blob.Link, error)
	Ping(ctx context.Context) error
}

type Service struct {
	cfg       config.Config
	checklist config.Checklist
	store     dataStore
	sessions  sessionStore
	search    searchIndex
	archive   archiveStore
	passwords *authpw.Service
	exporter  *export.Service
	now       func() time.Time
}

// New wires the API service. searchSvc and archive may be nil; search then
// answers with no results and archived exports are refused.
func New(cfg config.Config, checklistCfg config.Checklist, dataStore *store.PostgresStore, sessions *session.RedisStore, searchSvc *search.Service, archive *blob.Archive) *Service {
	s := &Service{
		cfg:       cfg,
		checklist: checklistCfg,
		store:     dataStore,
		passwords: authpw.NewService(dataStore),
		exporter: export.NewService(export.Options{
			PriorityLevels: checklistCfg.PriorityLevels,
			CloseFinalBand: checklistCfg.CloseFinalBand,
		}),
		now: time.Now,
	}
	if sessions != nil {
		s.sessions = sessions
	}
	if searchSvc != nil {
		s.search = searchSvc
	}
	if archive != nil {
		s.archive = archive
	}
	return s
}

// Bootstrap seeds the configured admin account and refills the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.AdminEmail != "" && s.cfg.AdminPassword != "" {
		hash, err := authpw.HashPassword(s.cfg.AdminPassword, bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := s.store.EnsureAdmin(ctx, store.User{
			ID:           util.NewUUID(),
			Email:        s.cfg.AdminEmail,
			PasswordHash: hash,
			FullName:     "Administrator",
		}); err != nil {
			return err
		}
	}
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) ingestOptions() ingest.Options {
	return ingest.Options{Scales: s.checklist.Scales}
}

// Auth

func (s *Service) Register(ctx context.Context, email, password, fullName string) (store.User, error) {
	return s.passwords.Register(ctx, authpw.RegisterRequest{Email: email, Password: password, FullName: fullName})
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.Login(ctx, authpw.LoginRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked and a new pair
// is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	cached, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, cached.ID)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, authpw.ErrInactiveUser
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	claims := auth.NewClaims(user.ID, user.Email, user.IsAdmin, s.cfg.AccessTTL, now)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Role:         claims.Role(),
		JTI:          claims.JTI,
		ExpiresAt:    time.Unix(claims.Exp, 0),
	}, nil
}

// SessionFromToken resolves a bearer token. The account is reloaded so a
// deactivated or demoted user loses access before the token expires.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, authpw.ErrInactiveUser
	}
	role := rbac.RoleUser
	if user.IsAdmin {
		role = rbac.RoleAdmin
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// Templates

func (s *Service) ListTemplates(ctx context.Context, session Session) ([]store.Template, error) {
	return s.store.ListTemplates(ctx, session.UserID, session.IsAdmin())
}

// Files

func (s *Service) ListFiles(ctx context.Context, session Session) ([]store.FileSummary, error) {
	return s.store.ListFiles(ctx, session.UserID)
}

// CreateFile instantiates a template for the caller. The stored body wraps
// the template JSON together with the template's identity.
func (s *Service) CreateFile(ctx context.Context, session Session, templateID, name string) (store.File, error) {
	tpl, err := s.store.GetActiveTemplate(ctx, templateID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.File{}, domainError(http.StatusNotFound, "TEMPLATE_NOT_FOUND", "Template not found", nil)
	}
	if err != nil {
		return store.File{}, err
	}
	if !rbac.CanUseTemplate(session.Role, tpl.Visibility, tpl.OwnerID == session.UserID) {
		return store.File{}, errForbidden
	}

	body, err := json.Marshal(map[string]any{
		"template": map[string]any{"id": tpl.ID, "code": tpl.Code, "version": tpl.Version},
		"data":     tpl.TemplateJSON,
	})
	if err != nil {
		return store.File{}, fmt.Errorf("wrap template: %w", err)
	}
	res := ingest.Parse(body, s.ingestOptions())

	file := store.File{
		Name:         strings.TrimSpace(name),
		OwnerID:      session.UserID,
		TemplateID:   tpl.ID,
		ShareEnabled: true,
		FileJSON:     body,
		SizeBytes:    int64(len(body)),
		SearchText:   search.DocumentText(res.Document),
	}
	for attempt := 1; ; attempt++ {
		file.ID = util.NewUUID()
		file.Code = util.RandomCode(fileCodePrefix, fileCodeLength)
		file.ShareToken = util.ShareToken()
		created, err := s.store.InsertFile(ctx, file)
		if err == nil {
			s.indexFile(created)
			return created, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxCodeAttempts {
			return store.File{}, err
		}
	}
}

// authorizedFile loads a file and checks the caller may perform action on it.
func (s *Service) authorizedFile(ctx context.Context, session Session, fileID string, action rbac.Action) (store.File, error) {
	if !util.IsUUID(fileID) {
		return store.File{}, errNotFound
	}
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return store.File{}, err
	}
	if !rbac.Can(session.Role, action, file.OwnerID == session.UserID) {
		return store.File{}, errForbidden
	}
	return file, nil
}

// GetFile returns a file for reading and stamps when it was opened.
func (s *Service) GetFile(ctx context.Context, session Session, fileID string) (store.File, error) {
	file, err := s.authorizedFile(ctx, session, fileID, rbac.ActionRead)
	if err != nil {
		return store.File{}, err
	}
	now := s.now().UTC()
	if err := s.store.TouchFileOpened(ctx, file.ID, now); err != nil {
		log.Printf("files: stamp opened %s: %v", file.ID, err)
	} else {
		file.LastOpenedAt = &now
	}
	return file, nil
}

// UpdateFile stores body as sent once the document it carries validates.
// Ingestion warnings are returned alongside the updated row.
func (s *Service) UpdateFile(ctx context.Context, session Session, fileID string, body json.RawMessage) (store.File, []string, error) {
	file, err := s.authorizedFile(ctx, session, fileID, rbac.ActionWrite)
	if err != nil {
		return store.File{}, nil, err
	}
	res := ingest.Parse(body, s.ingestOptions())
	if err := res.Document.Validate(); err != nil {
		return store.File{}, nil, err
	}
	updated, err := s.store.UpdateFileJSON(ctx, file.ID, body, search.DocumentText(res.Document))
	if err != nil {
		return store.File{}, nil, err
	}
	s.indexFile(updated)
	return updated, res.Warnings, nil
}

func (s *Service) DeleteFile(ctx context.Context, session Session, fileID string) error {
	file, err := s.authorizedFile(ctx, session, fileID, rbac.ActionDelete)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteFile(ctx, file.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound
	}
	if s.search != nil {
		s.search.DeleteFile(file.ID)
	}
	return nil
}

// ValidationReport is the outcome of validating a stored file.
type ValidationReport struct {
	Valid      bool                  `json:"valid"`
	Summary    string                `json:"summary,omitempty"`
	Violations []checklist.Violation `json:"violations"`
	Warnings   []string              `json:"warnings"`
	Shape      ingest.Shape          `json:"shape"`
	Nodes      int                   `json:"nodes"`
}

func (s *Service) ValidateFile(ctx context.Context, session Session, fileID string) (ValidationReport, error) {
	file, err := s.authorizedFile(ctx, session, fileID, rbac.ActionRead)
	if err != nil {
		return ValidationReport{}, err
	}
	res := ingest.Parse(file.FileJSON, s.ingestOptions())
	report := ValidationReport{
		Valid:      true,
		Violations: []checklist.Violation{},
		Warnings:   res.Warnings,
		Shape:      res.Shape,
		Nodes:      len(res.Document.Nodes),
	}
	if report.Warnings == nil {
		report.Warnings = []string{}
	}
	var validationErr *checklist.ValidationError
	if err := res.Document.Validate(); errors.As(err, &validationErr) {
		report.Valid = false
		report.Summary = validationErr.Summary()
		report.Violations = validationErr.Violations
	}
	return report, nil
}

// ExportFile renders a stored file. With archive set the artifact is
// uploaded and a presigned link is returned instead of the bytes.
func (s *Service) ExportFile(ctx context.Context, session Session, fileID string, format export.Format, archive bool) (*export.Result, *blob.Link, error) {
	file, err := s.authorizedFile(ctx, session, fileID, rbac.ActionExport)
	if err != nil {
		return nil, nil, err
	}
	if archive && s.archive == nil {
		return nil, nil, blob.ErrDisabled
	}

	res := ingest.Parse(file.FileJSON, s.ingestOptions())
	result, err := s.exporter.Export(ctx, export.Request{
		Document: res.Document,
		Format:   format,
		Name:     file.Code,
		Title:    file.Name,
	})
	if err != nil {
		return nil, nil, err
	}
	if !archive {
		return result, nil, nil
	}

	link, err := s.archive.Put(ctx, s.archive.Key(file.OwnerID, file.Code, result.Filename), result.Filename, result.MimeType, result.Data)
	if err != nil {
		return nil, nil, err
	}
	return result, &link, nil
}

// SharedFile returns a file by its share token while sharing is enabled.
func (s *Service) SharedFile(ctx context.Context, token string) (store.File, error) {
	if !strings.HasPrefix(token, "sh_") {
		return store.File{}, errNotFound
	}
	file, err := s.store.GetFileByShareToken(ctx, token)
	if err != nil {
		return store.File{}, err
	}
	if !file.ShareEnabled {
		return store.File{}, errNotFound
	}
	return file, nil
}

// Search

func (s *Service) Search(ctx context.Context, session Session, text string, limit, offset int) search.Response {
	if s.search == nil || strings.TrimSpace(text) == "" {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{
		Text:      text,
		OwnerID:   session.UserID,
		AllOwners: session.IsAdmin(),
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *Service) indexFile(file store.File) {
	if s.search == nil {
		return
	}
	s.search.IndexFile(search.FileRecord{
		ID:      file.ID,
		Code:    file.Code,
		Name:    file.Name,
		OwnerID: file.OwnerID,
		Text:    file.SearchText,
	})
}

// Health

// Readiness reports each backing service; the database is the only hard
// requirement.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	checks := map[string]any{}
	ready := true

	check := func(name string, required bool, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			if required {
				ready = false
			}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	check("database", true, s.store.Ping)
	if s.sessions != nil {
		check("redis", true, s.sessions.Ping)
	}
	if s.archive != nil {
		check("objectStorage", false, s.archive.Ping)
	}
	return ready, checks
}
