package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict is returned when a unique column already holds the value.
var ErrConflict = errors.New("already exists")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const userColumns = `id, email, coalesce(password_hash, ''), coalesce(full_name, ''), is_admin, is_active, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	var lastLogin sql.NullTime
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName, &user.IsAdmin, &user.IsActive, &lastLogin, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, is_admin, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, strings.ToLower(user.Email), nullString(user.PasswordHash), nullString(user.FullName), user.IsAdmin, user.IsActive)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2, updated_at = NOW() WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// EnsureAdmin creates the admin account when the email is unknown and
// promotes it otherwise.
func (s *PostgresStore) EnsureAdmin(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, is_admin, is_active)
		VALUES ($1, $2, $3, $4, TRUE, TRUE)
		ON CONFLICT (email) DO UPDATE SET is_admin = TRUE, updated_at = NOW()
	`, user.ID, strings.ToLower(user.Email), nullString(user.PasswordHash), nullString(user.FullName))
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	return nil
}

const templateColumns = `id, code, name, coalesce(description, ''), template_json, version, is_active, is_user_template, coalesce(owner_id::text, ''), visibility, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (Template, error) {
	var tpl Template
	var body []byte
	err := row.Scan(&tpl.ID, &tpl.Code, &tpl.Name, &tpl.Description, &body, &tpl.Version, &tpl.IsActive, &tpl.IsUserTemplate, &tpl.OwnerID, &tpl.Visibility, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return Template{}, err
	}
	tpl.TemplateJSON = body
	return tpl, nil
}

// ListTemplates returns active templates, newest first. Non-admins see the
// public and shared ones plus their own.
func (s *PostgresStore) ListTemplates(ctx context.Context, userID string, isAdmin bool) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE is_active`
	args := []any{}
	if !isAdmin {
		query += ` AND (visibility IN ('public', 'shared') OR owner_id::text = $1)`
		args = append(args, userID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := make([]Template, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// GetActiveTemplate returns an active template or sql.ErrNoRows.
func (s *PostgresStore) GetActiveTemplate(ctx context.Context, templateID string) (Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = $1 AND is_active`, templateID)
	return scanTemplate(row)
}

const fileColumns = `id, code, name, owner_id, template_id, is_public, share_token, share_enabled, file_json, size_bytes, search_text, last_opened_at, created_at, updated_at`

func scanFile(row interface{ Scan(...any) error }) (File, error) {
	var file File
	var body []byte
	var opened sql.NullTime
	err := row.Scan(&file.ID, &file.Code, &file.Name, &file.OwnerID, &file.TemplateID, &file.IsPublic, &file.ShareToken, &file.ShareEnabled, &body, &file.SizeBytes, &file.SearchText, &opened, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return File{}, err
	}
	file.FileJSON = body
	if opened.Valid {
		file.LastOpenedAt = &opened.Time
	}
	return file, nil
}

// ListFiles returns the owner's files, most recently updated first.
func (s *PostgresStore) ListFiles(ctx context.Context, ownerID string) ([]FileSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, size_bytes, created_at, updated_at
		FROM files
		WHERE owner_id = $1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]FileSummary, 0)
	for rows.Next() {
		var f FileSummary
		if err := rows.Scan(&f.ID, &f.Code, &f.Name, &f.SizeBytes, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID string) (File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, fileID)
	return scanFile(row)
}

func (s *PostgresStore) GetFileByShareToken(ctx context.Context, token string) (File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE share_token = $1`, token)
	return scanFile(row)
}

// InsertFile stores a new file. A taken code or share token comes back as
// ErrConflict so the caller can draw new ones.
func (s *PostgresStore) InsertFile(ctx context.Context, file File) (File, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO files (id, code, name, owner_id, template_id, is_public, share_token, share_enabled, file_json, size_bytes, search_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+fileColumns,
		file.ID, file.Code, file.Name, file.OwnerID, file.TemplateID, file.IsPublic, file.ShareToken, file.ShareEnabled, string(file.FileJSON), file.SizeBytes, file.SearchText)
	created, err := scanFile(row)
	if isUniqueViolation(err) {
		return File{}, fmt.Errorf("file %s: %w", file.Code, ErrConflict)
	}
	if err != nil {
		return File{}, fmt.Errorf("insert file: %w", err)
	}
	return created, nil
}

// UpdateFileJSON replaces the stored document and returns the updated row,
// or sql.ErrNoRows.
func (s *PostgresStore) UpdateFileJSON(ctx context.Context, fileID string, body []byte, searchText string) (File, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE files
		SET file_json = $2, size_bytes = $3, search_text = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+fileColumns,
		fileID, string(body), int64(len(body)), searchText)
	return scanFile(row)
}

func (s *PostgresStore) TouchFileOpened(ctx context.Context, fileID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE files SET last_opened_at = $2 WHERE id = $1`, fileID, at)
	if err != nil {
		return fmt.Errorf("touch file opened: %w", err)
	}
	return nil
}

// DeleteFile removes a file and reports whether it existed.
func (s *PostgresStore) DeleteFile(ctx context.Context, fileID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, fileID)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete file rows: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
