package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	IsAdmin      bool
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Template visibility values.
const (
	VisibilityPublic  = "public"
	VisibilityShared  = "shared"
	VisibilityPrivate = "private"
)

type Template struct {
	ID             string
	Code           string
	Name           string
	Description    string
	TemplateJSON   json.RawMessage
	Version        int
	IsActive       bool
	IsUserTemplate bool
	OwnerID        string
	Visibility     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// File is a stored checklist. FileJSON holds the document inside whatever
// envelope the client last saved.
type File struct {
	ID           string
	Code         string
	Name         string
	OwnerID      string
	TemplateID   string
	IsPublic     bool
	ShareToken   string
	ShareEnabled bool
	FileJSON     json.RawMessage
	SizeBytes    int64
	SearchText   string
	LastOpenedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FileSummary is a list row; it leaves out the document body.
type FileSummary struct {
	ID        string
	Code      string
	Name      string
	SizeBytes int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
