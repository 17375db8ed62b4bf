package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"catty/api/internal/authpw"
	"catty/api/internal/blob"
	"catty/api/internal/checklist"
	"catty/api/internal/config"
	"catty/api/internal/export"
	"catty/api/internal/rbac"
	"catty/api/internal/search"
	"catty/api/internal/session"
	"catty/api/internal/store"
)

const (
	aliceID    = "0b9c6f7e-1111-4c1a-9d7e-000000000001"
	bobID      = "0b9c6f7e-1111-4c1a-9d7e-000000000002"
	adminID    = "0b9c6f7e-1111-4c1a-9d7e-000000000003"
	templateID = "5f0c2a44-2222-4b7c-8e1f-000000000001"
	privateTpl = "5f0c2a44-2222-4b7c-8e1f-000000000002"
	testPass   = "password123"
)

const templateBody = `{
	"meta": {"name": ""},
	"nodes": [
		{"id": 1, "type": "LEVEL", "code": "1", "title": "Seguridad"},
		{"id": 2, "type": "ITEM", "code": "1.1", "title": "Extintores", "parentId": 1}
	]
}`

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	templates []store.Template
	files     map[string]store.File
	seq       int

	insertFileFn func(store.File) (store.File, error)
	pingFn       func(context.Context) error
	ensuredAdmin *store.User
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	hash, err := authpw.HashPassword(testPass, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	fs := &fakeStore{
		users: map[string]store.User{
			aliceID: {ID: aliceID, Email: "alice@example.com", PasswordHash: hash, FullName: "Alice", IsActive: true},
			bobID:   {ID: bobID, Email: "bob@example.com", PasswordHash: hash, FullName: "Bob", IsActive: true},
			adminID: {ID: adminID, Email: "admin@example.com", PasswordHash: hash, FullName: "Admin", IsActive: true, IsAdmin: true},
		},
		templates: []store.Template{
			{ID: templateID, Code: "TPL-BASE-001", Name: "Base", TemplateJSON: json.RawMessage(templateBody), Version: 1, IsActive: true, Visibility: store.VisibilityPublic},
			{ID: privateTpl, Code: "TPL-BOB", Name: "Bob's", TemplateJSON: json.RawMessage(templateBody), Version: 2, IsActive: true, OwnerID: bobID, Visibility: store.VisibilityPrivate},
		},
		files: map[string]store.File{},
	}
	return fs
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return store.ErrConflict
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.LastLoginAt = &at
	f.users[userID] = user
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) EnsureAdmin(_ context.Context, user store.User) error {
	f.ensuredAdmin = &user
	return nil
}

func (f *fakeStore) ListTemplates(_ context.Context, userID string, isAdmin bool) ([]store.Template, error) {
	var out []store.Template
	for _, tpl := range f.templates {
		if isAdmin || rbac.CanUseTemplate(rbac.RoleUser, tpl.Visibility, tpl.OwnerID == userID) {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (f *fakeStore) GetActiveTemplate(_ context.Context, id string) (store.Template, error) {
	for _, tpl := range f.templates {
		if tpl.ID == id && tpl.IsActive {
			return tpl, nil
		}
	}
	return store.Template{}, sql.ErrNoRows
}

func (f *fakeStore) ListFiles(_ context.Context, ownerID string) ([]store.FileSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.FileSummary{}
	for _, file := range f.files {
		if file.OwnerID == ownerID {
			out = append(out, store.FileSummary{ID: file.ID, Code: file.Code, Name: file.Name, SizeBytes: file.SizeBytes})
		}
	}
	return out, nil
}

func (f *fakeStore) GetFile(_ context.Context, id string) (store.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return store.File{}, sql.ErrNoRows
	}
	return file, nil
}

func (f *fakeStore) GetFileByShareToken(_ context.Context, token string) (store.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		if file.ShareToken == token {
			return file, nil
		}
	}
	return store.File{}, sql.ErrNoRows
}

func (f *fakeStore) InsertFile(_ context.Context, file store.File) (store.File, error) {
	if f.insertFileFn != nil {
		return f.insertFileFn(file)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	file.CreatedAt = time.Date(2026, 1, 1, 0, 0, f.seq, 0, time.UTC)
	file.UpdatedAt = file.CreatedAt
	f.files[file.ID] = file
	return file, nil
}

func (f *fakeStore) UpdateFileJSON(_ context.Context, id string, body []byte, searchText string) (store.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return store.File{}, sql.ErrNoRows
	}
	file.FileJSON = append(json.RawMessage(nil), body...)
	file.SizeBytes = int64(len(body))
	file.SearchText = searchText
	f.files[id] = file
	return file, nil
}

func (f *fakeStore) TouchFileOpened(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := f.files[id]
	file.LastOpenedAt = &at
	f.files[id] = file
	return nil
}

func (f *fakeStore) DeleteFile(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return false, nil
	}
	delete(f.files, id)
	return true, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeSearch struct {
	searchFn func(search.Query) search.Response
	indexed  []search.FileRecord
	deleted  []string
	reindex  int
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexFile(record search.FileRecord) { f.indexed = append(f.indexed, record) }
func (f *fakeSearch) DeleteFile(id string)               { f.deleted = append(f.deleted, id) }
func (f *fakeSearch) ReindexAllFromPG(context.Context)   { f.reindex++ }

type fakeArchive struct {
	putFn func(key, filename, mimeType string, data []byte) (blob.Link, error)
}

func (f *fakeArchive) Key(ownerID, fileCode, filename string) string {
	return "exports/" + ownerID + "/" + fileCode + "/" + filename
}

func (f *fakeArchive) Put(_ context.Context, key, filename, mimeType string, data []byte) (blob.Link, error) {
	return f.putFn(key, filename, mimeType, data)
}

func (f *fakeArchive) Ping(context.Context) error { return nil }

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checklistCfg := config.DefaultChecklist()
	return &Service{
		cfg: config.Config{
			TokenSecret: "test-secret",
			AccessTTL:   time.Hour,
			RefreshTTL:  24 * time.Hour,
		},
		checklist: checklistCfg,
		store:     fs,
		sessions:  session.NewRedisStoreWithClient(client),
		passwords: authpw.NewService(fs),
		exporter:  export.NewService(export.Options{PriorityLevels: checklistCfg.PriorityLevels}),
		now:       time.Now,
	}
}

func sessionFor(userID string, admin bool) Session {
	role := rbac.RoleUser
	if admin {
		role = rbac.RoleAdmin
	}
	return Session{UserID: userID, Role: role}
}

func TestCreateFileWrapsTemplate(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	idx := &fakeSearch{}
	svc.search = idx

	file, err := svc.CreateFile(context.Background(), sessionFor(aliceID, false), templateID, "  Auditoría  ")
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if file.Name != "Auditoría" || file.OwnerID != aliceID || file.TemplateID != templateID {
		t.Fatalf("unexpected file: %+v", file)
	}
	if !strings.HasPrefix(file.Code, "F-") || len(file.Code) != 8 {
		t.Fatalf("unexpected code %q", file.Code)
	}
	if !strings.HasPrefix(file.ShareToken, "sh_") || !file.ShareEnabled {
		t.Fatalf("unexpected share token %q", file.ShareToken)
	}
	if file.SizeBytes != int64(len(file.FileJSON)) {
		t.Fatalf("size %d does not match body %d", file.SizeBytes, len(file.FileJSON))
	}

	var body struct {
		Template struct {
			ID      string `json:"id"`
			Code    string `json:"code"`
			Version int    `json:"version"`
		} `json:"template"`
		Data struct {
			Nodes []map[string]any `json:"nodes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(file.FileJSON, &body); err != nil {
		t.Fatalf("stored body is not JSON: %v", err)
	}
	if body.Template.ID != templateID || body.Template.Code != "TPL-BASE-001" || body.Template.Version != 1 {
		t.Fatalf("unexpected template envelope: %+v", body.Template)
	}
	if len(body.Data.Nodes) != 2 {
		t.Fatalf("template nodes not copied: %+v", body.Data)
	}
	if !strings.Contains(file.SearchText, "Extintores") {
		t.Fatalf("search text %q misses node titles", file.SearchText)
	}
	if len(idx.indexed) != 1 || idx.indexed[0].ID != file.ID {
		t.Fatalf("file not indexed: %+v", idx.indexed)
	}
}

func TestCreateFileTemplateRules(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	ctx := context.Background()

	_, err := svc.CreateFile(ctx, sessionFor(aliceID, false), privateTpl, "x")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 403 {
		t.Fatalf("private template of another user: err = %v", err)
	}

	if _, err := svc.CreateFile(ctx, sessionFor(bobID, false), privateTpl, "x"); err != nil {
		t.Fatalf("owner should use private template: %v", err)
	}
	if _, err := svc.CreateFile(ctx, sessionFor(adminID, true), privateTpl, "x"); err != nil {
		t.Fatalf("admin should use any template: %v", err)
	}

	_, err = svc.CreateFile(ctx, sessionFor(aliceID, false), "5f0c2a44-2222-4b7c-8e1f-00000000ffff", "x")
	if !errors.As(err, &domainErr) || domainErr.Code != "TEMPLATE_NOT_FOUND" {
		t.Fatalf("unknown template: err = %v", err)
	}
}

func TestCreateFileRetriesCodeConflicts(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)

	var codes []string
	fs.insertFileFn = func(file store.File) (store.File, error) {
		codes = append(codes, file.Code)
		if len(codes) < 3 {
			return store.File{}, store.ErrConflict
		}
		return file, nil
	}
	if _, err := svc.CreateFile(context.Background(), sessionFor(aliceID, false), templateID, "x"); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if len(codes) != 3 {
		t.Fatalf("attempts = %d, want 3", len(codes))
	}

	codes = nil
	fs.insertFileFn = func(file store.File) (store.File, error) {
		codes = append(codes, file.Code)
		return store.File{}, store.ErrConflict
	}
	if _, err := svc.CreateFile(context.Background(), sessionFor(aliceID, false), templateID, "x"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("CreateFile() error = %v, want ErrConflict", err)
	}
	if len(codes) != maxCodeAttempts {
		t.Fatalf("attempts = %d, want %d", len(codes), maxCodeAttempts)
	}
}

func TestFileAccessRules(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	ctx := context.Background()

	file, err := svc.CreateFile(ctx, sessionFor(aliceID, false), templateID, "mine")
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	got, err := svc.GetFile(ctx, sessionFor(aliceID, false), file.ID)
	if err != nil || got.LastOpenedAt == nil {
		t.Fatalf("owner GetFile() = %+v, %v", got, err)
	}
	if _, err := svc.GetFile(ctx, sessionFor(adminID, true), file.ID); err != nil {
		t.Fatalf("admin GetFile() error = %v", err)
	}
	if _, err := svc.GetFile(ctx, sessionFor(bobID, false), file.ID); !errors.Is(err, errForbidden) {
		t.Fatalf("other user GetFile() error = %v", err)
	}
	if err := svc.DeleteFile(ctx, sessionFor(bobID, false), file.ID); !errors.Is(err, errForbidden) {
		t.Fatalf("other user DeleteFile() error = %v", err)
	}
	if _, err := svc.GetFile(ctx, sessionFor(aliceID, false), "not-a-uuid"); !errors.Is(err, errNotFound) {
		t.Fatalf("malformed id error = %v", err)
	}
	if _, err := svc.GetFile(ctx, sessionFor(aliceID, false), "0b9c6f7e-1111-4c1a-9d7e-00000000ffff"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("unknown id error = %v", err)
	}
}

func TestUpdateFileValidatesDocument(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	idx := &fakeSearch{}
	svc.search = idx
	ctx := context.Background()
	alice := sessionFor(aliceID, false)

	file, err := svc.CreateFile(ctx, alice, templateID, "mine")
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	invalid := json.RawMessage(`{"data":{"nodes":[{"id":1,"type":"ITEM","code":"A"},{"id":2,"type":"ITEM","code":"A"}]}}`)
	_, _, err = svc.UpdateFile(ctx, alice, file.ID, invalid)
	var validationErr *checklist.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("UpdateFile() error = %v, want validation error", err)
	}
	if stored := fs.files[file.ID]; string(stored.FileJSON) == string(invalid) {
		t.Fatal("invalid document was stored")
	}

	valid := json.RawMessage(`{"data":{"nodes":[{"id":1,"type":"ITEM","code":"A","title":"Botiquín"}]},"template":{"id":"t"}}`)
	updated, _, err := svc.UpdateFile(ctx, alice, file.ID, valid)
	if err != nil {
		t.Fatalf("UpdateFile() error = %v", err)
	}
	if string(updated.FileJSON) != string(valid) {
		t.Fatalf("body not stored as sent: %s", updated.FileJSON)
	}
	if updated.SearchText != "A Botiquín" {
		t.Fatalf("search text = %q", updated.SearchText)
	}
	if last := idx.indexed[len(idx.indexed)-1]; last.Text != "A Botiquín" {
		t.Fatalf("reindexed record = %+v", last)
	}

	_, warnings, err := svc.UpdateFile(ctx, alice, file.ID, json.RawMessage(`{"foo":1}`))
	if err != nil {
		t.Fatalf("empty document should store: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a no-nodes warning")
	}
}

func TestValidateFileReport(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	ctx := context.Background()
	alice := sessionFor(aliceID, false)

	file, err := svc.CreateFile(ctx, alice, templateID, "mine")
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	report, err := svc.ValidateFile(ctx, alice, file.ID)
	if err != nil || !report.Valid || report.Nodes != 2 {
		t.Fatalf("ValidateFile() = %+v, %v", report, err)
	}

	stored := fs.files[file.ID]
	stored.FileJSON = json.RawMessage(`{"nodes":[{"id":1,"type":"ITEM","code":"A"},{"id":2,"type":"ITEM","code":"A"},{"id":3,"type":"ITEM","code":"A"}]}`)
	fs.files[file.ID] = stored

	report, err = svc.ValidateFile(ctx, alice, file.ID)
	if err != nil {
		t.Fatalf("ValidateFile() error = %v", err)
	}
	if report.Valid || len(report.Violations) != 2 || !strings.Contains(report.Summary, "(+1 more)") {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestExportFileArchive(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	ctx := context.Background()
	alice := sessionFor(aliceID, false)

	file, err := svc.CreateFile(ctx, alice, templateID, "mine")
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	if _, _, err := svc.ExportFile(ctx, alice, file.ID, export.FormatCSV, true); !errors.Is(err, blob.ErrDisabled) {
		t.Fatalf("archive without storage: err = %v", err)
	}

	var storedKey string
	svc.archive = &fakeArchive{putFn: func(key, filename, mimeType string, data []byte) (blob.Link, error) {
		storedKey = key
		return blob.Link{Key: key, URL: "https://s3.local/" + key, Size: int64(len(data))}, nil
	}}
	result, link, err := svc.ExportFile(ctx, alice, file.ID, export.FormatCSV, true)
	if err != nil {
		t.Fatalf("ExportFile() error = %v", err)
	}
	if link == nil || link.Key != storedKey || storedKey != "exports/"+aliceID+"/"+file.Code+"/"+file.Code+".csv" {
		t.Fatalf("unexpected link %+v (key %q)", link, storedKey)
	}
	if result.Filename != file.Code+".csv" {
		t.Fatalf("filename = %q", result.Filename)
	}

	result, link, err = svc.ExportFile(ctx, alice, file.ID, export.FormatJSON, false)
	if err != nil || link != nil || !strings.Contains(string(result.Data), `"data"`) {
		t.Fatalf("plain export = %v, %+v, %v", result, link, err)
	}
}

func TestSharedFile(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	ctx := context.Background()

	file, err := svc.CreateFile(ctx, sessionFor(aliceID, false), templateID, "shared")
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	got, err := svc.SharedFile(ctx, file.ShareToken)
	if err != nil || got.ID != file.ID {
		t.Fatalf("SharedFile() = %+v, %v", got, err)
	}

	stored := fs.files[file.ID]
	stored.ShareEnabled = false
	fs.files[file.ID] = stored
	if _, err := svc.SharedFile(ctx, file.ShareToken); !errors.Is(err, errNotFound) {
		t.Fatalf("disabled share error = %v", err)
	}
	if _, err := svc.SharedFile(ctx, "nope"); !errors.Is(err, errNotFound) {
		t.Fatalf("malformed token error = %v", err)
	}
}

func TestSearchScopesToOwnerUnlessAdmin(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	var got search.Query
	svc.search = &fakeSearch{searchFn: func(q search.Query) search.Response {
		got = q
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}}

	svc.Search(context.Background(), sessionFor(aliceID, false), "acta", 10, 0)
	if got.OwnerID != aliceID || got.AllOwners {
		t.Fatalf("user query = %+v", got)
	}
	svc.Search(context.Background(), sessionFor(adminID, true), "acta", 10, 0)
	if !got.AllOwners {
		t.Fatalf("admin query = %+v", got)
	}

	resp := svc.Search(context.Background(), sessionFor(aliceID, false), "   ", 10, 0)
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("blank query response = %+v", resp)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice@example.com", testPass)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.UserID != aliceID {
		t.Fatalf("unexpected refreshed session: %+v", second)
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("reused refresh token error = %v", err)
	}

	user := fs.users[aliceID]
	user.IsActive = false
	fs.users[aliceID] = user
	if _, err := svc.Refresh(ctx, second.RefreshToken); !errors.Is(err, authpw.ErrInactiveUser) {
		t.Fatalf("inactive user refresh error = %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, second.Token); !errors.Is(err, authpw.ErrInactiveUser) {
		t.Fatalf("inactive user token error = %v", err)
	}
}

func TestBootstrapSeedsAdmin(t *testing.T) {
	fs := newFakeStore(t)
	svc := newTestService(t, fs)
	idx := &fakeSearch{}
	svc.search = idx
	svc.cfg.AdminEmail = "root@example.com"
	svc.cfg.AdminPassword = "supersecret"

	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if fs.ensuredAdmin == nil || fs.ensuredAdmin.Email != "root@example.com" {
		t.Fatalf("admin not ensured: %+v", fs.ensuredAdmin)
	}
	if bcrypt.CompareHashAndPassword([]byte(fs.ensuredAdmin.PasswordHash), []byte("supersecret")) != nil {
		t.Fatal("admin password not hashed")
	}
	if idx.reindex != 1 {
		t.Fatalf("reindex calls = %d", idx.reindex)
	}
}
