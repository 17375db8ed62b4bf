package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// File is a stored checklist file as served by the API.
type File struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	OwnerID      string          `json:"owner_id,omitempty"`
	TemplateID   string          `json:"template_id,omitempty"`
	IsPublic     bool            `json:"is_public"`
	ShareToken   string          `json:"share_token,omitempty"`
	ShareEnabled bool            `json:"share_enabled"`
	SizeBytes    int64           `json:"size_bytes"`
	FileJSON     json.RawMessage `json:"file_json,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// FileClient is the backend boundary of an editing session.
type FileClient interface {
	GetFile(ctx context.Context, id string) (*File, error)
	UpdateFile(ctx context.Context, id string, fileJSON any) (*File, error)
	DownloadFileXLSX(ctx context.Context, id string) ([]byte, error)
	ListFiles(ctx context.Context) ([]File, error)
	DeleteFile(ctx context.Context, id string) error
}

var ErrNetwork = errors.New("network error")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("error (%d)", e.Status)
	}
	return e.Message
}

// HTTPClient talks to the checklist API with a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) GetFile(ctx context.Context, id string) (*File, error) {
	var file File
	if err := c.doJSON(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id), nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *HTTPClient) UpdateFile(ctx context.Context, id string, fileJSON any) (*File, error) {
	var file File
	body := map[string]any{"file_json": fileJSON}
	if err := c.doJSON(ctx, http.MethodPut, "/api/files/"+url.PathEscape(id), body, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *HTTPClient) ListFiles(ctx context.Context) ([]File, error) {
	var files []File
	if err := c.doJSON(ctx, http.MethodGet, "/api/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *HTTPClient) DeleteFile(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) DownloadFileXLSX(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id)+"/export?format=xlsx", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

// readAPIError pulls a message out of an error body: the API's "error"
// field, or "detail" / "message" from other backends, or the raw text.
func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var payload struct {
			Code    string `json:"code"`
			Error   string `json:"error"`
			Detail  any    `json:"detail"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Code = payload.Code
			switch {
			case payload.Error != "":
				apiErr.Message = payload.Error
			case payload.Detail != nil:
				apiErr.Message = fmt.Sprint(payload.Detail)
			default:
				apiErr.Message = payload.Message
			}
		}
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}
