package editor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientUpdateFile(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod, gotPath = r.Method, r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"f1","code":"F-ABC123","name":"Auditoría","share_enabled":true,"size_bytes":42}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", "tok")
	file, err := client.UpdateFile(context.Background(), "f1", map[string]any{"data": map[string]any{"nodes": []any{}}})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/files/f1", gotPath)
	assert.JSONEq(t, `{"data":{"nodes":[]}}`, string(gotBody["file_json"]))
	assert.Equal(t, "F-ABC123", file.Code)
	assert.True(t, file.ShareEnabled)
	assert.EqualValues(t, 42, file.SizeBytes)
}

func TestHTTPClientDownloadXLSX(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/f1/export", r.URL.Path)
		assert.Equal(t, "xlsx", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte("PK\x03\x04"))
	}))
	defer srv.Close()

	data, err := NewHTTPClient(srv.URL, "").DownloadFileXLSX(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04"), data)
}

func TestHTTPClientErrors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		wantCode    string
		wantMessage string
	}{
		{"api error", "application/json", `{"code":"not_found","error":"file not found"}`, 404, "not_found", "file not found"},
		{"detail", "application/json", `{"detail":"Not authenticated"}`, 401, "", "Not authenticated"},
		{"message", "application/json; charset=utf-8", `{"message":"boom"}`, 500, "", "boom"},
		{"plain text", "text/plain", "bad gateway\n", 502, "", "bad gateway"},
		{"empty", "application/json", `{}`, 503, "", "error (503)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "").GetFile(context.Background(), "f1")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMessage, apiErr.Error())
		})
	}
}

func TestHTTPClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	err := NewHTTPClient(srv.URL, "").DeleteFile(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestHTTPClientDeleteNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewHTTPClient(srv.URL, "").DeleteFile(context.Background(), "f1"))
}
