package controller

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/docbot/services"
)

const testKey = "test-key"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T, limiter *KeyRateLimiter) *gin.Engine {
	t.Helper()
	return newTestRouterWithUploadLimit(t, limiter, 1<<20)
}

func newTestRouterWithUploadLimit(t *testing.T, limiter *KeyRateLimiter, maxUploadBytes int64) *gin.Engine {
	t.Helper()
	root := t.TempDir()
	content := services.NewContentStore(filepath.Join(root, "data"), filepath.Join(root, "data_webhooks"), filepath.Join(root, "storage"))
	require.NoError(t, content.EnsureLayout())

	pipeline := services.NewIngestionPipeline(content, services.NewFileIndexStore(content.StorageDir()), services.NewHashingEmbedder(512), 1000, 100)
	rag := services.NewRAGService(content, pipeline, services.NewIndexCache(pipeline),
		services.NewWebhookDownloader(5*time.Second, 1<<20), services.NewExtractiveSynthesizer(),
		services.Options{TopK: 2, MinScore: 0.05})

	keys := filepath.Join(root, "api_keys.txt")
	require.NoError(t, os.WriteFile(keys, []byte(services.HashKey(testKey)+"\n"), 0o600))
	creds := services.NewCredentialStore(keys, services.CredentialModeSHA256)

	return NewRouter(NewRAGController(rag, maxUploadBytes), creds, limiter)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, key string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func multipartUpload(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthIsPublic(t *testing.T) {
	r := newTestRouter(t, nil)
	w, body := doJSON(t, r, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestAuthenticationRequired(t *testing.T) {
	r := newTestRouter(t, nil)
	for _, key := range []string{"", "wrong", services.HashKey(testKey)} {
		w, body := doJSON(t, r, http.MethodPost, "/query", map[string]string{"query_input": "hi"}, key)
		assert.Equal(t, http.StatusUnauthorized, w.Code, key)
		assert.Equal(t, "Authentication Failed", body["message"])
	}
	w, _ := doJSON(t, r, http.MethodGet, "/files", nil, "Bearer "+testKey)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadTextThenQuery(t *testing.T) {
	r := newTestRouter(t, nil)

	w, body := doJSON(t, r, http.MethodPost, "/upload-text", map[string]string{"text": "Paris is the capital of France", "file_name": "facts.txt"}, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Text uploaded successfully", body["message"])

	w, body = doJSON(t, r, http.MethodPost, "/query", map[string]string{"query_input": "What is the capital of France?"}, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["message"], "Paris")

	w, body = doJSON(t, r, http.MethodPost, "/delete-upload-file", map[string]string{"file_name": "facts.txt"}, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "File deleted successfully", body["message"])

	w, body = doJSON(t, r, http.MethodPost, "/query", map[string]string{"query_input": "What is the capital of France?"}, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body["message"], "Paris")
}

func TestValidationFailures(t *testing.T) {
	r := newTestRouter(t, nil)
	cases := []struct {
		path string
		body any
	}{
		{"/query", map[string]string{}},
		{"/query", map[string]string{"query_input": "   "}},
		{"/upload-webhook", map[string]string{}},
		{"/upload-webhook", map[string]string{"url": "ftp://example.com/a.txt"}},
		{"/upload-text", map[string]string{"file_name": "a.txt"}},
		{"/delete-upload-file", map[string]string{}},
		{"/delete-webhook", map[string]string{"file_name": "tmp.txt"}},
	}
	for _, tc := range cases {
		w, body := doJSON(t, r, http.MethodPost, tc.path, tc.body, testKey)
		assert.Equal(t, http.StatusBadRequest, w.Code, tc.path)
		assert.NotEmpty(t, body["message"], tc.path)
	}
}

func TestDeleteMissingFileIsServerError(t *testing.T) {
	r := newTestRouter(t, nil)
	w, _ := doJSON(t, r, http.MethodPost, "/delete-webhook", map[string]string{"file_name": "ghost.txt"}, testKey)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUploadDirectAndListFiles(t *testing.T) {
	r := newTestRouter(t, nil)

	body, contentType := multipartUpload(t, map[string]string{
		"one.txt": "first file",
		"two.csv": "city,country\nParis,France\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/upload-direct", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Upload successful"}`, w.Body.String())

	w, _ = doJSON(t, r, http.MethodGet, "/files", nil, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":{"data":["one.txt","two.csv"],"data_webhooks":[]}}`, w.Body.String())

	w, out := doJSON(t, r, http.MethodPost, "/delete-all-upload-files", nil, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "All files deleted successfully", out["message"])
}

func TestUploadDirectRejectsBinary(t *testing.T) {
	r := newTestRouter(t, nil)
	body, contentType := multipartUpload(t, map[string]string{"blob.bin": "\xff\xfe\x00\x81"})
	req := httptest.NewRequest(http.MethodPost, "/upload-direct", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/upload-direct", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", testKey)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadDirectRejectsOversizedBody(t *testing.T) {
	r := newTestRouterWithUploadLimit(t, nil, 512)
	body, contentType := multipartUpload(t, map[string]string{"big.txt": strings.Repeat("too long ", 200)})
	req := httptest.NewRequest(http.MethodPost, "/upload-direct", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())

	w, _ = doJSON(t, r, http.MethodGet, "/files", nil, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":{"data":[],"data_webhooks":[]}}`, w.Body.String())
}

func TestUploadWebhookRoutes(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/missing.txt" {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write([]byte("Madrid is the capital of Spain."))
	}))
	defer remote.Close()
	r := newTestRouter(t, nil)

	w, body := doJSON(t, r, http.MethodPost, "/upload-webhook", map[string]string{"url": remote.URL + "/spain.txt"}, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Upload successful", body["message"])

	w, _ = doJSON(t, r, http.MethodPost, "/upload-webhook", map[string]string{"url": remote.URL + "/missing.txt"}, testKey)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w, body = doJSON(t, r, http.MethodPost, "/delete-webhook", map[string]string{"file_name": "spain.txt"}, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Webhook file deleted successfully", body["message"])

	w, body = doJSON(t, r, http.MethodPost, "/delete-all-webhooks", nil, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "All webhook files deleted successfully", body["message"])
}

func TestSaveIndexAndStatus(t *testing.T) {
	r := newTestRouter(t, nil)

	w, body := doJSON(t, r, http.MethodGet, "/save-index", nil, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Index saved successfully", body["message"])

	w, body = doJSON(t, r, http.MethodGet, "/index", nil, testKey)
	require.Equal(t, http.StatusOK, w.Code)
	manifest, ok := body["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hashing-512", manifest["embedder"])
	assert.NotEmpty(t, manifest["build_id"])
}

func TestRateLimit(t *testing.T) {
	r := newTestRouter(t, NewKeyRateLimiter(0.001, 2))

	for i := 0; i < 2; i++ {
		w, _ := doJSON(t, r, http.MethodGet, "/files", nil, testKey)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, body := doJSON(t, r, http.MethodGet, "/files", nil, testKey)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded", body["message"])

	// Rejected keys never reach the limiter.
	w, _ = doJSON(t, r, http.MethodGet, "/files", nil, "other")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKeyRateLimiterBucketsPerKey(t *testing.T) {
	l := NewKeyRateLimiter(0.001, 1)
	require.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestKeyRateLimiterDisabled(t *testing.T) {
	l := NewKeyRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("k"))
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
