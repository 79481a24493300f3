package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/codegraph/internal/archive"
	"github.com/phobologic/codegraph/internal/config"
	"github.com/phobologic/codegraph/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Addr: ":0",
		Env:  "test",
		Analyze: config.AnalyzeConfig{
			MaxUploadBytes: archive.DefaultMaxArchiveBytes,
			MaxFileBytes:   archive.DefaultMaxFileBytes,
			Timeout:        30 * time.Second,
		},
		Identity: config.IdentityConfig{
			BaseURL:      "http://127.0.0.1:1",
			Mode:         config.AuthModeJWT,
			TokenPath:    "/api/token/",
			RefreshPath:  "/api/token/refresh/",
			MePath:       "/api/users/me/",
			RegisterPath: "/api/auth/users/",
			LogoutPath:   "/api/logout/",
			Timeout:      time.Second,
		},
	}
}

func newTestServer(cfg *config.Config) *Server {
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func buildZip(t *testing.T, files ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := 0; i+1 < len(files); i += 2 {
		w, err := zw.Create(files[i])
		require.NoError(t, err)
		_, err = io.WriteString(w, files[i+1])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field string, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "project.zip")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body["error"]
}

func TestUpload(t *testing.T) {
	s := newTestServer(testConfig())
	payload := buildZip(t,
		"src/a.js", "import { b } from './b';\nfunction a() { b(); }\n",
		"src/b.js", "export function b() {}\n",
	)

	w := serve(s, uploadRequest(t, "file", payload))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res model.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, model.Summary{Files: 2, Functions: 2, CallEdges: 1, ImportEdges: 1, TotalEdges: 4}, res.Summary)
	assert.Len(t, res.Elements.Nodes, 4)
	assert.Len(t, res.Elements.Edges, 4)
}

func TestUploadMissingFile(t *testing.T) {
	s := newTestServer(testConfig())

	w := serve(s, uploadRequest(t, "other", buildZip(t, "a.js", "a()")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file provided", errorMessage(t, w))
}

func TestUploadNotMultipart(t *testing.T) {
	s := newTestServer(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	w := serve(s, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Analyze.MaxUploadBytes = 64
	s := newTestServer(cfg)

	w := serve(s, uploadRequest(t, "file", buildZip(t, "a.js", strings.Repeat("x", 512))))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Zip too large (> 64 bytes)", errorMessage(t, w))
}

func TestUploadBodyOverLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Analyze.MaxUploadBytes = 64
	s := newTestServer(cfg)

	w := serve(s, uploadRequest(t, "file", bytes.Repeat([]byte("z"), 2*multipartSlack)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUploadMalformedArchive(t *testing.T) {
	s := newTestServer(testConfig())

	w := serve(s, uploadRequest(t, "file", []byte("definitely not a zip")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, errorMessage(t, w))
}

func TestUploadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Analyze.Timeout = -time.Second
	s := newTestServer(cfg)

	w := serve(s, uploadRequest(t, "file", buildZip(t, "a.js", "function a() {}")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, errorMessage(t, w), "analysis exceeded")
}

func TestHealth(t *testing.T) {
	s := newTestServer(testConfig())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	s := newTestServer(testConfig())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRequestID(t *testing.T) {
	s := newTestServer(testConfig())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = serve(s, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	s := newTestServer(testConfig())
	s.engine.GET("/boom", func(*gin.Context) { panic("boom") })

	w := serve(s, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server error", errorMessage(t, w))
}

func TestAuthRoutesMounted(t *testing.T) {
	s := newTestServer(testConfig())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/auth/register", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"route":"/api/auth/register"}`, w.Body.String())
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "40MB", formatSize(40<<20))
	assert.Equal(t, "1000 bytes", formatSize(1000))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "127.0.0.1:0"
	s := newTestServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunListenError(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "not-an-address"
	s := newTestServer(cfg)

	err := s.Run(context.Background())
	assert.Error(t, err)
}
