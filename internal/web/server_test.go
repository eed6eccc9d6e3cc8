package web

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/synset-tree/internal/records"
	"github.com/Laisky/synset-tree/library/log"
	"github.com/Laisky/synset-tree/library/throttle"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

func TestAllowCORS(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	domains := []string{"example.com", "localhost"}
	tests := []struct {
		name           string
		method         string
		origin         string
		expectedStatus int
		expectedCORS   bool
	}{
		{name: "No origin header", method: "GET", expectedStatus: http.StatusOK},
		{name: "Subdomain GET", method: "GET", origin: "https://app.example.com", expectedStatus: http.StatusOK, expectedCORS: true},
		{name: "Main domain", method: "GET", origin: "https://example.com", expectedStatus: http.StatusOK, expectedCORS: true},
		{name: "Localhost with port", method: "GET", origin: "http://localhost:5173", expectedStatus: http.StatusOK, expectedCORS: true},
		{name: "Preflight allowed", method: "OPTIONS", origin: "https://app.example.com", expectedStatus: http.StatusNoContent, expectedCORS: true},
		{name: "Preflight denied", method: "OPTIONS", origin: "https://evil.com", expectedStatus: http.StatusForbidden},
		{name: "Disallowed GET passes without headers", method: "GET", origin: "https://evil.com", expectedStatus: http.StatusOK},
		{name: "Suffix trick", method: "GET", origin: "https://example.com.evil.com", expectedStatus: http.StatusOK},
		{name: "Lookalike domain", method: "GET", origin: "https://notexample.com", expectedStatus: http.StatusOK},
		{name: "Case insensitive", method: "GET", origin: "https://App.EXAMPLE.com", expectedStatus: http.StatusOK, expectedCORS: true},
		{name: "Malformed origin", method: "GET", origin: "not-a-valid-url", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(allowCORS(domains))
			router.Any("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "success"})
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Status code mismatch")
			if tt.expectedCORS {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, "GET, OPTIONS, HEAD", w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestOriginAllowedWildcard(t *testing.T) {
	t.Parallel()

	require.True(t, originAllowed("https://anything.test", []string{"*"}))
	require.False(t, originAllowed("https://anything.test", nil))
	require.False(t, originAllowed("https://anything.test", []string{" ", ""}))
}

func TestRequestID(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	router := gin.New()
	router.Use(requestID)
	var seen string
	router.GET("/test", func(c *gin.Context) {
		seen = c.GetString(HeaderRequestID)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	generated := w.Header().Get(HeaderRequestID)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)
	require.Equal(t, generated, seen)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func newTestRecordsHandler(t *testing.T) *records.HTTPHandler {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	ctx := context.Background()
	store, err := records.NewStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
		return store.InsertBatch(ctx, tx, []records.Record{
			{Name: "A", Size: 2},
			{Name: "A > B", Size: 1},
			{Name: "A > B > C", Size: 0},
		})
	}))

	svc, err := records.NewService(store, store, nil)
	require.NoError(t, err)
	return records.NewHTTPHandler(svc, time.Second, nil)
}

func newTestEngine(t *testing.T, dist string) *gin.Engine {
	t.Helper()
	setupGinTestMode()
	engine, err := NewEngine(Options{
		Debug:          true,
		AllowedOrigins: []string{"example.com"},
		FrontendDist:   dist,
		Records:        newTestRecordsHandler(t),
		Logger:         log.Logger.Named("test_web"),
		DisableMetric:  true,
	})
	require.NoError(t, err)
	return engine
}

func TestEngineRoutes(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "app.js"), []byte("console.log(1)"), 0o600))
	engine := newTestEngine(t, dist)

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	t.Run("health", func(t *testing.T) {
		w := get("/health")
		require.Equal(t, http.StatusOK, w.Code)
		require.NotEmpty(t, w.Header().Get(HeaderRequestID))
	})

	t.Run("roots", func(t *testing.T) {
		w := get("/api/records")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `[{"id":1,"name":"A","path":"A","size":2,"children":[]}]`, w.Body.String())
	})

	t.Run("children", func(t *testing.T) {
		w := get("/api/records?parentName=A")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `[{"id":2,"name":"B","path":"A > B","size":1,"children":[]}]`, w.Body.String())
	})

	t.Run("search", func(t *testing.T) {
		w := get("/api/records?search=C")
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `[{"id":0,"name":"A","path":"A","size":2,"children":[
			{"id":0,"name":"B","path":"A > B","size":1,"children":[
				{"id":3,"name":"C","path":"A > B > C","size":0,"children":[]}]}]}]`, w.Body.String())
	})

	for _, target := range []string{"/", "/index.html", "/records/deep/link"} {
		t.Run("index "+target, func(t *testing.T) {
			w := get(target)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "<html>app</html>", w.Body.String())
			require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		})
	}

	t.Run("index head", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/records/deep/link", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("post outside api", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/records", nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("traversal stays in dist", func(t *testing.T) {
		secret := filepath.Join(filepath.Dir(dist), "secret.txt")
		require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))
		t.Cleanup(func() { _ = os.Remove(secret) })

		w := get("/../secret.txt")
		require.Equal(t, http.StatusNotFound, w.Code)
		require.NotContains(t, w.Body.String(), "secret")
	})

	t.Run("static asset", func(t *testing.T) {
		w := get("/app.js")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "console.log")
	})

	t.Run("missing asset", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, get("/missing.css").Code)
	})

	t.Run("unknown api route", func(t *testing.T) {
		w := get("/api/unknown")
		require.Equal(t, http.StatusNotFound, w.Code)
		require.JSONEq(t, `{"error":"not found"}`, w.Body.String())
	})
}

func TestEngineWithoutFrontend(t *testing.T) {
	// directory exists but holds no index.html
	engine := newTestEngine(t, t.TempDir())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	setupGinTestMode()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	th, err := throttle.New(ctx, throttle.Config{
		TotalNPerSec: 100, TotalBurst: 100,
		EachKeyNPerSec: 1, EachKeyBurst: 1,
	})
	require.NoError(t, err)

	router := gin.New()
	router.Use(rateLimit(th))
	router.GET("/api/records", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(target, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, get("/api/records", "10.0.0.1:1234").Code)
	w := get("/api/records", "10.0.0.1:1234")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
	require.JSONEq(t, `{"error":"too many requests"}`, w.Body.String())

	require.Equal(t, http.StatusOK, get("/api/records", "10.0.0.2:1234").Code, "budgets are per client")
	require.Equal(t, http.StatusOK, get("/health", "10.0.0.1:1234").Code, "non-api routes are not limited")
}
