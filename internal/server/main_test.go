package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkwell/internal/config"
	"inkwell/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPassword = "Str0ng!Pass"

type testEnv struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *redis.Client
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:            "0",
		Env:             "test",
		AllowedOrigins:  "http://localhost:5173",
		DBDriver:        "sqlite",
		JWTSecret:       "server-test-secret-server-test-secret",
		TokenTTLHours:   1,
		AuthMode:        config.AuthModeToken,
		SessionTTLHours: 1,
		UploadBackend:   config.UploadLocal,
		UploadDir:       t.TempDir(),
		UploadMaxSizeMB: 5,
	}
}

// newTestEnv builds a server on SQLite and miniredis. mutate may adjust the
// configuration before the server is built.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	return &testEnv{srv: srv, app: srv.NewApp(), db: db, mr: mr, rdb: rdb}
}

type response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r response) JSON(t *testing.T) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(r.Body, &out), "body: %s", r.Body)
	return out
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string, headers ...string) response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{Status: resp.StatusCode, Header: resp.Header, Body: raw}
}

// signup registers nickname and returns its bearer token and user id.
func (e *testEnv) signup(t *testing.T, nickname string) (string, uint) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email":    nickname + "@example.com",
		"password": testPassword,
		"nickname": nickname,
	}, "")
	require.Equal(t, http.StatusCreated, resp.Status, "body: %s", resp.Body)

	body := resp.JSON(t)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user := body["user"].(map[string]any)
	return token, uint(user["id"].(float64))
}

// createPost creates a post over HTTP and returns its id.
func (e *testEnv) createPost(t *testing.T, token, title string) uint {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/posts", map[string]string{
		"title":   title,
		"content": title + " content",
	}, token)
	require.Equal(t, http.StatusCreated, resp.Status, "body: %s", resp.Body)
	return uint(resp.JSON(t)["post_id"].(float64))
}
