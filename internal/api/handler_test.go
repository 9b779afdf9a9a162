//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/tranquili/internal/achievement"
	"github.com/ashureev/tranquili/internal/companion"
	"github.com/ashureev/tranquili/internal/identity"
	"github.com/ashureev/tranquili/internal/progress"
	"github.com/ashureev/tranquili/internal/store"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	repo   store.Repository
}

func newTestEnv(t *testing.T, limiter *companion.RateLimiter) *testEnv {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	prog := progress.NewService(repo, nil)
	chat := companion.NewService(repo, companion.EchoResponder{}, prog, limiter)

	h, err := NewHandler(repo, prog, chat, false)
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHealthHandler(repo).RegisterHealth(r)
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, true, func(ctx context.Context, userID string) error {
			_, err := prog.Refresh(ctx, userID)
			return err
		}))
		h.RegisterRoutes(r)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar, Timeout: 5 * time.Second}, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func unlockedIDs(t *testing.T, v any) []string {
	t.Helper()
	list, ok := v.([]any)
	require.True(t, ok, "newly_unlocked must be an array, got %T", v)
	ids := make([]string, 0, len(list))
	for _, item := range list {
		ids = append(ids, item.(map[string]any)["id"].(string))
	}
	return ids
}

func TestMoodCheckInUnlocksAchievements(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/api/moods", map[string]string{"date": "2024-03-01", "mood": "happy"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, []string{achievement.FirstEntry, achievement.FirstHappy}, unlockedIDs(t, body["newly_unlocked"]))
	entry := body["entry"].(map[string]any)
	assert.Equal(t, "2024-03-01", entry["date"])
	assert.NotEmpty(t, entry["id"])

	status, body = env.do(t, http.MethodPost, "/api/moods", map[string]string{"date": "2024-03-02", "mood": "happy"})
	require.Equal(t, http.StatusCreated, status)
	assert.Empty(t, unlockedIDs(t, body["newly_unlocked"]), "no duplicate notifications")

	status, body = env.do(t, http.MethodPost, "/api/moods", map[string]string{"date": "2024-03-03", "mood": "calm", "note": "long walk"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, []string{achievement.Streak3, achievement.FirstCalm}, unlockedIDs(t, body["newly_unlocked"]))

	status, body = env.do(t, http.MethodGet, "/api/achievements", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, body["unlocked"])
	assert.EqualValues(t, len(achievement.Catalog()), body["total"])
	first := body["achievements"].([]any)[0].(map[string]any)
	assert.Equal(t, achievement.FirstEntry, first["id"])
	assert.Equal(t, true, first["unlocked"])
}

func TestMoodValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"unknown mood", map[string]string{"date": "2024-03-01", "mood": "ecstatic"}, "mood"},
		{"uppercase mood", map[string]string{"date": "2024-03-01", "mood": "Happy"}, "mood"},
		{"missing mood", map[string]string{"date": "2024-03-01"}, "mood"},
		{"bad date", map[string]string{"date": "03/01/2024", "mood": "calm"}, "date"},
		{"impossible date", map[string]string{"date": "2024-02-30", "mood": "calm"}, "date"},
		{"long note", map[string]string{"date": "2024-03-01", "mood": "calm", "note": strings.Repeat("x", 1001)}, "note"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/moods", tt.body)
			require.Equal(t, http.StatusBadRequest, status)
			fields := body["fields"].(map[string]any)
			assert.Contains(t, fields, tt.field)
		})
	}

	status, body := env.do(t, http.MethodGet, "/api/moods", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["entries"])
}

func TestMoodInvalidJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := env.client.Post(env.srv.URL+"/api/moods", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListMoodsRange(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, d := range []string{"2024-01-30", "2024-02-01", "2024-02-15", "2024-03-01"} {
		status, _ := env.do(t, http.MethodPost, "/api/moods", map[string]string{"date": d, "mood": "neutral"})
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := env.do(t, http.MethodGet, "/api/moods?from=2024-02-01&to=2024-02-29", nil)
	require.Equal(t, http.StatusOK, status)
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-02-01", entries[0].(map[string]any)["date"])

	status, _ = env.do(t, http.MethodGet, "/api/moods?from=2024-02-01", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodGet, "/api/moods?from=2024-03-01&to=2024-02-01", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestChatUnlocksFirstChat(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/api/chat", nil)
	require.Equal(t, http.StatusOK, status)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1, "greeting is seeded")
	assert.Equal(t, companion.Greeting, msgs[0].(map[string]any)["text"])

	status, body = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "I slept badly"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []string{achievement.FirstChat}, unlockedIDs(t, body["newly_unlocked"]))
	assert.Equal(t, "I slept badly", body["user_message"].(map[string]any)["text"])
	assert.Contains(t, body["companion_message"].(map[string]any)["text"], "I slept badly")

	status, body = env.do(t, http.MethodGet, "/api/chat?limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["messages"], 2)

	status, _ = env.do(t, http.MethodGet, "/api/chat?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestChatRateLimited(t *testing.T) {
	env := newTestEnv(t, companion.NewRateLimiter(1, time.Minute))

	status, _ := env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "again"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate limit exceeded", body["error"])
}

func TestGratitudeDiary(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/api/gratitude", map[string]string{"date": "2024-04-01", "text": "morning coffee"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "morning coffee", body["text"])

	status, _ = env.do(t, http.MethodPost, "/api/gratitude", map[string]string{"date": "2024-04-02", "text": "a call with mum"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodPost, "/api/gratitude", map[string]string{"date": "2024-04-02"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/gratitude?limit=1", nil)
	require.Equal(t, http.StatusOK, status)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "a call with mum", entries[0].(map[string]any)["text"])
}

func TestMeAndConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(body["user_id"].(string), "anon_"))
	assert.True(t, strings.HasPrefix(body["username"].(string), "anon-"))

	status, body = env.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["companion_enabled"])
	assert.Equal(t, []any{"happy", "calm", "neutral", "sad", "anxious"}, body["moods"])
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	status, body := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	w := httptest.NewRecorder()
	NewHealthHandler(downDB{}).Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unreachable")
}
