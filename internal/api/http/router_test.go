package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/activity-tracker/internal/api/http/handlers"
	"github.com/spec-kit/activity-tracker/internal/auth"
	"github.com/spec-kit/activity-tracker/internal/config"
	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/events"
	"github.com/spec-kit/activity-tracker/internal/observability"
	"github.com/spec-kit/activity-tracker/internal/repository"
	"github.com/spec-kit/activity-tracker/internal/service"
)

type testServer struct {
	app     *fiber.App
	deriver *service.Deriver
	now     time.Time
	mu      sync.Mutex
}

func (s *testServer) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *testServer) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hash, err := auth.HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	users := repository.NewMemoryUserRepository(
		domain.User{ID: "admin", Email: "admin@example.com", Name: "Alice", Role: domain.UserRoleAdmin, PasswordHash: hash},
		domain.User{ID: "member", Email: "member@example.com", Name: "Bob", Role: domain.UserRoleMember, PasswordHash: hash},
		domain.User{ID: "viewer", Email: "viewer@example.com", Name: "Vic", Role: domain.UserRoleViewer, PasswordHash: hash},
	)

	srv := &testServer{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	store := repository.NewMemorySessionStore()
	opts := service.TrackerOptions{Location: time.UTC, Clock: srv.clock, Lock: &sync.Mutex{}}

	statuses := service.NewStatusService(service.StatusDependencies{
		Statuses:   repository.NewMemoryStatusRepository("", logger),
		Users:      users,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, opts)
	activeTime := service.NewActiveTimeService(service.ActiveTimeDependencies{
		Users: users, Statuses: statuses, Store: store, Dispatcher: dispatcher, Logger: logger,
	}, opts)
	srv.deriver = service.NewDeriver(service.DeriverDependencies{
		Users: users, Statuses: statuses, Store: store, Dispatcher: dispatcher, Metrics: metrics, Logger: logger,
	}, opts)
	authService := service.NewAuthService(config.AuthConfig{JWTSecret: "test", BcryptCost: bcrypt.MinCost}, users)

	app := fiber.New(fiber.Config{Immutable: true})
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("activity-tracker", "test", metrics, nil),
		Users:          handlers.NewUsersHandler(authService, users),
		Status:         handlers.NewStatusHandler(statuses, activeTime.Today),
		ActiveTime:     handlers.NewActiveTimeHandler(activeTime),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), users),
	})
	srv.app = app
	return srv
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	status, body := s.do(t, "POST", "/auth/login", "", fmt.Sprintf(`{"email":%q,"password":"secret1"}`, email))
	require.Equal(t, fiber.StatusOK, status, body)
	return body["data"].(map[string]any)["auth"].(map[string]any)["token"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, "GET", "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(t, "GET", "/health/ready", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	status, body := s.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body["data"], "tracker")
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/active-time", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = s.do(t, "POST", "/auth/login", "", `{"email":"admin@example.com","password":"nope"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRoutes_StatusPermissions(t *testing.T) {
	s := newTestServer(t)
	member := s.login(t, "member@example.com")
	viewer := s.login(t, "viewer@example.com")
	admin := s.login(t, "admin@example.com")

	status, _ := s.do(t, "PUT", "/status/admin", member, `{"status":"active"}`)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = s.do(t, "PUT", "/status/viewer", viewer, `{"status":"active"}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := s.do(t, "PUT", "/status/member", member, `{"status":"active","memo":"Docs"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "active", body["data"].(map[string]any)["status"])

	status, _ = s.do(t, "PUT", "/status/member", admin, `{"status":"busy"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, "GET", "/status/member", viewer, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Docs", body["data"].(map[string]any)["memo"])

	status, body = s.do(t, "GET", "/status/member/history?date=2024-03-04", viewer, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestRoutes_ActiveTimeFlow(t *testing.T) {
	s := newTestServer(t)
	member := s.login(t, "member@example.com")
	admin := s.login(t, "admin@example.com")
	viewer := s.login(t, "viewer@example.com")
	ctx := context.Background()

	status, body := s.do(t, "POST", "/status/member/toggle", member, `{"project":"Apollo","memo":"Login page"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	_, err := s.deriver.CheckStatusChanges(ctx)
	require.NoError(t, err)

	s.advance(90 * time.Second)
	status, body = s.do(t, "GET", "/active-users", member, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)

	// Reads between a status write and the next cycle must not look like a
	// status change.
	status, body = s.do(t, "GET", "/status/viewer", viewer, "")
	require.Equal(t, fiber.StatusOK, status, body)
	res, err := s.deriver.CheckStatusChanges(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	status, body = s.do(t, "GET", "/active-time/member?date=2024-03-04", member, "")
	require.Equal(t, fiber.StatusOK, status)
	open := body["data"].(map[string]any)["sessions"].([]any)
	require.Len(t, open, 1)
	assert.NotContains(t, open[0].(map[string]any), "end_time")
	assert.Equal(t, float64(90), body["data"].(map[string]any)["active_seconds"])

	status, body = s.do(t, "DELETE", "/active-time/member/2024-03-04/sessions/0", admin, "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, _ = s.do(t, "POST", "/status/member/toggle", member, "")
	require.Equal(t, fiber.StatusOK, status)
	_, err = s.deriver.CheckStatusChanges(ctx)
	require.NoError(t, err)

	status, body = s.do(t, "GET", "/active-time?date=2024-03-04", member, "")
	require.Equal(t, fiber.StatusOK, status)
	rows := body["data"].([]any)
	require.Len(t, rows, 2, "viewers are not listed")
	first := rows[0].(map[string]any)
	assert.Equal(t, "admin", first["user_id"])
	second := rows[1].(map[string]any)
	assert.Equal(t, "member", second["user_id"])
	assert.Equal(t, float64(90), second["active_seconds"])
	assert.Equal(t, "1m 30s", second["formatted"])

	status, _ = s.do(t, "PATCH", "/active-time/member/2024-03-04/sessions/0", member, `{"memo":"x"}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = s.do(t, "PATCH", "/active-time/member/2024-03-04/sessions/0", admin, `{"memo":"[Apollo] Review"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	sessions := body["data"].(map[string]any)["sessions"].([]any)
	assert.Equal(t, "[Apollo] Review", sessions[0].(map[string]any)["memo"])

	status, _ = s.do(t, "DELETE", "/active-time/member/2024-03-04/sessions/x", admin, "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, "DELETE", "/active-time/member/2024-03-04/sessions/0", admin, "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, float64(0), body["data"].(map[string]any)["total_seconds"])

	status, body = s.do(t, "GET", "/active-time/member?date=2024-03-04", member, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["data"].(map[string]any)["sessions"])

	status, _ = s.do(t, "GET", "/active-time?date=04-03-2024", member, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRoutes_ChangePassword(t *testing.T) {
	s := newTestServer(t)
	member := s.login(t, "member@example.com")

	status, _ := s.do(t, "POST", "/auth/password/change", member, `{"current_password":"secret1","new_password":"abc"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, "POST", "/auth/password/change", member, `{"current_password":"secret1","new_password":"new-secret"}`)
	assert.Equal(t, fiber.StatusNoContent, status)

	status, _ = s.do(t, "POST", "/auth/login", "", `{"email":"member@example.com","password":"new-secret"}`)
	assert.Equal(t, fiber.StatusOK, status)
}
