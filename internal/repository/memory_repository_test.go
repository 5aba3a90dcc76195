package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

func TestMemoryStatusRepository_LatestAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStatusRepository("", zap.NewNop())
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := repo.Latest(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Append(ctx, domain.StatusSnapshot{UserID: "u1", Status: domain.StatusActive, Memo: "X", Timestamp: base.Add(time.Hour)}))
	require.NoError(t, repo.Append(ctx, domain.StatusSnapshot{UserID: "u1", Status: domain.StatusNotAvailable, Timestamp: base}))
	require.NoError(t, repo.Append(ctx, domain.StatusSnapshot{UserID: "u2", Status: domain.StatusActive, Timestamp: base}))
	require.NoError(t, repo.Append(ctx, domain.StatusSnapshot{UserID: "u1", Status: domain.StatusAvailableForWork, Timestamp: base.Add(25 * time.Hour)}))

	latest, err := repo.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailableForWork, latest.Status)

	day, err := repo.History(ctx, "u1", base.Add(-9*time.Hour), base.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, domain.StatusNotAvailable, day[0].Status)
	assert.Equal(t, domain.StatusActive, day[1].Status)

	all, err := repo.History(ctx, "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStatusRepository_KeepsOwnCopyOfUserID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStatusRepository("", zap.NewNop())

	buf := []byte("member")
	userID := unsafe.String(&buf[0], len(buf))
	require.NoError(t, repo.Append(ctx, domain.StatusSnapshot{UserID: userID, Status: domain.StatusActive, Memo: "X", Timestamp: time.Now()}))
	copy(buf, "viewer")

	latest, err := repo.Latest(ctx, "member")
	require.NoError(t, err)
	assert.Equal(t, "member", latest.UserID)
	assert.Equal(t, domain.StatusActive, latest.Status)

	history, err := repo.History(ctx, "member", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMemoryStatusRepository_PersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "status.json")
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	repo := NewMemoryStatusRepository(path, zap.NewNop())
	require.NoError(t, repo.Append(ctx, domain.StatusSnapshot{UserID: "u1", Status: domain.StatusActive, Memo: "X", Timestamp: base}))

	reopened := NewMemoryStatusRepository(path, zap.NewNop())
	latest, err := reopened.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, latest.Status)
	assert.Equal(t, "X", latest.Memo)
}

func TestMemoryStatusRepository_MalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte("[[["), 0o644))

	repo := NewMemoryStatusRepository(path, zap.NewNop())
	_, err := repo.Latest(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository(
		domain.User{ID: "2", Name: "Bob", Email: "bob@example.com", Role: domain.UserRoleMember},
		domain.User{ID: "1", Name: "Alice", Email: "alice@example.com", Role: domain.UserRoleAdmin},
	)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].Name)

	bob, err := repo.GetByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, "2", bob.ID)

	bob.PasswordHash = "new"
	require.NoError(t, repo.Update(ctx, bob))
	again, err := repo.GetByID(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "new", again.PasswordHash)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &domain.User{ID: "missing"}), ErrNotFound)
}

func TestLoadSeedUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"a1","email":"admin@example.com","name":"Admin","role":"admin","password":"secret1"},
		{"email":"m@example.com","name":"Member","password":"secret2"}
	]`), 0o644))

	users, err := LoadSeedUsers(path, bcrypt.MinCost)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, domain.UserRoleAdmin, users[0].Role)
	assert.Equal(t, domain.UserRoleMember, users[1].Role)
	assert.NotEmpty(t, users[1].ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users[0].PasswordHash), []byte("secret1")))
}

func TestLoadSeedUsers_InvalidRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"x","name":"X","role":"root","password":"p"}]`), 0o644))

	_, err := LoadSeedUsers(path, bcrypt.MinCost)
	assert.Error(t, err)
}
