package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/activity-tracker/internal/domain"
	"github.com/spec-kit/activity-tracker/internal/repository"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 0)

	token, exp, err := tm.GenerateToken("u1", domain.UserRoleMember)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, domain.UserRoleMember, claims.Role)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestHashPassword_InvalidCostFallsBack(t *testing.T) {
	hash, err := HashPassword("secret1", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
	assert.NoError(t, ComparePassword(hash, "secret1"))
	assert.Error(t, ComparePassword(hash, "secret2"))
}

func TestMiddlewareAndRoles(t *testing.T) {
	users := repository.NewMemoryUserRepository(
		domain.User{ID: "admin", Role: domain.UserRoleAdmin},
		domain.User{ID: "member", Role: domain.UserRoleMember},
		domain.User{ID: "viewer", Role: domain.UserRoleViewer},
	)
	tm := NewTokenManager("secret", 5)
	mw := NewAuthMiddleware(tm, users)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.SendStatus(fe.Code)
			}
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Get("/self/:userId", mw.Handle, RequireSelfOrAdmin("userId"), ok)
	app.Get("/admin", mw.Handle, RequireRole(domain.UserRoleAdmin), ok)

	tokenFor := func(id string, role domain.UserRole) string {
		tok, _, err := tm.GenerateToken(id, role)
		require.NoError(t, err)
		return tok
	}
	call := func(path, token string) int {
		req := httptest.NewRequest("GET", path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	admin := tokenFor("admin", domain.UserRoleAdmin)
	member := tokenFor("member", domain.UserRoleMember)
	viewer := tokenFor("viewer", domain.UserRoleViewer)
	ghost := tokenFor("ghost", domain.UserRoleAdmin)

	assert.Equal(t, fiber.StatusUnauthorized, call("/admin", ""))
	assert.Equal(t, fiber.StatusUnauthorized, call("/admin", ghost))
	assert.Equal(t, fiber.StatusOK, call("/admin", admin))
	assert.Equal(t, fiber.StatusForbidden, call("/admin", member))

	assert.Equal(t, fiber.StatusOK, call("/self/member", member))
	assert.Equal(t, fiber.StatusForbidden, call("/self/admin", member))
	assert.Equal(t, fiber.StatusOK, call("/self/member", admin))
	assert.Equal(t, fiber.StatusForbidden, call("/self/viewer", viewer))
}
