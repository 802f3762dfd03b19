package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubParser struct{}

func (stubParser) Parse(raw string) (string, model.Role, error) {
	switch raw {
	case "user-token":
		return "u1", model.RoleUser, nil
	case "ghost-token":
		return "ghost", model.RoleUser, nil
	case "admin-token":
		return "admin@example.com", model.RoleAdmin, nil
	}
	return "", "", errors.New("invalid")
}

type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) Create(ctx context.Context, u model.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *UserRepoMock) FindByID(ctx context.Context, id string) (model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

var _ repository.UserRepository = (*UserRepoMock)(nil)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		id, _ := c.Get(CtxUserIDKey).(string)
		return c.String(http.StatusOK, id)
	}, mw...)
	return e
}

func do(e *echo.Echo, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthJWT(t *testing.T) {
	e := newEcho(AuthJWT(stubParser{}))

	rec := do(e, "Bearer user-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())

	rec = do(e, "bearer user-token")
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, h := range []string{"", "user-token", "Basic user-token", "Bearer ", "Bearer nope"} {
		rec := do(e, h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, h)
		assert.Contains(t, rec.Body.String(), "Not Authorized. Login again")
	}
}

func TestAdminRoleGuard(t *testing.T) {
	e := newEcho(AuthJWT(stubParser{}), AdminRoleGuard())

	assert.Equal(t, http.StatusOK, do(e, "Bearer admin-token").Code)
	assert.Equal(t, http.StatusForbidden, do(e, "Bearer user-token").Code)

	// AuthJWTなしではroleが無い
	bare := newEcho(AdminRoleGuard())
	assert.Equal(t, http.StatusUnauthorized, do(bare, "").Code)
}

func TestUserGuard(t *testing.T) {
	users := new(UserRepoMock)
	users.On("FindByID", mock.Anything, "u1").Return(model.User{ID: "u1"}, nil)
	users.On("FindByID", mock.Anything, "ghost").Return(model.User{}, repository.ErrNotFound)
	e := newEcho(AuthJWT(stubParser{}), UserGuard(users))

	assert.Equal(t, http.StatusOK, do(e, "Bearer user-token").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "Bearer ghost-token").Code)

	// ADMINはDBを見ない
	assert.Equal(t, http.StatusOK, do(e, "Bearer admin-token").Code)
	users.AssertNotCalled(t, "FindByID", mock.Anything, "admin@example.com")
}

func TestUserGuard_StoreError(t *testing.T) {
	users := new(UserRepoMock)
	users.On("FindByID", mock.Anything, "u1").Return(model.User{}, errors.New("db down"))
	e := newEcho(AuthJWT(stubParser{}), UserGuard(users))

	assert.Equal(t, http.StatusInternalServerError, do(e, "Bearer user-token").Code)
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/bad", func(c echo.Context) error { return c.NoContent(http.StatusBadRequest) })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, log.InfoLevel, entries[0].Level)
	assert.Equal(t, log.WarnLevel, entries[1].Level)
	assert.Equal(t, log.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/bad", entries[1].Data["path"])
	assert.Equal(t, http.StatusInternalServerError, entries[2].Data["status"])
}
