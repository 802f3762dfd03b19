package middleware

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

// JWTのsubがまだ存在するユーザーか確認。ADMINはDBのユーザーではないので通す
func UserGuard(userRepo repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//AuthJWTが入れたuser_idとroleを取得する
			userID, ok := c.Get(CtxUserIDKey).(string)
			if !ok || userID == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not Authorized. Login again"))
			}
			role, _ := c.Get(CtxUserRoleKey).(model.Role)
			if role == model.RoleAdmin {
				return next(c)
			}

			//削除済みユーザーのトークンは401
			_, err := userRepo.FindByID(c.Request().Context(), userID)
			if err == repository.ErrNotFound {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not Authorized. Login again"))
			}
			if err != nil {
				return c.JSON(http.StatusInternalServerError, errorJSON("internal error"))
			}

			return next(c)
		}
	}
}
