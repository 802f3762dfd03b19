package middleware

import (
	"net/http"
	"strings"

	"storefront/internal/domain/model"

	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey   = "user_id"   // string（JWTのsub）
	CtxUserRoleKey = "user_role" // model.Role
)

// トークン検証の約束（infra/auth.JWTIssuer）
type TokenParser interface {
	Parse(raw string) (subject string, role model.Role, err error)
}

// bearerAuth用のJWT検証ミドルウェア。
func AuthJWT(parser TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not Authorized. Login again"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not Authorized. Login again"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not Authorized. Login again"))
			}

			//JWTをパースして検証する
			sub, role, err := parser.Parse(rawToken)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not Authorized. Login again"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, sub)
			c.Set(CtxUserRoleKey, role)

			return next(c)
		}
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Success: false, Message: msg}
}
