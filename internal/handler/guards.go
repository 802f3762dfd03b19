package handler

import (
	"storefront/internal/middleware"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

// ルートグループに付けるミドルウェア一式
type Guards struct {
	parser   middleware.TokenParser
	userRepo repository.UserRepository
}

func NewGuards(parser middleware.TokenParser, userRepo repository.UserRepository) Guards {
	return Guards{parser: parser, userRepo: userRepo}
}

// JWT必須 + 存在するユーザー
func (g Guards) User() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.AuthJWT(g.parser),
		middleware.UserGuard(g.userRepo),
	}
}

// JWT必須 + ADMIN限定
func (g Guards) Admin() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.AuthJWT(g.parser),
		middleware.AdminRoleGuard(),
	}
}
