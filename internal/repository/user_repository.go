package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成（email重複はErrDuplicate）
	Create(ctx context.Context, user model.User) error
	FindByID(ctx context.Context, userID string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
}
