package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	ListActive(ctx context.Context) ([]model.Product, error)
	FindByID(ctx context.Context, id string) (model.Product, error)

	Create(ctx context.Context, p model.Product) error
	Update(ctx context.Context, p model.Product) error
	Delete(ctx context.Context, id string) error
}
