package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// カートはユーザードキュメントの中にある。数量0以下は保存しない。
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (model.Cart, error)
	// 同一商品はプラス。合計がint64を超えるならErrInvalidCartItem
	IncrementItem(ctx context.Context, userID string, productID string, qty int64) error
	// qty<=0なら明細を消す
	SetItemQuantity(ctx context.Context, userID string, productID string, qty int64) error
	Clear(ctx context.Context, userID string) error
}
