package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/notify"
	"storefront/internal/infra/payment"
)

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// メール送信（失敗しても注文は失敗させない）
type NotificationSender interface {
	Send(ctx context.Context, msg notify.Message) error
}

// 外部決済（ホスト型チェックアウト）
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error)
}

// 公開商品一覧のキャッシュ。エラーはすべてミス扱い
type ProductCache interface {
	GetList(ctx context.Context) ([]model.Product, error)
	SetList(ctx context.Context, products []model.Product) error
	Invalidate(ctx context.Context) error
}

// OTP再送の間隔制限
type ResendLimiter interface {
	Allow(ctx context.Context, orderID string) (bool, error)
}

// 認証済みの呼び出し元
type Identity struct {
	UserID string
	Role   model.Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}
