package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID string
	From   *time.Time
	To     *time.Time
}

// 1注文=1ドキュメント。更新はすべて単一ドキュメントで完結させる。
type OrderRepository interface {
	Create(ctx context.Context, order model.Order) error
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	ListByUserID(ctx context.Context, userID string) ([]model.Order, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	//statusを更新する。Pending以外へ移すときはOTPも消す
	UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error

	//Pending OTP Verificationで、保存中のOTPがcodeと一致するときだけOrder PlacedにしてOTPを消す
	ConfirmOTP(ctx context.Context, orderID string, code string) error

	//Pending OTP VerificationのときだけOTPを差し替える
	ReplaceOTP(ctx context.Context, orderID string, code string, expiresAt time.Time) error

	//現在のstatusがfromのどれかのときだけCancelledにする
	Cancel(ctx context.Context, orderID string, from []model.OrderStatus) error

	//未払いのOrder Placedのときだけpayment=true
	MarkPaid(ctx context.Context, orderID string) error
	//未払いのOrder Placedのときだけ削除（決済の取り消し・失敗）
	DeleteUnpaid(ctx context.Context, orderID string) error
}
