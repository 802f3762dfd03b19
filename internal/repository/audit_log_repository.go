package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 一覧の上限件数（これを超える指定は既定値に戻す）
const (
	DefaultAuditLogLimit = 50
	MaxAuditLogLimit     = 100
)

// 管理画面の監査ログ検索。空の項目は絞り込まない
type AuditLogFilter struct {
	Actor        string // 管理者のemail
	Action       *model.AuditAction
	ResourceType *model.AuditResourceType
	ResourceID   string // 注文IDまたは商品ID
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// 件数を範囲内に丸める
func (f AuditLogFilter) Window() (limit int, offset int) {
	limit = f.Limit
	if limit <= 0 || limit > MaxAuditLogLimit {
		limit = DefaultAuditLogLimit
	}
	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// 注文ステータス変更と商品変更の記録。追記のみで更新・削除はしない
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error

	// 新しい順（同時刻はID順）
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)

	// 1つの注文/商品の変更履歴を古い順で返す
	History(ctx context.Context, resourceType model.AuditResourceType, resourceID string) ([]model.AuditLog, error)
}
