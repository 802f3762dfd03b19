package model

import "time"

// 注文ステータス更新など。
type AuditAction string

const (
	//注文ステータスを更新した操作。
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	//商品を作成・更新・削除した操作。
	AuditActionUpdateProduct AuditAction = "UPDATE_PRODUCT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceOrder   AuditResourceType = "order"
	AuditResourceProduct AuditResourceType = "product"
)

// 監査ログ（管理者操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID string `bson:"_id" gorm:"type:varchar(64);primaryKey" json:"id"`

	//操作した管理者（JWTのsub）
	Actor string `bson:"actor" gorm:"type:varchar(255);not null;index" json:"actor"`

	Action AuditAction `bson:"action" gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `bson:"resource_type" gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID string `bson:"resource_id" gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `bson:"before_json" gorm:"type:text" json:"before_json"`
	AfterJSON  string `bson:"after_json" gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `bson:"created_at" gorm:"not null;index" json:"created_at"`
}
