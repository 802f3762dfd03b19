package model

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// カートはユーザーに埋め込む（商品ID→数量）
type Cart map[string]int64

type User struct {
	ID           string    `bson:"_id" gorm:"type:varchar(64);primaryKey" json:"id"`
	Name         string    `bson:"name" gorm:"type:varchar(255);not null" json:"name"`
	Email        string    `bson:"email" gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `bson:"password_hash" gorm:"column:password_hash;not null" json:"-"`
	Cart         Cart      `bson:"cart" gorm:"serializer:json;type:jsonb" json:"cart"`
	CreatedAt    time.Time `bson:"created_at" gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" gorm:"not null" json:"updated_at"`
}
