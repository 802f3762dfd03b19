package model

import "time"

type Product struct {
	ID          string    `bson:"_id" gorm:"type:varchar(64);primaryKey" json:"id"`
	Name        string    `bson:"name" gorm:"type:varchar(255);not null" json:"name"`
	Description string    `bson:"description" gorm:"type:text" json:"description"`
	Price       int64     `bson:"price" gorm:"not null" json:"price"`
	Category    string    `bson:"category" gorm:"type:varchar(100);index" json:"category"`
	SubCategory string    `bson:"sub_category" gorm:"type:varchar(100)" json:"sub_category"`
	Sizes       []string  `bson:"sizes" gorm:"serializer:json;type:jsonb" json:"sizes"`
	Bestseller  bool      `bson:"bestseller" gorm:"not null;default:false" json:"bestseller"`
	IsActive    bool      `bson:"is_active" gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `bson:"created_at" gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" gorm:"not null" json:"updated_at"`
}
