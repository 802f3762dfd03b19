package model

import (
	"strings"
	"time"
)

type OrderStatus string

// 文字列はストア/管理画面/フローで完全一致させる
const (
	OrderStatusPendingOTP     OrderStatus = "Pending OTP Verification"
	OrderStatusPlaced         OrderStatus = "Order Placed"
	OrderStatusPacking        OrderStatus = "Packing"
	OrderStatusShipped        OrderStatus = "Shipped"
	OrderStatusOutForDelivery OrderStatus = "Out for delivery"
	OrderStatusDelivered      OrderStatus = "Delivered"
	OrderStatusCancelled      OrderStatus = "Cancelled"
)

// 列挙順＝進行順
var OrderStatuses = []OrderStatus{
	OrderStatusPendingOTP,
	OrderStatusPlaced,
	OrderStatusPacking,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) IsValid() bool {
	for _, v := range OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// DeliveredとCancelledは終端
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// ユーザーキャンセルできるのは出荷前まで
func (s OrderStatus) IsCancellable() bool {
	return s == OrderStatusPendingOTP || s == OrderStatusPlaced || s == OrderStatusPacking
}

// 出荷済み以降はCancelledへ遷移できない
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	if s.IsTerminal() || !to.IsValid() || s == to {
		return false
	}
	switch to {
	case OrderStatusPendingOTP:
		return false
	case OrderStatusCancelled:
		return s.IsCancellable()
	case OrderStatusPlaced:
		return s == OrderStatusPendingOTP
	}
	if s == OrderStatusPendingOTP {
		return false
	}
	return statusRank(to) > statusRank(s)
}

func (s OrderStatus) String() string {
	return string(s)
}

func statusRank(s OrderStatus) int {
	for i, v := range OrderStatuses {
		if v == s {
			return i
		}
	}
	return -1
}

type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "COD"
	PaymentMethodStripe   PaymentMethod = "Stripe"
	PaymentMethodRazorpay PaymentMethod = "Razorpay"
)

// 注文明細（作成時点の名前・価格を保存）
type LineItem struct {
	ProductID string `bson:"product_id" json:"product_id"`
	Name      string `bson:"name" json:"name"`
	Price     int64  `bson:"price" json:"price"`
	Quantity  int64  `bson:"quantity" json:"quantity"`
	Size      string `bson:"size,omitempty" json:"size,omitempty"`
}

// 配送先
type Address struct {
	FirstName string `bson:"first_name" json:"first_name"`
	LastName  string `bson:"last_name" json:"last_name"`
	Email     string `bson:"email" json:"email"`
	Street    string `bson:"street" json:"street"`
	City      string `bson:"city" json:"city"`
	State     string `bson:"state" json:"state"`
	Zipcode   string `bson:"zipcode" json:"zipcode"`
	Country   string `bson:"country" json:"country"`
	Phone     string `bson:"phone" json:"phone"`
}

func (a Address) IsEmpty() bool {
	return strings.TrimSpace(a.FirstName+a.LastName+a.Email+a.Street+a.City+a.State+a.Zipcode+a.Country+a.Phone) == ""
}

type Order struct {
	ID            string        `bson:"_id" gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID        string        `bson:"user_id" gorm:"type:varchar(64);not null;index" json:"user_id"`
	Items         []LineItem    `bson:"items" gorm:"serializer:json;type:jsonb;not null" json:"items"`
	Amount        int64         `bson:"amount" gorm:"not null" json:"amount"`
	Address       Address       `bson:"address" gorm:"serializer:json;type:jsonb;not null" json:"address"`
	PaymentMethod PaymentMethod `bson:"payment_method" gorm:"type:varchar(20);not null" json:"payment_method"`
	Payment       bool          `bson:"payment" gorm:"not null;default:false" json:"payment"`
	Status        OrderStatus   `bson:"status" gorm:"type:varchar(40);not null;index" json:"status"`

	// Pending OTP Verificationの間だけ値を持つ
	OTP          *string    `bson:"otp,omitempty" gorm:"column:otp;type:varchar(6)" json:"-"`
	OTPExpiresAt *time.Time `bson:"otp_expires_at,omitempty" gorm:"column:otp_expires_at" json:"-"`

	CreatedAt time.Time `bson:"created_at" gorm:"not null;index" json:"created_at"`
}

func (o Order) ItemCount() int64 {
	var n int64
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

func (o Order) HasOTP() bool {
	return o.OTP != nil && o.OTPExpiresAt != nil
}

// Stripeで作成済み（Order Placed）かつ未払い
func (o Order) AwaitingPayment() bool {
	return o.PaymentMethod == PaymentMethodStripe && !o.Payment && o.Status == OrderStatusPlaced
}
