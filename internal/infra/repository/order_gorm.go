package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) error {
	return r.db.WithContext(ctx).Create(&order).Error
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID string) ([]model.Order, error) {
	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&items).Error
	if err != nil {
		return []model.Order{}, err
	}
	return items, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Order{})

	//status 絞り込み
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	//user_id 絞り込み
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("created_at desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

func (r *OrderGormRepository) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	values := map[string]interface{}{"status": status}
	if status != model.OrderStatusPendingOTP {
		values["otp"] = nil
		values["otp_expires_at"] = nil
	}

	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderGormRepository) ConfirmOTP(ctx context.Context, orderID string, code string) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ? AND otp = ?", orderID, model.OrderStatusPendingOTP, code).
		Updates(map[string]interface{}{
			"status":         model.OrderStatusPlaced,
			"otp":            nil,
			"otp_expires_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, orderID)
	}
	return nil
}

func (r *OrderGormRepository) ReplaceOTP(ctx context.Context, orderID string, code string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusPendingOTP).
		Updates(map[string]interface{}{
			"otp":            code,
			"otp_expires_at": expiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, orderID)
	}
	return nil
}

func (r *OrderGormRepository) Cancel(ctx context.Context, orderID string, from []model.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(map[string]interface{}{
			"status":         model.OrderStatusCancelled,
			"otp":            nil,
			"otp_expires_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, orderID)
	}
	return nil
}

func (r *OrderGormRepository) MarkPaid(ctx context.Context, orderID string) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Scopes(awaitingPayment(orderID)).
		Update("payment", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, orderID)
	}
	return nil
}

func (r *OrderGormRepository) DeleteUnpaid(ctx context.Context, orderID string) error {
	res := r.db.WithContext(ctx).Scopes(awaitingPayment(orderID)).Delete(&model.Order{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrConflict(ctx, orderID)
	}
	return nil
}

func awaitingPayment(orderID string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("id = ? AND status = ? AND payment_method = ? AND payment = ?",
			orderID, model.OrderStatusPlaced, model.PaymentMethodStripe, false)
	}
}

// 0件更新は「存在しない」か「ステータスが違う」
func (r *OrderGormRepository) missOrConflict(ctx context.Context, orderID string) error {
	if _, err := r.FindByID(ctx, orderID); err != nil {
		return err
	}
	return repo.ErrStatusConflict
}
