package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// users.cart(jsonb)を読み書きする
type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

func (r *CartGormRepository) GetCart(ctx context.Context, userID string) (model.Cart, error) {
	var u model.User
	err := r.db.WithContext(ctx).Select("id", "cart").Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Cart == nil {
		return model.Cart{}, nil
	}
	return u.Cart, nil
}

// 同一商品は数量加算
func (r *CartGormRepository) IncrementItem(ctx context.Context, userID string, productID string, qty int64) error {
	if qty <= 0 || productID == "" {
		return repo.ErrInvalidCartItem
	}
	return r.mutate(ctx, userID, func(c model.Cart) error {
		if c[productID] > math.MaxInt64-qty {
			return fmt.Errorf("%w: quantity of %s overflows", repo.ErrInvalidCartItem, productID)
		}
		c[productID] += qty
		return nil
	})
}

// 0以下なら明細を消す
func (r *CartGormRepository) SetItemQuantity(ctx context.Context, userID string, productID string, qty int64) error {
	return r.mutate(ctx, userID, func(c model.Cart) error {
		if qty <= 0 {
			delete(c, productID)
			return nil
		}
		c[productID] = qty
		return nil
	})
}

func (r *CartGormRepository) Clear(ctx context.Context, userID string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Select("cart", "updated_at").
		Updates(model.User{Cart: model.Cart{}, UpdatedAt: time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 行ロックを取ってからカートを書き換える。fnがエラーならロールバック
func (r *CartGormRepository) mutate(ctx context.Context, userID string, fn func(c model.Cart) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).
			First(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repo.ErrNotFound
		}
		if err != nil {
			return err
		}

		if u.Cart == nil {
			u.Cart = model.Cart{}
		}
		if err := fn(u.Cart); err != nil {
			return err
		}

		return tx.Model(&u).
			Select("cart", "updated_at").
			Updates(model.User{Cart: u.Cart, UpdatedAt: time.Now()}).Error
	})
}
