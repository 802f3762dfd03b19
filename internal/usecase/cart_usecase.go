package usecase

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// CartUsecase は /api/cart の業務ロジック。
// カートは商品ID→数量のスナップショットで、数量0以下は保存しない。
type CartUsecase struct {
	cartRepo    repo.CartRepository
	productRepo repo.ProductRepository
}

func NewCartUsecase(cartRepo repo.CartRepository, productRepo repo.ProductRepository) *CartUsecase {
	return &CartUsecase{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

type AddCartInput struct {
	ProductID string
	Quantity  int64
}

type UpdateCartInput struct {
	ProductID string
	Quantity  int64 // 0以下なら削除
}

// カート取得（無ければ空）
func (u *CartUsecase) GetCart(ctx context.Context, userID string) (model.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(KindUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetCart(ctx, userID)
	if err == repo.ErrNotFound {
		return nil, NewError(KindNotFound, "User not found")
	}
	if err != nil {
		return nil, internalError()
	}
	if cart == nil {
		cart = model.Cart{}
	}
	return cart, nil
}

// カートに追加（同一商品は数量加算）
func (u *CartUsecase) AddToCart(ctx context.Context, userID string, in AddCartInput) (model.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(KindUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return nil, NewError(KindValidation, "invalid product_id")
	}
	if in.Quantity < 1 {
		return nil, NewError(KindValidation, "invalid quantity")
	}

	// 商品チェック（公開のみ）
	if err := u.ensureActive(ctx, in.ProductID); err != nil {
		return nil, err
	}

	if err := u.cartRepo.IncrementItem(ctx, userID, in.ProductID, in.Quantity); err != nil {
		return nil, cartWriteError(err)
	}
	return u.GetCart(ctx, userID)
}

// 数量を上書き。0以下なら明細を消す
func (u *CartUsecase) UpdateCart(ctx context.Context, userID string, in UpdateCartInput) (model.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(KindUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.ProductID) == "" {
		return nil, NewError(KindValidation, "invalid product_id")
	}

	// 削除は商品が非公開になっていても許す
	if in.Quantity > 0 {
		if err := u.ensureActive(ctx, in.ProductID); err != nil {
			return nil, err
		}
	}

	if err := u.cartRepo.SetItemQuantity(ctx, userID, in.ProductID, in.Quantity); err != nil {
		return nil, cartWriteError(err)
	}
	return u.GetCart(ctx, userID)
}

func (u *CartUsecase) ClearCart(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return NewError(KindUnauthorized, "unauthorized")
	}
	err := u.cartRepo.Clear(ctx, userID)
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, "User not found")
	}
	if err != nil {
		return internalError()
	}
	return nil
}

func (u *CartUsecase) ensureActive(ctx context.Context, productID string) error {
	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return NewError(KindValidation, "Product not found")
	}
	if err != nil {
		return internalError()
	}
	if !p.IsActive {
		return NewError(KindValidation, "Product not found")
	}
	return nil
}

func cartWriteError(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return NewError(KindNotFound, "User not found")
	case errors.Is(err, repo.ErrInvalidCartItem):
		return NewError(KindValidation, "invalid product_id or quantity")
	default:
		return internalError()
	}
}
