package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	log "github.com/sirupsen/logrus"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	auditRepo   repo.AuditLogRepository
	cache       ProductCache // nilならキャッシュなし
	ids         IDGenerator
	clock       Clock
	logger      log.FieldLogger
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	auditRepo repo.AuditLogRepository,
	cache ProductCache,
	ids IDGenerator,
	clock Clock,
	logger log.FieldLogger,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo: productRepo,
		auditRepo:   auditRepo,
		cache:       cache,
		ids:         ids,
		clock:       clock,
		logger:      logger,
	}
}

// GET /api/product の入力DTO
type ListProductsInput struct {
	Page       int
	Limit      int
	Q          string
	Category   string
	Bestseller bool
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// 公開商品一覧。全件はキャッシュから取り、絞り込みとページングはここでやる
func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewError(KindValidation, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewError(KindValidation, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, NewError(KindValidation, "q too long")
	}

	all, err := u.activeProducts(ctx)
	if err != nil {
		return ProductListOutput{}, internalError()
	}

	q := strings.ToLower(strings.TrimSpace(in.Q))
	matched := make([]model.Product, 0, len(all))
	for _, p := range all {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		if in.Category != "" && p.Category != in.Category {
			continue
		}
		if in.Bestseller && !p.Bestseller {
			continue
		}
		matched = append(matched, p)
	}

	start := (in.Page - 1) * in.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + in.Limit
	if end > len(matched) {
		end = len(matched)
	}

	return ProductListOutput{
		Items: matched[start:end],
		Total: int64(len(matched)),
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID string) (model.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return model.Product{}, NewError(KindValidation, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return model.Product{}, NewError(KindNotFound, "Product not found")
	}
	if err != nil {
		return model.Product{}, internalError()
	}

	if !p.IsActive {
		return model.Product{}, NewError(KindNotFound, "Product not found")
	}
	return p, nil
}

type AdminProductInput struct {
	Name        string
	Description string
	Price       int64
	Category    string
	SubCategory string
	Sizes       []string
	Bestseller  bool
	IsActive    bool
}

func (in AdminProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return NewError(KindValidation, "name required")
	}
	if in.Price <= 0 {
		return NewError(KindValidation, "price must be > 0")
	}
	return nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, actor string, in AdminProductInput) (model.Product, error) {
	if actor == "" {
		return model.Product{}, NewError(KindUnauthorized, "unauthorized")
	}
	if err := in.validate(); err != nil {
		return model.Product{}, err
	}

	now := u.clock.Now()
	p := model.Product{
		ID:          u.ids.NewID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		SubCategory: in.SubCategory,
		Sizes:       in.Sizes,
		Bestseller:  in.Bestseller,
		IsActive:    in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Sizes == nil {
		p.Sizes = []string{}
	}
	if err := u.productRepo.Create(ctx, p); err != nil {
		return model.Product{}, internalError()
	}

	u.invalidate(ctx)
	u.audit(ctx, actor, p.ID, nil, &p)
	return p, nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, actor string, productID string, in AdminProductInput) (model.Product, error) {
	if actor == "" {
		return model.Product{}, NewError(KindUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(productID) == "" {
		return model.Product{}, NewError(KindValidation, "invalid product id")
	}
	if err := in.validate(); err != nil {
		return model.Product{}, err
	}

	//変更前（before）
	before, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return model.Product{}, NewError(KindNotFound, "Product not found")
	}
	if err != nil {
		return model.Product{}, internalError()
	}

	after := before
	after.Name = strings.TrimSpace(in.Name)
	after.Description = in.Description
	after.Price = in.Price
	after.Category = in.Category
	after.SubCategory = in.SubCategory
	after.Sizes = in.Sizes
	after.Bestseller = in.Bestseller
	after.IsActive = in.IsActive
	after.UpdatedAt = u.clock.Now()
	if after.Sizes == nil {
		after.Sizes = []string{}
	}

	err = u.productRepo.Update(ctx, after)
	if err == repo.ErrNotFound {
		return model.Product{}, NewError(KindNotFound, "Product not found")
	}
	if err != nil {
		return model.Product{}, internalError()
	}

	u.invalidate(ctx)
	u.audit(ctx, actor, productID, &before, &after)
	return after, nil
}

func (u *ProductUsecase) AdminRemoveProduct(ctx context.Context, actor string, productID string) error {
	if actor == "" {
		return NewError(KindUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(productID) == "" {
		return NewError(KindValidation, "invalid product id")
	}

	before, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, "Product not found")
	}
	if err != nil {
		return internalError()
	}

	err = u.productRepo.Delete(ctx, productID)
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, "Product not found")
	}
	if err != nil {
		return internalError()
	}

	u.invalidate(ctx)
	u.audit(ctx, actor, productID, &before, nil)
	return nil
}

// キャッシュがあればそれを使い、失敗したらDBを直接読む
func (u *ProductUsecase) activeProducts(ctx context.Context) ([]model.Product, error) {
	if u.cache != nil {
		if items, err := u.cache.GetList(ctx); err == nil {
			return items, nil
		}
	}

	items, err := u.productRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if u.cache != nil {
		if err := u.cache.SetList(ctx, items); err != nil {
			u.logger.WithField("error", err.Error()).Warn("product cache set failed")
		}
	}
	return items, nil
}

func (u *ProductUsecase) invalidate(ctx context.Context) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Invalidate(ctx); err != nil {
		u.logger.WithField("error", err.Error()).Warn("product cache invalidate failed")
	}
}

// 監査ログを作成（商品の作成・更新・削除）
func (u *ProductUsecase) audit(ctx context.Context, actor, productID string, before, after *model.Product) {
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ID:           u.ids.NewID(),
		Actor:        actor,
		Action:       model.AuditActionUpdateProduct,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   toJSON(before),
		AfterJSON:    toJSON(after),
		CreatedAt:    u.clock.Now(),
	}); err != nil {
		u.logger.WithFields(log.Fields{
			"product_id": productID,
			"error":      err.Error(),
		}).Error("audit log write failed")
	}
}

func toJSON(v *model.Product) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
