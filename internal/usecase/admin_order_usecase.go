package usecase

import (
	"context"
	"encoding/json"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	log "github.com/sirupsen/logrus"
)

const msgPendingNotSettable = "Pending OTP Verification requires an active OTP and cannot be set by an admin"

type AdminOrderUsecase struct {
	orders    repo.OrderRepository
	auditRepo repo.AuditLogRepository
	ids       IDGenerator
	clock     Clock
	logger    log.FieldLogger
}

func NewAdminOrderUsecase(orders repo.OrderRepository, auditRepo repo.AuditLogRepository, ids IDGenerator, clock Clock, logger log.FieldLogger) *AdminOrderUsecase {
	return &AdminOrderUsecase{
		orders:    orders,
		auditRepo: auditRepo,
		ids:       ids,
		clock:     clock,
		logger:    logger,
	}
}

type AdminOrderListOutput struct {
	Orders []model.Order `json:"orders"`
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

// 注文一覧（新しい順）
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return AdminOrderListOutput{}, NewError(KindValidation, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return AdminOrderListOutput{}, NewError(KindValidation, "invalid limit")
	}
	if f.Status != "" && !model.OrderStatus(f.Status).IsValid() {
		return AdminOrderListOutput{}, NewError(KindInvalidStatus, "Invalid status")
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return AdminOrderListOutput{}, NewError(KindValidation, "invalid date range")
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		return AdminOrderListOutput{}, internalError()
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return AdminOrderListOutput{Orders: orders, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

type auditStatus struct {
	Status model.OrderStatus `json:"status"`
}

// ステータス更新。
// 遷移表では弾かない（管理画面からの修正を許す）。
// Pending OTP Verificationは有効なOTPとセットでしか成立しないので、管理者は設定できない。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actor string, orderID string, status string) error {
	if actor == "" {
		return NewError(KindUnauthorized, "unauthorized")
	}

	//完全一致（trimしない）
	next := model.OrderStatus(status)
	if !next.IsValid() {
		return NewError(KindInvalidStatus, "Invalid status")
	}
	if next == model.OrderStatusPendingOTP {
		return NewError(KindInvalidState, msgPendingNotSettable)
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, msgOrderNotFound)
	}
	if err != nil {
		return internalError()
	}

	// すでに同じなら何もしない
	if o.Status == next {
		return nil
	}

	entry := u.logger.WithFields(log.Fields{
		"order_id": o.ID,
		"from":     o.Status,
		"status":   next,
		"actor":    actor,
	})
	if !o.Status.CanTransitionTo(next) {
		entry.Warn("admin status change outside the normal flow")
	}

	err = u.orders.UpdateStatus(ctx, o.ID, next)
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, msgOrderNotFound)
	}
	if err != nil {
		return internalError()
	}
	entry.Info("order status updated")

	// 監査ログ（UPDATE_ORDER_STATUS）
	before, _ := json.Marshal(auditStatus{Status: o.Status})
	after, _ := json.Marshal(auditStatus{Status: next})
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ID:           u.ids.NewID(),
		Actor:        actor,
		Action:       model.AuditActionUpdateOrderStatus,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   o.ID,
		BeforeJSON:   string(before),
		AfterJSON:    string(after),
		CreatedAt:    u.clock.Now(),
	}); err != nil {
		entry.WithField("error", err.Error()).Error("audit log write failed")
	}

	return nil
}

// 監査ログ一覧
func (u *AdminOrderUsecase) ListAuditLogs(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	if f.Limit <= 0 || f.Limit > repo.MaxAuditLogLimit {
		f.Limit = repo.DefaultAuditLogLimit
	}
	if f.Offset < 0 {
		return nil, NewError(KindValidation, "invalid offset")
	}

	logs, err := u.auditRepo.List(ctx, f)
	if err != nil {
		return nil, internalError()
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}

// 1注文のステータス変更履歴（古い順）
func (u *AdminOrderUsecase) OrderHistory(ctx context.Context, orderID string) ([]model.AuditLog, error) {
	if _, err := u.orders.FindByID(ctx, orderID); err != nil {
		if err == repo.ErrNotFound {
			return nil, NewError(KindNotFound, msgOrderNotFound)
		}
		return nil, internalError()
	}

	logs, err := u.auditRepo.History(ctx, model.AuditResourceOrder, orderID)
	if err != nil {
		return nil, internalError()
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}
