package usecase

import (
	"context"
	"math"
	"net/mail"
	"net/url"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/infra/payment"
	"storefront/internal/metrics"
	repo "storefront/internal/repository"

	log "github.com/sirupsen/logrus"
)

const (
	msgOrderNotFound   = "Order not found"
	msgCODPlaced       = "Order placed. Please check your email for the OTP to confirm your order."
	msgRazorpayMissing = "Razorpay payment is not implemented"

	msgNotAwaitingPayment = "Order is not awaiting payment"
	msgInvalidItems       = "Items are missing or invalid"
)

// 最小通貨単位（x100）にしてもint64に収まる上限
const maxOrderTotal = math.MaxInt64 / 100

// 注文作成・OTP照合・キャンセル・照会
type OrderUsecase struct {
	orders  repo.OrderRepository
	users   repo.UserRepository
	carts   repo.CartRepository
	otp     *OTPIssuer
	gateway PaymentGateway // nilなら外部決済は使えない
	limiter ResendLimiter
	ids     IDGenerator
	clock   Clock
	logger  log.FieldLogger
	opts    OrderOptions
}

type OrderOptions struct {
	DeliveryFee int64
	Currency    string
	FEURL       string
}

// DI
func NewOrderUsecase(
	orders repo.OrderRepository,
	users repo.UserRepository,
	carts repo.CartRepository,
	otp *OTPIssuer,
	gateway PaymentGateway,
	limiter ResendLimiter,
	ids IDGenerator,
	clock Clock,
	logger log.FieldLogger,
	opts OrderOptions,
) *OrderUsecase {
	return &OrderUsecase{
		orders:  orders,
		users:   users,
		carts:   carts,
		otp:     otp,
		gateway: gateway,
		limiter: limiter,
		ids:     ids,
		clock:   clock,
		logger:  logger,
		opts:    opts,
	}
}

type PlaceOrderInput struct {
	Items   []model.LineItem
	Amount  int64
	Address model.Address
}

type PlaceOrderOutput struct {
	OrderID    string
	Message    string
	SessionURL string
}

// 代引き: Pending OTP Verificationで保存してOTPをメールで送る
func (u *OrderUsecase) PlaceOrderCOD(ctx context.Context, userID string, in PlaceOrderInput) (PlaceOrderOutput, error) {
	amount, err := u.validate(userID, in)
	if err != nil {
		u.countOrder(model.PaymentMethodCOD, "invalid")
		return PlaceOrderOutput{}, err
	}

	contact, ok := u.contactEmail(ctx, userID, in.Address)
	if !ok {
		u.countOrder(model.PaymentMethodCOD, "invalid")
		return PlaceOrderOutput{}, NewError(KindValidation, "A valid email address is required for OTP verification")
	}

	code, expiresAt, err := u.otp.NewCode()
	if err != nil {
		return PlaceOrderOutput{}, internalError()
	}

	o := u.newOrder(userID, in, amount, model.PaymentMethodCOD, model.OrderStatusPendingOTP)
	o.OTP = &code
	o.OTPExpiresAt = &expiresAt

	if err := u.orders.Create(ctx, o); err != nil {
		u.countOrder(model.PaymentMethodCOD, "error")
		return PlaceOrderOutput{}, internalError()
	}

	//メール送信の失敗では注文を失敗させない
	u.otp.Issue(ctx, o, contact)
	u.clearCart(ctx, userID)

	u.countOrder(model.PaymentMethodCOD, "placed")
	u.logger.WithFields(log.Fields{
		"order_id": o.ID,
		"status":   o.Status,
	}).Info("cod order placed")

	return PlaceOrderOutput{OrderID: o.ID, Message: msgCODPlaced}, nil
}

// Stripe: Order Placed（未払い）で保存してチェックアウトのURLを返す。
// セッションが作れなければ注文を消す。
func (u *OrderUsecase) PlaceOrderStripe(ctx context.Context, userID string, in PlaceOrderInput) (PlaceOrderOutput, error) {
	amount, err := u.validate(userID, in)
	if err != nil {
		u.countOrder(model.PaymentMethodStripe, "invalid")
		return PlaceOrderOutput{}, err
	}
	if u.gateway == nil {
		u.countOrder(model.PaymentMethodStripe, "unavailable")
		return PlaceOrderOutput{}, NewError(KindPaymentUnavailable, "Payment processor is unavailable")
	}

	o := u.newOrder(userID, in, amount, model.PaymentMethodStripe, model.OrderStatusPlaced)
	if err := u.orders.Create(ctx, o); err != nil {
		u.countOrder(model.PaymentMethodStripe, "error")
		return PlaceOrderOutput{}, internalError()
	}

	sess, err := u.gateway.CreateCheckoutSession(ctx, u.checkoutRequest(o))
	if err != nil {
		u.logger.WithFields(log.Fields{
			"order_id": o.ID,
			"error":    err.Error(),
		}).Error("checkout session failed")

		if delErr := u.orders.DeleteUnpaid(ctx, o.ID); delErr != nil && delErr != repo.ErrNotFound {
			u.logger.WithFields(log.Fields{
				"order_id": o.ID,
				"error":    delErr.Error(),
			}).Error("failed to delete order after checkout failure")
		}
		u.countOrder(model.PaymentMethodStripe, "unavailable")
		return PlaceOrderOutput{}, NewError(KindPaymentUnavailable, "Payment processor is unavailable")
	}

	u.countOrder(model.PaymentMethodStripe, "placed")
	return PlaceOrderOutput{OrderID: o.ID, SessionURL: sess.URL}, nil
}

// 未対応。何も保存しない
func (u *OrderUsecase) PlaceOrderRazorpay(ctx context.Context, userID string, in PlaceOrderInput) (PlaceOrderOutput, error) {
	u.countOrder(model.PaymentMethodRazorpay, "not_implemented")
	return PlaceOrderOutput{}, NewError(KindNotImplemented, msgRazorpayMissing)
}

// OTP照合。成功したらカートを空にする（失敗しても無視）
func (u *OrderUsecase) VerifyOTP(ctx context.Context, userID string, orderID string, code string) error {
	o, err := u.findOwned(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if err := u.otp.Verify(ctx, o, code); err != nil {
		return err
	}
	u.clearCart(ctx, o.UserID)
	return nil
}

// OTPの再送。新しいコードと期限に差し替える
func (u *OrderUsecase) ResendOTP(ctx context.Context, userID string, orderID string) error {
	o, err := u.findOwned(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if o.Status != model.OrderStatusPendingOTP {
		return NewError(KindInvalidState, "Order is already verified or processed")
	}

	ok, err := u.limiter.Allow(ctx, o.ID)
	if err != nil {
		u.logger.WithField("error", err.Error()).Warn("resend limiter unavailable")
		return internalError()
	}
	if !ok {
		return NewError(KindRateLimited, "Please wait before requesting another OTP")
	}

	contact, ok := u.contactEmail(ctx, o.UserID, o.Address)
	if !ok {
		return NewError(KindValidation, "A valid email address is required for OTP verification")
	}

	code, expiresAt, err := u.otp.NewCode()
	if err != nil {
		return internalError()
	}

	err = u.orders.ReplaceOTP(ctx, o.ID, code, expiresAt)
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, msgOrderNotFound)
	}
	if err == repo.ErrStatusConflict {
		return NewError(KindInvalidState, "Order is already verified or processed")
	}
	if err != nil {
		return internalError()
	}

	o.OTP = &code
	o.OTPExpiresAt = &expiresAt
	u.otp.Issue(ctx, o, contact)
	return nil
}

// 決済結果の反映。true=支払済み / false=注文ごと削除。
// 対象は未払いのStripe注文（Order Placed）だけ。
func (u *OrderUsecase) VerifyPayment(ctx context.Context, userID string, orderID string, success bool) error {
	o, err := u.findOwned(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if !o.AwaitingPayment() {
		return NewError(KindInvalidState, msgNotAwaitingPayment)
	}

	if success {
		err = u.orders.MarkPaid(ctx, o.ID)
	} else {
		err = u.orders.DeleteUnpaid(ctx, o.ID)
	}
	switch {
	case err == repo.ErrNotFound:
		return NewError(KindNotFound, msgOrderNotFound)
	case err == repo.ErrStatusConflict:
		// 読んだ後に支払い済み・出荷などへ進んだ
		return NewError(KindInvalidState, msgNotAwaitingPayment)
	case err != nil:
		return internalError()
	}

	if !success {
		u.logger.WithField("order_id", o.ID).Info("unpaid order removed")
		return nil
	}
	u.clearCart(ctx, o.UserID)
	return nil
}

// 出荷前（Pending/Order Placed/Packing）だけキャンセルできる
func (u *OrderUsecase) CancelOrder(ctx context.Context, userID string, orderID string) error {
	o, err := u.findOwned(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if !o.Status.IsCancellable() {
		return NewError(KindNotCancellable, "Order cannot be cancelled at this stage")
	}

	err = u.orders.Cancel(ctx, o.ID, cancellableStatuses())
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, msgOrderNotFound)
	}
	if err == repo.ErrStatusConflict {
		return NewError(KindNotCancellable, "Order cannot be cancelled at this stage")
	}
	if err != nil {
		return internalError()
	}

	u.logger.WithFields(log.Fields{
		"order_id": o.ID,
		"from":     o.Status,
		"status":   model.OrderStatusCancelled,
	}).Info("order cancelled")
	return nil
}

// 他人の注文は存在しない扱い（管理者は全件見える）
func (u *OrderUsecase) GetOrder(ctx context.Context, ident Identity, orderID string) (model.Order, error) {
	o, err := u.orders.FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return model.Order{}, NewError(KindNotFound, msgOrderNotFound)
	}
	if err != nil {
		return model.Order{}, internalError()
	}
	if !ident.IsAdmin() && o.UserID != ident.UserID {
		return model.Order{}, NewError(KindNotFound, msgOrderNotFound)
	}
	return o, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID string) ([]model.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewError(KindUnauthorized, "unauthorized")
	}
	orders, err := u.orders.ListByUserID(ctx, userID)
	if err != nil {
		return nil, internalError()
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// 入力チェック（失敗時は何も保存しない）。通れば注文金額を返す
func (u *OrderUsecase) validate(userID string, in PlaceOrderInput) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, NewError(KindValidation, "User ID is missing")
	}
	if len(in.Items) == 0 {
		return 0, NewError(KindValidation, msgInvalidItems)
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" || it.Quantity < 1 || it.Price < 0 {
			return 0, NewError(KindValidation, msgInvalidItems)
		}
	}
	total, ok := u.orderTotal(in.Items)
	if !ok {
		return 0, NewError(KindValidation, msgInvalidItems)
	}
	if in.Amount <= 0 {
		return 0, NewError(KindValidation, "Amount must be a positive number")
	}
	if in.Amount != total {
		return 0, NewError(KindValidation, "Amount does not match items")
	}
	if in.Address.IsEmpty() {
		return 0, NewError(KindValidation, "Address is missing or invalid")
	}
	return total, nil
}

// 明細合計＋送料。maxOrderTotalを超える（数量の合計がint64を超える場合も）ならfalse
func (u *OrderUsecase) orderTotal(items []model.LineItem) (int64, bool) {
	sum := u.opts.DeliveryFee
	if sum < 0 || sum > maxOrderTotal {
		return 0, false
	}
	var units int64
	for _, it := range items {
		if it.Quantity > math.MaxInt64-units {
			return 0, false
		}
		units += it.Quantity
		if it.Price > 0 && it.Quantity > (maxOrderTotal-sum)/it.Price {
			return 0, false
		}
		sum += it.Price * it.Quantity
	}
	return sum, true
}

func (u *OrderUsecase) newOrder(userID string, in PlaceOrderInput, amount int64, method model.PaymentMethod, status model.OrderStatus) model.Order {
	items := make([]model.LineItem, len(in.Items))
	copy(items, in.Items)

	return model.Order{
		ID:            u.ids.NewID(),
		UserID:        userID,
		Items:         items,
		Amount:        amount,
		Address:       in.Address,
		PaymentMethod: method,
		Payment:       false,
		Status:        status,
		CreatedAt:     u.clock.Now(),
	}
}

// 連絡先: ユーザーのemail、なければ住所のemail
func (u *OrderUsecase) contactEmail(ctx context.Context, userID string, addr model.Address) (string, bool) {
	candidates := make([]string, 0, 2)
	if user, err := u.users.FindByID(ctx, userID); err == nil {
		candidates = append(candidates, user.Email)
	}
	candidates = append(candidates, addr.Email)

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if a, err := mail.ParseAddress(c); err == nil && a.Address == c {
			return c, true
		}
	}
	return "", false
}

func (u *OrderUsecase) checkoutRequest(o model.Order) payment.CheckoutRequest {
	lines := make([]payment.LineItem, 0, len(o.Items)+1)
	for _, it := range o.Items {
		name := it.Name
		if name == "" {
			name = it.ProductID
		}
		lines = append(lines, payment.LineItem{
			Name:       name,
			UnitAmount: it.Price * 100,
			Quantity:   it.Quantity,
		})
	}
	if u.opts.DeliveryFee > 0 {
		lines = append(lines, payment.LineItem{
			Name:       "Delivery Charges",
			UnitAmount: u.opts.DeliveryFee * 100,
			Quantity:   1,
		})
	}

	return payment.CheckoutRequest{
		OrderID:    o.ID,
		Currency:   u.opts.Currency,
		LineItems:  lines,
		SuccessURL: u.returnURL(o.ID, true),
		CancelURL:  u.returnURL(o.ID, false),
	}
}

func (u *OrderUsecase) returnURL(orderID string, success bool) string {
	q := url.Values{}
	if success {
		q.Set("success", "true")
	} else {
		q.Set("success", "false")
	}
	q.Set("orderId", orderID)
	return strings.TrimRight(u.opts.FEURL, "/") + "/verify?" + q.Encode()
}

// 存在チェック→所有チェック
func (u *OrderUsecase) findOwned(ctx context.Context, userID string, orderID string) (model.Order, error) {
	o, err := u.orders.FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return model.Order{}, NewError(KindNotFound, msgOrderNotFound)
	}
	if err != nil {
		return model.Order{}, internalError()
	}
	if o.UserID != userID {
		return model.Order{}, NewError(KindUnauthorized, "Not authorized to modify this order")
	}
	return o, nil
}

func (u *OrderUsecase) clearCart(ctx context.Context, userID string) {
	if err := u.carts.Clear(ctx, userID); err != nil && err != repo.ErrNotFound {
		u.logger.WithFields(log.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("cart clear failed")
	}
}

func (u *OrderUsecase) countOrder(m model.PaymentMethod, result string) {
	metrics.OrdersTotal.WithLabelValues(string(m), result).Inc()
}

func cancellableStatuses() []model.OrderStatus {
	out := make([]model.OrderStatus, 0, 3)
	for _, s := range model.OrderStatuses {
		if s.IsCancellable() {
			out = append(out, s)
		}
	}
	return out
}
