package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"html"
	"math/big"
	"net/mail"
	"strconv"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/notify"
	"storefront/internal/metrics"
	repo "storefront/internal/repository"

	log "github.com/sirupsen/logrus"
)

// OTPの有効期限（ポリシー定数）
const OTPTTL = 10 * time.Minute

const (
	otpMin   = 100000
	otpRange = 900000 // 100000〜999999
)

// 1通あたりの送信上限（SMTPが詰まってもgoroutineを残さない）
const dispatchTimeout = 30 * time.Second

// OTPの生成・メール送信・照合
type OTPIssuer struct {
	orders   repo.OrderRepository
	sender   NotificationSender
	clock    Clock
	logger   log.FieldLogger
	currency string

	inflight sync.WaitGroup
}

// DI
func NewOTPIssuer(orders repo.OrderRepository, sender NotificationSender, clock Clock, logger log.FieldLogger, currency string) *OTPIssuer {
	return &OTPIssuer{
		orders:   orders,
		sender:   sender,
		clock:    clock,
		logger:   logger,
		currency: currency,
	}
}

// 6桁（先頭0なし）を一様に選ぶ
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// 新しいコードと期限
func (i *OTPIssuer) NewCode() (string, time.Time, error) {
	code, err := GenerateOTP()
	if err != nil {
		return "", time.Time{}, err
	}
	return code, i.clock.Now().Add(OTPTTL), nil
}

// Pendingの注文のコードをメールで送る。送信はバックグラウンドで行い、
// キューに載せたらtrue。送信失敗はログとメトリクスに残すだけ。
func (i *OTPIssuer) Issue(ctx context.Context, order model.Order, contact string) bool {
	if order.Status != model.OrderStatusPendingOTP || !order.HasOTP() {
		i.logger.WithField("order_id", order.ID).Warn("otp issue skipped: order is not pending")
		return false
	}
	if _, err := mail.ParseAddress(contact); err != nil {
		i.dispatchFailed(order.ID, err)
		return false
	}

	msg := notify.Message{
		To:      contact,
		Subject: "Verify your order",
		Body:    i.renderBody(order),
	}

	// リクエストが終わっても送信は続ける
	sendCtx := context.WithoutCancel(ctx)
	i.inflight.Add(1)
	go func() {
		defer i.inflight.Done()
		ctx, cancel := context.WithTimeout(sendCtx, dispatchTimeout)
		defer cancel()

		if err := i.sender.Send(ctx, msg); err != nil {
			i.dispatchFailed(order.ID, err)
			return
		}
		i.logger.WithField("order_id", order.ID).Info("otp dispatched")
	}()
	return true
}

// 送信中のメールを待つ（シャットダウン時）
func (i *OTPIssuer) Wait() {
	i.inflight.Wait()
}

// 照合順: ステータス → コード一致 → 期限。注文の存在と所有は呼び出し側で確認済み
func (i *OTPIssuer) Verify(ctx context.Context, o model.Order, submitted string) error {
	if o.Status != model.OrderStatusPendingOTP || !o.HasOTP() {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid_state").Inc()
		return NewError(KindInvalidState, "Order is already verified or processed")
	}

	// 完全一致で比較（trimや大文字小文字の正規化はしない）
	if *o.OTP != submitted {
		metrics.OTPVerificationsTotal.WithLabelValues("mismatch").Inc()
		return NewError(KindMismatch, "Invalid OTP")
	}

	if !i.clock.Now().Before(*o.OTPExpiresAt) {
		metrics.OTPVerificationsTotal.WithLabelValues("expired").Inc()
		return NewError(KindExpired, "OTP has expired. Please request a new one")
	}

	// 保存中のコードと一致するときだけ確定する（読んだ後に再送で差し替わっていれば負け）
	err := i.orders.ConfirmOTP(ctx, o.ID, submitted)
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, "Order not found")
	}
	if err == repo.ErrStatusConflict {
		return i.confirmConflict(ctx, o.ID)
	}
	if err != nil {
		return internalError()
	}

	metrics.OTPVerificationsTotal.WithLabelValues("success").Inc()
	i.logger.WithFields(log.Fields{
		"order_id": o.ID,
		"status":   model.OrderStatusPlaced,
	}).Info("order verified")
	return nil
}

// まだPendingならコードが差し替わっている
func (i *OTPIssuer) confirmConflict(ctx context.Context, orderID string) error {
	current, err := i.orders.FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return NewError(KindNotFound, "Order not found")
	}
	if err != nil {
		return internalError()
	}
	if current.Status == model.OrderStatusPendingOTP {
		metrics.OTPVerificationsTotal.WithLabelValues("mismatch").Inc()
		return NewError(KindMismatch, "Invalid OTP")
	}
	metrics.OTPVerificationsTotal.WithLabelValues("invalid_state").Inc()
	return NewError(KindInvalidState, "Order is already verified or processed")
}

func (i *OTPIssuer) dispatchFailed(orderID string, err error) {
	metrics.NotificationFailures.Inc()
	i.logger.WithFields(log.Fields{
		"order_id": orderID,
		"error":    err.Error(),
	}).Warn("otp dispatch failed")
}

func (i *OTPIssuer) renderBody(o model.Order) string {
	return fmt.Sprintf(
		`<h2>Confirm your order</h2>`+
			`<p>Your verification code is <b>%s</b>. It expires in %d minutes.</p>`+
			`<p>Order: %s<br>Items: %d<br>Amount: %d %s<br>Payment: %s</p>`,
		html.EscapeString(*o.OTP),
		int(OTPTTL/time.Minute),
		html.EscapeString(o.ID),
		o.ItemCount(),
		o.Amount,
		html.EscapeString(i.currency),
		html.EscapeString(paymentLabel(o.PaymentMethod)),
	)
}

func paymentLabel(m model.PaymentMethod) string {
	switch m {
	case model.PaymentMethodCOD:
		return "Cash on delivery"
	case model.PaymentMethodStripe:
		return "Card (Stripe)"
	default:
		return string(m)
	}
}
