package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/notify"
	"storefront/internal/infra/payment"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
)

// =====================
// 時刻・ID
// =====================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func newTestLogger() log.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

var _ usecase.Clock = (*fakeClock)(nil)
var _ usecase.IDGenerator = (*seqIDs)(nil)

// =====================
// OrderRepository（メモリ実装：条件付き更新も再現する）
// =====================

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]model.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[string]model.Order{}}
}

func (r *memOrderRepo) Create(ctx context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *memOrderRepo) FindByID(ctx context.Context, id string) (model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, found := r.orders[id]
	if !found {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r *memOrderRepo) ListByUserID(ctx context.Context, userID string) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Order{}
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memOrderRepo) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	return nil, 0, errors.New("not used")
}

func (r *memOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, found := r.orders[id]
	if !found {
		return repo.ErrNotFound
	}
	o.Status = status
	if status != model.OrderStatusPendingOTP {
		o.OTP, o.OTPExpiresAt = nil, nil
	}
	r.orders[id] = o
	return nil
}

func (r *memOrderRepo) ConfirmOTP(ctx context.Context, id string, code string) error {
	return r.updateIf(id, func(o model.Order) bool {
		return o.Status == model.OrderStatusPendingOTP && o.OTP != nil && *o.OTP == code
	}, func(o *model.Order) {
		o.Status = model.OrderStatusPlaced
		o.OTP, o.OTPExpiresAt = nil, nil
	})
}

func (r *memOrderRepo) ReplaceOTP(ctx context.Context, id string, code string, expiresAt time.Time) error {
	return r.updateIf(id, statusIn(model.OrderStatusPendingOTP), func(o *model.Order) {
		o.OTP = &code
		o.OTPExpiresAt = &expiresAt
	})
}

func (r *memOrderRepo) Cancel(ctx context.Context, id string, from []model.OrderStatus) error {
	return r.updateIf(id, statusIn(from...), func(o *model.Order) {
		o.Status = model.OrderStatusCancelled
		o.OTP, o.OTPExpiresAt = nil, nil
	})
}

func (r *memOrderRepo) MarkPaid(ctx context.Context, id string) error {
	return r.updateIf(id, model.Order.AwaitingPayment, func(o *model.Order) { o.Payment = true })
}

func (r *memOrderRepo) DeleteUnpaid(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, found := r.orders[id]
	if !found {
		return repo.ErrNotFound
	}
	if !o.AwaitingPayment() {
		return repo.ErrStatusConflict
	}
	delete(r.orders, id)
	return nil
}

func (r *memOrderRepo) updateIf(id string, match func(o model.Order) bool, fn func(o *model.Order)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, found := r.orders[id]
	if !found {
		return repo.ErrNotFound
	}
	if !match(o) {
		return repo.ErrStatusConflict
	}
	fn(&o)
	r.orders[id] = o
	return nil
}

func statusIn(from ...model.OrderStatus) func(o model.Order) bool {
	return func(o model.Order) bool {
		for _, s := range from {
			if o.Status == s {
				return true
			}
		}
		return false
	}
}

func (r *memOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// 状態を直接書き換える（テストの前提づくり用）
func (r *memOrderRepo) put(o model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}

var _ repo.OrderRepository = (*memOrderRepo)(nil)

// =====================
// User / Cart（メモリ実装）
// =====================

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newMemUserRepo(users ...model.User) *memUserRepo {
	r := &memUserRepo{users: map[string]model.User{}}
	for _, u := range users {
		if u.Cart == nil {
			u.Cart = model.Cart{}
		}
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Create(ctx context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return repo.ErrDuplicate
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) FindByID(ctx context.Context, id string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, found := r.users[id]
	if !found {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (r *memUserRepo) GetCart(ctx context.Context, userID string) (model.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, found := r.users[userID]
	if !found {
		return nil, repo.ErrNotFound
	}
	out := model.Cart{}
	for k, v := range u.Cart {
		out[k] = v
	}
	return out, nil
}

func (r *memUserRepo) IncrementItem(ctx context.Context, userID, productID string, qty int64) error {
	return r.mutate(userID, func(c model.Cart) error {
		if qty <= 0 || c[productID] > math.MaxInt64-qty {
			return repo.ErrInvalidCartItem
		}
		c[productID] += qty
		return nil
	})
}

func (r *memUserRepo) SetItemQuantity(ctx context.Context, userID, productID string, qty int64) error {
	return r.mutate(userID, func(c model.Cart) error {
		if qty <= 0 {
			delete(c, productID)
			return nil
		}
		c[productID] = qty
		return nil
	})
}

func (r *memUserRepo) Clear(ctx context.Context, userID string) error {
	return r.mutate(userID, func(c model.Cart) error {
		for k := range c {
			delete(c, k)
		}
		return nil
	})
}

// fnがエラーなら書き戻さない
func (r *memUserRepo) mutate(userID string, fn func(c model.Cart) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, found := r.users[userID]
	if !found {
		return repo.ErrNotFound
	}
	cart := model.Cart{}
	for k, v := range u.Cart {
		cart[k] = v
	}
	if err := fn(cart); err != nil {
		return err
	}
	u.Cart = cart
	r.users[userID] = u
	return nil
}

var _ repo.UserRepository = (*memUserRepo)(nil)
var _ repo.CartRepository = (*memUserRepo)(nil)

// =====================
// 外部依存
// =====================

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(payment.CheckoutSession)
	return s, args.Error(1)
}

// 1注文1回だけ許す
type onceLimiter struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newOnceLimiter() *onceLimiter {
	return &onceLimiter{seen: map[string]bool{}}
}

func (l *onceLimiter) Allow(ctx context.Context, orderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[orderID] {
		return false, nil
	}
	l.seen[orderID] = true
	return true, nil
}

var _ usecase.NotificationSender = (*recordingSender)(nil)
var _ usecase.PaymentGateway = (*GatewayMock)(nil)
var _ usecase.ResendLimiter = (*onceLimiter)(nil)

// =====================
// testify mocks（Product / Audit）
// =====================

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) ListActive(ctx context.Context) ([]model.Product, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).([]model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id string) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ProductRepoMock) Update(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ProductRepoMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, l model.AuditLog) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, f)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

func (m *AuditRepoMock) History(ctx context.Context, t model.AuditResourceType, id string) ([]model.AuditLog, error) {
	args := m.Called(ctx, t, id)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) Create(ctx context.Context, o model.Order) error {
	panic("not used")
}

func (m *OrderRepoMock) FindByID(ctx context.Context, id string) (model.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID string) ([]model.Order, error) {
	panic("not used")
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) UpdateStatus(ctx context.Context, id string, s model.OrderStatus) error {
	args := m.Called(ctx, id, s)
	return args.Error(0)
}

func (m *OrderRepoMock) ConfirmOTP(ctx context.Context, id string, code string) error {
	panic("not used")
}

func (m *OrderRepoMock) ReplaceOTP(ctx context.Context, id string, code string, exp time.Time) error {
	panic("not used")
}

func (m *OrderRepoMock) Cancel(ctx context.Context, id string, from []model.OrderStatus) error {
	panic("not used")
}

func (m *OrderRepoMock) MarkPaid(ctx context.Context, id string) error     { panic("not used") }
func (m *OrderRepoMock) DeleteUnpaid(ctx context.Context, id string) error { panic("not used") }

var _ repo.ProductRepository = (*ProductRepoMock)(nil)
var _ repo.AuditLogRepository = (*AuditRepoMock)(nil)
var _ repo.OrderRepository = (*OrderRepoMock)(nil)

func kindOf(err error) usecase.ErrorKind {
	return usecase.KindOf(err)
}
