package mongostore

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
)

func setupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := Connect(ctx, uri, "storefront_test")
	require.NoError(t, err)
	require.NoError(t, CreateIndexes(ctx, db))
	return db
}

func pendingOrder(id string, now time.Time) model.Order {
	code := "123456"
	exp := now.Add(10 * time.Minute)
	return model.Order{
		ID:            id,
		UserID:        "u1",
		Items:         []model.LineItem{{ProductID: "p1", Name: "Shirt", Price: 100, Quantity: 1}},
		Amount:        110,
		Address:       model.Address{City: "Town"},
		PaymentMethod: model.PaymentMethodCOD,
		Status:        model.OrderStatusPendingOTP,
		OTP:           &code,
		OTPExpiresAt:  &exp,
		CreatedAt:     now,
	}
}

func TestOrderRepository_ConfirmOTP_ClearsCode(t *testing.T) {
	r := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, r.Create(ctx, pendingOrder("o1", now)))
	assert.ErrorIs(t, r.ConfirmOTP(ctx, "o1", "000000"), repo.ErrStatusConflict)
	require.NoError(t, r.ConfirmOTP(ctx, "o1", "123456"))

	got, err := r.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPlaced, got.Status)
	assert.Nil(t, got.OTP)
	assert.Nil(t, got.OTPExpiresAt)

	assert.ErrorIs(t, r.ConfirmOTP(ctx, "o1", "123456"), repo.ErrStatusConflict)
	assert.ErrorIs(t, r.ConfirmOTP(ctx, "missing", "123456"), repo.ErrNotFound)
}

func TestOrderRepository_ConfirmOTP_ConcurrentOnlyOneWins(t *testing.T) {
	r := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, pendingOrder("o1", time.Now().UTC())))

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.ConfirmOTP(ctx, "o1", "123456")
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, repo.ErrStatusConflict)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestOrderRepository_ConfirmOTP_ReplacedCodeLoses(t *testing.T) {
	r := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, r.Create(ctx, pendingOrder("o1", now)))

	// 再送で差し替わった後は古いコードで確定できない
	require.NoError(t, r.ReplaceOTP(ctx, "o1", "654321", now.Add(10*time.Minute)))
	assert.ErrorIs(t, r.ConfirmOTP(ctx, "o1", "123456"), repo.ErrStatusConflict)

	got, err := r.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingOTP, got.Status)
	require.NoError(t, r.ConfirmOTP(ctx, "o1", "654321"))
}

func TestOrderRepository_PaymentOnlyWhileAwaiting(t *testing.T) {
	r := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	stripe := func(id string, status model.OrderStatus) model.Order {
		o := pendingOrder(id, now)
		o.PaymentMethod = model.PaymentMethodStripe
		o.Status = status
		o.OTP, o.OTPExpiresAt = nil, nil
		return o
	}

	require.NoError(t, r.Create(ctx, stripe("paid", model.OrderStatusPlaced)))
	require.NoError(t, r.MarkPaid(ctx, "paid"))
	assert.ErrorIs(t, r.MarkPaid(ctx, "paid"), repo.ErrStatusConflict)
	assert.ErrorIs(t, r.DeleteUnpaid(ctx, "paid"), repo.ErrStatusConflict)

	require.NoError(t, r.Create(ctx, stripe("delivered", model.OrderStatusDelivered)))
	assert.ErrorIs(t, r.DeleteUnpaid(ctx, "delivered"), repo.ErrStatusConflict)

	require.NoError(t, r.Create(ctx, pendingOrder("cod", now)))
	assert.ErrorIs(t, r.MarkPaid(ctx, "cod"), repo.ErrStatusConflict)

	for _, id := range []string{"paid", "delivered", "cod"} {
		_, err := r.FindByID(ctx, id)
		require.NoError(t, err, id)
	}

	require.NoError(t, r.Create(ctx, stripe("abandoned", model.OrderStatusPlaced)))
	require.NoError(t, r.DeleteUnpaid(ctx, "abandoned"))
	assert.ErrorIs(t, r.DeleteUnpaid(ctx, "abandoned"), repo.ErrNotFound)
}

func TestOrderRepository_CancelAndReplace(t *testing.T) {
	r := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, r.Create(ctx, pendingOrder("o1", now)))

	later := now.Add(time.Minute)
	require.NoError(t, r.ReplaceOTP(ctx, "o1", "654321", later.Add(10*time.Minute)))
	got, err := r.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "654321", *got.OTP)

	require.NoError(t, r.UpdateStatus(ctx, "o1", model.OrderStatusShipped))
	err = r.Cancel(ctx, "o1", []model.OrderStatus{model.OrderStatusPendingOTP, model.OrderStatusPlaced, model.OrderStatusPacking})
	assert.ErrorIs(t, err, repo.ErrStatusConflict)

	got, err = r.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, got.Status)
	assert.Nil(t, got.OTP)
}

func TestOrderRepository_ListAdmin(t *testing.T) {
	r := NewOrderRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, r.Create(ctx, pendingOrder(id, base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, r.UpdateStatus(ctx, "o2", model.OrderStatusPacking))

	all, total, err := r.ListAdmin(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 2)
	assert.Equal(t, "o3", all[0].ID)

	packing, total, err := r.ListAdmin(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 10, Status: string(model.OrderStatusPacking)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "o2", packing[0].ID)

	mine, err := r.ListByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func TestUserRepository_CartAndDuplicate(t *testing.T) {
	r := NewUserRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.Create(ctx, model.User{ID: "u1", Email: "a@example.com", Cart: model.Cart{}, CreatedAt: now, UpdatedAt: now}))
	assert.ErrorIs(t, r.Create(ctx, model.User{ID: "u2", Email: "a@example.com", CreatedAt: now, UpdatedAt: now}), repo.ErrDuplicate)

	require.NoError(t, r.IncrementItem(ctx, "u1", "p1", 2))
	require.NoError(t, r.IncrementItem(ctx, "u1", "p1", 1))
	require.NoError(t, r.SetItemQuantity(ctx, "u1", "p2", 4))
	cart, err := r.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Cart{"p1": 3, "p2": 4}, cart)

	assert.ErrorIs(t, r.IncrementItem(ctx, "u1", "p1", math.MaxInt64-2), repo.ErrInvalidCartItem)
	assert.ErrorIs(t, r.IncrementItem(ctx, "u1", "a.b", 1), repo.ErrInvalidCartItem)
	assert.ErrorIs(t, r.IncrementItem(ctx, "ghost", "p1", 1), repo.ErrNotFound)
	cart, err = r.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cart["p1"])

	require.NoError(t, r.SetItemQuantity(ctx, "u1", "p2", 0))
	require.NoError(t, r.Clear(ctx, "u1"))
	cart, err = r.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, cart)

	_, err = r.GetCart(ctx, "ghost")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAuditLogRepository_History(t *testing.T) {
	r := NewAuditLogRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a3", "a1", "a2"} {
		require.NoError(t, r.Create(ctx, model.AuditLog{
			ID:           id,
			Actor:        "admin",
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   "o1",
			CreatedAt:    base.Add(time.Duration(2-i) * time.Hour),
		}))
	}
	require.NoError(t, r.Create(ctx, model.AuditLog{ID: "p1", Action: model.AuditActionUpdateProduct, ResourceType: model.AuditResourceProduct, ResourceID: "o1", CreatedAt: base}))

	history, err := r.History(ctx, model.AuditResourceOrder, "o1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"a2", "a1", "a3"}, []string{history[0].ID, history[1].ID, history[2].ID})

	page, err := r.List(ctx, repo.AuditLogFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a1", page[0].ID)

	empty, err := r.History(ctx, model.AuditResourceOrder, "none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
