package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var otpFields = bson.M{"otp": "", "otp_expires_at": ""}

type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{collection: db.Collection(ordersCollection)}
}

func (r *OrderRepository) Create(ctx context.Context, order model.Order) error {
	if _, err := r.collection.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	var o model.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": orderID}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID string) ([]model.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, bson.M{"user_id": userID}, opts)
}

func (r *OrderRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lte"] = *f.To
		}
		filter["created_at"] = created
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return []model.Order{}, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))
	items, err := r.find(ctx, filter, opts)
	if err != nil {
		return []model.Order{}, 0, err
	}
	return items, total, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	update := bson.M{"$set": bson.M{"status": status}}
	if status != model.OrderStatusPendingOTP {
		update["$unset"] = otpFields
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": orderID}, update)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) ConfirmOTP(ctx context.Context, orderID string, code string) error {
	cond := statusIn(model.OrderStatusPendingOTP)
	cond["otp"] = code
	return r.updateIf(ctx, orderID, cond, bson.M{
		"$set":   bson.M{"status": model.OrderStatusPlaced},
		"$unset": otpFields,
	})
}

func (r *OrderRepository) ReplaceOTP(ctx context.Context, orderID string, code string, expiresAt time.Time) error {
	return r.updateIf(ctx, orderID, statusIn(model.OrderStatusPendingOTP), bson.M{
		"$set": bson.M{"otp": code, "otp_expires_at": expiresAt},
	})
}

func (r *OrderRepository) Cancel(ctx context.Context, orderID string, from []model.OrderStatus) error {
	return r.updateIf(ctx, orderID, statusIn(from...), bson.M{
		"$set":   bson.M{"status": model.OrderStatusCancelled},
		"$unset": otpFields,
	})
}

func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string) error {
	return r.updateIf(ctx, orderID, awaitingPayment(), bson.M{"$set": bson.M{"payment": true}})
}

func (r *OrderRepository) DeleteUnpaid(ctx context.Context, orderID string) error {
	filter := awaitingPayment()
	filter["_id"] = orderID
	res, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if res.DeletedCount > 0 {
		return nil
	}
	return r.missOrConflict(ctx, orderID)
}

// condに一致するときだけ更新する（単一ドキュメントで原子的）
func (r *OrderRepository) updateIf(ctx context.Context, orderID string, cond bson.M, update bson.M) error {
	cond["_id"] = orderID
	res, err := r.collection.UpdateOne(ctx, cond, update)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	return r.missOrConflict(ctx, orderID)
}

func (r *OrderRepository) missOrConflict(ctx context.Context, orderID string) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": orderID})
	if err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return repo.ErrStatusConflict
}

func statusIn(from ...model.OrderStatus) bson.M {
	return bson.M{"status": bson.M{"$in": from}}
}

func awaitingPayment() bson.M {
	return bson.M{
		"status":         model.OrderStatusPlaced,
		"payment_method": model.PaymentMethodStripe,
		"payment":        false,
	}
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Order, error) {
	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return []model.Order{}, fmt.Errorf("failed to find orders: %w", err)
	}
	defer cur.Close(ctx)

	items := []model.Order{}
	if err := cur.All(ctx, &items); err != nil {
		return []model.Order{}, fmt.Errorf("failed to decode orders: %w", err)
	}
	return items, nil
}
