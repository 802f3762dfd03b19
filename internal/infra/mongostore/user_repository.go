package mongostore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ユーザーとカート（users.cart）を扱う
type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(usersCollection)}
}

func (r *UserRepository) Create(ctx context.Context, user model.User) error {
	if user.Cart == nil {
		user.Cart = model.Cart{}
	}
	_, err := r.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return repo.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (model.User, error) {
	return r.findOne(ctx, bson.M{"_id": userID})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) GetCart(ctx context.Context, userID string) (model.Cart, error) {
	u, err := r.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Cart == nil {
		return model.Cart{}, nil
	}
	return u.Cart, nil
}

// $incで同一商品は数量加算。加算後にint64を超える行は一致させない
func (r *UserRepository) IncrementItem(ctx context.Context, userID string, productID string, qty int64) error {
	if qty <= 0 {
		return repo.ErrInvalidCartItem
	}
	key, err := cartKey(productID)
	if err != nil {
		return err
	}
	filter := bson.M{
		"_id": userID,
		"$or": bson.A{
			bson.M{key: bson.M{"$exists": false}},
			bson.M{key: bson.M{"$lte": math.MaxInt64 - qty}},
		},
	}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{key: qty},
		"$set": bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return fmt.Errorf("%w: quantity of %s overflows", repo.ErrInvalidCartItem, productID)
}

// 0以下は$unsetで明細ごと消す
func (r *UserRepository) SetItemQuantity(ctx context.Context, userID string, productID string, qty int64) error {
	key, err := cartKey(productID)
	if err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{key: qty, "updated_at": time.Now()}}
	if qty <= 0 {
		update = bson.M{
			"$unset": bson.M{key: ""},
			"$set":   bson.M{"updated_at": time.Now()},
		}
	}
	return r.updateUser(ctx, userID, update)
}

func (r *UserRepository) Clear(ctx context.Context, userID string) error {
	return r.updateUser(ctx, userID, bson.M{"$set": bson.M{"cart": bson.M{}, "updated_at": time.Now()}})
}

func (r *UserRepository) updateUser(ctx context.Context, userID string, update bson.M) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (model.User, error) {
	var u model.User
	err := r.collection.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, repo.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// "."や"$"を含むとフィールドパスが壊れる
func cartKey(productID string) (string, error) {
	if productID == "" || strings.ContainsAny(productID, ".$") {
		return "", fmt.Errorf("%w: product id %q", repo.ErrInvalidCartItem, productID)
	}
	return "cart." + productID, nil
}
