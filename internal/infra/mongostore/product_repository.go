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

type ProductRepository struct {
	collection *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{collection: db.Collection(productsCollection)}
}

func (r *ProductRepository) ListActive(ctx context.Context) ([]model.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.collection.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return []model.Product{}, fmt.Errorf("failed to find products: %w", err)
	}
	defer cur.Close(ctx)

	items := []model.Product{}
	if err := cur.All(ctx, &items); err != nil {
		return []model.Product{}, fmt.Errorf("failed to decode products: %w", err)
	}
	return items, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (model.Product, error) {
	var p model.Product
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p model.Product) error {
	if _, err := r.collection.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p model.Product) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"name":         p.Name,
		"description":  p.Description,
		"price":        p.Price,
		"category":     p.Category,
		"sub_category": p.SubCategory,
		"sizes":        p.Sizes,
		"bestseller":   p.Bestseller,
		"is_active":    p.IsActive,
		"updated_at":   time.Now(),
	}})
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if res.MatchedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}
