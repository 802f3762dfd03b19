package mongostore

import (
	"context"
	"fmt"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// 追記のみ
type AuditLogRepository struct {
	collection *mongo.Collection
}

func NewAuditLogRepository(db *mongo.Database) *AuditLogRepository {
	return &AuditLogRepository{collection: db.Collection(auditLogsCollection)}
}

func (r *AuditLogRepository) Create(ctx context.Context, entry model.AuditLog) error {
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert audit log %s: %w", entry.ID, err)
	}
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	limit, offset := f.Window()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return r.find(ctx, auditFilter(f), opts)
}

func (r *AuditLogRepository) History(ctx context.Context, resourceType model.AuditResourceType, resourceID string) ([]model.AuditLog, error) {
	filter := bson.M{"resource_type": resourceType, "resource_id": resourceID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *AuditLogRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.AuditLog, error) {
	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit logs: %w", err)
	}
	defer cur.Close(ctx)

	logs := []model.AuditLog{}
	if err := cur.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("decode audit logs: %w", err)
	}
	return logs, nil
}

func auditFilter(f repo.AuditLogFilter) bson.M {
	filter := bson.M{}
	if f.Actor != "" {
		filter["actor"] = f.Actor
	}
	if f.Action != nil {
		filter["action"] = *f.Action
	}
	if f.ResourceType != nil {
		filter["resource_type"] = *f.ResourceType
	}
	if f.ResourceID != "" {
		filter["resource_id"] = f.ResourceID
	}
	created := bson.M{}
	if f.CreatedFrom != nil {
		created["$gte"] = *f.CreatedFrom
	}
	if f.CreatedTo != nil {
		created["$lte"] = *f.CreatedTo
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return filter
}
