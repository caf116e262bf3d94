package export

import (
	"context"
	"time"

	"go-comply/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SyncLogRepository interface {
	Create(ctx context.Context, log *SyncLog) error
	Finish(ctx context.Context, runID, status string, attempted, succeeded, failed int, byType map[string]int, errs []ItemError) error
	GetByRunID(ctx context.Context, tenantID, runID string) (*SyncLog, error)
	ListByTenant(ctx context.Context, tenantID string, limit int64) ([]SyncLog, error)
	EnsureIndexes(ctx context.Context) error
}

type SyncLogRepositoryImpl struct {
	collection *mongo.Collection
}

func NewSyncLogRepository(db *database.MongodbDB) SyncLogRepository {
	return &SyncLogRepositoryImpl{
		collection: db.DB.Collection("sync_logs"),
	}
}

func (r *SyncLogRepositoryImpl) Create(ctx context.Context, log *SyncLog) error {
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, log)
	return err
}

// Finish finalizes a run row exactly once.
func (r *SyncLogRepositoryImpl) Finish(ctx context.Context, runID, status string, attempted, succeeded, failed int, byType map[string]int, errs []ItemError) error {
	now := time.Now()
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"run_id": runID},
		bson.M{"$set": bson.M{
			"status":          status,
			"items_attempted": attempted,
			"items_succeeded": succeeded,
			"items_failed":    failed,
			"by_type":         byType,
			"errors":          errs,
			"completed_at":    now,
		}},
	)
	return err
}

func (r *SyncLogRepositoryImpl) GetByRunID(ctx context.Context, tenantID, runID string) (*SyncLog, error) {
	var log SyncLog
	err := r.collection.FindOne(ctx, bson.M{"tenant_id": tenantID, "run_id": runID}).Decode(&log)
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *SyncLogRepositoryImpl) ListByTenant(ctx context.Context, tenantID string, limit int64) ([]SyncLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []SyncLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *SyncLogRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "run_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "started_at", Value: -1}},
		},
	})
	return err
}
