package export

import (
	"context"
	"time"

	"go-comply/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ItemMappingRepository interface {
	Upsert(ctx context.Context, mapping *ItemMapping) error
	Get(ctx context.Context, tenantID, itemType, itemID string) (*ItemMapping, error)
	SyncedIDs(ctx context.Context, tenantID, itemType string) (map[string]bool, error)
	EnsureIndexes(ctx context.Context) error
}

type ItemMappingRepositoryImpl struct {
	collection *mongo.Collection
}

func NewItemMappingRepository(db *database.MongodbDB) ItemMappingRepository {
	return &ItemMappingRepositoryImpl{
		collection: db.DB.Collection("item_mappings"),
	}
}

// Upsert writes the at-most-one mapping row for an internal record. A
// non-incremental re-run uploads already-mapped items again; the existing row
// is refreshed with the new external id and synced-at instead of tripping the
// unique index.
func (r *ItemMappingRepositoryImpl) Upsert(ctx context.Context, mapping *ItemMapping) error {
	mapping.SyncedAt = time.Now()

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{
		"tenant_id": mapping.TenantID,
		"item_type": mapping.ItemType,
		"item_id":   mapping.ItemID,
	}, mapping, opts)
	return err
}

func (r *ItemMappingRepositoryImpl) Get(ctx context.Context, tenantID, itemType, itemID string) (*ItemMapping, error) {
	var mapping ItemMapping
	err := r.collection.FindOne(ctx, bson.M{
		"tenant_id": tenantID,
		"item_type": itemType,
		"item_id":   itemID,
	}).Decode(&mapping)
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// SyncedIDs loads one type's already-mapped ids as a set, so an incremental
// run can skip them without a per-item query.
func (r *ItemMappingRepositoryImpl) SyncedIDs(ctx context.Context, tenantID, itemType string) (map[string]bool, error) {
	opts := options.Find().SetProjection(bson.M{"item_id": 1})
	cursor, err := r.collection.Find(ctx, bson.M{
		"tenant_id": tenantID,
		"item_type": itemType,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	ids := make(map[string]bool)
	for cursor.Next(ctx) {
		var row struct {
			ItemID string `bson:"item_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		ids[row.ItemID] = true
	}
	return ids, cursor.Err()
}

func (r *ItemMappingRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "item_type", Value: 1},
			{Key: "item_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}
