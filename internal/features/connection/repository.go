package connection

import (
	"context"
	"time"

	"go-comply/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ConnectionRepository interface {
	GetByTenant(ctx context.Context, tenantID string) (*Connection, error)
	Upsert(ctx context.Context, conn *Connection) error
	Update(ctx context.Context, tenantID string, updates map[string]interface{}) error
	UpdateStats(ctx context.Context, tenantID string, set map[string]interface{}, incItems int) error
	Delete(ctx context.Context, tenantID string) error
	ListSyncEnabled(ctx context.Context) ([]Connection, error)
	EnsureIndexes(ctx context.Context) error
}

type ConnectionRepositoryImpl struct {
	collection *mongo.Collection
}

func NewConnectionRepository(db *database.MongodbDB) ConnectionRepository {
	return &ConnectionRepositoryImpl{
		collection: db.DB.Collection("audit_connections"),
	}
}

func (r *ConnectionRepositoryImpl) GetByTenant(ctx context.Context, tenantID string) (*Connection, error) {
	var conn Connection
	err := r.collection.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&conn)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// Upsert writes the one-per-tenant row atomically; the unique tenant_id
// index backs the invariant.
func (r *ConnectionRepositoryImpl) Upsert(ctx context.Context, conn *Connection) error {
	now := time.Now()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"tenant_id": conn.TenantID}, conn, opts)
	return err
}

func (r *ConnectionRepositoryImpl) Update(ctx context.Context, tenantID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"tenant_id": tenantID},
		bson.M{"$set": updates},
	)
	return err
}

// UpdateStats applies rolling-statistics fields and increments the
// cumulative synced-item counter in one write.
func (r *ConnectionRepositoryImpl) UpdateStats(ctx context.Context, tenantID string, set map[string]interface{}, incItems int) error {
	set["updated_at"] = time.Now()
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"tenant_id": tenantID},
		bson.M{
			"$set": set,
			"$inc": bson.M{"total_items_synced": incItems},
		},
	)
	return err
}

func (r *ConnectionRepositoryImpl) Delete(ctx context.Context, tenantID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"tenant_id": tenantID})
	return err
}

func (r *ConnectionRepositoryImpl) ListSyncEnabled(ctx context.Context) ([]Connection, error) {
	filter := bson.M{
		"sync_enabled":      true,
		"connection_status": StatusActive,
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conns []Connection
	if err = cursor.All(ctx, &conns); err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *ConnectionRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
