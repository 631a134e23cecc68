package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

// ========== MongoDB ==========

const mongoConnectTimeout = 10 * time.Second

// MongoPlanStore keeps the live plan of each trip so progress and accepted
// suggestions survive a new live session.
type MongoPlanStore struct {
	client *mongo.Client
	plans  *mongo.Collection
	now    func() time.Time
}

// NewMongoPlanStore connects and verifies the server is reachable.
func NewMongoPlanStore(ctx context.Context, uri, database, collection string) (*MongoPlanStore, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "trip_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo index: %w", err)
	}
	return &MongoPlanStore{client: client, plans: coll, now: time.Now}, nil
}

// LoadPlan returns the stored plan, or ok=false when the trip has none.
func (m *MongoPlanStore) LoadPlan(ctx context.Context, tripID int64) (*plan.Plan, bool, error) {
	var doc LivePlanDoc
	err := m.plans.FindOne(ctx, bson.M{"trip_id": tripID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find live plan: %w", err)
	}
	p, err := doc.decode()
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// SavePlan upserts the plan snapshot for the trip.
func (m *MongoPlanStore) SavePlan(ctx context.Context, tripID int64, p *plan.Plan) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode live plan: %w", err)
	}
	update := bson.M{
		"$set": bson.M{
			"plan_json":  string(raw),
			"updated_at": m.now(),
		},
		"$setOnInsert": bson.M{"trip_id": tripID},
	}
	_, err = m.plans.UpdateOne(ctx, bson.M{"trip_id": tripID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save live plan: %w", err)
	}
	return nil
}

// Close disconnects from the server.
func (m *MongoPlanStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
