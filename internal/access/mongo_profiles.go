package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type profile struct {
	UserID    string    `bson:"user_id"`
	Email     string    `bson:"email,omitempty"`
	IsAdmin   bool      `bson:"is_admin"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoProfileStore keeps account profiles in the "profiles" collection.
type MongoProfileStore struct {
	collection *mongo.Collection
}

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(50)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func NewMongoProfileStore(db *mongo.Database) *MongoProfileStore {
	return &MongoProfileStore{collection: db.Collection("profiles")}
}

func (m *MongoProfileStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var p profile
	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get profile: %w", err)
	}
	return p.IsAdmin, nil
}

// SetAdmin grants or revokes the admin flag, creating the profile if needed.
func (m *MongoProfileStore) SetAdmin(ctx context.Context, userID, email string, isAdmin bool) error {
	filter := bson.M{"user_id": userID}
	update := bson.M{"$set": profile{
		UserID:    userID,
		Email:     email,
		IsAdmin:   isAdmin,
		UpdatedAt: time.Now().UTC(),
	}}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (m *MongoProfileStore) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoProfileStore) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, nil)
}
