package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gpsgateway/internal/core/model"
)

// ErrNotPending is returned by MarkSent when the command does not exist or
// has already left the Pending state.
var ErrNotPending = errors.New("command not found or not pending")

type CommandRepository interface {
	Create(ctx context.Context, cmd *model.Command) error
	// FindPendingByDeviceID returns Pending commands, oldest first.
	FindPendingByDeviceID(ctx context.Context, deviceID string) ([]*model.Command, error)
	FindByDeviceID(ctx context.Context, deviceID string) ([]*model.Command, error)
	// MarkSent moves a command from Pending to Sent. It succeeds for exactly
	// one caller per command.
	MarkSent(ctx context.Context, id string, at time.Time) error
}

type MongoCommandRepository struct {
	collection *mongo.Collection
}

func NewMongoCommandRepository(db *mongo.Database) *MongoCommandRepository {
	return &MongoCommandRepository{
		collection: db.Collection("commands"),
	}
}

func (r *MongoCommandRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

func (r *MongoCommandRepository) Create(ctx context.Context, cmd *model.Command) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, cmd)
	return err
}

func (r *MongoCommandRepository) FindPendingByDeviceID(ctx context.Context, deviceID string) ([]*model.Command, error) {
	return r.find(ctx, bson.M{"deviceId": deviceID, "status": model.CommandPending})
}

func (r *MongoCommandRepository) FindByDeviceID(ctx context.Context, deviceID string) ([]*model.Command, error) {
	return r.find(ctx, bson.M{"deviceId": deviceID})
}

func (r *MongoCommandRepository) find(ctx context.Context, filter bson.M) ([]*model.Command, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	// UUIDv7 ids break ties between commands created in the same instant
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var cmds []*model.Command
	if err = cursor.All(ctx, &cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

func (r *MongoCommandRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.CommandPending},
		bson.M{"$set": bson.M{"status": model.CommandSent, "sentAt": at}},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount == 0 {
		return ErrNotPending
	}
	return nil
}
