package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gpsgateway/internal/core/model"
)

type DeviceRepository interface {
	// Touch creates the device on first contact and records report as its
	// latest one.
	Touch(ctx context.Context, report *model.LocationReport) error
	FindByID(ctx context.Context, id string) (*model.Device, error)
	FindAll(ctx context.Context) ([]*model.Device, error)
}

type MongoDeviceRepository struct {
	collection *mongo.Collection
}

func NewMongoDeviceRepository(db *mongo.Database) *MongoDeviceRepository {
	return &MongoDeviceRepository{
		collection: db.Collection("devices"),
	}
}

func (r *MongoDeviceRepository) Touch(ctx context.Context, report *model.LocationReport) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"protocol":       report.Variant,
			"lastTransport":  report.Transport,
			"lastRemoteAddr": report.RemoteAddr,
			"lastReportId":   report.ID,
			"lastUpdate":     report.ServerTime,
		},
		"$setOnInsert": bson.M{"createdAt": report.ServerTime},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": report.DeviceID}, update, options.Update().SetUpsert(true))
	return err
}

func (r *MongoDeviceRepository) FindByID(ctx context.Context, id string) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	var device model.Device
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&device)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *MongoDeviceRepository) FindAll(ctx context.Context) ([]*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var devices []*model.Device
	if err = cursor.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}
