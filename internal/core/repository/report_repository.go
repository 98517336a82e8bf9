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

// Per-call budget for a single MongoDB round trip.
const mongoTimeout = 5 * time.Second

type ReportRepository interface {
	Create(ctx context.Context, report *model.LocationReport) error
	// FindByDeviceID returns reports with from <= DeviceTime < to, oldest
	// first. A zero bound is open.
	FindByDeviceID(ctx context.Context, deviceID string, from, to time.Time) ([]*model.LocationReport, error)
	FindLatestByDeviceID(ctx context.Context, deviceID string) (*model.LocationReport, error)
}

type MongoReportRepository struct {
	collection *mongo.Collection
}

func NewMongoReportRepository(db *mongo.Database) *MongoReportRepository {
	return &MongoReportRepository{
		collection: db.Collection("reports"),
	}
}

// EnsureIndexes creates the (deviceId, deviceTime) index used by range
// queries.
func (r *MongoReportRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "deviceTime", Value: 1}},
	})
	return err
}

func (r *MongoReportRepository) Create(ctx context.Context, report *model.LocationReport) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, report)
	return err
}

func (r *MongoReportRepository) FindByDeviceID(ctx context.Context, deviceID string, from, to time.Time) ([]*model.LocationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	filter := bson.M{"deviceId": deviceID}
	if timeRange := rangeFilter(from, to); len(timeRange) > 0 {
		filter["deviceTime"] = timeRange
	}

	opts := options.Find().SetSort(bson.D{{Key: "deviceTime", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reports []*model.LocationReport
	if err = cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *MongoReportRepository) FindLatestByDeviceID(ctx context.Context, deviceID string) (*model.LocationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "deviceTime", Value: -1}})
	var report model.LocationReport
	err := r.collection.FindOne(ctx, bson.M{"deviceId": deviceID}, opts).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func rangeFilter(from, to time.Time) bson.M {
	m := bson.M{}
	if !from.IsZero() {
		m["$gte"] = from
	}
	if !to.IsZero() {
		m["$lt"] = to
	}
	return m
}
