package store

import (
	"context"
	"fmt"

	"thumbfetch/internal/models"
	"thumbfetch/internal/modules/filter"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
	"go.uber.org/zap"
)

// defaultDatabase is used when the connection string names none.
const defaultDatabase = "test"

// Mongo is a RecordStore backed by a MongoDB collection.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// recordDoc is the projected shape of a record document. thumbnail is kept
// raw so that documents with a null or malformed thumbnail still decode.
type recordDoc struct {
	ID        bson.RawValue `bson:"_id"`
	Thumbnail bson.RawValue `bson:"thumbnail"`
}

// OpenMongo connects to uri and verifies the connection with a ping. The
// database is taken from the connection string path.
func OpenMongo(ctx context.Context, uri string, logger *zap.Logger) (*Mongo, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("connected to record store",
		zap.Strings("hosts", cs.Hosts),
		zap.String("database", dbName),
		zap.String("collection", CollectionName))

	return &Mongo{
		client:     client,
		collection: client.Database(dbName).Collection(CollectionName),
		logger:     logger,
	}, nil
}

// Count implements RecordStore.
func (m *Mongo) Count(ctx context.Context, f filter.Filter) (int64, error) {
	n, err := m.collection.CountDocuments(ctx, f.BSON())
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// FindPage implements RecordStore. Results are ordered by _id so that
// skip/limit pages partition the matching set.
func (m *Mongo) FindPage(ctx context.Context, f filter.Filter, limit, skip int64) ([]models.Record, error) {
	opts := options.Find().
		SetProjection(bson.M{"thumbnail": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(limit).
		SetSkip(skip)

	cur, err := m.collection.Find(ctx, f.BSON(), opts)
	if err != nil {
		return nil, fmt.Errorf("find records (skip %d): %w", skip, err)
	}

	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode records (skip %d): %w", skip, err)
	}

	records := make([]models.Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, m.toRecord(d))
	}
	return records, nil
}

// Close implements RecordStore.
func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func (m *Mongo) toRecord(d recordDoc) models.Record {
	rec := models.Record{ID: idString(d.ID)}
	if d.Thumbnail.Type != bson.TypeEmbeddedDocument {
		return rec
	}
	var thumb models.Thumbnail
	if err := d.Thumbnail.Unmarshal(&thumb); err != nil {
		m.logger.Debug("ignoring malformed thumbnail",
			zap.String("record_id", rec.ID),
			zap.Error(err))
		return rec
	}
	rec.Thumbnail = &thumb
	return rec
}

// idString renders an _id as a file-name friendly string.
func idString(v bson.RawValue) string {
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	return v.String()
}
