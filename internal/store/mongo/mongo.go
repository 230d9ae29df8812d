// Package mongo implements the OTP store on a MongoDB collection.
// Expiry is computed client-side and written on every record; reads
// filter on it, so an expired document is indistinguishable from a
// missing one. A TTL index reaps stale documents in the background.
package mongo

import (
	"context"
	"time"

	"github.com/stratauth/otpauth/internal/store"
	"github.com/stratauth/otpauth/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo implements a MongoDB Store.
type Mongo struct {
	client *mongo.Client
	col    *mongo.Collection
	conf   Conf
}

// Conf contains MongoDB configuration fields.
type Conf struct {
	URI        string        `json:"uri"`
	Database   string        `json:"database"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout"`
}

// record is the document shape stored in the collection, keyed by the
// OTP key itself.
type record struct {
	Key       string    `bson:"_id"`
	Code      string    `bson:"code"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// New connects to MongoDB and returns a Mongo implementation of store.
func New(ctx context.Context, c Conf) (*Mongo, error) {
	if c.Database == "" {
		c.Database = "otpauth"
	}
	if c.Collection == "" {
		c.Collection = "otps"
	}
	if c.Timeout.Seconds() < 1 {
		c.Timeout = time.Second * 5
	}

	client, err := mongo.Connect(ctx,
		options.Client().ApplyURI(c.URI).SetTimeout(c.Timeout))
	if err != nil {
		return nil, err
	}
	col := client.Database(c.Database).Collection(c.Collection)

	// TTL index so the server reaps expired documents. Reads still filter
	// on expires_at themselves; the index is only a cleanup mechanism and
	// its sweep granularity (~60s) is never relied upon for correctness.
	_, err = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, err
	}

	return &Mongo{
		client: client,
		col:    col,
		conf:   c,
	}, nil
}

// Ping checks if the MongoDB server is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Set upserts the record at key with an expiry of now + ttl. The code
// and the expiry land in one document write.
func (m *Mongo) Set(ctx context.Context, key, code string, ttl time.Duration) error {
	_, err := m.col.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{
			"code":       code,
			"expires_at": time.Now().Add(ttl),
		}},
		options.Update().SetUpsert(true))
	return err
}

// Get returns the record at key if it hasn't expired.
func (m *Mongo) Get(ctx context.Context, key string) (models.OTPRecord, error) {
	var rec record
	err := m.col.FindOne(ctx, m.liveFilter(key)).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.OTPRecord{}, store.ErrNotExist
		}
		return models.OTPRecord{}, err
	}

	return models.OTPRecord{Code: rec.Code, ExpiresAt: rec.ExpiresAt}, nil
}

// Take returns the record at key and deletes it atomically via
// findAndModify, so concurrent takes yield the document to one caller.
func (m *Mongo) Take(ctx context.Context, key string) (models.OTPRecord, error) {
	var rec record
	err := m.col.FindOneAndDelete(ctx, m.liveFilter(key)).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.OTPRecord{}, store.ErrNotExist
		}
		return models.OTPRecord{}, err
	}

	return models.OTPRecord{Code: rec.Code, ExpiresAt: rec.ExpiresAt}, nil
}

// Delete deletes the record saved against the given key.
func (m *Mongo) Delete(ctx context.Context, key string) error {
	_, err := m.col.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// Close disconnects the underlying client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.conf.Timeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// liveFilter matches the key only while its expiry is in the future.
func (m *Mongo) liveFilter(key string) bson.M {
	return bson.M{
		"_id":        key,
		"expires_at": bson.M{"$gte": time.Now()},
	}
}
