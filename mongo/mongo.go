package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/themunch/munch"
)

const subscribersCollection = "subscribers"

// DB represents the MongoDB connection
type DB struct {
	client   *mongodrv.Client
	database *mongodrv.Database

	uri            string
	name           string
	minPool        uint64
	maxPool        uint64
	connectTimeout time.Duration
	serverTimeout  time.Duration
	socketTimeout  time.Duration

	ctx    context.Context
	cancel func()
}

// NewDB returns new database
func NewDB(config *munch.Config) *DB {
	db := &DB{
		uri:            config.DB.URI,
		name:           config.DB.Name,
		minPool:        config.DB.Pool.Min,
		maxPool:        config.DB.Pool.Max,
		connectTimeout: config.DB.Timeout.Connect,
		serverTimeout:  config.DB.Timeout.Server,
		socketTimeout:  config.DB.Timeout.Socket,
	}

	if db.connectTimeout <= 0 {
		db.connectTimeout = 10 * time.Second
	}
	if db.serverTimeout <= 0 {
		db.serverTimeout = 5 * time.Second
	}
	if db.socketTimeout <= 0 {
		db.socketTimeout = 5 * time.Second
	}

	db.ctx, db.cancel = context.WithCancel(context.Background())

	return db
}

// Open opens the connection and ensures the unique index on email. Index
// creation is idempotent, so reopening against an existing collection is safe.
func (db *DB) Open() error {
	if db.uri == "" {
		return errors.New("mongo uri required")
	}

	if db.client != nil {
		return nil
	}

	client, err := mongodrv.Connect(
		options.Client().
			ApplyURI(db.uri).
			SetConnectTimeout(db.connectTimeout).
			SetServerSelectionTimeout(db.serverTimeout).
			SetTimeout(db.socketTimeout).
			SetMinPoolSize(db.minPool).
			SetMaxPoolSize(db.maxPool),
	)
	if err != nil {
		return errors.Wrap(err, "failed to connect to mongo")
	}

	ctx, cancel := context.WithTimeout(db.ctx, db.connectTimeout)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return errors.Wrap(err, "failed to ping mongo")
	}

	db.client = client
	db.database = client.Database(db.name)

	if err := db.ensureIndexes(ctx); err != nil {
		return err
	}

	return nil
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	_, err := db.subscribers().Indexes().CreateOne(ctx, mongodrv.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create unique index on email")
	}

	return nil
}

func (db *DB) subscribers() *mongodrv.Collection {
	return db.database.Collection(subscribersCollection)
}

// withTxn runs fn inside a session transaction so that a request's store
// writes are all-or-nothing.
func (db *DB) withTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := db.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "failed to start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})

	return err
}

// Close closes database connection
func (db *DB) Close() error {
	db.cancel()

	if db.client != nil {
		return db.client.Disconnect(context.Background())
	}

	return nil
}
