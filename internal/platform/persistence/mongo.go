package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/progress-ledger/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// MongoDB is the connection to the anchor store. Anchor writes are acknowledged
// by a majority of the replica set and reads see only majority-committed anchors.
type MongoDB struct {
	logger           *zap.Logger
	client           *mongo.Client
	database         *mongo.Database
	anchorCollection string
	timeout          time.Duration
}

func anchorDatabaseOptions() *options.DatabaseOptions {
	return options.Database().
		SetWriteConcern(writeconcern.Majority()).
		SetReadConcern(readconcern.Majority()).
		SetReadPreference(readpref.Primary())
}

func NewMongoDB(ctx context.Context, logger *zap.Logger, cfg *config.MongoDBConfig) (*MongoDB, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("progress-ledger-chain-auditor").
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	m := &MongoDB{
		logger:           logger.With(zap.String("database", cfg.Database)),
		client:           client,
		database:         client.Database(cfg.Database, anchorDatabaseOptions()),
		anchorCollection: cfg.AnchorCollection,
		timeout:          cfg.Timeout,
	}

	if err := m.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	m.logger.Info("Connected to anchor store", zap.String("collection", cfg.AnchorCollection))
	return m, nil
}

// Ping checks the primary is reachable within the configured timeout.
func (m *MongoDB) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.client.Ping(pingCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Anchors returns the collection chain anchors are written to.
func (m *MongoDB) Anchors() *mongo.Collection {
	return m.database.Collection(m.anchorCollection)
}

func (m *MongoDB) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	m.logger.Info("Closed anchor store connection")
	return nil
}
