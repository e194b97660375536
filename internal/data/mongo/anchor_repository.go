// Package mongo stores chain anchors in MongoDB, a database the ledger's own
// credentials cannot rewrite.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/progress-ledger/internal/domain/anchor"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// AnchorRepository implements the anchor.Repository interface for MongoDB
type AnchorRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewAnchorRepository creates a repository over the anchor collection.
func NewAnchorRepository(logger *zap.Logger, collection *mongo.Collection) *AnchorRepository {
	return &AnchorRepository{
		collection: collection,
		logger:     logger,
	}
}

// EnsureIndexes creates the unique (project_id, sequence) index that makes Record idempotent.
func (r *AnchorRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "project_id", Value: 1}, {Key: "sequence", Value: -1}},
		Options: options.Index().SetUnique(true).SetName("project_sequence_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create anchor indexes: %w", err)
	}
	return nil
}

// Record inserts a. A duplicate (project, sequence) is treated as already recorded.
func (r *AnchorRepository) Record(ctx context.Context, a *anchor.Anchor) error {
	_, err := r.collection.InsertOne(ctx, a)
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		r.logger.Debug("Anchor already recorded",
			zap.String("project_id", a.ProjectID),
			zap.Int64("sequence", a.Sequence),
		)
		return nil
	}
	r.logger.Error("Failed to record anchor",
		zap.String("project_id", a.ProjectID),
		zap.Int64("sequence", a.Sequence),
		zap.Error(err),
	)
	return fmt.Errorf("failed to record anchor: %w", err)
}

func (r *AnchorRepository) Latest(ctx context.Context, projectID string) (*anchor.Anchor, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}})

	var a anchor.Anchor
	err := r.collection.FindOne(ctx, bson.M{"project_id": projectID}, opts).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to get latest anchor", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest anchor: %w", err)
	}
	return &a, nil
}

var _ anchor.Repository = (*AnchorRepository)(nil)
