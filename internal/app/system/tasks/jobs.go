// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/stratalert/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// RateLimitCleanupJob creates a job that removes stale login rate-limit
// records. The collection also has a TTL index on last_attempt; this sweep
// covers deployments where TTL monitors are unavailable.
func RateLimitCleanupJob(db *mongo.Database, logger *zap.Logger) Job {
	return Job{
		Name:     "rate-limit-cleanup",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), logger, "rate-limit-cleanup")
			defer cancel()

			coll := db.Collection("rate_limits")
			result, err := coll.DeleteMany(ctx, bson.M{
				"last_attempt": bson.M{"$lt": time.Now().Add(-24 * time.Hour)},
			})
			if err != nil {
				return err
			}
			if result.DeletedCount > 0 {
				logger.Info("cleaned up stale rate-limit records",
					zap.Int64("deleted", result.DeletedCount))
			}
			return nil
		},
	}
}

// AuditLogRetentionJob creates a job that prunes audit log records older
// than the given retention period. A non-positive retention disables pruning.
func AuditLogRetentionJob(db *mongo.Database, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:     "audit-log-retention",
		Interval: 24 * time.Hour,
		Run: func(ctx context.Context) error {
			if retention <= 0 {
				return nil
			}
			ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), logger, "audit-log-retention")
			defer cancel()

			coll := db.Collection("audit_logs")
			result, err := coll.DeleteMany(ctx, bson.M{
				"created_at": bson.M{"$lt": time.Now().Add(-retention)},
			})
			if err != nil {
				return err
			}
			if result.DeletedCount > 0 {
				logger.Info("pruned audit log records past retention",
					zap.Int64("deleted", result.DeletedCount),
					zap.Duration("retention", retention))
			}
			return nil
		},
	}
}
