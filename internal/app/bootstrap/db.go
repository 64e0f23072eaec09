// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratalert/internal/app/system/indexes"
	"github.com/dalemusser/stratalert/internal/app/system/sms"
	"github.com/dalemusser/stratalert/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// ConnectDB connects to databases or other backends.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema and
// Startup. This is the place to establish connections to databases, caches,
// and external services that require persistent clients.
//
// Best practices:
//   - Use coreCfg.DBConnectTimeout to set connection timeouts
//   - Log connection attempts and successes for debugging
//   - Return descriptive errors if connections fail
//   - Store clients in the DBDeps struct for use in handlers
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	// Initialize the SMS sender. Credentials may be absent; the sender then
	// reports itself unconfigured and the alert workflow skips delivery.
	sender := sms.New(sms.Config{
		AccountSID: appCfg.TwilioAccountSID,
		AuthToken:  appCfg.TwilioAuthToken,
		From:       appCfg.TwilioFromNumber,
		BaseURL:    appCfg.TwilioBaseURL,
	}, logger)
	if sender.Configured() {
		logger.Info("initialized SMS sender",
			zap.String("from", appCfg.TwilioFromNumber),
		)
	}

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
		SMSSender:     sender,
	}, nil
}

// EnsureSchema sets up indexes or schema as needed.
//
// This runs after ConnectDB succeeds but before Startup and before the HTTP
// handler is built.
//
// This is the place to:
//   - Create database indexes for query performance
//   - Validate that required collections exist
//
// The context has a timeout based on coreCfg.IndexBootTimeout, so long-running
// migrations should respect context cancellation.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	// Ensure collections exist and attach JSON-Schema validators.
	// This runs first so indexes can be created on existing collections.
	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	// Ensure database indexes for query performance.
	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
