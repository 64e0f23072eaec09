// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/stratalert/internal/app/system/sms"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. It serves as
// the central place to store all database clients and backend connections
// that your application needs.
//
// The Shutdown hook is responsible for closing these connections gracefully
// when the application terminates.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// SMSSender delivers login-alert text messages via the Twilio API.
	// Always non-nil; an unconfigured sender skips delivery.
	SMSSender *sms.Sender
}
