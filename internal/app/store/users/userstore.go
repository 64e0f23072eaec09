// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratalert/internal/app/system/normalize"
	"github.com/dalemusser/stratalert/internal/app/system/status"
	"github.com/dalemusser/stratalert/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByLoginID looks up a user by case/diacritic-insensitive login_id. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByLoginID(ctx context.Context, loginID string) (*models.User, error) {
	var u models.User
	folded := text.Fold(loginID)
	if err := s.c.FindOne(ctx, bson.M{"login_id_ci": folded}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByLoginIDAndAuthMethod looks up a user by login_id and auth_method.
// This is used for login to find the exact user account.
func (s *Store) GetByLoginIDAndAuthMethod(ctx context.Context, loginID, authMethod string) (*models.User, error) {
	var u models.User
	folded := text.Fold(loginID)
	if err := s.c.FindOne(ctx, bson.M{
		"login_id_ci": folded,
		"auth_method": authMethod,
	}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

var (
	// ErrDuplicateLoginID is returned when attempting to create a user with a login_id that already exists.
	ErrDuplicateLoginID = errors.New("a user with this login ID already exists")
	errBadRole          = errors.New("invalid role")
	errBadStatus        = errors.New(`status must be "active"|"disabled"`)
	errBadAuthMethod    = errors.New(`auth_method must be "password"|"trust"`)
)

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	// Normalize core fields
	u.ID = primitive.NewObjectID()
	u.FullName = normalize.Name(u.FullName)
	u.FullNameCI = text.Fold(u.FullName)

	// Normalize login_id fields
	if u.LoginID != nil && *u.LoginID != "" {
		loginID := normalize.Email(*u.LoginID) // lowercase
		loginIDCI := text.Fold(loginID)        // folded for case/diacritic-insensitive matching
		u.LoginID = &loginID
		u.LoginIDCI = &loginIDCI
	}

	// Normalize email if provided
	if u.Email != nil && *u.Email != "" {
		email := normalize.Email(*u.Email) // lowercase
		u.Email = &email
	}

	if u.Status == "" {
		u.Status = status.Active
	}

	// Validate role
	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}

	// Validate status
	if !status.IsValid(u.Status) {
		return models.User{}, errBadStatus
	}

	// Validate auth method
	if !models.IsValidAuthMethod(u.AuthMethod) {
		return models.User{}, errBadAuthMethod
	}

	// Timestamps
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	// Insert
	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateLoginID
		}
		return models.User{}, err
	}
	return u, nil
}

// CreateInput holds the fields for creating a new user.
type CreateInput struct {
	FullName     string
	LoginID      string
	Email        string
	AuthMethod   string
	Role         string
	PasswordHash *string
	CustomData   bson.M
}

// CreateFromInput creates a new user from CreateInput.
func (s *Store) CreateFromInput(ctx context.Context, input CreateInput) (models.User, error) {
	u := models.User{
		FullName:   input.FullName,
		AuthMethod: input.AuthMethod,
		Role:       input.Role,
		CustomData: input.CustomData,
	}

	if input.LoginID != "" {
		u.LoginID = &input.LoginID
	}
	if input.Email != "" {
		u.Email = &input.Email
	}
	if input.PasswordHash != nil {
		u.PasswordHash = input.PasswordHash
	}

	return s.Create(ctx, u)
}

// CountActiveAdmins returns the number of users with role=admin and status=active.
func (s *Store) CountActiveAdmins(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"role":   "admin",
		"status": "active",
	})
}
