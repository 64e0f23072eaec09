package userstore

import (
	"testing"

	"github.com/dalemusser/stratalert/internal/domain/models"
	"github.com/dalemusser/stratalert/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	loginID := "test@example.com"
	user := models.User{
		FullName:   "Test User",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
	}

	created, err := store.Create(ctx, user)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Verify ID was assigned
	if created.ID.IsZero() {
		t.Error("Create() did not assign ID")
	}

	// Verify timestamps were set
	if created.CreatedAt.IsZero() {
		t.Error("Create() did not set CreatedAt")
	}
	if created.UpdatedAt.IsZero() {
		t.Error("Create() did not set UpdatedAt")
	}

	// Verify status defaulted to active
	if created.Status != "active" {
		t.Errorf("Create() Status = %q, want %q", created.Status, "active")
	}

	// Verify normalization
	if created.FullNameCI == "" {
		t.Error("Create() did not set FullNameCI")
	}
	if created.LoginIDCI == nil || *created.LoginIDCI == "" {
		t.Error("Create() did not set LoginIDCI")
	}
}

func TestStore_Create_InvalidRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	loginID := "test@example.com"
	user := models.User{
		FullName:   "Test User",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "invalid_role",
	}

	_, err := store.Create(ctx, user)
	if err == nil {
		t.Error("Create() with invalid role should return error")
	}
}

func TestStore_Create_InvalidAuthMethod(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	loginID := "badauth@example.com"
	tests := []string{"oauth", "PASSWORD", ""}
	for _, method := range tests {
		_, err := store.Create(ctx, models.User{
			FullName:   "Bad Auth User",
			LoginID:    &loginID,
			AuthMethod: method,
			Role:       "member",
		})
		if err != errBadAuthMethod {
			t.Errorf("Create() with auth_method %q error = %v, want %v", method, err, errBadAuthMethod)
		}
	}
}

func TestStore_Create_DuplicateLoginID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	loginID := "duplicate@example.com"
	user1 := models.User{
		FullName:   "User One",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
	}

	_, err := store.Create(ctx, user1)
	if err != nil {
		t.Fatalf("Create() first user error = %v", err)
	}

	// Try to create second user with same login ID
	user2 := models.User{
		FullName:   "User Two",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
	}

	_, err = store.Create(ctx, user2)
	if err != ErrDuplicateLoginID {
		t.Errorf("Create() duplicate error = %v, want %v", err, ErrDuplicateLoginID)
	}
}

func TestStore_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Create a user first
	loginID := "getbyid@example.com"
	user := models.User{
		FullName:   "Get By ID User",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
	}

	created, err := store.Create(ctx, user)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Get by ID
	found, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if found.ID != created.ID {
		t.Errorf("GetByID() ID = %v, want %v", found.ID, created.ID)
	}
	if found.FullName != created.FullName {
		t.Errorf("GetByID() FullName = %q, want %q", found.FullName, created.FullName)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Try to get non-existent user
	nonExistentID := primitive.NewObjectID()
	_, err := store.GetByID(ctx, nonExistentID)
	if err != mongo.ErrNoDocuments {
		t.Errorf("GetByID() error = %v, want %v", err, mongo.ErrNoDocuments)
	}
}

func TestStore_GetByLoginID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Create a user
	loginID := "getbylogin@example.com"
	user := models.User{
		FullName:   "Get By LoginID User",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
	}

	created, err := store.Create(ctx, user)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Get by login ID (exact case)
	found, err := store.GetByLoginID(ctx, loginID)
	if err != nil {
		t.Fatalf("GetByLoginID() error = %v", err)
	}

	if found.ID != created.ID {
		t.Errorf("GetByLoginID() ID = %v, want %v", found.ID, created.ID)
	}

	// Get by login ID (different case - should still work due to folding)
	found2, err := store.GetByLoginID(ctx, "GETBYLOGIN@EXAMPLE.COM")
	if err != nil {
		t.Fatalf("GetByLoginID() case-insensitive error = %v", err)
	}

	if found2.ID != created.ID {
		t.Errorf("GetByLoginID() case-insensitive ID = %v, want %v", found2.ID, created.ID)
	}
}

func TestStore_CountActiveAdmins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Initially should be 0
	count, err := store.CountActiveAdmins(ctx)
	if err != nil {
		t.Fatalf("CountActiveAdmins() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountActiveAdmins() initial = %d, want 0", count)
	}

	// Create an active admin
	loginID := "admin@example.com"
	_, err = store.Create(ctx, models.User{
		FullName:   "Active Admin",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
		Status:     "active",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Should be 1 now
	count, err = store.CountActiveAdmins(ctx)
	if err != nil {
		t.Fatalf("CountActiveAdmins() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountActiveAdmins() after create = %d, want 1", count)
	}
}

func TestStore_CreateFromInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	input := CreateInput{
		FullName:   "Input User",
		LoginID:    "input@example.com",
		Email:      "input@example.com",
		AuthMethod: "password",
		Role:       "admin",
	}

	created, err := store.CreateFromInput(ctx, input)
	if err != nil {
		t.Fatalf("CreateFromInput() error = %v", err)
	}

	if created.FullName != input.FullName {
		t.Errorf("CreateFromInput() FullName = %q, want %q", created.FullName, input.FullName)
	}
	if created.Email == nil || *created.Email != input.Email {
		t.Errorf("CreateFromInput() Email not set correctly")
	}
}

func TestStore_GetByLoginIDAndAuthMethod(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	loginID := "authmethod@example.com"

	// Create user with password auth
	created, err := store.Create(ctx, models.User{
		FullName:   "Auth Method User",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Find with correct auth method
	found, err := store.GetByLoginIDAndAuthMethod(ctx, loginID, "password")
	if err != nil {
		t.Fatalf("GetByLoginIDAndAuthMethod() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("GetByLoginIDAndAuthMethod() ID = %v, want %v", found.ID, created.ID)
	}

	// Find with wrong auth method
	_, err = store.GetByLoginIDAndAuthMethod(ctx, loginID, "trust")
	if err != mongo.ErrNoDocuments {
		t.Errorf("GetByLoginIDAndAuthMethod() wrong auth error = %v, want %v", err, mongo.ErrNoDocuments)
	}

	// Find with non-existent login ID
	_, err = store.GetByLoginIDAndAuthMethod(ctx, "nonexistent@example.com", "password")
	if err != mongo.ErrNoDocuments {
		t.Errorf("GetByLoginIDAndAuthMethod() non-existent error = %v, want %v", err, mongo.ErrNoDocuments)
	}

	// Case-insensitive lookup
	found2, err := store.GetByLoginIDAndAuthMethod(ctx, "AUTHMETHOD@EXAMPLE.COM", "password")
	if err != nil {
		t.Fatalf("GetByLoginIDAndAuthMethod() case-insensitive error = %v", err)
	}
	if found2.ID != created.ID {
		t.Errorf("GetByLoginIDAndAuthMethod() case-insensitive ID = %v, want %v", found2.ID, created.ID)
	}
}

func TestFetcher_NewFetcher(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	fetcher := NewFetcher(db, logger)
	if fetcher == nil {
		t.Error("NewFetcher() returned nil")
	}
}

func TestFetcher_FetchUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	logger := zap.NewNop()
	fetcher := NewFetcher(db, logger)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Create an active user
	loginID := "fetchuser@example.com"
	created, err := store.Create(ctx, models.User{
		FullName:   "Fetch User",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Fetch the user
	sessionUser := fetcher.FetchUser(ctx, created.ID.Hex())
	if sessionUser == nil {
		t.Fatal("FetchUser() returned nil for existing user")
	}

	if sessionUser.ID != created.ID.Hex() {
		t.Errorf("FetchUser() ID = %q, want %q", sessionUser.ID, created.ID.Hex())
	}
	if sessionUser.Name != "Fetch User" {
		t.Errorf("FetchUser() Name = %q, want %q", sessionUser.Name, "Fetch User")
	}
	if sessionUser.LoginID != loginID {
		t.Errorf("FetchUser() LoginID = %q, want %q", sessionUser.LoginID, loginID)
	}
	if sessionUser.Role != "admin" {
		t.Errorf("FetchUser() Role = %q, want %q", sessionUser.Role, "admin")
	}
}

func TestFetcher_FetchUser_InvalidID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	fetcher := NewFetcher(db, logger)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Invalid ObjectID format
	sessionUser := fetcher.FetchUser(ctx, "invalid-id")
	if sessionUser != nil {
		t.Error("FetchUser() invalid ID should return nil")
	}
}

func TestFetcher_FetchUser_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	fetcher := NewFetcher(db, logger)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Non-existent user
	sessionUser := fetcher.FetchUser(ctx, primitive.NewObjectID().Hex())
	if sessionUser != nil {
		t.Error("FetchUser() non-existent user should return nil")
	}
}

func TestFetcher_FetchUser_Disabled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	logger := zap.NewNop()
	fetcher := NewFetcher(db, logger)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Create user
	loginID := "disabled@example.com"
	created, _ := store.Create(ctx, models.User{
		FullName:   "Disabled User",
		LoginID:    &loginID,
		AuthMethod: "password",
		Role:       "admin",
	})

	// Disable the user directly in the database
	db.Collection("users").UpdateOne(ctx, bson.M{"_id": created.ID}, bson.M{
		"$set": bson.M{"status": "disabled"},
	})

	// Fetch should return nil for disabled user
	sessionUser := fetcher.FetchUser(ctx, created.ID.Hex())
	if sessionUser != nil {
		t.Error("FetchUser() disabled user should return nil")
	}
}

func TestFetcher_FetchUser_NoLoginID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	logger := zap.NewNop()
	fetcher := NewFetcher(db, logger)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Create user without LoginID (email-only record)
	email := "emailonly@example.com"
	created, err := store.Create(ctx, models.User{
		FullName:   "Email Only User",
		Email:      &email,
		AuthMethod: "trust",
		Role:       "admin",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Fetch should work and LoginID should be empty
	sessionUser := fetcher.FetchUser(ctx, created.ID.Hex())
	if sessionUser == nil {
		t.Fatal("FetchUser() returned nil for user without LoginID")
	}
	if sessionUser.LoginID != "" {
		t.Errorf("FetchUser() LoginID = %q, want empty", sessionUser.LoginID)
	}
}

func TestStore_CreateFromInput_CustomData(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.CreateFromInput(ctx, CreateInput{
		FullName:   "Seeded User",
		LoginID:    "seeded@example.com",
		AuthMethod: "password",
		Role:       "member",
		CustomData: bson.M{"phoneNumber": "+15555550177"},
	})
	if err != nil {
		t.Fatalf("CreateFromInput() error = %v", err)
	}

	found, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if phone, _ := found.CustomData["phoneNumber"].(string); phone != "+15555550177" {
		t.Errorf("CustomData phoneNumber = %v, want +15555550177", found.CustomData["phoneNumber"])
	}
}
