// internal/app/store/logins/loginstore.go
package loginstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Default custom-data field names. Deployments that share the users
// collection with other services can override these via configuration.
const (
	DefaultPhoneField = "phoneNumber"
	DefaultIPsField   = "loginIPs"
)

// ErrUserNotFound is returned when the referenced user record does not exist.
var ErrUserNotFound = errors.New("loginstore: user not found")

// Store reads and writes per-user login metadata (notification phone number
// and the history of IPs the user has logged in from). The data lives in the
// free-form custom_data document on the user record rather than in typed
// fields, so the field names are configurable.
type Store struct {
	c          *mongo.Collection
	phoneField string
	ipsField   string
	historyMax int // 0 means unbounded
}

// Option customizes a Store.
type Option func(*Store)

// WithPhoneField overrides the custom-data field holding the phone number.
func WithPhoneField(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.phoneField = name
		}
	}
}

// WithIPsField overrides the custom-data field holding the login IP history.
func WithIPsField(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.ipsField = name
		}
	}
}

// WithHistoryMax caps the IP history length. When the cap is reached the
// oldest entries are evicted on append. Zero or negative means unbounded.
func WithHistoryMax(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyMax = n
		}
	}
}

// New creates a Store over the users collection.
func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		c:          db.Collection("users"),
		phoneField: DefaultPhoneField,
		ipsField:   DefaultIPsField,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// phonePath and ipsPath are the dotted Mongo paths into custom_data.
func (s *Store) phonePath() string { return "custom_data." + s.phoneField }
func (s *Store) ipsPath() string   { return "custom_data." + s.ipsField }

// PhoneNumber returns the user's notification phone number, or "" if the
// user has none set (missing field, empty string, or non-string value).
func (s *Store) PhoneNumber(ctx context.Context, userID primitive.ObjectID) (string, error) {
	var doc struct {
		CustomData bson.M `bson:"custom_data"`
	}
	opts := options.FindOne().SetProjection(bson.M{s.phonePath(): 1})
	err := s.c.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	phone, _ := doc.CustomData[s.phoneField].(string)
	return phone, nil
}

// SetPhoneNumber stores the user's notification phone number, creating the
// custom-data field if it does not exist yet.
func (s *Store) SetPhoneNumber(ctx context.Context, userID primitive.ObjectID, phone string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{s.phonePath(): phone}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LoginIPs returns the user's login IP history, oldest first. A missing
// field yields an empty slice. Entries that are not strings (the field is
// free-form and other services may write to it) are skipped.
func (s *Store) LoginIPs(ctx context.Context, userID primitive.ObjectID) ([]string, error) {
	var doc struct {
		CustomData bson.M `bson:"custom_data"`
	}
	opts := options.FindOne().SetProjection(bson.M{s.ipsPath(): 1})
	err := s.c.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return narrowIPs(doc.CustomData[s.ipsField]), nil
}

// AppendLoginIP records ip in the user's login IP history. Appending an IP
// already present is a no-op, so the history holds each IP at most once and
// keeps first-seen order. When a history cap is configured the oldest
// entries are evicted.
func (s *Store) AppendLoginIP(ctx context.Context, userID primitive.ObjectID, ip string) error {
	// Filter on the IP being absent so a concurrent append of the same IP
	// matches zero documents instead of duplicating the entry.
	filter := bson.M{
		"_id":       userID,
		s.ipsPath(): bson.M{"$ne": ip},
	}
	push := bson.M{"$each": bson.A{ip}}
	if s.historyMax > 0 {
		push["$slice"] = -s.historyMax
	}
	res, err := s.c.UpdateOne(ctx, filter, bson.M{"$push": bson.M{s.ipsPath(): push}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either the IP is already recorded (fine) or the user is gone.
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": userID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}
	}
	return nil
}

// narrowIPs converts the raw custom-data value into []string, tolerating
// the primitive.A the Mongo driver decodes arrays into.
func narrowIPs(v any) []string {
	switch arr := v.(type) {
	case primitive.A:
		ips := make([]string, 0, len(arr))
		for _, e := range arr {
			if s, ok := e.(string); ok {
				ips = append(ips, s)
			}
		}
		return ips
	case []string:
		return arr
	default:
		return []string{}
	}
}
