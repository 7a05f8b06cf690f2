package data

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrExchangeNotFound   = errors.New("exchange not found")
	ErrExchangeNotPending = errors.New("exchange is no longer pending")
	// ErrForbidden means the document exists but the caller may not change it.
	ErrForbidden = errors.New("not allowed")
	// ErrInvalidID is returned for ids that are not hex ObjectIDs.
	ErrInvalidID = errors.New("invalid id")
)

// ParseID converts a hex id from a URL or payload into an ObjectID.
func ParseID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.ObjectID{}, ErrInvalidID
	}
	return id, nil
}

// User maps to the users collection: credentials plus the marketplace profile.
type User struct {
	ID            bson.ObjectID `bson:"_id,omitempty"`
	Name          string        `bson:"name"`
	Email         string        `bson:"email"`
	Password      string        `bson:"password"`
	Bio           string        `bson:"bio,omitempty"`
	Location      string        `bson:"location,omitempty"`
	City          string        `bson:"city,omitempty"`
	Country       string        `bson:"country,omitempty"`
	Phone         string        `bson:"phone,omitempty"`
	Age           int           `bson:"age,omitempty"`
	Availability  string        `bson:"availability,omitempty"`
	SkillsOffered []string      `bson:"skills_offered"`
	SkillsWanted  []string      `bson:"skills_wanted"`
	ProfilePic    string        `bson:"profile_pic,omitempty"`
	CreatedAt     time.Time     `bson:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at"`
}

// ProfileChanges lists the profile fields to overwrite. Nil means unchanged.
type ProfileChanges struct {
	Name          *string
	Bio           *string
	Location      *string
	City          *string
	Country       *string
	Phone         *string
	Age           *int
	Availability  *string
	SkillsOffered []string
	SkillsWanted  []string
	ProfilePic    *string
}

// Message maps to the messages collection.
type Message struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Sender    bson.ObjectID `bson:"sender"`
	Receiver  bson.ObjectID `bson:"receiver"`
	Text      string        `bson:"text"`
	ClientID  string        `bson:"client_id,omitempty"` // sender's correlation id, echoed back
	Read      bool          `bson:"read"`
	CreatedAt time.Time     `bson:"created_at"`
}

// Notification maps to the notifications collection.
type Notification struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Sender    bson.ObjectID `bson:"sender,omitempty"`
	Receiver  bson.ObjectID `bson:"receiver"`
	Type      string        `bson:"type"`
	Message   string        `bson:"message"`
	CreatedAt time.Time     `bson:"created_at"`
}

// Exchange statuses.
const (
	ExchangePending  = "Pending"
	ExchangeAccepted = "Accepted"
	ExchangeDeclined = "Declined"
)

// Exchange maps to the exchanges collection.
type Exchange struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Requester bson.ObjectID `bson:"requester"`
	Provider  bson.ObjectID `bson:"provider"`
	Skill     string        `bson:"skill"`
	Status    string        `bson:"status"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}
