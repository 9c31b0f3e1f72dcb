package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Visitor is the identity behind one or more sessions, keyed by phone number.
type Visitor struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	PhoneNumber string             `bson:"phone_number" json:"phone_number"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
