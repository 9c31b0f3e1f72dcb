package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CardStatus string

const (
	CardAvailable CardStatus = "available"
	CardAssigned  CardStatus = "assigned"
)

// Card is one physical visitor badge.
type Card struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	CardID       string               `bson:"card_id" json:"card_id"`             // printed on the badge
	Status       CardStatus           `bson:"status" json:"status"`               // available | assigned
	AssignedTo   *primitive.ObjectID  `bson:"assigned_to" json:"assigned_to"`     // group member holding the card
	LastAssigned []primitive.ObjectID `bson:"last_assigned" json:"last_assigned"` // members that held it before
	UpdatedAt    time.Time            `bson:"updated_at" json:"updated_at"`
}

// CardSummary counts the pool per status.
type CardSummary struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Assigned  int64 `json:"assigned"`
}
