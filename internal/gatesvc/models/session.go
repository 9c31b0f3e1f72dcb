package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is one visit. It stays open while CheckOutTime is nil.
type Session struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	VisitorID      primitive.ObjectID  `bson:"visitor_id" json:"visitor_id"`
	PurposeOfVisit string              `bson:"purpose_of_visit" json:"purpose_of_visit"`
	EntryGate      string              `bson:"entry_gate" json:"entry_gate"`
	VehicleNumber  string              `bson:"vehicle_number" json:"vehicle_number"`
	CheckInTime    time.Time           `bson:"check_in_time" json:"check_in_time"`
	ExitGate       *string             `bson:"exit_gate" json:"exit_gate"`
	CheckOutTime   *time.Time          `bson:"check_out_time" json:"check_out_time"`
	GroupSize      int                 `bson:"group_size" json:"group_size"`
	TimeLimit      string              `bson:"time_limit" json:"time_limit"`
	GroupID        *primitive.ObjectID `bson:"group_id" json:"group_id"` // nil until the group is written
	Photos         string              `bson:"photos" json:"photos"`
}

func (s *Session) IsOpen() bool {
	return s.CheckOutTime == nil
}
