package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionView is the listing projection joining visitor, session and group.
type SessionView struct {
	ID             primitive.ObjectID `json:"_id"`
	Name           string             `json:"name"`
	PhoneNumber    string             `json:"phone_number"`
	PurposeOfVisit string             `json:"purpose_of_visit"`
	EntryGate      string             `json:"entry_gate"`
	CheckInTime    time.Time          `json:"check_in_time"`
	ExitGate       *string            `json:"exit_gate"`
	CheckOutTime   *time.Time         `json:"check_out_time"`
	GroupSize      int                `json:"group_size"`
	TimeLimit      string             `json:"time_limit"`
	VehicleNumber  string             `json:"vehicle_number"`
	Photos         string             `json:"photos"`
	VisitorCards   []Member           `json:"visitor_cards"`
}

type MemberBrief struct {
	CardID string       `json:"card_id"`
	Status MemberStatus `json:"status"`
}

// VisitorDetails describes the visit behind a card that is still out.
type VisitorDetails struct {
	SessionID      primitive.ObjectID `json:"session_id"`
	Name           string             `json:"name"`
	PhoneNumber    string             `json:"phone_number"`
	PurposeOfVisit string             `json:"purpose_of_visit"`
	EntryGate      string             `json:"entry_gate"`
	CheckInTime    time.Time          `json:"check_in_time"`
	VehicleNumber  string             `json:"vehicle_number"`
	GroupSize      int                `json:"group_size"`
	Photos         string             `json:"photos"`
	MemberDetails  []MemberBrief      `json:"member_details"`
}
