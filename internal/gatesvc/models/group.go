package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MemberStatus string

const (
	MemberCheckedIn  MemberStatus = "checked_in"
	MemberCheckedOut MemberStatus = "checked_out"
)

// Member is one badge holder of a visit. Its ID is what a card's
// assigned_to points at.
type Member struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	CardID       string             `bson:"card_id" json:"card_id"`
	CheckInTime  time.Time          `bson:"check_in_time" json:"check_in_time"`
	CheckOutTime *time.Time         `bson:"check_out_time" json:"check_out_time"`
	Status       MemberStatus       `bson:"status" json:"status"`
	ExitGate     *string            `bson:"exit_gate" json:"exit_gate"`
}

// Group owns the members of a single session.
type Group struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID    primitive.ObjectID `bson:"session_id" json:"session_id"`
	GroupMembers []Member           `bson:"group_members" json:"group_members"`
}

// CheckedIn returns the members still holding their card.
func (g *Group) CheckedIn() []Member {
	var open []Member
	for _, m := range g.GroupMembers {
		if m.Status == MemberCheckedIn {
			open = append(open, m)
		}
	}
	return open
}

// OpenMember returns the checked in member holding cardID, if any.
func (g *Group) OpenMember(cardID string) (Member, bool) {
	for _, m := range g.GroupMembers {
		if m.CardID == cardID && m.Status == MemberCheckedIn {
			return m, true
		}
	}
	return Member{}, false
}

// LatestCheckOut returns the last member check out time when every member
// has checked out, nil otherwise.
func (g *Group) LatestCheckOut() *time.Time {
	if len(g.GroupMembers) == 0 {
		return nil
	}
	var latest time.Time
	for _, m := range g.GroupMembers {
		if m.CheckOutTime == nil {
			return nil
		}
		if m.CheckOutTime.After(latest) {
			latest = *m.CheckOutTime
		}
	}
	return &latest
}
