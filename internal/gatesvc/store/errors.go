package store

import "errors"

// Sentinel errors returned (optionally wrapped) by every store implementation.
var (
	ErrNotFound        = errors.New("not found")
	ErrCardUnavailable = errors.New("card unavailable")
)

// Collection names shared by the mongo stores and the index bootstrap.
const (
	VisitorsCollection = "visitors"
	SessionsCollection = "visitor_sessions"
	GroupsCollection   = "visitor_groups"
	CardsCollection    = "visitor_cards"
)
