package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SessionStore struct {
	col *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{col: db.Collection(SessionsCollection)}
}

func (s *SessionStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}

	if _, err := s.col.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("could not create session: %w", err)
	}
	return nil
}

func (s *SessionStore) SetGroupID(ctx context.Context, sessionID, groupID primitive.ObjectID) error {
	res, err := s.col.UpdateByID(ctx, sessionID, bson.M{"$set": bson.M{"group_id": groupID}})
	if err != nil {
		return fmt.Errorf("failed to set group of session %s: %w", sessionID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("session %s: %w", sessionID.Hex(), ErrNotFound)
	}
	return nil
}

// SetCheckout writes the closure fields. Passing nils reopens the session.
func (s *SessionStore) SetCheckout(ctx context.Context, sessionID primitive.ObjectID, exitGate *string, at *time.Time) error {
	res, err := s.col.UpdateByID(ctx, sessionID, bson.M{"$set": bson.M{
		"exit_gate":      exitGate,
		"check_out_time": at,
	}})
	if err != nil {
		return fmt.Errorf("failed to update checkout of session %s: %w", sessionID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("session %s: %w", sessionID.Hex(), ErrNotFound)
	}
	return nil
}

// FindOpenByVisitor returns the visitor's session that has no check out time.
func (s *SessionStore) FindOpenByVisitor(ctx context.Context, visitorID primitive.ObjectID) (*models.Session, error) {
	session := &models.Session{}
	err := s.col.FindOne(ctx, bson.M{"visitor_id": visitorID, "check_out_time": nil}).Decode(session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("open session of %s: %w", visitorID.Hex(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find open session: %w", err)
	}
	return session, nil
}

// CountOpenByVisitor counts the visitor's sessions that have no check out
// time.
func (s *SessionStore) CountOpenByVisitor(ctx context.Context, visitorID primitive.ObjectID) (int64, error) {
	n, err := s.col.CountDocuments(ctx, bson.M{"visitor_id": visitorID, "check_out_time": nil})
	if err != nil {
		return 0, fmt.Errorf("failed to count open sessions: %w", err)
	}
	return n, nil
}

func (s *SessionStore) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Session, error) {
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// List returns sessions checked in within [from, to], newest first. Nil
// bounds are open.
func (s *SessionStore) List(ctx context.Context, from, to *time.Time) ([]*models.Session, error) {
	window := bson.M{}
	if from != nil {
		window["$gte"] = *from
	}
	if to != nil {
		window["$lte"] = *to
	}

	filter := bson.M{}
	if len(window) > 0 {
		filter["check_in_time"] = window
	}
	return s.find(ctx, filter)
}

func (s *SessionStore) DistinctPurposes(ctx context.Context, pattern string) ([]string, error) {
	filter := bson.M{}
	if pattern != "" {
		filter["purpose_of_visit"] = primitive.Regex{Pattern: pattern, Options: "i"}
	}

	values, err := s.col.Distinct(ctx, "purpose_of_visit", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search purposes: %w", err)
	}

	purposes := make([]string, 0, len(values))
	for _, v := range values {
		if p, ok := v.(string); ok && p != "" {
			purposes = append(purposes, p)
		}
	}
	sort.Strings(purposes)
	return purposes, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, sessionID primitive.ObjectID) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID.Hex(), err)
	}
	return nil
}

func (s *SessionStore) find(ctx context.Context, filter bson.M) ([]*models.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "check_in_time", Value: -1}})
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}

	var sessions []*models.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}
