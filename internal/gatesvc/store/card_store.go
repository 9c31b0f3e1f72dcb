package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type CardStore struct {
	col *mongo.Collection
}

func NewCardStore(db *mongo.Database) *CardStore {
	return &CardStore{col: db.Collection(CardsCollection)}
}

// SearchIDs returns the distinct card ids in the given status whose id
// matches pattern case-insensitively. An empty pattern matches everything.
func (s *CardStore) SearchIDs(ctx context.Context, pattern string, status models.CardStatus) ([]string, error) {
	filter := bson.M{"status": status}
	if pattern != "" {
		filter["card_id"] = primitive.Regex{Pattern: pattern, Options: "i"}
	}

	values, err := s.col.Distinct(ctx, "card_id", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s cards: %w", status, err)
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *CardStore) GetByCardIDs(ctx context.Context, cardIDs []string) ([]*models.Card, error) {
	cursor, err := s.col.Find(ctx, bson.M{"card_id": bson.M{"$in": cardIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to get cards: %w", err)
	}

	var cards []*models.Card
	if err := cursor.All(ctx, &cards); err != nil {
		return nil, fmt.Errorf("failed to decode cards: %w", err)
	}
	return cards, nil
}

func (s *CardStore) ListByStatus(ctx context.Context, status models.CardStatus) ([]*models.Card, error) {
	cursor, err := s.col.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s cards: %w", status, err)
	}

	var cards []*models.Card
	if err := cursor.All(ctx, &cards); err != nil {
		return nil, fmt.Errorf("failed to decode cards: %w", err)
	}
	return cards, nil
}

// Reserve assigns the card to memberID only if it is still available. The
// status guard lives in the filter so two racing reservations cannot both
// match the same document.
func (s *CardStore) Reserve(ctx context.Context, cardID string, memberID primitive.ObjectID) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"card_id": cardID, "status": models.CardAvailable},
		bson.M{"$set": bson.M{
			"status":      models.CardAssigned,
			"assigned_to": memberID,
			"updated_at":  time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to reserve card %s: %w", cardID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("card %s: %w", cardID, ErrCardUnavailable)
	}
	return nil
}

// Release frees a card held by memberID and records the member in its history.
func (s *CardStore) Release(ctx context.Context, cardID string, memberID primitive.ObjectID) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"card_id": cardID, "status": models.CardAssigned, "assigned_to": memberID},
		bson.M{
			"$set": bson.M{
				"status":      models.CardAvailable,
				"assigned_to": nil,
				"updated_at":  time.Now(),
			},
			"$push": bson.M{"last_assigned": memberID},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to release card %s: %w", cardID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("card %s held by %s: %w", cardID, memberID.Hex(), ErrNotFound)
	}
	return nil
}

// Unreserve undoes a reservation that never turned into a visit, so the
// member is not added to the card history.
func (s *CardStore) Unreserve(ctx context.Context, cardID string, memberID primitive.ObjectID) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"card_id": cardID, "status": models.CardAssigned, "assigned_to": memberID},
		bson.M{"$set": bson.M{
			"status":      models.CardAvailable,
			"assigned_to": nil,
			"updated_at":  time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to unreserve card %s: %w", cardID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("card %s held by %s: %w", cardID, memberID.Hex(), ErrNotFound)
	}
	return nil
}

// ReplacePool drops every card and inserts a fresh available card per id.
func (s *CardStore) ReplacePool(ctx context.Context, cardIDs []string) error {
	if _, err := s.col.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear card pool: %w", err)
	}
	if len(cardIDs) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(cardIDs))
	for _, id := range cardIDs {
		docs = append(docs, models.Card{
			ID:           primitive.NewObjectID(),
			CardID:       id,
			Status:       models.CardAvailable,
			LastAssigned: []primitive.ObjectID{},
			UpdatedAt:    now,
		})
	}

	if _, err := s.col.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert card pool: %w", err)
	}
	return nil
}

func (s *CardStore) Summary(ctx context.Context) (*models.CardSummary, error) {
	cursor, err := s.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to summarize cards: %w", err)
	}

	var rows []struct {
		Status models.CardStatus `bson:"_id"`
		Count  int64             `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode card summary: %w", err)
	}

	summary := &models.CardSummary{}
	for _, r := range rows {
		summary.Total += r.Count
		switch r.Status {
		case models.CardAvailable:
			summary.Available = r.Count
		case models.CardAssigned:
			summary.Assigned = r.Count
		}
	}
	return summary, nil
}
