package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type VisitorStore struct {
	col *mongo.Collection
}

func NewVisitorStore(db *mongo.Database) *VisitorStore {
	return &VisitorStore{col: db.Collection(VisitorsCollection)}
}

func (s *VisitorStore) GetByPhone(ctx context.Context, phone string) (*models.Visitor, error) {
	v := &models.Visitor{}
	err := s.col.FindOne(ctx, bson.M{"phone_number": phone}).Decode(v)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("visitor %s: %w", phone, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get visitor by phone: %w", err)
	}
	return v, nil
}

func (s *VisitorStore) CreateVisitor(ctx context.Context, v *models.Visitor) error {
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	if _, err := s.col.InsertOne(ctx, v); err != nil {
		return fmt.Errorf("could not create visitor: %w", err)
	}
	return nil
}

// EnsureVisitor returns the visitor registered under phone, creating it
// with name when there is none. created reports whether this call inserted
// it. phone_number carries a unique index, so racing callers end up with
// the same document.
func (s *VisitorStore) EnsureVisitor(ctx context.Context, phone, name string) (*models.Visitor, bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"phone_number": phone},
		bson.M{"$setOnInsert": bson.M{
			"_id":          primitive.NewObjectID(),
			"name":         name,
			"phone_number": phone,
			"created_at":   time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("could not ensure visitor: %w", err)
	}

	v, err := s.GetByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	return v, res != nil && res.UpsertedCount > 0, nil
}

func (s *VisitorStore) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Visitor, error) {
	cursor, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to get visitors: %w", err)
	}

	var visitors []*models.Visitor
	if err := cursor.All(ctx, &visitors); err != nil {
		return nil, fmt.Errorf("failed to decode visitors: %w", err)
	}
	return visitors, nil
}
