package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GroupClosure is the member tally a session closure is decided from.
type GroupClosure struct {
	GroupID      primitive.ObjectID `bson:"_id"`
	SessionID    primitive.ObjectID `bson:"session_id"`
	CheckedIn    int                `bson:"checked_in"`
	LastCheckOut *time.Time         `bson:"last_check_out"`
}

type GroupStore struct {
	col *mongo.Collection
}

func NewGroupStore(db *mongo.Database) *GroupStore {
	return &GroupStore{col: db.Collection(GroupsCollection)}
}

func (s *GroupStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}

	if _, err := s.col.InsertOne(ctx, group); err != nil {
		return fmt.Errorf("could not create group: %w", err)
	}
	return nil
}

func (s *GroupStore) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Group, error) {
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// FindOpenByCards returns the groups in which any of cardIDs is held by a
// member that has not checked out yet.
func (s *GroupStore) FindOpenByCards(ctx context.Context, cardIDs []string) ([]*models.Group, error) {
	return s.find(ctx, bson.M{"group_members": bson.M{"$elemMatch": bson.M{
		"card_id": bson.M{"$in": cardIDs},
		"status":  models.MemberCheckedIn,
	}}})
}

// ListOpen returns every group with at least one checked in member.
func (s *GroupStore) ListOpen(ctx context.Context) ([]*models.Group, error) {
	return s.find(ctx, bson.M{"group_members.status": models.MemberCheckedIn})
}

// CheckoutMembers marks the listed members of one group as checked out.
// Members already checked out are left as they are.
func (s *GroupStore) CheckoutMembers(ctx context.Context, groupID primitive.ObjectID, memberIDs []primitive.ObjectID, exitGate string, at time.Time) (int64, error) {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{
			"elem._id":    bson.M{"$in": memberIDs},
			"elem.status": models.MemberCheckedIn,
		}},
	})

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{"$set": bson.M{
			"group_members.$[elem].check_out_time": at,
			"group_members.$[elem].status":         models.MemberCheckedOut,
			"group_members.$[elem].exit_gate":      exitGate,
		}},
		opts,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to check out members of group %s: %w", groupID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return 0, fmt.Errorf("group %s: %w", groupID.Hex(), ErrNotFound)
	}
	return res.ModifiedCount, nil
}

// Closures tallies checked in members per group. A nil groupIDs covers the
// whole collection.
func (s *GroupStore) Closures(ctx context.Context, groupIDs []primitive.ObjectID) ([]GroupClosure, error) {
	pipeline := mongo.Pipeline{}
	if groupIDs != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"_id": bson.M{"$in": groupIDs}}}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: bson.M{
		"session_id": 1,
		"checked_in": bson.M{"$size": bson.M{"$filter": bson.M{
			"input": "$group_members",
			"as":    "m",
			"cond":  bson.M{"$eq": bson.A{"$$m.status", models.MemberCheckedIn}},
		}}},
		"last_check_out": bson.M{"$max": "$group_members.check_out_time"},
	}}})

	cursor, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to tally group members: %w", err)
	}

	var closures []GroupClosure
	if err := cursor.All(ctx, &closures); err != nil {
		return nil, fmt.Errorf("failed to decode group tallies: %w", err)
	}
	return closures, nil
}

func (s *GroupStore) DeleteGroup(ctx context.Context, groupID primitive.ObjectID) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": groupID}); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", groupID.Hex(), err)
	}
	return nil
}

func (s *GroupStore) find(ctx context.Context, filter bson.M) ([]*models.Group, error) {
	cursor, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find groups: %w", err)
	}

	var groups []*models.Group
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}
	return groups, nil
}
