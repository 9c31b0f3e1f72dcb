package store

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Indexes lists the indexes each collection needs, keyed by collection name.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CardsCollection: {
			{Keys: bson.D{{Key: "card_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		VisitorsCollection: {
			{Keys: bson.D{{Key: "phone_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		SessionsCollection: {
			{Keys: bson.D{{Key: "visitor_id", Value: 1}, {Key: "check_out_time", Value: 1}}},
			{Keys: bson.D{{Key: "check_in_time", Value: -1}}},
		},
		GroupsCollection: {
			{Keys: bson.D{{Key: "session_id", Value: 1}}},
			{Keys: bson.D{{Key: "group_members.card_id", Value: 1}, {Key: "group_members.status", Value: 1}}},
		},
	}
}
