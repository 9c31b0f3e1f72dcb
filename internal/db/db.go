package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultDBName = "gatepass"

// ConnectToDB connects to mongoURI and returns the client and the database
// named by the URI path.
func ConnectToDB(ctx context.Context, mongoURI string) (*mongo.Client, *mongo.Database, error) {
	uri, err := url.Parse(mongoURI)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing MongoDB URI: %w", err)
	}

	dbName := strings.TrimPrefix(uri.Path, "/")
	if dbName == "" {
		dbName = defaultDBName
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	return client, client.Database(dbName), nil
}

// CreateIndexes creates the given indexes per collection. Existing indexes
// with the same keys and options are left as they are.
func CreateIndexes(ctx context.Context, db *mongo.Database, indexes map[string][]mongo.IndexModel) error {
	for collection, models := range indexes {
		if len(models) == 0 {
			continue
		}
		names, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
		log.Infof("indexes ready on %s: %v", collection, names)
	}
	return nil
}
