// Package mongodb provides support for accessing a mongo database.
// internal/store/runlog is the sole caller: reconciliation logs are a
// plain append-only collection, so only connection and collection
// bootstrap are needed here.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Connect attempts to connect to a mongo db instance.
func Connect(ctx context.Context, host string, userName string, password string) (*mongo.Client, error) {
	auth := options.Client().SetAuth(options.Credential{
		Username: userName,
		Password: password,
	})

	uri := options.Client().ApplyURI(host + "/?directConnection=true")

	client, err := mongo.Connect(ctx, auth, uri)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	return client, nil
}

// CreateCollection will create the specified collection in the specified
// database if it doesn't already exist.
func CreateCollection(ctx context.Context, db *mongo.Database, collectionName string) (*mongo.Collection, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{bson.E{Key: "name", Value: collectionName}})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	if len(names) == 0 {
		if err := db.CreateCollection(ctx, collectionName); err != nil {
			return nil, fmt.Errorf("create collections: %w", err)
		}
	}

	return db.Collection(collectionName), nil
}
