package config

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDatabase returns the database named by MONGO_DB.
func MongoDatabase() *mongo.Database {
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "moderator"
	}
	return MongoClient.Database(dbName)
}

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}
	db := MongoDatabase()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		"meetings": {
			{
				Keys:    bson.D{{Key: "meeting_id", Value: 1}},
				Options: options.Index().SetName("uniq_meeting_id").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "host_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("by_host_created"),
			},
		},
		// one entry per sequence number; replays upsert into the same document
		"transcripts": {
			{
				Keys:    bson.D{{Key: "meeting_id", Value: 1}, {Key: "sequence", Value: 1}},
				Options: options.Index().SetName("uniq_meeting_sequence").SetUnique(true),
			},
		},
		"principles": {
			{
				Keys:    bson.D{{Key: "principle_id", Value: 1}},
				Options: options.Index().SetName("uniq_principle_id").SetUnique(true),
			},
		},
		"interventions": {
			{
				Keys:    bson.D{{Key: "id", Value: 1}},
				Options: options.Index().SetName("uniq_intervention_id").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "meeting_id", Value: 1}, {Key: "sequence", Value: 1}},
				Options: options.Index().SetName("by_meeting_sequence"),
			},
		},
	}
	for col, idx := range indexes {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}
