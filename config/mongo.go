package config

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var MongoClient *mongo.Client

// InitMongo connects to MONGO_URI and pings the primary. Transcript and intervention
// writes are small and frequent, so the pool keeps a warm connection.
func InitMongo() error {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		return errors.New("MONGO_URI environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, mongoOptions(uri))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}

	MongoClient = client
	return nil
}

func mongoOptions(uri string) *options.ClientOptions {
	opts := options.Client().ApplyURI(uri).
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetAppName("meeting-moderator").
		SetMaxPoolSize(20).
		SetMinPoolSize(1).
		SetRetryWrites(true)

	// Atlas clusters behind some proxies only negotiate TLS 1.2.
	if os.Getenv("MONGO_FORCE_TLS_CONFIG") == "true" || os.Getenv("GO_ENV") == "development" {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: os.Getenv("MONGO_INSECURE_TLS") == "true",
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS12,
		})
	}
	return opts
}

// Close releases every backend opened by the Init functions.
func Close(ctx context.Context) error {
	var errs []error
	if MongoClient != nil {
		errs = append(errs, MongoClient.Disconnect(ctx))
	}
	if RedisClient != nil {
		errs = append(errs, RedisClient.Close())
	}
	if PostgresDB != nil {
		if db, err := PostgresDB.DB(); err == nil {
			errs = append(errs, db.Close())
		}
	}
	return errors.Join(errs...)
}
