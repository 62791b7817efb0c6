//go:build integration

package sanity

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// setupTestCollection connects to the local test Mongo instance (brought
// up by docker-compose, same as internal/ledger's test_helper.go) and
// returns an empty ledger collection, cleaned up when t ends.
func setupTestCollection(t *testing.T) *mongo.Collection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
	if err != nil {
		t.Fatalf("connect to test mongo: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("ping test mongo: %v", err)
	}

	coll := client.Database("v4vapp_bridge_test").Collection("ledger_sanity")
	if err := coll.Drop(ctx); err != nil {
		t.Fatalf("drop ledger collection: %v", err)
	}

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coll.Drop(cleanupCtx)
		_ = client.Disconnect(cleanupCtx)
	})

	return coll
}
