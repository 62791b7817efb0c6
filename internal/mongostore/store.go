// Package mongostore provides the shared Mongo client and collection
// handles used by every persistence-backed package (ledger, ops, oracle,
// pending, monitor). It mirrors the teacher's pkg/cache Init-then-package-
// global-client pattern, scoped to a single handle struct instead of a
// bare package global so it can be threaded through bridgectx.Context
// instead of living as ambient state.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// Collection names, centralized so every package agrees on them.
const (
	CollOps        = "ops"
	CollLedger     = "ledger"
	CollRatesTS    = "rates_ts"
	CollPending    = "pending"
	CollLNDBalance = "lnd_balances_ts"
)

// Config is the cleanenv-loaded connection configuration for Mongo.
type Config struct {
	URI            string        `toml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database       string        `toml:"database" env:"MONGO_DATABASE" env-default:"v4vapp_bridge"`
	ConnectTimeout time.Duration `toml:"connect_timeout" env:"MONGO_CONNECT_TIMEOUT" env-default:"10s"`
}

// Store wraps a *mongo.Database and pre-resolved collection handles.
type Store struct {
	Client *mongo.Client
	DB     *mongo.Database

	Ops        *mongo.Collection
	Ledger     *mongo.Collection
	RatesTS    *mongo.Collection
	Pending    *mongo.Collection
	LNDBalance *mongo.Collection
}

// Connect dials Mongo, pings it, and ensures the time-series collections
// exist with the timeField/metaField spec §3.7/§6.4 require. Indexes are
// created idempotently (CreateOne with a unique option is a no-op if an
// equivalent index already exists).
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		Client:     client,
		DB:         db,
		Ops:        db.Collection(CollOps),
		Ledger:     db.Collection(CollLedger),
		Pending:    db.Collection(CollPending),
		LNDBalance: db.Collection(CollLNDBalance),
	}

	if err := s.ensureTimeSeries(ctx, CollRatesTS, "timestamp", "pair"); err != nil {
		return nil, err
	}
	if err := s.ensureTimeSeries(ctx, CollLNDBalance, "timestamp", "node"); err != nil {
		return nil, err
	}
	s.RatesTS = db.Collection(CollRatesTS)
	s.LNDBalance = db.Collection(CollLNDBalance)

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	logger.Info("Connected to Mongo successfully", zap.String("database", cfg.Database))
	return s, nil
}

// ensureTimeSeries creates name as a time-series collection if it doesn't
// already exist. A CommandError with code 48 (NamespaceExists) is treated
// as success — Mongo doesn't support CREATE IF NOT EXISTS for this.
func (s *Store) ensureTimeSeries(ctx context.Context, name, timeField, metaField string) error {
	tsOpts := options.TimeSeries().SetTimeField(timeField).SetMetaField(metaField).SetGranularity("seconds")
	err := s.DB.CreateCollection(ctx, name, options.CreateCollection().SetTimeSeriesOptions(tsOpts))
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if ok := asCommandError(err, &cmdErr); ok && cmdErr.Code == 48 {
		return nil
	}
	return fmt.Errorf("mongostore: create time-series collection %s: %w", name, err)
}

func asCommandError(err error, target *mongo.CommandError) bool {
	ce, ok := err.(mongo.CommandError)
	if ok {
		*target = ce
	}
	return ok
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	groupIDUnique := mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.Ops.Indexes().CreateOne(ctx, groupIDUnique); err != nil {
		return fmt.Errorf("mongostore: ops group_id index: %w", err)
	}
	if _, err := s.Ledger.Indexes().CreateOne(ctx, groupIDUnique); err != nil {
		return fmt.Errorf("mongostore: ledger group_id index: %w", err)
	}
	ledgerSecondary := []mongo.IndexModel{
		{Keys: bson.D{{Key: "cust_id", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "ledger_type", Value: 1}}},
		{Keys: bson.D{{Key: "debit.name", Value: 1}, {Key: "debit.sub", Value: 1}}},
		{Keys: bson.D{{Key: "credit.name", Value: 1}, {Key: "credit.sub", Value: 1}}},
	}
	if _, err := s.Ledger.Indexes().CreateMany(ctx, ledgerSecondary); err != nil {
		return fmt.Errorf("mongostore: ledger secondary indexes: %w", err)
	}
	// Partial unique index: only applies where payload.unique_key is
	// set, so pending_transaction/pending_custom_json documents can't
	// be double-enqueued (spec §4.K) without constraining every other
	// op_type's documents, which don't carry this field.
	pendingUniqueKey := mongo.IndexModel{
		Keys: bson.D{{Key: "payload.unique_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(
			bson.D{{Key: "payload.unique_key", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: ""}}}},
		),
	}
	if _, err := s.Ops.Indexes().CreateOne(ctx, pendingUniqueKey); err != nil {
		return fmt.Errorf("mongostore: ops pending unique_key index: %w", err)
	}
	return nil
}

// Disconnect closes the underlying client.
func (s *Store) Disconnect(ctx context.Context) error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Disconnect(ctx)
}
