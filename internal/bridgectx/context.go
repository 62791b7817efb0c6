// Package bridgectx holds the bridge's one runtime-context object: the
// set of live connections and handles every pipeline, supervisor, and
// background task needs, threaded through explicitly instead of reached
// for as a package-level singleton (SPEC_FULL.md's Runtime context
// design note). Only cmd/bridge, the composition root, constructs one —
// everywhere else takes *Context as a constructor argument, the same
// dependencies-as-fields shape internal/pipelines.Engine already uses.
package bridgectx

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/config"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/hive"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lnd"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/mongostore"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/oracle"
)

// Context bundles every external connection the bridge depends on.
// Fields are interfaces where a consumer already depends on one
// (Hive/LND), so the same Context works against test doubles in
// integration tests as it does against the real clients cmd/bridge
// constructs.
type Context struct {
	Mongo  *mongostore.Store
	Redis  *redis.Client
	Hive   hive.HiveClient
	LND    lnd.LightningClient
	Oracle *oracle.Cache
	Config *config.Config
	Logger *zap.Logger
}
