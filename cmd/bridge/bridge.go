package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/config"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/bridgectx"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/exchange"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/hive"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lnd"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lnurl"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lock"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/mongostore"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/monitor"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/notify"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/oracle"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/pending"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/pipelines"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ratelimit"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/sanity"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/cache"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/queue"
)

// Bridge is the running process's composition root: every long-lived
// component Start wired together, plus the plumbing Stop needs to shut
// them down in reverse dependency order. This is spec §6.5's "core
// exposes an entry start(config) ... and stop()" — deliberately part of
// the core, not the out-of-scope thin CLI wrapper in main.go.
type Bridge struct {
	ctx      *bridgectx.Context
	hive     *hive.Client
	opsStore *ops.Store
	engine   *pipelines.Engine
	resend   *pending.Resender
	check    *sanity.Checker
	mon      *monitor.Monitor
	cfg      *config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start wires every subsystem spec §2's component table names into one
// running process and launches its long-running supervisors, following
// the teacher's cmd/api/main.go sequencing (logger, then cache, then
// storage, then the domain layer) generalized from a one-shot smoke
// test to a persistent service.
func Start(cfg *config.Config) (*Bridge, error) {
	if err := logger.Init(cfg.Environment); err != nil {
		return nil, fmt.Errorf("bridge: init logger: %w", err)
	}

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &cfg.Redis); err != nil {
		return nil, fmt.Errorf("bridge: copy redis config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return nil, fmt.Errorf("bridge: init redis: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	mongoStore, err := mongostore.Connect(startCtx, cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("bridge: connect mongo: %w", err)
	}

	var hiveCfg hive.Config
	if err := copier.Copy(&hiveCfg, &cfg.Hive); err != nil {
		return nil, fmt.Errorf("bridge: copy hive config: %w", err)
	}
	hiveClient, err := hive.NewClient(hiveCfg)
	if err != nil {
		return nil, fmt.Errorf("bridge: new hive client: %w", err)
	}

	var lndCfg lnd.Config
	if err := copier.Copy(&lndCfg, &cfg.LND); err != nil {
		return nil, fmt.Errorf("bridge: copy lnd config: %w", err)
	}
	lndClient, err := lnd.NewClient(lndCfg)
	if err != nil {
		return nil, fmt.Errorf("bridge: new lnd client: %w", err)
	}

	sources := make([]oracle.Source, 0, len(cfg.Oracle.Sources))
	for _, name := range cfg.Oracle.Sources {
		src, err := oracle.NewSource(name, "", nil)
		if err != nil {
			return nil, fmt.Errorf("bridge: oracle source %q: %w", name, err)
		}
		sources = append(sources, src)
	}
	hiveHBD := oracle.HiveInternalMarketFunc(func(context.Context) (float64, error) {
		return cfg.Oracle.HiveHBDRate, nil
	})
	quotes := oracle.NewCache(mongoStore.RatesTS, sources, hiveHBD)

	ledgerStore := ledger.NewStore(mongoStore.Ledger)
	opsStore := ops.NewStore(mongoStore.Ops)

	policy := pipelines.NewPolicy(cfg.Policy.DevModeEnabled, cfg.Policy.AllowedAccounts)

	windows := make([]ratelimit.Window, 0, len(cfg.RateLimit.Windows))
	for _, w := range cfg.RateLimit.Windows {
		windows = append(windows, ratelimit.Window{Hours: w.Hours, Sats: w.Sats})
	}
	rateLimit := ratelimit.NewEngine(ledgerStore, windows, nil)

	streamQueue := queue.NewStreamQueue(cache.Client)
	notifier := notify.NewDispatcher(streamQueue, cfg.Notify.Stream)
	if err := streamQueue.DeclareStream(startCtx, cfg.Notify.Stream, cfg.Notify.Group); err != nil {
		return nil, fmt.Errorf("bridge: declare notification stream: %w", err)
	}

	var exch exchange.Adapter
	if cfg.Exchange.Enabled {
		exch = exchange.NewBinanceAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet)
	}

	pipelinesCfg, err := buildPipelinesConfig(cfg.Pipelines)
	if err != nil {
		return nil, fmt.Errorf("bridge: build pipelines config: %w", err)
	}

	engine := pipelines.NewEngine(
		ledgerStore, opsStore, hiveClient, lndClient, lnurl.NewResolver(0),
		policy, rateLimit, notifier, quotes, exch,
		cfg.ServerAccount, pipelinesCfg,
	)

	resend := pending.NewResender(opsStore, hiveClient, cfg.ServerAccount, cfg.Pending.ResendInterval)
	check := sanity.NewChecker(ledgerStore, lndClient, cfg.ServerAccount, sanity.Config{
		ExternalLightningDeltaToleranceSats: cfg.Sanity.ExternalLightningDeltaToleranceSats,
	})
	mon := monitor.New(cfg.Monitor.RedisKeyPrefix)

	b := &Bridge{
		ctx: &bridgectx.Context{
			Mongo:  mongoStore,
			Redis:  cache.Client,
			Hive:   hiveClient,
			LND:    lndClient,
			Oracle: quotes,
			Config: cfg,
			Logger: logger.Log,
		},
		hive:     hiveClient,
		opsStore: opsStore,
		engine:   engine,
		resend:   resend,
		check:    check,
		mon:      mon,
		cfg:      cfg,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.run(runCtx, mongoStore, opsStore)

	logger.Info("bridge started", zap.String("server_account", cfg.ServerAccount))
	return b, nil
}

// run launches every long-running supervisor as its own goroutine,
// tracked by b.wg so Stop can wait for a clean exit.
func (b *Bridge) run(ctx context.Context, mongoStore *mongostore.Store, opsStore *ops.Store) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		opts := hive.StreamOptions{StartBlock: b.cfg.Hive.StartBlock}
		if err := b.hive.Stream(ctx, opts, b.handleHiveEvent(opsStore)); err != nil && ctx.Err() == nil {
			logger.Error("hive ingest stopped", zap.Error(err))
		}
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.ctx.LND.SubscribeInvoices(ctx, 0, 0, b.handleInvoice(opsStore)); err != nil && ctx.Err() == nil {
			logger.Error("lnd invoice subscription stopped", zap.Error(err))
		}
	}()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.ctx.LND.SubscribeHtlcEvents(ctx, b.handleHtlc()); err != nil && ctx.Err() == nil {
			logger.Error("lnd htlc subscription stopped", zap.Error(err))
		}
	}()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.ctx.LND.SubscribePayments(ctx, b.handlePayment(opsStore)); err != nil && ctx.Err() == nil {
			logger.Error("lnd payment subscription stopped", zap.Error(err))
		}
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.resend.Run(ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.check.Run(ctx, b.cfg.Sanity.CheckInterval)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		targets := dispatchTargets(mongoStore)
		if err := b.mon.Run(ctx, targets, b.dispatch); err != nil && ctx.Err() == nil {
			logger.Error("change-stream monitor stopped", zap.Error(err))
		}
	}()

	if b.cfg.Exchange.Enabled {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.runRebalanceLoop(ctx)
		}()
	}
}

// runRebalanceLoop drives pipeline M.7 on a fixed interval: unlike the
// event-triggered pipelines, rebalancing is a proactive balance-band
// check with no single triggering op (spec §4.M.7).
func (b *Bridge) runRebalanceLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Exchange.RebalanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if acted, err := b.engine.RebalanceTreasury(ctx); err != nil {
				logger.Warn("rebalance_treasury failed", zap.Error(err))
			} else if acted {
				logger.Info("rebalance_treasury placed an order")
			}
		}
	}
}

// Stop triggers graceful shutdown: cancels every supervisor's context,
// waits for them to return, then releases the bridge's own held locks
// and closes the underlying connections (spec §6.5's stop()).
func (b *Bridge) Stop() {
	b.cancel()
	b.wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := lock.ClearAll(stopCtx); err != nil {
		logger.Warn("bridge: clear locks on shutdown failed", zap.Error(err))
	}
	if err := b.ctx.LND.Close(); err != nil {
		logger.Warn("bridge: close lnd client failed", zap.Error(err))
	}
	if err := b.ctx.Mongo.Disconnect(stopCtx); err != nil {
		logger.Warn("bridge: disconnect mongo failed", zap.Error(err))
	}
	if err := cache.Close(); err != nil {
		logger.Warn("bridge: close redis failed", zap.Error(err))
	}
	logger.Info("bridge stopped")
	logger.Sync()
}

// buildPipelinesConfig parses config.toml's decimal-string money fields
// into pipelines.Config's money.Amount fields.
func buildPipelinesConfig(c config.PipelinesConfig) (pipelines.Config, error) {
	reservation, err := money.Of(money.HIVE, c.HiveReturnFeeReservationHive)
	if err != nil {
		return pipelines.Config{}, fmt.Errorf("hive_return_fee_reservation_hive: %w", err)
	}
	lower, err := money.Of(money.HIVE, c.ExchangeLowerBandHive)
	if err != nil {
		return pipelines.Config{}, fmt.Errorf("exchange_lower_band_hive: %w", err)
	}
	upper, err := money.Of(money.HIVE, c.ExchangeUpperBandHive)
	if err != nil {
		return pipelines.Config{}, fmt.Errorf("exchange_upper_band_hive: %w", err)
	}
	target, err := money.Of(money.HIVE, c.ExchangeRebalanceTargetHive)
	if err != nil {
		return pipelines.Config{}, fmt.Errorf("exchange_rebalance_target_hive: %w", err)
	}
	return pipelines.Config{
		MaxLNDFeePPM:                 c.MaxLNDFeePPM,
		HiveReturnFeeReservationHive: reservation,
		ServerFeePPM:                 c.ServerFeePPM,
		DustThresholdSats:            c.DustThresholdSats,
		TinyPaymentThresholdMsat:     c.TinyPaymentThresholdMsat,
		KeepsatsHoldSub:              c.KeepsatsHoldSub,
		FeeThresholdMsat:             c.FeeThresholdMsat,
		ExchangeLowerBandHive:        lower,
		ExchangeUpperBandHive:        upper,
		ExchangeRebalanceTargetHive:  target,
		LockLeaseTTL:                 c.LockLeaseTTL,
		LockBlockingTO:               c.LockBlockingTimeout,
	}, nil
}
