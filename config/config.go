package config

import (
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/mongostore"
)

type Path string

func (p Path) Join(elem ...string) Path {
	parts := append([]string{string(p)}, elem...)
	return Path(filepath.Join(parts...))
}

func (p Path) ToString() string {
	return string(p)
}

func Load(path Path, cfg any) error {
	err := cleanenv.ReadConfig(path.ToString(), cfg)
	return err
}

// RedisConfig is config.toml's [redis] section, copied into
// pkg/cache.Config by the composition root via copier.Copy — the
// teacher's own ApiConfig.Redis / cache.Config split (config-file tags
// live on the locally-declared mirror, not on the ambient package's
// untagged Config).
type RedisConfig struct {
	Host     string `toml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `toml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `toml:"password" env:"REDIS_PASSWORD"`
	DB       int    `toml:"db" env:"REDIS_DB" env-default:"0"`
}

// HiveConfig is config.toml's [hive] section, copied into hive.Config by
// the composition root (cmd/bridge) the same way the teacher's main.go
// copier.Copy's Cfg.Redis into cache.Config — cleanenv tags live here
// rather than on internal/hive.Config, which has no config-file-loading
// concerns of its own.
type HiveConfig struct {
	Nodes          []string      `toml:"nodes" env:"HIVE_NODES" env-default:"https://api.hive.blog"`
	PostingKeyWIF  string        `toml:"posting_key_wif" env:"HIVE_POSTING_KEY_WIF"`
	ActiveKeyWIF   string        `toml:"active_key_wif" env:"HIVE_ACTIVE_KEY_WIF"`
	AccountName    string        `toml:"account_name" env:"HIVE_ACCOUNT_NAME"`
	RequestTimeout time.Duration `toml:"request_timeout" env:"HIVE_REQUEST_TIMEOUT" env-default:"10s"`
	StartBlock     int64         `toml:"start_block" env:"HIVE_START_BLOCK" env-default:"-20"`
}

// LNDConfig is config.toml's [lnd] section.
type LNDConfig struct {
	GRPCHost              string `toml:"grpc_host" env:"LND_GRPC_HOST" env-default:"localhost"`
	GRPCPort              string `toml:"grpc_port" env:"LND_GRPC_PORT" env-default:"10009"`
	TLSCertPath           string `toml:"tls_cert_path" env:"LND_TLS_CERT_PATH"`
	MacaroonPath          string `toml:"macaroon_path" env:"LND_MACAROON_PATH"`
	Network               string `toml:"network" env:"LND_NETWORK" env-default:"mainnet"`
	PaymentTimeoutSeconds int    `toml:"payment_timeout_seconds" env:"LND_PAYMENT_TIMEOUT_SECONDS" env-default:"60"`
	MaxPaymentFeeSats     int64  `toml:"max_payment_fee_sats" env:"LND_MAX_PAYMENT_FEE_SATS" env-default:"10000"`
	ReconnectMaxTries     int    `toml:"reconnect_max_tries" env:"LND_RECONNECT_MAX_TRIES" env-default:"20"`
}

// PipelinesConfig is config.toml's [pipelines] section — the operator
// knobs pipelines.Config bundles (spec §4.M's named thresholds).
type PipelinesConfig struct {
	MaxLNDFeePPM                 int64         `toml:"max_lnd_fee_ppm" env:"MAX_LND_FEE_PPM" env-default:"5000"`
	HiveReturnFeeReservationHive string        `toml:"hive_return_fee_reservation_hive" env:"HIVE_RETURN_FEE_RESERVATION_HIVE" env-default:"0.001"`
	ServerFeePPM                 int64         `toml:"server_fee_ppm" env:"SERVER_FEE_PPM" env-default:"1000"`
	DustThresholdSats            int64         `toml:"dust_threshold_sats" env:"DUST_THRESHOLD_SATS" env-default:"10"`
	TinyPaymentThresholdMsat     int64         `toml:"tiny_payment_threshold_msat" env:"TINY_PAYMENT_THRESHOLD_MSAT" env-default:"1000"`
	KeepsatsHoldSub              string        `toml:"keepsats_hold_sub" env:"KEEPSATS_HOLD_SUB" env-default:"escrow"`
	FeeThresholdMsat             int64         `toml:"fee_threshold_msat" env:"FEE_THRESHOLD_MSAT" env-default:"1000"`
	ExchangeLowerBandHive        string        `toml:"exchange_lower_band_hive" env:"EXCHANGE_LOWER_BAND_HIVE" env-default:"1000.000"`
	ExchangeUpperBandHive        string        `toml:"exchange_upper_band_hive" env:"EXCHANGE_UPPER_BAND_HIVE" env-default:"5000.000"`
	ExchangeRebalanceTargetHive  string        `toml:"exchange_rebalance_target_hive" env:"EXCHANGE_REBALANCE_TARGET_HIVE" env-default:"3000.000"`
	LockLeaseTTL                 time.Duration `toml:"lock_lease_ttl" env:"LOCK_LEASE_TTL" env-default:"30s"`
	LockBlockingTimeout          time.Duration `toml:"lock_blocking_timeout" env:"LOCK_BLOCKING_TIMEOUT" env-default:"30s"`
}

// RateLimitWindow is one entry of config.toml's [[rate_limit.windows]].
type RateLimitWindow struct {
	Hours time.Duration `toml:"hours"`
	Sats  int64         `toml:"sats"`
}

// RateLimitConfig is config.toml's [rate_limit] section (spec §4.L).
type RateLimitConfig struct {
	Windows []RateLimitWindow `toml:"windows"`
}

// NotifyConfig is config.toml's [notify] section (spec §4.N).
type NotifyConfig struct {
	Stream string `toml:"stream" env:"NOTIFY_STREAM" env-default:"v4vapp:notifications"`
	Group  string `toml:"group" env:"NOTIFY_GROUP" env-default:"v4vapp:notifiers"`
}

// PendingConfig is config.toml's [pending] section (spec §4.K).
type PendingConfig struct {
	ResendInterval time.Duration `toml:"resend_interval" env:"PENDING_RESEND_INTERVAL" env-default:"30s"`
}

// SanityConfig is config.toml's [sanity] section (spec §4.O).
type SanityConfig struct {
	CheckInterval                       time.Duration `toml:"check_interval" env:"SANITY_CHECK_INTERVAL" env-default:"5m"`
	ExternalLightningDeltaToleranceSats int64         `toml:"external_lightning_delta_tolerance_sats" env:"SANITY_EXTERNAL_LIGHTNING_DELTA_TOLERANCE_SATS" env-default:"100"`
}

// MonitorConfig is config.toml's [monitor] section (spec §4.I).
type MonitorConfig struct {
	RedisKeyPrefix string `toml:"redis_key_prefix" env:"MONITOR_REDIS_KEY_PREFIX" env-default:"monitor:resume"`
}

// PolicyConfig is config.toml's [policy] section (bad-actor/dev-mode
// allowlist, SPEC_FULL.md's supplemented "Bad-actor list" feature).
type PolicyConfig struct {
	DevModeEnabled  bool     `toml:"dev_mode_enabled" env:"DEV_MODE_ENABLED" env-default:"false"`
	AllowedAccounts []string `toml:"allowed_accounts"`
}

// ExchangeConfig is config.toml's [exchange] section (pipeline M.7).
// Enabled false leaves Engine.exch nil, disabling the rebalancer
// entirely (spec §4.M.7 tolerates no configured exchange).
type ExchangeConfig struct {
	Enabled           bool          `toml:"enabled" env:"EXCHANGE_ENABLED" env-default:"false"`
	Venue             string        `toml:"venue" env:"EXCHANGE_VENUE" env-default:"binance"`
	APIKey            string        `toml:"api_key" env:"EXCHANGE_API_KEY"`
	APISecret         string        `toml:"api_secret" env:"EXCHANGE_API_SECRET"`
	Testnet           bool          `toml:"testnet" env:"EXCHANGE_TESTNET" env-default:"false"`
	RebalanceInterval time.Duration `toml:"rebalance_interval" env:"EXCHANGE_REBALANCE_INTERVAL" env-default:"15m"`
}

// OracleConfig is config.toml's [oracle] section (component B).
type OracleConfig struct {
	Sources []string `toml:"sources" env-default:"coinbase,coingecko,bitstamp,binance"`
	// HiveHBDRate is the HIVE/HBD internal-market rate oracle.NewCache's
	// HiveInternalMarketFunc reports: HiveClient exposes no
	// get_current_median_history_price equivalent, so this is a
	// configured constant rather than a live query (see DESIGN.md).
	HiveHBDRate float64 `toml:"hive_hbd_rate" env:"ORACLE_HIVE_HBD_RATE" env-default:"1.0"`
}

// Config is the bridge's full configuration tree, loaded from
// config.toml (plus environment overrides) via Load — the teacher's own
// Path/cleanenv.ReadConfig mechanism, generalized from btc-giftcard's
// flat ApiConfig to the bridge's many subsystem sections.
type Config struct {
	Environment   string `toml:"environment" env:"ENVIRONMENT" env-default:"development"`
	ServerAccount string `toml:"server_account" env:"SERVER_ACCOUNT"`

	Mongo     mongostore.Config `toml:"mongo"`
	Redis     RedisConfig       `toml:"redis"`
	Hive      HiveConfig        `toml:"hive"`
	LND       LNDConfig         `toml:"lnd"`
	Pipelines PipelinesConfig   `toml:"pipelines"`
	RateLimit RateLimitConfig   `toml:"rate_limit"`
	Notify    NotifyConfig      `toml:"notify"`
	Pending   PendingConfig     `toml:"pending"`
	Sanity    SanityConfig      `toml:"sanity"`
	Monitor   MonitorConfig     `toml:"monitor"`
	Policy    PolicyConfig      `toml:"policy"`
	Exchange  ExchangeConfig    `toml:"exchange"`
	Oracle    OracleConfig      `toml:"oracle"`
}
