// Package lnd wraps LND's gRPC API behind LightningClient, the interface the
// rest of the bridge depends on for everything that touches the Lightning
// side: paying/decoding invoices, the invoice/HTLC/payment subscriptions
// ingest (component H) consumes, and the balance reads the treasury sanity
// check relies on.
package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// Config holds LND connection settings, populated from config.toml's [lnd]
// section.
type Config struct {
	GRPCHost              string // "localhost" or a container hostname
	GRPCPort              string // 10009
	TLSCertPath           string // path to LND's tls.cert
	MacaroonPath          string // path to admin.macaroon (or a custom-baked one)
	Network               string // "mainnet", "testnet", "regtest"
	PaymentTimeoutSeconds int    // max time for Lightning payment settlement
	MaxPaymentFeeSats     int64  // max routing fee in sats

	// ReconnectMaxTries bounds the check-connection retry loop before an
	// LNDConnectionError surfaces to the caller. Zero uses DefaultMaxReconnectTries.
	ReconnectMaxTries int
}

// LightningClient is the interface the rest of the bridge depends on, not on
// the concrete gRPC client — this keeps every consumer testable with a mock
// and leaves room for swapping Lightning implementations later.
type LightningClient interface {
	// ---- Lightning payments ----

	// PayInvoice pays a BOLT11 invoice and returns the terminal result.
	PayInvoice(ctx context.Context, bolt11 string, maxFeeSats int64) (*PaymentResult, error)

	// DecodeInvoice decodes a BOLT11 invoice without paying it.
	DecodeInvoice(ctx context.Context, bolt11 string) (*Invoice, error)

	// AddInvoice creates an inbound invoice for valueMsat with the given memo.
	AddInvoice(ctx context.Context, valueMsat int64, memo string) (*AddInvoiceResult, error)

	// ---- Long-running subscriptions (component H) ----

	// SubscribeInvoices streams invoice state transitions starting from the
	// given add/settle indices, resumed across restarts by the caller.
	SubscribeInvoices(ctx context.Context, addIndex, settleIndex uint64, handler InvoiceHandler) error

	// SubscribeHtlcEvents streams every HTLC event (receive, send, forward,
	// settle, link-fail, forward-fail, final) observed by the node.
	SubscribeHtlcEvents(ctx context.Context, handler HtlcHandler) error

	// SubscribePayments streams payment state transitions for every
	// outbound payment, including IN_FLIGHT updates.
	SubscribePayments(ctx context.Context, handler PaymentHandler) error

	// ---- Balance & treasury ----

	GetWalletBalance(ctx context.Context) (*WalletBalance, error)
	GetChannelBalance(ctx context.Context) (*ChannelBalance, error)
	GetInfo(ctx context.Context) (*NodeInfo, error)

	// CheckConnection pings WalletBalance with exponential backoff until it
	// succeeds or ReconnectMaxTries is exceeded, at which point it returns
	// an LNDConnectionError.
	CheckConnection(ctx context.Context) error

	Close() error
}

// PaymentResultStatus is the terminal (or in-flight) state of a payment
// attempt.
type PaymentResultStatus int

const (
	suceeded PaymentResultStatus = iota
	failed
	inflight
)

type PaymentResult struct {
	PaymentHash     string
	PaymentPreimage string
	FeeSats         int64
	Status          PaymentResultStatus
}

type Invoice struct {
	Destination string
	AmountSats  int64
	PaymentHash string
	Expiry      int64
	Description string
	IsExpired   bool
}

// AddInvoiceResult is returned by AddInvoice: the encoded pay-req plus the
// raw payment hash, used to derive the Invoice op's group_id.
type AddInvoiceResult struct {
	PaymentRequest string
	PaymentHashHex string
	AddIndex       uint64
}

type WalletBalance struct {
	ConfirmedSats   int64
	UnconfirmedSats int64
	TotalSats       int64
}

type ChannelBalance struct {
	LocalSats  int64
	RemoteSats int64
}

type NodeInfo struct {
	Alias         string
	PubKey        string
	SyncedToChain bool
	SyncedToGraph bool
	BlockHeight   uint32
	NumChannels   uint32
}

// macaroonCredential implements grpc.PerRPCCredentials, attaching the
// hex-encoded macaroon as gRPC metadata on every RPC call.
type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}

// Client is the concrete LightningClient implementation backed by LND's gRPC
// API.
type Client struct {
	conn         *grpc.ClientConn
	lnClient     lnrpc.LightningClient
	routerClient routerrpc.RouterClient
	Cfg          Config
}

func NewClient(cfg Config) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not load tls cert from %s: %w", cfg.TLSCertPath, err)
	}

	fileMacaroonData, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon file %s: %w", cfg.MacaroonPath, err)
	}
	macaroonCreds := macaroonCredential{macaroon: hex.EncodeToString(fileMacaroonData)}

	url := cfg.GRPCHost + ":" + cfg.GRPCPort
	conn, err := grpc.NewClient(url, grpc.WithTransportCredentials(creds), grpc.WithPerRPCCredentials(macaroonCreds))
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", url, err)
	}

	lnClient := lnrpc.NewLightningClient(conn)

	info, err := lnClient.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to LND (is it running? wallet unlocked?): %w", err)
	}

	logger.Info("LND connected",
		zap.String("alias", info.Alias),
		zap.String("pubkey", info.IdentityPubkey),
		zap.Uint32("height", info.BlockHeight),
		zap.Bool("synced_chain", info.SyncedToChain),
		zap.Bool("synced_graph", info.SyncedToGraph),
	)

	if !info.SyncedToChain {
		logger.Warn("LND is not synced to chain — payments may fail until sync completes")
	}

	return &Client{
		conn:         conn,
		lnClient:     lnClient,
		routerClient: routerrpc.NewRouterClient(conn),
		Cfg:          cfg,
	}, nil
}

// Close closes the underlying gRPC connection to LND.
func (c *Client) Close() error {
	return c.conn.Close()
}
