package lnd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// ============================================================================
// Mock — stubs the lnrpc.LightningClient methods used by onchain.go
// ============================================================================

type mockOnchainLNClient struct {
	lnrpc.LightningClient // embed for interface compliance

	walletBalanceFn func(ctx context.Context, in *lnrpc.WalletBalanceRequest, opts ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error)
}

func (m *mockOnchainLNClient) WalletBalance(ctx context.Context, in *lnrpc.WalletBalanceRequest, opts ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
	return m.walletBalanceFn(ctx, in, opts...)
}

func newOnchainTestClient(mock *mockOnchainLNClient) *Client {
	return &Client{
		lnClient: mock,
		Cfg:      Config{},
	}
}

// ============================================================================
// GetWalletBalance tests
// ============================================================================

func TestGetWalletBalance_Success(t *testing.T) {
	mock := &mockOnchainLNClient{
		walletBalanceFn: func(_ context.Context, _ *lnrpc.WalletBalanceRequest, _ ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
			return &lnrpc.WalletBalanceResponse{
				ConfirmedBalance:   500000,
				UnconfirmedBalance: 10000,
				TotalBalance:       510000,
			}, nil
		},
	}

	client := newOnchainTestClient(mock)
	bal, err := client.GetWalletBalance(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(500000), bal.ConfirmedSats)
	assert.Equal(t, int64(10000), bal.UnconfirmedSats)
	assert.Equal(t, int64(510000), bal.TotalSats)
}

func TestGetWalletBalance_ZeroBalance(t *testing.T) {
	mock := &mockOnchainLNClient{
		walletBalanceFn: func(_ context.Context, _ *lnrpc.WalletBalanceRequest, _ ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
			return &lnrpc.WalletBalanceResponse{
				ConfirmedBalance:   0,
				UnconfirmedBalance: 0,
				TotalBalance:       0,
			}, nil
		},
	}

	client := newOnchainTestClient(mock)
	bal, err := client.GetWalletBalance(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.ConfirmedSats)
	assert.Equal(t, int64(0), bal.UnconfirmedSats)
	assert.Equal(t, int64(0), bal.TotalSats)
}

func TestGetWalletBalance_LNDError(t *testing.T) {
	mock := &mockOnchainLNClient{
		walletBalanceFn: func(_ context.Context, _ *lnrpc.WalletBalanceRequest, _ ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
			return nil, errors.New("connection refused")
		},
	}

	client := newOnchainTestClient(mock)
	bal, err := client.GetWalletBalance(context.Background())

	assert.Nil(t, bal)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get wallet balance")
	assert.Contains(t, err.Error(), "connection refused")
}

// ============================================================================
// CheckConnection tests
// ============================================================================

func TestCheckConnection_SucceedsImmediately(t *testing.T) {
	var calls int
	mock := &mockOnchainLNClient{
		walletBalanceFn: func(_ context.Context, _ *lnrpc.WalletBalanceRequest, _ ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
			calls++
			return &lnrpc.WalletBalanceResponse{}, nil
		},
	}

	client := newOnchainTestClient(mock)
	require.NoError(t, client.CheckConnection(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestCheckConnection_RecoversAfterFailures(t *testing.T) {
	var calls int
	mock := &mockOnchainLNClient{
		walletBalanceFn: func(_ context.Context, _ *lnrpc.WalletBalanceRequest, _ ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("unavailable")
			}
			return &lnrpc.WalletBalanceResponse{}, nil
		},
	}

	client := newOnchainTestClient(mock)
	client.Cfg.ReconnectMaxTries = 5

	start := time.Now()
	require.NoError(t, client.CheckConnection(context.Background()))
	assert.Equal(t, 3, calls)
	// base backoff 2s doubling: two waits of 2s+4s would dominate, so this
	// assertion only checks it didn't return instantly.
	assert.True(t, time.Since(start) > 0)
}

func TestCheckConnection_ExhaustsRetries(t *testing.T) {
	mock := &mockOnchainLNClient{
		walletBalanceFn: func(_ context.Context, _ *lnrpc.WalletBalanceRequest, _ ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
			return nil, errors.New("persistent failure")
		},
	}

	client := newOnchainTestClient(mock)
	client.Cfg.ReconnectMaxTries = 2

	err := client.CheckConnection(context.Background())
	require.Error(t, err)

	var connErr *LNDConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 2, connErr.Tries)
}

func TestCheckConnection_ContextCancelled(t *testing.T) {
	mock := &mockOnchainLNClient{
		walletBalanceFn: func(_ context.Context, _ *lnrpc.WalletBalanceRequest, _ ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
			return nil, errors.New("unavailable")
		},
	}

	client := newOnchainTestClient(mock)
	client.Cfg.ReconnectMaxTries = 50

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.CheckConnection(ctx)
	require.Error(t, err)
}
