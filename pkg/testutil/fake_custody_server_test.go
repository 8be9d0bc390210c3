package testutil

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newFakeServerClient(t *testing.T, apiKey string) (*custody.Client, *MockCustodyClient, *StaticRequestSigner) {
	logger := zaptest.NewLogger(t)
	mock := NewMockCustodyClient(logger)
	server := NewFakeCustodyServer(t, mock, "api-key")

	cfg := custody.DefaultClientConfig()
	cfg.BaseUrl = server.URL
	cfg.ApiKey = apiKey
	cfg.RequestsPerSecond = 1000

	signer := NewStaticRequestSigner()
	client, err := custody.NewClient(cfg, signer, logger)
	require.NoError(t, err)
	return client, mock, signer
}

func Test_FakeCustodyServer_RoundTrip(t *testing.T) {
	client, mock, signer := newFakeServerClient(t, "api-key")
	mock.AddVaultAccount("4", "0x4444444444444444444444444444444444444444")
	ctx := context.Background()

	accounts, err := client.ListVaultAccounts(ctx, "ETH", 20)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "4", accounts[0].Id)

	addresses, err := client.GetVaultAccountAddresses(ctx, "4", "ETH")
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", addresses[0].Address)

	created, err := client.CreateTransaction(ctx, &custody.TransactionRequest{
		Operation: custody.Operation_Transfer,
		AssetId:   "ETH",
		Source:    custody.TransferPeerPath{Type: custody.PeerType_VaultAccount, Id: "4"},
		Amount:    "0",
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", created.Id)

	tx, err := client.GetTransaction(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, custody.Status_Completed, tx.Status)
	assert.Equal(t, TxHashFor("tx-1"), tx.TxHash)

	assert.Equal(t, 1, mock.CreateCalls())
	assert.Len(t, signer.Claims(), 4)
}

func Test_FakeCustodyServer_RejectsWrongApiKey(t *testing.T) {
	client, _, _ := newFakeServerClient(t, "wrong-key")

	_, err := client.ListVaultAccounts(context.Background(), "ETH", 20)
	require.Error(t, err)

	var apiErr *custody.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func Test_FakeCustodyServer_UnknownVault(t *testing.T) {
	client, _, _ := newFakeServerClient(t, "api-key")

	_, err := client.GetVaultAccountAddresses(context.Background(), "99", "ETH")
	var apiErr *custody.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.IsTransient())
}
