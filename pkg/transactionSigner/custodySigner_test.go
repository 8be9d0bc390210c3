package transactionSigner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/config"
	"github.com/Layr-Labs/custody-web3-provider/pkg/directory"
	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/testutil"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	fromAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	toAddr   = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

func testSignerConfig() *SignerConfig {
	return &SignerConfig{
		AssetId:                 "ETH_TEST5",
		FallbackFeeLevel:        types.FeeLevel_Medium,
		Note:                    config.DefaultNote,
		OneTimeAddressesEnabled: true,
	}
}

func newTestSigner(t *testing.T, cfg *SignerConfig, mock *testutil.MockCustodyClient) *CustodyTransactionSigner {
	var dir directory.IDirectory
	if !cfg.OneTimeAddressesEnabled {
		d, err := directory.NewDirectory(&directory.Config{AssetId: cfg.AssetId}, mock, zaptest.NewLogger(t))
		require.NoError(t, err)
		dir = d
	}
	signer, err := NewTransactionSigner(cfg, mock, dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	return signer.(*CustodyTransactionSigner)
}

func transferRequest() *types.SigningRequest {
	to := toAddr
	return &types.SigningRequest{
		Kind:                 types.SigningKind_Transaction,
		SourceVaultAccountId: "0",
		Transaction: &types.TransactionPayload{
			From:  fromAddr,
			To:    &to,
			Value: "1.5",
		},
	}
}

func Test_NewTransactionSigner_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mock := testutil.NewMockCustodyClient(logger)

	_, err := NewTransactionSigner(&SignerConfig{}, mock, nil, logger)
	assert.Error(t, err)
	_, err = NewTransactionSigner(testSignerConfig(), nil, nil, logger)
	assert.Error(t, err)

	cfg := testSignerConfig()
	cfg.OneTimeAddressesEnabled = false
	_, err = NewTransactionSigner(cfg, mock, nil, logger)
	assert.ErrorContains(t, err, "directory")
}

func Test_Submit_Transfer(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	signer := newTestSigner(t, testSignerConfig(), mock)

	handle, err := signer.Submit(context.Background(), transferRequest())
	require.NoError(t, err)
	assert.Equal(t, "tx-1", handle.RequestId)
	assert.Equal(t, types.SigningKind_Transaction, handle.Kind)
	assert.False(t, handle.SubmittedAt.IsZero())

	require.Len(t, mock.CreatedRequests(), 1)
	body := mock.CreatedRequests()[0]
	assert.Equal(t, custody.Operation_Transfer, body.Operation)
	assert.Equal(t, "ETH_TEST5", body.AssetId)
	assert.Equal(t, custody.TransferPeerPath{Type: custody.PeerType_VaultAccount, Id: "0"}, body.Source)
	assert.Equal(t, custody.PeerType_OneTimeAddress, body.Destination.Type)
	assert.Equal(t, toAddr.Hex(), body.Destination.OneTimeAddress.Address)
	assert.Equal(t, "1.5", body.Amount)
	assert.Equal(t, "MEDIUM", body.FeeLevel)
	assert.Equal(t, config.DefaultNote, body.Note)
	assert.Empty(t, body.ExternalTxId)
	assert.Nil(t, body.ExtraParameters)
}

func Test_Submit_ContractCall(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	signer := newTestSigner(t, testSignerConfig(), mock)

	req := transferRequest()
	req.Transaction.Data = "a9059cbb"
	req.Transaction.GasLimit = "21000"
	_, err := signer.Submit(context.Background(), req)
	require.NoError(t, err)

	body := mock.CreatedRequests()[0]
	assert.Equal(t, custody.Operation_ContractCall, body.Operation)
	assert.Equal(t, "a9059cbb", body.ExtraParameters.ContractCallData)
	assert.Equal(t, "21000", body.GasLimit)
}

func Test_Submit_FeePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(r *types.SigningRequest)
		feeLevel string
		gasPrice string
		maxFee   string
		priority string
	}{
		{name: "fallback", mutate: func(r *types.SigningRequest) {}, feeLevel: "MEDIUM"},
		{name: "per-call level", mutate: func(r *types.SigningRequest) {
			r.FeeLevel = types.FeeLevel_High
			r.Transaction.GasPrice = "20"
		}, feeLevel: "HIGH"},
		{name: "legacy gas price", mutate: func(r *types.SigningRequest) { r.Transaction.GasPrice = "20" }, gasPrice: "20"},
		{name: "eip1559", mutate: func(r *types.SigningRequest) {
			r.Transaction.MaxFeePerGas = "30"
			r.Transaction.MaxPriorityFeePerGas = "1.5"
		}, maxFee: "30", priority: "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
			signer := newTestSigner(t, testSignerConfig(), mock)
			req := transferRequest()
			tc.mutate(req)

			_, err := signer.Submit(context.Background(), req)
			require.NoError(t, err)
			body := mock.CreatedRequests()[0]
			assert.Equal(t, tc.feeLevel, body.FeeLevel)
			assert.Equal(t, tc.gasPrice, body.GasPrice)
			assert.Equal(t, tc.maxFee, body.MaxFee)
			assert.Equal(t, tc.priority, body.PriorityFee)
		})
	}
}

func Test_Submit_GaslessDropsFeeFields(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	cfg := testSignerConfig()
	cfg.GaslessVaultId = "42"
	signer := newTestSigner(t, cfg, mock)

	req := transferRequest()
	req.FeeLevel = types.FeeLevel_High
	req.Transaction.GasPrice = "20"
	req.Transaction.GasLimit = "50000"
	_, err := signer.Submit(context.Background(), req)
	require.NoError(t, err)

	body := mock.CreatedRequests()[0]
	require.NotNil(t, body.FeePayerInfo)
	assert.Equal(t, "42", body.FeePayerInfo.FeePayerAccountId)
	assert.Empty(t, body.FeeLevel)
	assert.Empty(t, body.GasPrice)
	assert.Empty(t, body.MaxFee)
	assert.Empty(t, body.PriorityFee)
	assert.Equal(t, "50000", body.GasLimit)
}

func Test_Submit_Message(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	signer := newTestSigner(t, testSignerConfig(), mock)

	handle, err := signer.Submit(context.Background(), &types.SigningRequest{
		Kind:                 types.SigningKind_RawMessage,
		SourceVaultAccountId: "3",
		Message:              &types.MessagePayload{Type: types.RawMessageType_ETH_MESSAGE, Content: "68656c6c6f"},
		Note:                 "custom",
	})
	require.NoError(t, err)
	assert.Equal(t, types.SigningKind_RawMessage, handle.Kind)

	body := mock.CreatedRequests()[0]
	assert.Equal(t, custody.Operation_TypedMessage, body.Operation)
	assert.Nil(t, body.Destination)
	assert.Empty(t, body.FeeLevel)
	assert.Equal(t, "custom", body.Note)
	require.Len(t, body.ExtraParameters.RawMessageData.Messages, 1)
	assert.Equal(t, custody.RawMessage{Content: "68656c6c6f", Type: "ETH_MESSAGE"}, body.ExtraParameters.RawMessageData.Messages[0])
}

func Test_Submit_ExternalTxIdSupplierCalledOncePerSubmission(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	var calls atomic.Int32
	cfg := testSignerConfig()
	cfg.ExternalTxId = config.ExternalTxIdSupplier(func() string {
		n := calls.Add(1)
		return fmt.Sprintf("ext-%d", n)
	})
	signer := newTestSigner(t, cfg, mock)

	_, err := signer.Submit(context.Background(), transferRequest())
	require.NoError(t, err)
	_, err = signer.Submit(context.Background(), transferRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "ext-1", mock.CreatedRequests()[0].ExternalTxId)
	assert.Equal(t, "ext-2", mock.CreatedRequests()[1].ExternalTxId)
}

func Test_Submit_StaticExternalTxId(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	cfg := testSignerConfig()
	cfg.ExternalTxId = config.StaticExternalTxId("fixed-id")
	signer := newTestSigner(t, cfg, mock)

	_, err := signer.Submit(context.Background(), transferRequest())
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", mock.CreatedRequests()[0].ExternalTxId)
}

func Test_Submit_FailureIsSubmissionErrorWithoutRetry(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	mock.FailCreate(&custody.APIError{StatusCode: 400, Code: 1427, Message: "Insufficient funds"})
	signer := newTestSigner(t, testSignerConfig(), mock)

	handle, err := signer.Submit(context.Background(), transferRequest())
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.ErrorIs(t, err, providerErrors.ErrSubmission)
	var apiErr *custody.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 1, mock.CreateCalls())
}

func Test_Submit_InvalidRequestMakesNoCall(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	signer := newTestSigner(t, testSignerConfig(), mock)

	req := transferRequest()
	req.Transaction.To = nil
	_, err := signer.Submit(context.Background(), req)
	assert.ErrorIs(t, err, providerErrors.ErrInvalidParams)

	_, err = signer.Submit(context.Background(), &types.SigningRequest{Kind: types.SigningKind_RawMessage, SourceVaultAccountId: "0"})
	assert.ErrorIs(t, err, providerErrors.ErrInvalidParams)

	assert.Equal(t, 0, mock.CreateCalls())
}

func Test_Submit_DestinationWithoutOneTimeAddresses(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	mock.AddVaultAccount("0", fromAddr.Hex())
	mock.AddVaultAccount("7", toAddr.Hex())
	cfg := testSignerConfig()
	cfg.OneTimeAddressesEnabled = false
	signer := newTestSigner(t, cfg, mock)

	_, err := signer.Submit(context.Background(), transferRequest())
	require.NoError(t, err)
	body := mock.CreatedRequests()[0]
	assert.Equal(t, &custody.DestinationTransferPeerPath{Type: custody.PeerType_VaultAccount, Id: "7"}, body.Destination)
}

func Test_NewSignerConfig_LiteralProviderConfigUsesOneTimeAddresses(t *testing.T) {
	cfg := NewSignerConfig(&config.ProviderConfig{Note: "n"}, "ETH_TEST5")
	assert.True(t, cfg.OneTimeAddressesEnabled)

	cfg = NewSignerConfig(&config.ProviderConfig{OneTimeAddressesEnabled: config.Bool(false)}, "ETH_TEST5")
	assert.False(t, cfg.OneTimeAddressesEnabled)
}
