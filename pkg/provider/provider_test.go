package provider

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/config"
	"github.com/Layr-Labs/custody-web3-provider/pkg/network"
	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/testutil"
	"github.com/Layr-Labs/custody-web3-provider/pkg/transactionSigner"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	signerAddr = "0x1111111111111111111111111111111111111111"
	otherAddr  = "0x2222222222222222222222222222222222222222"
	targetAddr = "0x9999999999999999999999999999999999999999"
)

type testHarness struct {
	provider *Provider
	custody  *testutil.MockCustodyClient
	rpc      *testutil.MockEthRpc
}

func testConfig() *config.ProviderConfig {
	cfg := config.NewProviderConfig()
	cfg.ApiKey = "api-key"
	cfg.PrivateKey = "unused"
	cfg.ChainId = network.ChainId_Goerli
	cfg.PollingInterval = 5 * time.Millisecond
	cfg.LogRequestsAndResponses = true
	return cfg
}

func newHarness(t *testing.T, cfg *config.ProviderConfig) *testHarness {
	logger := zaptest.NewLogger(t)
	mock := testutil.NewMockCustodyClient(logger)
	mock.AddVaultAccount("0", signerAddr)
	mock.AddVaultAccount("1", otherAddr)
	rpcMock := testutil.NewMockEthRpc()

	p, err := NewProviderWithClient(cfg, mock, rpcMock, logger)
	require.NoError(t, err)
	return &testHarness{provider: p, custody: mock, rpc: rpcMock}
}

func request(method string, params string) types.RequestArguments {
	return types.RequestArguments{Method: method, Params: json.RawMessage(params)}
}

func requireProviderError(t *testing.T, err error, code int) *providerErrors.ProviderRpcError {
	t.Helper()
	require.Error(t, err)
	pErr, ok := providerErrors.AsProviderRpcError(err)
	require.True(t, ok, "expected ProviderRpcError, got %T: %v", err, err)
	assert.Equal(t, code, pErr.Code)
	return pErr
}

func Test_PersonalSignOnGoerli(t *testing.T) {
	h := newHarness(t, testConfig())

	res, err := h.provider.Request(context.Background(), request("personal_sign", `["0x68656c6c6f", "`+signerAddr+`"]`))
	require.NoError(t, err)

	sig := testutil.SignatureFor("tx-1")
	assert.Equal(t, "0x"+sig.R+sig.S+"1c", res)

	created := h.custody.CreatedRequests()
	require.Len(t, created, 1)
	assert.Equal(t, "ETH_TEST3", created[0].AssetId)
	assert.Equal(t, custody.Operation_TypedMessage, created[0].Operation)
	assert.Equal(t, "0", created[0].Source.Id)
	msgs := created[0].ExtraParameters.RawMessageData.Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, string(types.RawMessageType_ETH_MESSAGE), msgs[0].Type)
	assert.Equal(t, "68656c6c6f", msgs[0].Content)
}

func Test_SendTransaction(t *testing.T) {
	h := newHarness(t, testConfig())

	res, err := h.provider.Request(context.Background(), request("eth_sendTransaction",
		`[{"from":"`+otherAddr+`","to":"`+targetAddr+`","value":"0x2386f26fc10000","data":"0xa9059cbb"}]`))
	require.NoError(t, err)
	assert.Equal(t, testutil.TxHashFor("tx-1"), res)

	created := h.custody.CreatedRequests()[0]
	assert.Equal(t, "1", created.Source.Id)
	assert.Equal(t, custody.Operation_ContractCall, created.Operation)
	assert.Equal(t, "0.01", created.Amount)
	assert.Equal(t, "a9059cbb", created.ExtraParameters.ContractCallData)
	assert.Equal(t, "MEDIUM", created.FeeLevel)
	assert.Equal(t, common.HexToAddress(targetAddr).Hex(), created.Destination.OneTimeAddress.Address)
}

func Test_SendTransactionWithoutFromUsesFirstAccount(t *testing.T) {
	h := newHarness(t, testConfig())

	_, err := h.provider.Request(context.Background(), request("eth_sendTransaction", `[{"to":"`+targetAddr+`"}]`))
	require.NoError(t, err)
	assert.Equal(t, "0", h.custody.CreatedRequests()[0].Source.Id)
}

func Test_SignTypedData(t *testing.T) {
	h := newHarness(t, testConfig())
	typedData := `{"types":{"EIP712Domain":[{"name":"name","type":"string"}],"Hello":[{"name":"msg","type":"string"}]},
		"primaryType":"Hello","domain":{"name":"test"},"message":{"msg":"hi"}}`

	res, err := h.provider.Request(context.Background(), request("eth_signTypedData_v4", `["`+signerAddr+`", `+typedData+`]`))
	require.NoError(t, err)
	assert.Len(t, res, 132)

	msgs := h.custody.CreatedRequests()[0].ExtraParameters.RawMessageData.Messages
	assert.Equal(t, string(types.RawMessageType_EIP712), msgs[0].Type)
	content, ok := msgs[0].Content.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hello", content["primaryType"])
}

func Test_SubmissionFailureNeverStartsPolling(t *testing.T) {
	h := newHarness(t, testConfig())
	h.custody.FailCreate(&custody.APIError{StatusCode: 400, Code: 1427, Message: "Insufficient funds"})
	args := request("eth_sendTransaction", `[{"from":"`+signerAddr+`","to":"`+targetAddr+`"}]`)

	_, err := h.provider.Request(context.Background(), args)
	pErr := requireProviderError(t, err, providerErrors.CodeSubmissionFailed)
	assert.Equal(t, args, pErr.Payload)
	assert.Contains(t, pErr.Data, "Insufficient funds")
	assert.True(t, errors.Is(err, providerErrors.ErrSubmission))

	assert.Equal(t, 1, h.custody.CreateCalls())
	assert.Equal(t, 0, h.custody.GetCalls())
}

func Test_UnknownSigner(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.provider.Request(context.Background(), request("personal_sign", `["0x01", "0x3333333333333333333333333333333333333333"]`))
	requireProviderError(t, err, providerErrors.CodeUnknownSigner)
	assert.Equal(t, 0, h.custody.CreateCalls())
}

func Test_FixedVaultListMissIsUnknownSigner(t *testing.T) {
	cfg := testConfig()
	cfg.VaultAccountIds = []string{"0"}
	h := newHarness(t, cfg)

	_, err := h.provider.Request(context.Background(), request("personal_sign", `["0x01", "`+otherAddr+`"]`))
	requireProviderError(t, err, providerErrors.CodeUnknownSigner)
	assert.Equal(t, 0, h.custody.ListCalls())
}

func Test_RejectedCarriesPayload(t *testing.T) {
	h := newHarness(t, testConfig())
	h.custody.ScriptNextTransaction(
		custody.TransactionResponse{Status: custody.Status_PendingAuthorization},
		custody.TransactionResponse{Status: custody.Status_Rejected, SubStatus: "REJECTED_BY_USER"},
	)
	args := request("eth_sendTransaction", `[{"from":"`+signerAddr+`","to":"`+targetAddr+`"}]`)

	_, err := h.provider.Request(context.Background(), args)
	pErr := requireProviderError(t, err, providerErrors.CodeRemoteRejected)
	assert.Equal(t, args, pErr.Payload)
}

func Test_FailedTransactionHasSimulationUrl(t *testing.T) {
	h := newHarness(t, testConfig())
	h.custody.ScriptNextTransaction(custody.TransactionResponse{Status: custody.Status_Failed, SubStatus: "CONTRACT_EXECUTION_REVERTED"})

	_, err := h.provider.Request(context.Background(), request("eth_sendTransaction", `[{"from":"`+signerAddr+`","to":"`+targetAddr+`","data":"0x01"}]`))
	pErr := requireProviderError(t, err, providerErrors.CodeRemoteFailed)
	raw, jsonErr := json.Marshal(pErr.Data)
	require.NoError(t, jsonErr)
	assert.Contains(t, string(raw), "simulationUrl")
	assert.Contains(t, string(raw), "CONTRACT_EXECUTION_REVERTED")
}

func Test_CancelledWhileWaiting(t *testing.T) {
	h := newHarness(t, testConfig())
	h.custody.ScriptNextTransaction(custody.TransactionResponse{Status: custody.Status_PendingSignature})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_, err := h.provider.Request(ctx, request("personal_sign", `["0x01", "`+signerAddr+`"]`))
	requireProviderError(t, err, providerErrors.CodeCancelled)
}

func Test_UnsupportedMethods(t *testing.T) {
	h := newHarness(t, testConfig())
	for _, method := range []string{"eth_signTransaction", "wallet_addEthereumChain", "foo_bar"} {
		_, err := h.provider.Request(context.Background(), request(method, `[]`))
		pErr := requireProviderError(t, err, providerErrors.CodeUnsupportedMethod)
		assert.Contains(t, pErr.Message, method)
	}
	assert.Empty(t, h.rpc.Calls())
	assert.Equal(t, 0, h.custody.CreateCalls())
}

func Test_InvalidParams(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.provider.Request(context.Background(), request("eth_sendTransaction", `{"not":"an array"}`))
	requireProviderError(t, err, providerErrors.CodeInvalidParams)

	_, err = h.provider.Request(context.Background(), request("eth_blockNumber", `"nope"`))
	requireProviderError(t, err, providerErrors.CodeInvalidParams)
}

func Test_Passthrough(t *testing.T) {
	h := newHarness(t, testConfig())
	h.rpc.SetResult("eth_getBalance", "0xde0b6b3a7640000")

	res, err := h.provider.Request(context.Background(), request("eth_getBalance", `["`+signerAddr+`", "latest"]`))
	require.NoError(t, err)
	assert.JSONEq(t, `"0xde0b6b3a7640000"`, string(res.(json.RawMessage)))

	calls := h.rpc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "eth_getBalance", calls[0].Method)
	require.Len(t, calls[0].Args, 2)
	assert.Equal(t, json.RawMessage(`"latest"`), calls[0].Args[1])

	nodeErr := fmt.Errorf("execution reverted")
	h.rpc.SetError("eth_call", nodeErr)
	_, err = h.provider.Request(context.Background(), request("eth_call", `[{"to":"`+targetAddr+`"}, "latest"]`))
	assert.Same(t, nodeErr, err)

	h.rpc.SetResult("eth_blockNumber", "0x10")
	res, err = h.provider.Request(context.Background(), types.RequestArguments{Method: "eth_blockNumber"})
	require.NoError(t, err)
	assert.JSONEq(t, `"0x10"`, string(res.(json.RawMessage)))
}

func Test_AccountsAndChainId(t *testing.T) {
	h := newHarness(t, testConfig())

	res, err := h.provider.Request(context.Background(), request("eth_accounts", `[]`))
	require.NoError(t, err)
	assert.Equal(t, []string{common.HexToAddress(signerAddr).Hex(), common.HexToAddress(otherAddr).Hex()}, res)

	res, err = h.provider.Request(context.Background(), request("eth_requestAccounts", `[]`))
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = h.provider.Request(context.Background(), request("eth_chainId", `[]`))
	require.NoError(t, err)
	assert.Equal(t, hexutil.EncodeUint64(5), res)
	assert.Empty(t, h.rpc.Calls())
}

func Test_ConcurrentSigningCalls(t *testing.T) {
	h := newHarness(t, testConfig())

	const n = 10
	var wg sync.WaitGroup
	results := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.provider.Request(context.Background(),
				request("eth_sendTransaction", `[{"from":"`+signerAddr+`","to":"`+targetAddr+`"}]`))
		}(i)
	}
	wg.Wait()

	seen := make(map[any]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		seen[results[i]] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, 1, h.custody.ListCalls())
}

func Test_NewProviderWithClient_ConfigurationErrors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mock := testutil.NewMockCustodyClient(logger)

	cfg := testConfig()
	cfg.ChainId = network.ChainId_Mainnet
	cfg.RpcUrl = network.Assets[network.ChainId_Sepolia].RpcUrl
	_, err := NewProviderWithClient(cfg, mock, testutil.NewMockEthRpc(), logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, providerErrors.ErrConfiguration)

	cfg = testConfig()
	cfg.ChainId = 999999
	_, err = NewProviderWithClient(cfg, mock, testutil.NewMockEthRpc(), logger)
	assert.ErrorIs(t, err, providerErrors.ErrConfiguration)

	cfg.RpcUrl = "https://rpc.example.org"
	cfg.AssetId = "CUSTOM_ASSET"
	p, err := NewProviderWithClient(cfg, mock, testutil.NewMockEthRpc(), logger)
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM_ASSET", p.Network().AssetId)
}

func Test_NewProviderFromConfig_RejectsInvalidConfig(t *testing.T) {
	cfg := config.NewProviderConfig()
	_, err := NewProviderFromConfig(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	var cfgErr *providerErrors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func fakeServerConfig(t *testing.T, mock *testutil.MockCustodyClient) *config.ProviderConfig {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	server := testutil.NewFakeCustodyServer(t, mock, "api-key")
	cfg := testConfig()
	cfg.PrivateKey = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	cfg.ApiBaseUrl = server.URL
	cfg.RpcUrl = "http://127.0.0.1:8545"
	return cfg
}

func Test_NewProviderFromConfig_LoadsFixedVaultAccounts(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	mock.AddVaultAccount("0", signerAddr)
	mock.AddVaultAccount("1", otherAddr)

	cfg := fakeServerConfig(t, mock)
	cfg.VaultAccountIds = []string{"1", "0"}
	p, err := NewProviderFromConfig(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 2, mock.AddressCalls())

	res, err := p.Request(context.Background(), request("eth_accounts", `[]`))
	require.NoError(t, err)
	assert.Equal(t, []string{common.HexToAddress(otherAddr).Hex(), common.HexToAddress(signerAddr).Hex()}, res)
	assert.Equal(t, 2, mock.AddressCalls())
	assert.Equal(t, 0, mock.ListCalls())
}

func Test_NewProviderFromConfig_UnknownFixedVaultAccount(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	mock.AddVaultAccount("0", signerAddr)

	cfg := fakeServerConfig(t, mock)
	cfg.VaultAccountIds = []string{"0", "42"}
	_, err := NewProviderFromConfig(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	var cfgErr *providerErrors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, providerErrors.ErrConfiguration)
	assert.ErrorContains(t, err, "42")
}

func Test_NewProviderFromConfig_LazyDirectoryWithoutFixedList(t *testing.T) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	mock.AddVaultAccount("0", signerAddr)

	p, err := NewProviderFromConfig(context.Background(), fakeServerConfig(t, mock), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 0, mock.ListCalls())
	assert.Equal(t, 0, mock.AddressCalls())
}

type recordingSigner struct {
	next     transactionSigner.ITransactionSigner
	mu       sync.Mutex
	requests []*types.SigningRequest
}

func (r *recordingSigner) Submit(ctx context.Context, req *types.SigningRequest) (*types.SigningHandle, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return r.next.Submit(ctx, req)
}

type blockingSigner struct{}

func (blockingSigner) Submit(ctx context.Context, _ *types.SigningRequest) (*types.SigningHandle, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("create transaction: %w", ctx.Err())
}

func Test_SigningRequestCarriesNoteAndGaslessVault(t *testing.T) {
	cfg := testConfig()
	cfg.Note = "treasury rebalance"
	cfg.GaslessGasTankVaultId = "7"
	h := newHarness(t, cfg)
	recorder := &recordingSigner{next: h.provider.signer}
	h.provider.signer = recorder

	_, err := h.provider.Request(context.Background(), request("eth_sendTransaction", `[{"from":"`+signerAddr+`","to":"`+targetAddr+`"}]`))
	require.NoError(t, err)
	_, err = h.provider.Request(context.Background(), request("personal_sign", `["0x01", "`+signerAddr+`"]`))
	require.NoError(t, err)

	require.Len(t, recorder.requests, 2)
	assert.Equal(t, "treasury rebalance", recorder.requests[0].Note)
	assert.Equal(t, "7", recorder.requests[0].GaslessVaultId)
	assert.Equal(t, "treasury rebalance", recorder.requests[1].Note)
	assert.Empty(t, recorder.requests[1].GaslessVaultId)

	created := h.custody.CreatedRequests()
	assert.Equal(t, "treasury rebalance", created[0].Note)
	require.NotNil(t, created[0].FeePayerInfo)
	assert.Equal(t, "7", created[0].FeePayerInfo.FeePayerAccountId)
	assert.Nil(t, created[1].FeePayerInfo)
}

func Test_CancelledWhileResolvingSigner(t *testing.T) {
	h := newHarness(t, testConfig())
	h.custody.SetListDelay(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.provider.Request(ctx, request("personal_sign", `["0x01", "`+signerAddr+`"]`))
	pErr := requireProviderError(t, err, providerErrors.CodeCancelled)
	assert.ErrorIs(t, pErr, context.DeadlineExceeded)
	assert.Equal(t, 0, h.custody.CreateCalls())

	_, err = h.provider.Request(ctx, request("eth_sendTransaction", `[{"to":"`+targetAddr+`"}]`))
	requireProviderError(t, err, providerErrors.CodeCancelled)

	// the load the cancelled callers started still completes for later callers
	res, err := h.provider.Request(context.Background(), request("eth_accounts", `[]`))
	require.NoError(t, err)
	assert.Len(t, res, 2)
	assert.Equal(t, 1, h.custody.ListCalls())
}

func Test_CancelledWhileSubmitting(t *testing.T) {
	h := newHarness(t, testConfig())
	h.provider.signer = blockingSigner{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := h.provider.Request(ctx, request("personal_sign", `["0x01", "`+signerAddr+`"]`))
	pErr := requireProviderError(t, err, providerErrors.CodeCancelled)
	assert.ErrorIs(t, pErr, context.Canceled)
	assert.NotErrorIs(t, pErr, providerErrors.ErrSubmission)
}
