package testutil

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// MockVaultAccount is a vault account known to MockCustodyClient.
type MockVaultAccount struct {
	Id        string
	Addresses []string
}

type mockTransaction struct {
	request   *custody.TransactionRequest
	responses []custody.TransactionResponse
	polls     int
}

// MockCustodyClient implements custody.ICustodyClient in memory.
// Transactions complete immediately unless a status script is queued with ScriptNextTransaction.
type MockCustodyClient struct {
	mu     sync.Mutex
	logger *zap.Logger

	accounts     []MockVaultAccount
	wallets      map[custody.TransferPeerPathType][]custody.WhitelistedWallet
	scripts      [][]custody.TransactionResponse
	transactions map[string]*mockTransaction
	created      []*custody.TransactionRequest
	nextId       int

	createErr     error
	getErr        error
	getErrsLeft   int
	listDelay     time.Duration
	listErr       error
	listErrsLeft  int

	listCalls    atomic.Int32
	addressCalls atomic.Int32
	createCalls  atomic.Int32
	getCalls     atomic.Int32
	walletCalls  atomic.Int32
}

func NewMockCustodyClient(logger *zap.Logger) *MockCustodyClient {
	return &MockCustodyClient{
		logger:       logger,
		wallets:      make(map[custody.TransferPeerPathType][]custody.WhitelistedWallet),
		transactions: make(map[string]*mockTransaction),
	}
}

func (m *MockCustodyClient) AddVaultAccount(id string, addresses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = append(m.accounts, MockVaultAccount{Id: id, Addresses: addresses})
}

func (m *MockCustodyClient) AddWhitelistedWallet(walletType custody.TransferPeerPathType, wallet custody.WhitelistedWallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[walletType] = append(m.wallets[walletType], wallet)
}

// ScriptNextTransaction queues the statuses returned, one per poll, for the next created transaction.
// The last status repeats once the script is exhausted.
func (m *MockCustodyClient) ScriptNextTransaction(responses ...custody.TransactionResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, responses)
}

func (m *MockCustodyClient) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// FailNextGets makes the next n GetTransaction calls return err.
func (m *MockCustodyClient) FailNextGets(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrsLeft = n
	m.getErr = err
}

// FailNextLists makes the next n ListVaultAccounts calls return err.
func (m *MockCustodyClient) FailNextLists(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErrsLeft = n
	m.listErr = err
}

func (m *MockCustodyClient) SetListDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listDelay = d
}

func (m *MockCustodyClient) ListCalls() int    { return int(m.listCalls.Load()) }
func (m *MockCustodyClient) AddressCalls() int { return int(m.addressCalls.Load()) }
func (m *MockCustodyClient) CreateCalls() int  { return int(m.createCalls.Load()) }
func (m *MockCustodyClient) GetCalls() int     { return int(m.getCalls.Load()) }
func (m *MockCustodyClient) WalletCalls() int  { return int(m.walletCalls.Load()) }

func (m *MockCustodyClient) CreatedRequests() []*custody.TransactionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*custody.TransactionRequest, len(m.created))
	copy(out, m.created)
	return out
}

func (m *MockCustodyClient) SetHttpClient(_ *http.Client) {}

func (m *MockCustodyClient) ListVaultAccounts(ctx context.Context, assetId string, limit int) ([]custody.VaultAccountResponse, error) {
	m.listCalls.Add(1)

	m.mu.Lock()
	delay := m.listDelay
	if m.listErrsLeft > 0 {
		m.listErrsLeft--
		err := m.listErr
		m.mu.Unlock()
		return nil, err
	}
	accounts := make([]MockVaultAccount, len(m.accounts))
	copy(accounts, m.accounts)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var out []custody.VaultAccountResponse
	for _, a := range accounts {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, custody.VaultAccountResponse{Id: a.Id, Name: "vault " + a.Id})
	}
	m.logger.Sugar().Debugw("MockCustodyClient listed vault accounts", "assetId", assetId, "count", len(out))
	return out, nil
}

func (m *MockCustodyClient) GetVaultAccountAddresses(_ context.Context, vaultAccountId string, assetId string) ([]custody.VaultAddress, error) {
	m.addressCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Id != vaultAccountId {
			continue
		}
		out := make([]custody.VaultAddress, 0, len(a.Addresses))
		for _, addr := range a.Addresses {
			out = append(out, custody.VaultAddress{AssetId: assetId, Address: addr})
		}
		return out, nil
	}
	return nil, &custody.APIError{StatusCode: http.StatusNotFound, Code: 11001, Message: fmt.Sprintf("vault account %s not found", vaultAccountId)}
}

func (m *MockCustodyClient) CreateTransaction(_ context.Context, req *custody.TransactionRequest) (*custody.CreateTransactionResponse, error) {
	m.createCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, req)
	if m.createErr != nil {
		return nil, m.createErr
	}

	m.nextId++
	id := fmt.Sprintf("tx-%d", m.nextId)

	var responses []custody.TransactionResponse
	if len(m.scripts) > 0 {
		responses = m.scripts[0]
		m.scripts = m.scripts[1:]
	} else {
		responses = []custody.TransactionResponse{defaultCompletion(id, req)}
	}
	for i := range responses {
		responses[i].Id = id
	}
	m.transactions[id] = &mockTransaction{request: req, responses: responses}

	return &custody.CreateTransactionResponse{Id: id, Status: custody.Status_Submitted}, nil
}

func (m *MockCustodyClient) GetTransaction(ctx context.Context, id string) (*custody.TransactionResponse, error) {
	m.getCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErrsLeft > 0 {
		m.getErrsLeft--
		return nil, m.getErr
	}
	tx, ok := m.transactions[id]
	if !ok {
		return nil, &custody.APIError{StatusCode: http.StatusNotFound, Message: "transaction not found"}
	}
	idx := tx.polls
	if idx >= len(tx.responses) {
		idx = len(tx.responses) - 1
	}
	tx.polls++
	res := tx.responses[idx]
	return &res, nil
}

func (m *MockCustodyClient) ListWhitelistedWallets(_ context.Context, walletType custody.TransferPeerPathType) ([]custody.WhitelistedWallet, error) {
	m.walletCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]custody.WhitelistedWallet(nil), m.wallets[walletType]...), nil
}

// TxHashFor is the hash reported for a transaction completed without a script.
func TxHashFor(id string) string {
	return crypto.Keccak256Hash([]byte(id)).Hex()
}

// SignatureFor is the signature reported for a message completed without a script.
func SignatureFor(id string) custody.MessageSignature {
	r := crypto.Keccak256Hash([]byte(id + "/r")).Hex()[2:]
	s := crypto.Keccak256Hash([]byte(id + "/s")).Hex()[2:]
	return custody.MessageSignature{R: r, S: s, V: 1, FullSig: r + s}
}

func defaultCompletion(id string, req *custody.TransactionRequest) custody.TransactionResponse {
	if req.Operation == custody.Operation_TypedMessage {
		var content string
		if req.ExtraParameters != nil && req.ExtraParameters.RawMessageData != nil && len(req.ExtraParameters.RawMessageData.Messages) > 0 {
			content = strings.TrimSpace(fmt.Sprint(req.ExtraParameters.RawMessageData.Messages[0].Content))
		}
		return custody.TransactionResponse{
			Status:         custody.Status_Completed,
			SignedMessages: []custody.SignedMessage{{Content: content, Signature: SignatureFor(id)}},
		}
	}
	return custody.TransactionResponse{Status: custody.Status_Completed, TxHash: TxHashFor(id)}
}

var _ custody.ICustodyClient = (*MockCustodyClient)(nil)
