package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner"
)

// StaticRequestSigner returns a fixed token and records the claims it was asked to sign.
type StaticRequestSigner struct {
	mu     sync.Mutex
	Token  string
	claims []*requestSigner.RequestClaims
}

func NewStaticRequestSigner() *StaticRequestSigner {
	return &StaticRequestSigner{Token: "test-token"}
}

func (s *StaticRequestSigner) SignRequest(_ context.Context, claims *requestSigner.RequestClaims) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append(s.claims, claims)
	return s.Token, nil
}

func (s *StaticRequestSigner) Claims() []*requestSigner.RequestClaims {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*requestSigner.RequestClaims(nil), s.claims...)
}

// RpcCall is one call observed by MockEthRpc.
type RpcCall struct {
	Method string
	Args   []any
}

// MockEthRpc answers JSON-RPC calls from canned results, the way an rpc.Client would.
type MockEthRpc struct {
	mu      sync.Mutex
	results map[string]any
	errs    map[string]error
	calls   []RpcCall
}

func NewMockEthRpc() *MockEthRpc {
	return &MockEthRpc{
		results: make(map[string]any),
		errs:    make(map[string]error),
	}
}

func (m *MockEthRpc) SetResult(method string, result any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[method] = result
}

func (m *MockEthRpc) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = err
}

func (m *MockEthRpc) Calls() []RpcCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RpcCall(nil), m.calls...)
}

func (m *MockEthRpc) CallContext(ctx context.Context, result any, method string, args ...any) error {
	m.mu.Lock()
	m.calls = append(m.calls, RpcCall{Method: method, Args: args})
	res, hasResult := m.results[method]
	err := m.errs[method]
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !hasResult {
		return fmt.Errorf("the method %s does not exist/is not available", method)
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}
