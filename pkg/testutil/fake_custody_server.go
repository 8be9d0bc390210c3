package testutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
)

// FakeCustodyServer serves the custody REST API on top of a MockCustodyClient.
type FakeCustodyServer struct {
	*httptest.Server
	Mock   *MockCustodyClient
	ApiKey string
}

func NewFakeCustodyServer(t *testing.T, mock *MockCustodyClient, apiKey string) *FakeCustodyServer {
	f := &FakeCustodyServer{Mock: mock, ApiKey: apiKey}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *FakeCustodyServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-API-Key") != f.ApiKey || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeError(w, &custody.APIError{StatusCode: http.StatusUnauthorized, Code: -7, Message: "Unauthorized"})
		return
	}

	ctx := r.Context()
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/v1/vault/accounts_paged":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		accounts, err := f.Mock.ListVaultAccounts(ctx, r.URL.Query().Get("assetId"), limit)
		respond(w, custody.VaultAccountsPage{Accounts: accounts}, err)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v1/vault/accounts/") && strings.HasSuffix(path, "/addresses_paginated"):
		parts := strings.Split(strings.TrimPrefix(path, "/v1/vault/accounts/"), "/")
		if len(parts) != 3 {
			http.NotFound(w, r)
			return
		}
		addresses, err := f.Mock.GetVaultAccountAddresses(ctx, parts[0], parts[1])
		respond(w, custody.VaultAddressesPage{Addresses: addresses}, err)

	case r.Method == http.MethodPost && path == "/v1/transactions":
		var req custody.TransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, &custody.APIError{StatusCode: http.StatusBadRequest, Message: err.Error()})
			return
		}
		res, err := f.Mock.CreateTransaction(ctx, &req)
		respond(w, res, err)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v1/transactions/"):
		res, err := f.Mock.GetTransaction(ctx, strings.TrimPrefix(path, "/v1/transactions/"))
		respond(w, res, err)

	case r.Method == http.MethodGet && path == "/v1/internal_wallets":
		wallets, err := f.Mock.ListWhitelistedWallets(ctx, custody.PeerType_InternalWallet)
		respond(w, nonNil(wallets), err)
	case r.Method == http.MethodGet && path == "/v1/external_wallets":
		wallets, err := f.Mock.ListWhitelistedWallets(ctx, custody.PeerType_ExternalWallet)
		respond(w, nonNil(wallets), err)
	case r.Method == http.MethodGet && path == "/v1/contracts":
		wallets, err := f.Mock.ListWhitelistedWallets(ctx, custody.PeerType_Contract)
		respond(w, nonNil(wallets), err)

	default:
		http.NotFound(w, r)
	}
}

func nonNil(wallets []custody.WhitelistedWallet) []custody.WhitelistedWallet {
	if wallets == nil {
		return []custody.WhitelistedWallet{}
	}
	return wallets
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		var apiErr *custody.APIError
		if !errors.As(err, &apiErr) {
			apiErr = &custody.APIError{StatusCode: http.StatusInternalServerError, Message: err.Error()}
		}
		writeError(w, apiErr)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, apiErr *custody.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	_ = json.NewEncoder(w).Encode(apiErr)
}
