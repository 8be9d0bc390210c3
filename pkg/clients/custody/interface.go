package custody

import (
	"context"
	"net/http"
)

// ICustodyClient is the custody service surface the provider depends on.
type ICustodyClient interface {
	// SetHttpClient replaces the underlying HTTP client, mostly for tests.
	SetHttpClient(client *http.Client)

	// ListVaultAccounts returns up to limit vault accounts holding assetId, in service order.
	ListVaultAccounts(ctx context.Context, assetId string, limit int) ([]VaultAccountResponse, error)

	// GetVaultAccountAddresses returns every deposit address of a vault account for assetId.
	GetVaultAccountAddresses(ctx context.Context, vaultAccountId string, assetId string) ([]VaultAddress, error)

	// CreateTransaction submits a transfer, contract call or message signing request.
	CreateTransaction(ctx context.Context, req *TransactionRequest) (*CreateTransactionResponse, error)

	// GetTransaction returns the current status of a previously created request.
	GetTransaction(ctx context.Context, id string) (*TransactionResponse, error)

	// ListWhitelistedWallets returns internal wallets, external wallets or contracts.
	ListWhitelistedWallets(ctx context.Context, walletType TransferPeerPathType) ([]WhitelistedWallet, error)
}

var _ ICustodyClient = (*Client)(nil)
