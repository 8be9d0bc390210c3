package transactionSigner

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/config"
	"github.com/Layr-Labs/custody-web3-provider/pkg/directory"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"go.uber.org/zap"
)

// ITransactionSigner submits signing requests to the custody service
type ITransactionSigner interface {
	// Submit makes exactly one custody call and returns the handle to poll.
	Submit(ctx context.Context, req *types.SigningRequest) (*types.SigningHandle, error)
}

type SignerConfig struct {
	AssetId                 string
	FallbackFeeLevel        types.FeeLevel
	Note                    string
	OneTimeAddressesEnabled bool
	ExternalTxId            config.ExternalTxId
	GaslessVaultId          string
}

func NewSignerConfig(cfg *config.ProviderConfig, assetId string) *SignerConfig {
	return &SignerConfig{
		AssetId:                 assetId,
		FallbackFeeLevel:        cfg.FallbackFeeLevel,
		Note:                    cfg.Note,
		OneTimeAddressesEnabled: cfg.UseOneTimeAddresses(),
		ExternalTxId:            cfg.ExternalTxId,
		GaslessVaultId:          cfg.GaslessGasTankVaultId,
	}
}

func NewTransactionSigner(cfg *SignerConfig, client custody.ICustodyClient, dir directory.IDirectory, logger *zap.Logger) (ITransactionSigner, error) {
	if cfg == nil || cfg.AssetId == "" {
		return nil, fmt.Errorf("asset id cannot be empty")
	}
	if client == nil {
		return nil, fmt.Errorf("custody client cannot be nil")
	}
	if !cfg.OneTimeAddressesEnabled && dir == nil {
		return nil, fmt.Errorf("a directory is required when one-time addresses are disabled")
	}

	return NewCustodyTransactionSigner(cfg, client, dir, logger), nil
}
