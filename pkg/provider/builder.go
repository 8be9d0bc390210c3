package provider

import (
	"context"

	internalAws "github.com/Layr-Labs/custody-web3-provider/internal/aws"
	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/config"
	"github.com/Layr-Labs/custody-web3-provider/pkg/directory"
	"github.com/Layr-Labs/custody-web3-provider/pkg/network"
	"github.com/Layr-Labs/custody-web3-provider/pkg/poller"
	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner"
	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner/awsKmsRequestSigner"
	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner/inMemoryRequestSigner"
	"github.com/Layr-Labs/custody-web3-provider/pkg/transactionSigner"
	"github.com/Layr-Labs/custody-web3-provider/pkg/translator"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// NewRequestSigner picks the API request signer for the configured credential.
func NewRequestSigner(ctx context.Context, cfg *config.ProviderConfig, logger *zap.Logger) (requestSigner.IRequestSigner, error) {
	if cfg.PrivateKeyKmsKeyId != "" {
		awsCfg, err := internalAws.LoadAWSConfig(ctx, cfg.AwsRegion)
		if err != nil {
			return nil, err
		}
		if err := internalAws.LogCallerIdentity(ctx, awsCfg, logger); err != nil {
			logger.Sugar().Warnw("Unable to determine AWS caller identity", "error", err)
		}
		return awsKmsRequestSigner.NewAWSKMSRequestSigner(awsCfg, cfg.PrivateKeyKmsKeyId, logger), nil
	}
	return inMemoryRequestSigner.NewInMemoryRequestSignerFromConfig(cfg.PrivateKey, logger)
}

// NewCustodyClient builds the custody API client from the provider configuration.
func NewCustodyClient(ctx context.Context, cfg *config.ProviderConfig, logger *zap.Logger) (*custody.Client, error) {
	signer, err := NewRequestSigner(ctx, cfg, logger)
	if err != nil {
		return nil, providerErrors.NewConfigurationError("unable to load API credentials", err)
	}
	client, err := custody.NewClient(&custody.ClientConfig{
		BaseUrl:           cfg.ApiBaseUrl,
		ApiKey:            cfg.ApiKey,
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.ApiRequestsPerSecond,
		LogRequests:       cfg.LogRequestsAndResponses,
	}, signer, logger)
	if err != nil {
		return nil, providerErrors.NewConfigurationError("invalid custody API settings", err)
	}
	return client, nil
}

// NewProviderFromConfig validates cfg, resolves the network and wires every component.
// All failures are *providerErrors.ConfigurationError.
func NewProviderFromConfig(ctx context.Context, cfg *config.ProviderConfig, logger *zap.Logger) (*Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, providerErrors.NewConfigurationError("invalid provider configuration", err)
	}

	net, err := network.Resolve(cfg.NetworkSelector())
	if err != nil {
		return nil, err
	}

	client, err := NewCustodyClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rpcClient, err := rpc.DialContext(ctx, net.RpcUrl)
	if err != nil {
		return nil, providerErrors.NewConfigurationError("unable to connect to rpc endpoint", err)
	}

	p, err := NewProviderWithClient(cfg, client, rpcClient, logger)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	if cfg.HasFixedVaultAccounts() {
		if err := p.directory.Load(ctx); err != nil {
			rpcClient.Close()
			return nil, providerErrors.NewConfigurationError("unable to load configured vault accounts", err)
		}
	}
	return p, nil
}

// NewProviderWithClient wires a provider around an existing custody client and node connection.
func NewProviderWithClient(cfg *config.ProviderConfig, client custody.ICustodyClient, rpcCaller IRpcCaller, logger *zap.Logger) (*Provider, error) {
	net, err := network.Resolve(cfg.NetworkSelector())
	if err != nil {
		return nil, err
	}
	logger.Sugar().Infow("Resolved network",
		"chainId", net.ChainId,
		"assetId", net.AssetId,
		"rpcUrl", net.RpcUrl,
		"fixedVaultAccounts", cfg.HasFixedVaultAccounts(),
	)

	dir, err := directory.NewDirectory(&directory.Config{
		AssetId:         net.AssetId,
		VaultAccountIds: cfg.VaultAccountIds,
	}, client, logger)
	if err != nil {
		return nil, providerErrors.NewConfigurationError("invalid directory settings", err)
	}

	signer, err := transactionSigner.NewTransactionSigner(transactionSigner.NewSignerConfig(cfg, net.AssetId), client, dir, logger)
	if err != nil {
		return nil, providerErrors.NewConfigurationError("invalid signing settings", err)
	}

	poll, err := poller.NewPoller(&poller.Config{
		PollingInterval:  cfg.PollingInterval,
		LogStatusChanges: cfg.LogTransactionStatusChanges,
	}, client, logger)
	if err != nil {
		return nil, providerErrors.NewConfigurationError("invalid polling settings", err)
	}

	tr := translator.NewTranslator(&translator.Config{
		ChainId:               net.ChainId,
		EnhancedErrorHandling: cfg.UseEnhancedErrorHandling(),
	}, logger)

	p, err := NewProvider(&Dependencies{
		Network:    net,
		Directory:  dir,
		Signer:     signer,
		Poller:     poll,
		Translator: tr,
		Rpc:        rpcCaller,
	}, &Options{
		LogRequestsAndResponses: cfg.LogRequestsAndResponses,
		Note:                    cfg.Note,
		GaslessVaultId:          cfg.GaslessGasTankVaultId,
	}, logger)
	if err != nil {
		return nil, providerErrors.NewConfigurationError("unable to build provider", err)
	}
	return p, nil
}
