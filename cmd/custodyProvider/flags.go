package main

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/custody-web3-provider/pkg/config"
	"github.com/Layr-Labs/custody-web3-provider/pkg/network"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// externalTxIdUuid makes every submission carry a fresh random external tx id.
const externalTxIdUuid = "uuid"

func supportedChainIdsString() string {
	ids := network.GetSupportedChainIds()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ", ")
}

func providerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "Custody API key",
			EnvVars: []string{config.EnvCustodyApiKey},
		},
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   "Custody API private key, PEM content or a path to a PEM file",
			EnvVars: []string{config.EnvCustodyApiPrivateKey, config.EnvCustodyApiPrivateKeyPath},
		},
		&cli.StringFlag{
			Name:    "kms-key-id",
			Usage:   "AWS KMS key id holding the custody API private key",
			EnvVars: []string{config.EnvCustodyApiKmsKeyId},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region for the KMS key",
			EnvVars: []string{config.EnvCustodyAwsRegion},
		},
		&cli.StringFlag{
			Name:    "api-base-url",
			Usage:   "Custody API base URL, or one of production, sandbox",
			Value:   string(config.ApiBaseUrl_Production),
			EnvVars: []string{config.EnvCustodyApiBaseUrl},
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"chain"},
			Usage:   fmt.Sprintf("Ethereum chain ID: %s", supportedChainIdsString()),
			EnvVars: []string{config.EnvCustodyChainId},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"rpc"},
			Usage:   "Ethereum RPC endpoint URL",
			EnvVars: []string{config.EnvCustodyRpcUrl},
		},
		&cli.StringFlag{
			Name:    "asset-id",
			Usage:   "Custody asset id, overrides the one derived from the chain",
			EnvVars: []string{config.EnvCustodyAssetId},
		},
		&cli.StringFlag{
			Name:    "vault-account-ids",
			Usage:   "Comma separated vault account ids. When empty, accounts are discovered",
			EnvVars: []string{config.EnvCustodyVaultAccountIds},
		},
		&cli.StringFlag{
			Name:    "fallback-fee-level",
			Usage:   "Fee level used when a transaction carries no gas pricing: LOW, MEDIUM, HIGH",
			Value:   string(config.DefaultFallbackFeeLevel),
			EnvVars: []string{config.EnvCustodyFallbackFeeLevel},
		},
		&cli.StringFlag{
			Name:    "note",
			Usage:   "Note attached to every custody request",
			Value:   config.DefaultNote,
			EnvVars: []string{config.EnvCustodyNote},
		},
		&cli.DurationFlag{
			Name:    "polling-interval",
			Usage:   "Interval between custody status queries",
			Value:   config.DefaultPollingInterval,
			EnvVars: []string{config.EnvCustodyPollingInterval},
		},
		&cli.BoolFlag{
			Name:    "one-time-addresses",
			Usage:   "Send to arbitrary destination addresses. When disabled, destinations must be whitelisted",
			Value:   true,
			EnvVars: []string{config.EnvCustodyOneTimeAddresses},
		},
		&cli.StringFlag{
			Name:    "external-tx-id",
			Usage:   fmt.Sprintf("External tx id for custody requests, %q for a new random id per request", externalTxIdUuid),
			EnvVars: []string{config.EnvCustodyExternalTxId},
		},
		&cli.StringFlag{
			Name:    "user-agent",
			Usage:   "User-Agent prefix for custody API calls",
			EnvVars: []string{config.EnvCustodyUserAgent},
		},
		&cli.StringFlag{
			Name:    "gasless-gas-tank-vault-id",
			Usage:   "Vault account paying fees for every transaction (experimental)",
			EnvVars: []string{config.EnvCustodyGaslessGasTankVaultId},
		},
		&cli.BoolFlag{
			Name:    "log-status-changes",
			Usage:   "Log custody request status transitions",
			EnvVars: []string{config.EnvCustodyLogStatusChanges},
		},
		&cli.BoolFlag{
			Name:    "log-requests",
			Usage:   "Log JSON-RPC requests and responses",
			EnvVars: []string{config.EnvCustodyLogRequestsAndResponses},
		},
		&cli.BoolFlag{
			Name:    "enhanced-error-handling",
			Usage:   "Attach a transaction simulation link to failed transactions",
			Value:   true,
			EnvVars: []string{config.EnvCustodyEnhancedErrorHandling},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvCustodyVerbose},
		},
	}
}

func parseProviderConfig(c *cli.Context) (*config.ProviderConfig, error) {
	cfg := config.NewProviderConfig()
	cfg.ApiKey = c.String("api-key")
	cfg.PrivateKey = c.String("private-key")
	cfg.PrivateKeyKmsKeyId = c.String("kms-key-id")
	cfg.AwsRegion = c.String("aws-region")
	cfg.ApiBaseUrl = c.String("api-base-url")
	cfg.ChainId = network.ChainId(c.Uint64("chain-id"))
	cfg.RpcUrl = c.String("rpc-url")
	cfg.AssetId = c.String("asset-id")
	cfg.FallbackFeeLevel = types.FeeLevel(strings.ToUpper(c.String("fallback-fee-level")))
	cfg.Note = c.String("note")
	cfg.PollingInterval = c.Duration("polling-interval")
	cfg.OneTimeAddressesEnabled = config.Bool(c.Bool("one-time-addresses"))
	cfg.UserAgent = c.String("user-agent")
	cfg.GaslessGasTankVaultId = c.String("gasless-gas-tank-vault-id")
	cfg.LogTransactionStatusChanges = c.Bool("log-status-changes")
	cfg.LogRequestsAndResponses = c.Bool("log-requests")
	cfg.EnhancedErrorHandling = config.Bool(c.Bool("enhanced-error-handling"))

	ids, err := config.ParseVaultAccountIds(c.String("vault-account-ids"))
	if err != nil {
		return nil, err
	}
	cfg.VaultAccountIds = ids

	switch externalTxId := c.String("external-tx-id"); externalTxId {
	case "":
	case externalTxIdUuid:
		cfg.ExternalTxId = config.ExternalTxIdSupplier(uuid.NewString)
	default:
		cfg.ExternalTxId = config.StaticExternalTxId(externalTxId)
	}
	return cfg, nil
}
