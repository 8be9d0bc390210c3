package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/network"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for provider configuration
const (
	EnvCustodyApiKey                  = "CUSTODY_API_KEY"
	EnvCustodyApiPrivateKey           = "CUSTODY_API_PRIVATE_KEY"
	EnvCustodyApiPrivateKeyPath       = "CUSTODY_API_PRIVATE_KEY_PATH"
	EnvCustodyApiKmsKeyId             = "CUSTODY_API_KMS_KEY_ID"
	EnvCustodyAwsRegion               = "CUSTODY_AWS_REGION"
	EnvCustodyApiBaseUrl              = "CUSTODY_API_BASE_URL"
	EnvCustodyChainId                 = "CUSTODY_CHAIN_ID"
	EnvCustodyRpcUrl                  = "CUSTODY_RPC_URL"
	EnvCustodyAssetId                 = "CUSTODY_ASSET_ID"
	EnvCustodyVaultAccountIds         = "CUSTODY_VAULT_ACCOUNT_IDS"
	EnvCustodyFallbackFeeLevel        = "CUSTODY_FALLBACK_FEE_LEVEL"
	EnvCustodyNote                    = "CUSTODY_NOTE"
	EnvCustodyPollingInterval         = "CUSTODY_POLLING_INTERVAL"
	EnvCustodyOneTimeAddresses        = "CUSTODY_ONE_TIME_ADDRESSES_ENABLED"
	EnvCustodyExternalTxId            = "CUSTODY_EXTERNAL_TX_ID"
	EnvCustodyUserAgent               = "CUSTODY_USER_AGENT"
	EnvCustodyLogStatusChanges        = "CUSTODY_LOG_TRANSACTION_STATUS_CHANGES"
	EnvCustodyLogRequestsAndResponses = "CUSTODY_LOG_REQUESTS_AND_RESPONSES"
	EnvCustodyEnhancedErrorHandling   = "CUSTODY_ENHANCED_ERROR_HANDLING"
	EnvCustodyGaslessGasTankVaultId   = "CUSTODY_GASLESS_GAS_TANK_VAULT_ID"
	EnvCustodyServerPort              = "CUSTODY_SERVER_PORT"
	EnvCustodyVerbose                 = "CUSTODY_VERBOSE"
)

type ApiBaseUrl string

const (
	ApiBaseUrl_Production ApiBaseUrl = "https://api.fireblocks.io"
	ApiBaseUrl_Sandbox    ApiBaseUrl = "https://sandbox-api.fireblocks.io"
)

const (
	DefaultNote                 = "Created by Custody Web3 Provider"
	DefaultPollingInterval      = 1000 * time.Millisecond
	DefaultFallbackFeeLevel     = types.FeeLevel_Medium
	DefaultApiRequestsPerSecond = 10.0
)

// ResolveApiBaseUrl accepts the "production"/"sandbox" aliases or a custom URL.
func ResolveApiBaseUrl(raw string) ApiBaseUrl {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "production", "prod":
		return ApiBaseUrl_Production
	case "sandbox":
		return ApiBaseUrl_Sandbox
	default:
		return ApiBaseUrl(strings.TrimSuffix(strings.TrimSpace(raw), "/"))
	}
}

// ExternalTxId is either a static value or a supplier evaluated once per submission.
// The zero value means "no external tx id".
type ExternalTxId struct {
	static   string
	supplier func() string
}

func StaticExternalTxId(value string) ExternalTxId {
	return ExternalTxId{static: value}
}

func ExternalTxIdSupplier(supplier func() string) ExternalTxId {
	return ExternalTxId{supplier: supplier}
}

func (e ExternalTxId) IsSet() bool {
	return e.supplier != nil || e.static != ""
}

// Next returns the external tx id for one submission. The supplier, if any, is called exactly once.
func (e ExternalTxId) Next() (string, bool) {
	if e.supplier != nil {
		return e.supplier(), true
	}
	if e.static != "" {
		return e.static, true
	}
	return "", false
}

// ProviderConfig is built once at startup and never mutated afterwards.
type ProviderConfig struct {
	// Credentials. Exactly one of PrivateKey or PrivateKeyKmsKeyId must be set.
	ApiKey             string `json:"apiKey"`
	PrivateKey         string `json:"privateKey"` // PEM content or path to a PEM file
	PrivateKeyKmsKeyId string `json:"privateKeyKmsKeyId"`
	AwsRegion          string `json:"awsRegion"`

	// Network selection, at least one of ChainId / RpcUrl.
	ChainId network.ChainId `json:"chainId"`
	RpcUrl  string          `json:"rpcUrl"`
	AssetId string          `json:"assetId"`

	VaultAccountIds         []string       `json:"vaultAccountIds"`
	ApiBaseUrl              string         `json:"apiBaseUrl"`
	FallbackFeeLevel        types.FeeLevel `json:"fallbackFeeLevel"`
	Note                    string         `json:"note"`
	PollingInterval         time.Duration  `json:"pollingInterval"`
	OneTimeAddressesEnabled *bool          `json:"oneTimeAddressesEnabled,omitempty"` // nil means enabled
	ExternalTxId            ExternalTxId   `json:"-"`
	UserAgent               string         `json:"userAgent"`
	ApiRequestsPerSecond    float64        `json:"apiRequestsPerSecond"`

	LogTransactionStatusChanges bool  `json:"logTransactionStatusChanges"`
	LogRequestsAndResponses     bool  `json:"logRequestsAndResponses"`
	EnhancedErrorHandling       *bool `json:"enhancedErrorHandling,omitempty"` // nil means enabled

	// Experimental: when set, every transaction is relayed gaslessly via this vault account.
	GaslessGasTankVaultId string `json:"gaslessGasTankVaultId"`
}

// NewProviderConfig returns a config populated with defaults. Callers fill in
// credentials and network selection.
func NewProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		ApiBaseUrl:           string(ApiBaseUrl_Production),
		FallbackFeeLevel:     DefaultFallbackFeeLevel,
		Note:                 DefaultNote,
		PollingInterval:      DefaultPollingInterval,
		ApiRequestsPerSecond: DefaultApiRequestsPerSecond,
	}
}

// ApplyDefaults fills unset fields. Switches left nil are turned on.
func (c *ProviderConfig) ApplyDefaults() {
	if c.ApiBaseUrl == "" {
		c.ApiBaseUrl = string(ApiBaseUrl_Production)
	}
	c.ApiBaseUrl = string(ResolveApiBaseUrl(c.ApiBaseUrl))
	if c.FallbackFeeLevel == "" {
		c.FallbackFeeLevel = DefaultFallbackFeeLevel
	}
	if c.Note == "" {
		c.Note = DefaultNote
	}
	if c.PollingInterval == 0 {
		c.PollingInterval = DefaultPollingInterval
	}
	if c.ApiRequestsPerSecond == 0 {
		c.ApiRequestsPerSecond = DefaultApiRequestsPerSecond
	}
	if c.OneTimeAddressesEnabled == nil {
		c.OneTimeAddressesEnabled = Bool(true)
	}
	if c.EnhancedErrorHandling == nil {
		c.EnhancedErrorHandling = Bool(true)
	}
}

// Bool returns a pointer to b for the optional switches of ProviderConfig.
func Bool(b bool) *bool {
	return &b
}

// UseOneTimeAddresses reports whether destinations are sent as one-time addresses. Defaults to true.
func (c *ProviderConfig) UseOneTimeAddresses() bool {
	return c.OneTimeAddressesEnabled == nil || *c.OneTimeAddressesEnabled
}

// UseEnhancedErrorHandling reports whether failed transactions carry a simulation link. Defaults to true.
func (c *ProviderConfig) UseEnhancedErrorHandling() bool {
	return c.EnhancedErrorHandling == nil || *c.EnhancedErrorHandling
}

func (c *ProviderConfig) NetworkSelector() network.Selector {
	return network.Selector{
		ChainId: c.ChainId,
		RpcUrl:  c.RpcUrl,
		AssetId: c.AssetId,
	}
}

func (c *ProviderConfig) HasFixedVaultAccounts() bool {
	return len(c.VaultAccountIds) > 0
}

// Validate checks the configuration for missing or contradictory values.
func (c *ProviderConfig) Validate() error {
	var allErrors field.ErrorList

	if c.ApiKey == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("apiKey"), "apiKey is required"))
	}
	switch {
	case c.PrivateKey == "" && c.PrivateKeyKmsKeyId == "":
		allErrors = append(allErrors, field.Required(field.NewPath("privateKey"), "privateKey or privateKeyKmsKeyId is required"))
	case c.PrivateKey != "" && c.PrivateKeyKmsKeyId != "":
		allErrors = append(allErrors, field.Forbidden(field.NewPath("privateKeyKmsKeyId"), "cannot be combined with privateKey"))
	}

	if c.ChainId == 0 && c.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("chainId"), "either chainId or rpcUrl must be provided"))
	}
	if c.RpcUrl != "" {
		if u, err := url.Parse(c.RpcUrl); err != nil || u.Scheme == "" || u.Host == "" {
			allErrors = append(allErrors, field.Invalid(field.NewPath("rpcUrl"), c.RpcUrl, "must be an absolute URL"))
		}
	}

	if c.ApiBaseUrl != "" {
		base := string(ResolveApiBaseUrl(c.ApiBaseUrl))
		if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
			allErrors = append(allErrors, field.Invalid(field.NewPath("apiBaseUrl"), c.ApiBaseUrl, "must be production, sandbox or an absolute URL"))
		}
	}

	for i, id := range c.VaultAccountIds {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("vaultAccountIds").Index(i), id, "must be a non-negative integer"))
		}
	}

	if c.FallbackFeeLevel != "" && !c.FallbackFeeLevel.IsValid() {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("fallbackFeeLevel"), c.FallbackFeeLevel,
			[]string{string(types.FeeLevel_Low), string(types.FeeLevel_Medium), string(types.FeeLevel_High)}))
	}

	if c.PollingInterval < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("pollingInterval"), c.PollingInterval.String(), "must be positive"))
	}
	if c.ApiRequestsPerSecond < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("apiRequestsPerSecond"), c.ApiRequestsPerSecond, "must be positive"))
	}

	if c.GaslessGasTankVaultId != "" {
		if _, err := strconv.ParseUint(c.GaslessGasTankVaultId, 10, 64); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("gaslessGasTankVaultId"), c.GaslessGasTankVaultId, "must be a non-negative integer"))
		}
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ParseVaultAccountIds accepts a single id, a list of ids, numbers or strings,
// or a comma separated string, and returns the normalized string ids.
func ParseVaultAccountIds(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		ids := make([]string, 0, len(parts))
		for _, p := range parts {
			id, err := normalizeVaultAccountId(strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	case int:
		return ParseVaultAccountIds(int64(v))
	case int64:
		if v < 0 {
			return nil, fmt.Errorf("vault account id must be non-negative, got %d", v)
		}
		return []string{strconv.FormatInt(v, 10)}, nil
	case uint:
		return []string{strconv.FormatUint(uint64(v), 10)}, nil
	case uint64:
		return []string{strconv.FormatUint(v, 10)}, nil
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return nil, fmt.Errorf("vault account id must be a non-negative integer, got %v", v)
		}
		return []string{strconv.FormatInt(int64(v), 10)}, nil
	case []string:
		ids := make([]string, 0, len(v))
		for _, s := range v {
			id, err := normalizeVaultAccountId(strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	case []int:
		ids := make([]string, 0, len(v))
		for _, n := range v {
			parsed, err := ParseVaultAccountIds(n)
			if err != nil {
				return nil, err
			}
			ids = append(ids, parsed...)
		}
		return ids, nil
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			parsed, err := ParseVaultAccountIds(item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, parsed...)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("unsupported vault account ids type %T", raw)
	}
}

func normalizeVaultAccountId(s string) (string, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid vault account id %q: %w", s, err)
	}
	return strconv.FormatUint(n, 10), nil
}
