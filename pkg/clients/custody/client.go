package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Version is appended to every User-Agent sent to the custody API.
const Version = "1.0.0"

const (
	userAgentProduct      = "custody-web3-provider"
	defaultTimeout        = 30 * time.Second
	defaultRequestsPerSec = 10
	maxAddressPages       = 100
)

// ClientConfig holds the configuration for the custody API client
type ClientConfig struct {
	BaseUrl           string
	ApiKey            string
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration
	LogRequests       bool
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseUrl:           "https://api.fireblocks.io",
		RequestsPerSecond: defaultRequestsPerSec,
		Timeout:           defaultTimeout,
	}
}

// Client talks to a Fireblocks-compatible custody REST API.
type Client struct {
	config     *ClientConfig
	baseUrl    *url.URL
	httpClient *http.Client
	signer     requestSigner.IRequestSigner
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

func NewClient(cfg *ClientConfig, signer requestSigner.IRequestSigner, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.ApiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("request signer is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseUrl, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid custody API base url %q", cfg.BaseUrl)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSec
	}

	return &Client{
		config:     cfg,
		baseUrl:    base,
		httpClient: &http.Client{Timeout: timeout},
		signer:     signer,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

// UserAgent returns the composed User-Agent header value.
func (c *Client) UserAgent() string {
	ua := fmt.Sprintf("%s/%s", userAgentProduct, Version)
	if c.config.UserAgent != "" {
		ua = c.config.UserAgent + " " + ua
	}
	return ua
}

func (c *Client) ListVaultAccounts(ctx context.Context, assetId string, limit int) ([]VaultAccountResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if assetId != "" {
		q.Set("assetId", assetId)
	}

	var page VaultAccountsPage
	if err := c.do(ctx, http.MethodGet, "/v1/vault/accounts_paged", q, nil, &page); err != nil {
		return nil, errors.Wrapf(err, "failed to list vault accounts for asset %s", assetId)
	}
	return page.Accounts, nil
}

func (c *Client) GetVaultAccountAddresses(ctx context.Context, vaultAccountId string, assetId string) ([]VaultAddress, error) {
	path := fmt.Sprintf("/v1/vault/accounts/%s/%s/addresses_paginated", url.PathEscape(vaultAccountId), url.PathEscape(assetId))

	var addresses []VaultAddress
	after := ""
	for i := 0; i < maxAddressPages; i++ {
		q := url.Values{}
		if after != "" {
			q.Set("after", after)
		}
		var page VaultAddressesPage
		if err := c.do(ctx, http.MethodGet, path, q, nil, &page); err != nil {
			return nil, errors.Wrapf(err, "failed to get addresses of vault account %s", vaultAccountId)
		}
		addresses = append(addresses, page.Addresses...)
		if page.Paging.After == "" {
			return addresses, nil
		}
		after = page.Paging.After
	}
	c.logger.Sugar().Warnw("Address pagination limit reached", "vaultAccountId", vaultAccountId, "pages", maxAddressPages)
	return addresses, nil
}

func (c *Client) CreateTransaction(ctx context.Context, req *TransactionRequest) (*CreateTransactionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("transaction request cannot be nil")
	}
	var res CreateTransactionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", nil, req, &res); err != nil {
		return nil, errors.Wrap(err, "failed to create transaction")
	}
	if res.Id == "" {
		return nil, fmt.Errorf("custody API returned a transaction without an id")
	}
	return &res, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*TransactionResponse, error) {
	var res TransactionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(id), nil, nil, &res); err != nil {
		return nil, errors.Wrapf(err, "failed to get transaction %s", id)
	}
	return &res, nil
}

func (c *Client) ListWhitelistedWallets(ctx context.Context, walletType TransferPeerPathType) ([]WhitelistedWallet, error) {
	var path string
	switch walletType {
	case PeerType_InternalWallet:
		path = "/v1/internal_wallets"
	case PeerType_ExternalWallet:
		path = "/v1/external_wallets"
	case PeerType_Contract:
		path = "/v1/contracts"
	default:
		return nil, fmt.Errorf("unsupported whitelisted wallet type %s", walletType)
	}

	var wallets []WhitelistedWallet
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &wallets); err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", strings.ToLower(string(walletType)))
	}
	return wallets, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	uri := path
	if len(query) > 0 {
		uri = path + "?" + query.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	token, err := c.signer.SignRequest(ctx, requestSigner.NewRequestClaims(c.config.ApiKey, uri, bodyBytes, c.now()))
	if err != nil {
		return errors.Wrap(err, "failed to sign request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl.String()+uri, bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.config.ApiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.UserAgent())

	if c.config.LogRequests {
		c.logger.Sugar().Debugw("Custody API request", "method", method, "uri", uri, "body", string(bodyBytes))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if c.config.LogRequests {
		c.logger.Sugar().Debugw("Custody API response", "uri", uri, "status", resp.StatusCode, "body", string(respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
