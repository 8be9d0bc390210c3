package transactionSigner

import (
	"context"
	"fmt"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/directory"
	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"go.uber.org/zap"
)

// CustodyTransactionSigner implements ITransactionSigner on top of the custody transactions API
type CustodyTransactionSigner struct {
	config    *SignerConfig
	client    custody.ICustodyClient
	directory directory.IDirectory
	logger    *zap.Logger
	now       func() time.Time
}

func NewCustodyTransactionSigner(cfg *SignerConfig, client custody.ICustodyClient, dir directory.IDirectory, logger *zap.Logger) *CustodyTransactionSigner {
	return &CustodyTransactionSigner{
		config:    cfg,
		client:    client,
		directory: dir,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit builds the custody request and creates it. Errors from the custody call wrap ErrSubmission;
// errors detected before the call wrap ErrInvalidParams.
func (s *CustodyTransactionSigner) Submit(ctx context.Context, req *types.SigningRequest) (*types.SigningHandle, error) {
	body, err := s.BuildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := s.client.CreateTransaction(ctx, body)
	if err != nil {
		s.logger.Sugar().Warnw("Custody service refused signing request",
			"kind", req.Kind,
			"vaultAccountId", req.SourceVaultAccountId,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", providerErrors.ErrSubmission, err)
	}

	s.logger.Sugar().Infow("Submitted signing request",
		"requestId", res.Id,
		"operation", body.Operation,
		"vaultAccountId", req.SourceVaultAccountId,
		"externalTxId", body.ExternalTxId,
	)
	return &types.SigningHandle{
		RequestId:   res.Id,
		Kind:        req.Kind,
		SubmittedAt: s.now(),
	}, nil
}

// BuildRequest converts a SigningRequest into the custody API body.
// The external tx id supplier is evaluated here, once per call.
func (s *CustodyTransactionSigner) BuildRequest(ctx context.Context, req *types.SigningRequest) (*custody.TransactionRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: signing request cannot be nil", providerErrors.ErrInvalidParams)
	}
	if req.SourceVaultAccountId == "" {
		return nil, fmt.Errorf("%w: source vault account is required", providerErrors.ErrInvalidParams)
	}

	note := req.Note
	if note == "" {
		note = s.config.Note
	}
	body := &custody.TransactionRequest{
		AssetId: s.config.AssetId,
		Source:  custody.TransferPeerPath{Type: custody.PeerType_VaultAccount, Id: req.SourceVaultAccountId},
		Note:    note,
	}

	switch req.Kind {
	case types.SigningKind_Transaction:
		if err := s.buildTransaction(ctx, req, body); err != nil {
			return nil, err
		}
	case types.SigningKind_RawMessage:
		if req.Message == nil {
			return nil, fmt.Errorf("%w: message payload is required", providerErrors.ErrInvalidParams)
		}
		body.Operation = custody.Operation_TypedMessage
		body.ExtraParameters = &custody.ExtraParameters{
			RawMessageData: &custody.RawMessageData{
				Messages: []custody.RawMessage{{Content: req.Message.Content, Type: string(req.Message.Type)}},
			},
		}
	default:
		return nil, fmt.Errorf("%w: unknown signing kind %q", providerErrors.ErrInvalidParams, req.Kind)
	}

	if id, ok := s.config.ExternalTxId.Next(); ok {
		body.ExternalTxId = id
	}
	return body, nil
}

func (s *CustodyTransactionSigner) buildTransaction(ctx context.Context, req *types.SigningRequest, body *custody.TransactionRequest) error {
	tx := req.Transaction
	if tx == nil {
		return fmt.Errorf("%w: transaction payload is required", providerErrors.ErrInvalidParams)
	}
	if tx.To == nil {
		return fmt.Errorf("%w: contract creation is not supported", providerErrors.ErrInvalidParams)
	}

	if s.config.OneTimeAddressesEnabled {
		body.Destination = &custody.DestinationTransferPeerPath{
			Type:           custody.PeerType_OneTimeAddress,
			OneTimeAddress: &custody.OneTimeAddress{Address: tx.To.Hex()},
		}
	} else {
		dest, err := s.directory.ResolveDestination(ctx, *tx.To)
		if err != nil {
			return err
		}
		body.Destination = &custody.DestinationTransferPeerPath{Type: dest.Type, Id: dest.Id}
	}

	body.Operation = custody.Operation_Transfer
	if tx.Data != "" {
		body.Operation = custody.Operation_ContractCall
		body.ExtraParameters = &custody.ExtraParameters{ContractCallData: tx.Data}
	}
	body.Amount = tx.Value
	if body.Amount == "" {
		body.Amount = "0"
	}
	body.GasLimit = tx.GasLimit

	gaslessVault := req.GaslessVaultId
	if gaslessVault == "" {
		gaslessVault = s.config.GaslessVaultId
	}
	if gaslessVault != "" {
		body.FeePayerInfo = &custody.FeePayerInfo{FeePayerAccountId: gaslessVault}
		return nil
	}

	// per-call fee level, then explicit gas pricing, then the fallback level
	switch {
	case req.FeeLevel != "":
		body.FeeLevel = string(req.FeeLevel)
	case tx.MaxFeePerGas != "" || tx.MaxPriorityFeePerGas != "":
		body.MaxFee = tx.MaxFeePerGas
		body.PriorityFee = tx.MaxPriorityFeePerGas
	case tx.GasPrice != "":
		body.GasPrice = tx.GasPrice
	default:
		body.FeeLevel = string(s.config.FallbackFeeLevel)
	}
	return nil
}

var _ ITransactionSigner = (*CustodyTransactionSigner)(nil)
