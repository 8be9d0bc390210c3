package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Layr-Labs/custody-web3-provider/pkg/directory"
	"github.com/Layr-Labs/custody-web3-provider/pkg/network"
	"github.com/Layr-Labs/custody-web3-provider/pkg/poller"
	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/transactionSigner"
	"github.com/Layr-Labs/custody-web3-provider/pkg/translator"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// IRpcCaller is the node connection used for non-signing methods. *rpc.Client satisfies it.
type IRpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// IProvider is the EIP-1193 request surface.
type IProvider interface {
	Request(ctx context.Context, args types.RequestArguments) (any, error)
}

type Dependencies struct {
	Network    *network.Network
	Directory  directory.IDirectory
	Signer     transactionSigner.ITransactionSigner
	Poller     poller.IPoller
	Translator *translator.Translator
	Rpc        IRpcCaller
}

type Options struct {
	LogRequestsAndResponses bool
	// Note is attached to every custody request.
	Note string
	// GaslessVaultId, when set, pays the fees of every transaction.
	GaslessVaultId string
	// Timeout, when set, bounds how long a signing call waits for the custody service.
	Timeout *poller.TimeoutPolicy
}

// Provider dispatches JSON-RPC requests to remote signing or to the node.
type Provider struct {
	network     *network.Network
	directory   directory.IDirectory
	signer      transactionSigner.ITransactionSigner
	poller      poller.IPoller
	translator  *translator.Translator
	rpc         IRpcCaller
	logRequests bool
	note        string
	gaslessId   string
	timeout     *poller.TimeoutPolicy
	logger      *zap.Logger
}

func NewProvider(deps *Dependencies, opts *Options, logger *zap.Logger) (*Provider, error) {
	if deps == nil {
		return nil, fmt.Errorf("dependencies cannot be nil")
	}
	switch {
	case deps.Network == nil:
		return nil, fmt.Errorf("network is required")
	case deps.Directory == nil:
		return nil, fmt.Errorf("directory is required")
	case deps.Signer == nil:
		return nil, fmt.Errorf("signer is required")
	case deps.Poller == nil:
		return nil, fmt.Errorf("poller is required")
	case deps.Translator == nil:
		return nil, fmt.Errorf("translator is required")
	case deps.Rpc == nil:
		return nil, fmt.Errorf("rpc client is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	return &Provider{
		network:     deps.Network,
		directory:   deps.Directory,
		signer:      deps.Signer,
		poller:      deps.Poller,
		translator:  deps.Translator,
		rpc:         deps.Rpc,
		logRequests: opts.LogRequestsAndResponses,
		note:        opts.Note,
		gaslessId:   opts.GaslessVaultId,
		timeout:     opts.Timeout,
		logger:      logger,
	}, nil
}

func (p *Provider) Network() *network.Network {
	return p.network
}

// Close releases the node connection if it holds one.
func (p *Provider) Close() {
	if c, ok := p.rpc.(interface{ Close() }); ok {
		c.Close()
	}
}

// Request handles one EIP-1193 request. Errors produced by the provider itself are
// *providerErrors.ProviderRpcError; passthrough errors are returned as the node reported them.
func (p *Provider) Request(ctx context.Context, args types.RequestArguments) (any, error) {
	if p.logRequests {
		p.logger.Sugar().Infow("JSON-RPC request", "method", args.Method, "params", string(args.Params))
	}

	res, err := p.dispatch(ctx, args)

	if p.logRequests {
		if err != nil {
			p.logger.Sugar().Infow("JSON-RPC error", "method", args.Method, "error", err)
		} else {
			p.logger.Sugar().Infow("JSON-RPC response", "method", args.Method, "result", res)
		}
	}
	return res, err
}

func (p *Provider) dispatch(ctx context.Context, args types.RequestArguments) (any, error) {
	switch classify(args.Method) {
	case methodSigning:
		return p.sign(ctx, args)
	case methodAccounts:
		return p.accounts(ctx, args)
	case methodChainId:
		return hexutil.EncodeUint64(uint64(p.network.ChainId)), nil
	case methodPassthrough:
		return p.passthrough(ctx, args)
	default:
		return nil, providerErrors.UnsupportedMethod(args.Method, args)
	}
}

func (p *Provider) accounts(ctx context.Context, args types.RequestArguments) (any, error) {
	addresses, err := p.directory.ListAddresses(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx, "listing accounts", args)
		}
		return nil, providerErrors.New(providerErrors.ErrInternal, fmt.Sprintf("failed to list accounts: %v", err), args).WithCause(err)
	}
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, a.Hex())
	}
	return out, nil
}

func (p *Provider) passthrough(ctx context.Context, args types.RequestArguments) (any, error) {
	var params []json.RawMessage
	if len(args.Params) > 0 && string(args.Params) != "null" {
		if err := json.Unmarshal(args.Params, &params); err != nil {
			return nil, providerErrors.InvalidParams(args.Method, fmt.Errorf("params must be an array: %w", err), args)
		}
	}
	callArgs := make([]interface{}, len(params))
	for i, param := range params {
		callArgs[i] = param
	}

	var result json.RawMessage
	if err := p.rpc.CallContext(ctx, &result, args.Method, callArgs...); err != nil {
		return nil, err
	}
	return result, nil
}

// sign runs Directory -> Submitter -> Poller -> Translator for one signing call.
func (p *Provider) sign(ctx context.Context, args types.RequestArguments) (any, error) {
	call, err := transactionSigner.ParseSigningCall(args.Method, args.Params)
	if err != nil {
		return nil, providerErrors.InvalidParams(args.Method, err, args)
	}

	from := call.From
	if !call.HasFrom {
		addresses, err := p.directory.ListAddresses(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, cancelled(ctx, "listing accounts", args)
			}
			return nil, providerErrors.New(providerErrors.ErrInternal, fmt.Sprintf("failed to list accounts: %v", err), args).WithCause(err)
		}
		if len(addresses) == 0 {
			return nil, providerErrors.New(providerErrors.ErrUnknownSigner, "no vault account addresses available to sign with", args)
		}
		from = addresses[0]
	}

	account, err := p.directory.ResolveSigner(ctx, from)
	if err != nil {
		if errors.Is(err, providerErrors.ErrUnknownSigner) {
			return nil, providerErrors.UnknownSigner(from.Hex(), args).WithCause(err)
		}
		if ctx.Err() != nil {
			return nil, cancelled(ctx, "resolving the signer", args)
		}
		return nil, providerErrors.New(providerErrors.ErrInternal, fmt.Sprintf("failed to resolve signer %s: %v", from.Hex(), err), args).WithCause(err)
	}

	req := &types.SigningRequest{
		Kind:                 call.Kind,
		SourceVaultAccountId: account.Id,
		Message:              call.Message,
		FeeLevel:             call.FeeLevel,
		Note:                 p.note,
	}
	trCall := &translator.Call{Args: args, Kind: call.Kind}
	if call.Transaction != nil {
		req.Transaction = call.Transaction.Payload(from)
		req.GaslessVaultId = p.gaslessId
		trCall.Simulation = simulation(from, call.Transaction)
	}

	handle, err := p.signer.Submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx, "submitting to the custody service", args)
		}
		if errors.Is(err, providerErrors.ErrInvalidParams) {
			return nil, providerErrors.InvalidParams(args.Method, err, args)
		}
		return nil, providerErrors.Submission(err, args)
	}

	p.logger.Sugar().Debugw("Waiting for signing request",
		"requestId", handle.RequestId,
		"method", args.Method,
		"from", from.Hex(),
		"vaultAccountId", account.Id,
	)
	outcome := p.poller.Await(ctx, handle, p.timeout)
	return p.translator.Translate(outcome, trCall)
}

// cancelled reports a caller cancellation that happened before a request id was known.
func cancelled(ctx context.Context, stage string, args types.RequestArguments) *providerErrors.ProviderRpcError {
	return providerErrors.New(providerErrors.ErrCancelled, fmt.Sprintf("request cancelled while %s", stage), args).
		WithCause(context.Cause(ctx))
}

func simulation(from common.Address, tx *transactionSigner.TransactionArgs) *translator.Simulation {
	sim := &translator.Simulation{From: from, To: tx.To}
	if tx.Value != nil {
		sim.Value = tx.Value.ToInt()
	}
	sim.Data = tx.CallData()
	if tx.Gas != nil {
		sim.Gas = uint64(*tx.Gas)
	}
	return sim
}

var _ IProvider = (*Provider)(nil)
