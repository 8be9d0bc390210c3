package translator

import (
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/network"
	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

const SimulatorBaseUrl = "https://dashboard.tenderly.co/simulator/new"

// Simulation holds what is needed to replay a failed transaction in a simulator.
type Simulation struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// Call is the context of one signing call, as the dispatcher saw it.
type Call struct {
	Args       types.RequestArguments
	Kind       types.SigningKind
	Simulation *Simulation
}

// FailureDetails is attached as the data of remote failure errors.
type FailureDetails struct {
	RequestId     string `json:"requestId"`
	Status        string `json:"status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	SimulationUrl string `json:"simulationUrl,omitempty"`
}

type Config struct {
	ChainId               network.ChainId
	EnhancedErrorHandling bool
}

type Translator struct {
	chainId  network.ChainId
	enhanced bool
	logger   *zap.Logger
}

func NewTranslator(cfg *Config, logger *zap.Logger) *Translator {
	return &Translator{
		chainId:  cfg.ChainId,
		enhanced: cfg.EnhancedErrorHandling,
		logger:   logger,
	}
}

// Translate turns a terminal outcome into the JSON-RPC result, or a ProviderRpcError whose
// payload is the original request.
func (t *Translator) Translate(outcome *types.TerminalOutcome, call *Call) (any, error) {
	if outcome == nil {
		return nil, providerErrors.New(providerErrors.ErrInternal, "signing request produced no outcome", call.Args)
	}

	switch outcome.Type {
	case types.Outcome_Completed:
		return t.completed(outcome, call)

	case types.Outcome_Rejected:
		return nil, providerErrors.New(providerErrors.ErrRemoteRejected,
			fmt.Sprintf("signing request %s was rejected: %s", outcome.RequestId, outcome.Reason), call.Args).
			WithData(t.details(outcome, call))

	case types.Outcome_Failed:
		kind := providerErrors.ErrRemoteFailed
		message := fmt.Sprintf("signing request %s failed with status %s: %s", outcome.RequestId, outcome.Status, outcome.Reason)
		if outcome.Status == string(custody.Status_Cancelled) {
			kind = providerErrors.ErrUnexpectedTerminalState
			message = fmt.Sprintf("signing request %s was cancelled by the custody service", outcome.RequestId)
		}
		return nil, providerErrors.New(kind, message, call.Args).WithData(t.details(outcome, call))

	case types.Outcome_Unavailable:
		return nil, providerErrors.New(providerErrors.ErrUnexpectedTerminalState,
			fmt.Sprintf("status of signing request %s can no longer be queried: %s", outcome.RequestId, outcome.Reason), call.Args).
			WithData(FailureDetails{RequestId: outcome.RequestId, Status: outcome.Status, Reason: outcome.Reason}).
			WithCause(outcome.Err)

	case types.Outcome_Cancelled:
		return nil, providerErrors.New(providerErrors.ErrCancelled,
			fmt.Sprintf("stopped waiting for signing request %s", outcome.RequestId), call.Args).
			WithData(FailureDetails{RequestId: outcome.RequestId, Status: outcome.Status})
	}

	return nil, providerErrors.New(providerErrors.ErrUnexpectedTerminalState,
		fmt.Sprintf("signing request %s ended in unknown outcome %q", outcome.RequestId, outcome.Type), call.Args)
}

func (t *Translator) completed(outcome *types.TerminalOutcome, call *Call) (any, error) {
	unexpected := func(reason string) error {
		t.logger.Sugar().Warnw("Completed signing request has an unusable result",
			"requestId", outcome.RequestId,
			"reason", reason,
		)
		return providerErrors.New(providerErrors.ErrUnexpectedTerminalState,
			fmt.Sprintf("signing request %s completed without a usable result: %s", outcome.RequestId, reason), call.Args).
			WithData(FailureDetails{RequestId: outcome.RequestId, Status: outcome.Status, Reason: reason})
	}
	if outcome.Result == nil {
		return nil, unexpected("empty result")
	}

	if call.Kind == types.SigningKind_Transaction {
		hash, err := FormatTxHash(outcome.Result.TxHash)
		if err != nil {
			return nil, unexpected(err.Error())
		}
		return hash, nil
	}

	if outcome.Result.Signature == nil {
		return nil, unexpected("missing signature")
	}
	sig, err := FormatSignature(outcome.Result.Signature)
	if err != nil {
		return nil, unexpected(err.Error())
	}
	return sig, nil
}

func (t *Translator) details(outcome *types.TerminalOutcome, call *Call) FailureDetails {
	d := FailureDetails{
		RequestId: outcome.RequestId,
		Status:    outcome.Status,
		Reason:    outcome.Reason,
	}
	if t.enhanced && call.Kind == types.SigningKind_Transaction && call.Simulation != nil {
		d.SimulationUrl = SimulationUrl(t.chainId, call.Simulation)
	}
	return d
}

// FormatTxHash validates a 32 byte transaction hash and returns it 0x prefixed and lower case.
func FormatTxHash(hash string) (string, error) {
	if !strings.HasPrefix(hash, "0x") && !strings.HasPrefix(hash, "0X") {
		hash = "0x" + hash
	}
	b, err := hexutil.Decode(strings.ToLower(hash))
	if err != nil {
		return "", fmt.Errorf("invalid transaction hash %q: %w", hash, err)
	}
	if len(b) != common.HashLength {
		return "", fmt.Errorf("transaction hash must be %d bytes, got %d", common.HashLength, len(b))
	}
	return hexutil.Encode(b), nil
}

// FormatSignature encodes r||s||v as 65 bytes with v normalised to 27 or 28.
func FormatSignature(sig *types.MessageSignature) (string, error) {
	r, err := decodeWord(sig.R)
	if err != nil {
		return "", fmt.Errorf("invalid signature r: %w", err)
	}
	s, err := decodeWord(sig.S)
	if err != nil {
		return "", fmt.Errorf("invalid signature s: %w", err)
	}
	v := sig.V
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", fmt.Errorf("invalid signature v %d", sig.V)
	}

	out := make([]byte, 0, 65)
	out = append(out, r...)
	out = append(out, s...)
	out = append(out, byte(v))
	return hexutil.Encode(out), nil
}

func decodeWord(h string) ([]byte, error) {
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if len(h) == 0 || len(h) > 64 {
		return nil, fmt.Errorf("expected up to 32 bytes of hex, got %d characters", len(h))
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	b, err := hexutil.Decode("0x" + h)
	if err != nil {
		return nil, err
	}
	return common.LeftPadBytes(b, 32), nil
}

// SimulationUrl builds a simulator link for a transaction. The link is never fetched.
func SimulationUrl(chainId network.ChainId, sim *Simulation) string {
	q := url.Values{}
	q.Set("network", strconv.FormatUint(uint64(chainId), 10))
	q.Set("from", sim.From.Hex())
	if sim.To != nil {
		q.Set("contractAddress", sim.To.Hex())
	}
	if sim.Value != nil && sim.Value.Sign() > 0 {
		q.Set("value", sim.Value.String())
	}
	if len(sim.Data) > 0 {
		q.Set("rawFunctionInput", hexutil.Encode(sim.Data))
	}
	if sim.Gas > 0 {
		q.Set("gas", strconv.FormatUint(sim.Gas, 10))
	}
	return SimulatorBaseUrl + "?" + q.Encode()
}
