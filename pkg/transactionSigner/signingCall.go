package transactionSigner

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TransactionArgs is the transaction object accepted by eth_sendTransaction and eth_sign.
type TransactionArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Data                 *hexutil.Bytes  `json:"data"`
	Input                *hexutil.Bytes  `json:"input"`
	FeeLevel             types.FeeLevel  `json:"feeLevel"`
}

// CallData prefers input over data, as go-ethereum does.
func (a *TransactionArgs) CallData() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

// Payload converts the JSON-RPC quantities into the units the custody API expects.
func (a *TransactionArgs) Payload(from common.Address) *types.TransactionPayload {
	p := &types.TransactionPayload{
		From:  from,
		To:    a.To,
		Value: "0",
	}
	if a.Value != nil {
		p.Value = WeiToEther(a.Value.ToInt())
	}
	if d := a.CallData(); len(d) > 0 {
		p.Data = hex.EncodeToString(d)
	}
	if a.Gas != nil {
		p.GasLimit = fmt.Sprintf("%d", uint64(*a.Gas))
	}
	if a.GasPrice != nil {
		p.GasPrice = WeiToGwei(a.GasPrice.ToInt())
	}
	if a.MaxFeePerGas != nil {
		p.MaxFeePerGas = WeiToGwei(a.MaxFeePerGas.ToInt())
	}
	if a.MaxPriorityFeePerGas != nil {
		p.MaxPriorityFeePerGas = WeiToGwei(a.MaxPriorityFeePerGas.ToInt())
	}
	return p
}

// SigningCall is a signing method's parameters, classified and decoded.
type SigningCall struct {
	Kind        types.SigningKind
	From        common.Address
	HasFrom     bool
	FeeLevel    types.FeeLevel
	Transaction *TransactionArgs
	Message     *types.MessagePayload
}

// SelectKind classifies a signing method. It depends only on the method name and the shape of params.
func SelectKind(method string, params json.RawMessage) (types.SigningKind, types.RawMessageType, bool) {
	switch method {
	case "eth_sendTransaction":
		return types.SigningKind_Transaction, "", true
	case "eth_sign":
		var raw []json.RawMessage
		if err := json.Unmarshal(params, &raw); err == nil && len(raw) > 1 && isJSONObject(raw[1]) {
			return types.SigningKind_Transaction, "", true
		}
		return types.SigningKind_RawMessage, types.RawMessageType_ETH_MESSAGE, true
	case "personal_sign":
		return types.SigningKind_RawMessage, types.RawMessageType_ETH_MESSAGE, true
	case "eth_signTypedData", "eth_signTypedData_v1", "eth_signTypedData_v3", "eth_signTypedData_v4":
		return types.SigningKind_RawMessage, types.RawMessageType_EIP712, true
	}
	return "", "", false
}

// ParseSigningCall decodes the params of a signing method.
func ParseSigningCall(method string, params json.RawMessage) (*SigningCall, error) {
	kind, msgType, ok := SelectKind(method, params)
	if !ok {
		return nil, fmt.Errorf("%s is not a signing method", method)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, fmt.Errorf("params must be an array: %w", err)
	}

	switch {
	case method == "eth_sendTransaction":
		if len(raw) < 1 {
			return nil, fmt.Errorf("missing transaction object")
		}
		return parseTransaction(raw[0])

	case method == "eth_sign" && kind == types.SigningKind_Transaction:
		call, err := parseTransaction(raw[1])
		if err != nil {
			return nil, err
		}
		if !call.HasFrom {
			if addr, ok := parseAddress(raw[0]); ok {
				call.From, call.HasFrom = addr, true
			}
		}
		return call, nil

	case msgType == types.RawMessageType_ETH_MESSAGE:
		return parsePersonalMessage(method, raw)

	default:
		return parseTypedData(raw)
	}
}

func parseTransaction(raw json.RawMessage) (*SigningCall, error) {
	var args TransactionArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid transaction object: %w", err)
	}
	if args.FeeLevel != "" && !args.FeeLevel.IsValid() {
		return nil, fmt.Errorf("invalid feeLevel %q", args.FeeLevel)
	}
	call := &SigningCall{
		Kind:        types.SigningKind_Transaction,
		FeeLevel:    args.FeeLevel,
		Transaction: &args,
	}
	if args.From != nil {
		call.From, call.HasFrom = *args.From, true
	}
	return call, nil
}

// parsePersonalMessage handles personal_sign [message, address] and eth_sign [address, message].
// A personal_sign call with the arguments swapped is accepted as well.
func parsePersonalMessage(method string, raw []json.RawMessage) (*SigningCall, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("expected message and address")
	}
	msgIdx, addrIdx := 0, 1
	if method == "eth_sign" {
		msgIdx, addrIdx = 1, 0
	} else if _, ok := parseAddress(raw[1]); !ok {
		if _, ok := parseAddress(raw[0]); ok {
			msgIdx, addrIdx = 1, 0
		}
	}

	from, ok := parseAddress(raw[addrIdx])
	if !ok {
		return nil, fmt.Errorf("invalid signer address")
	}
	var message string
	if err := json.Unmarshal(raw[msgIdx], &message); err != nil {
		return nil, fmt.Errorf("message must be a string: %w", err)
	}

	return &SigningCall{
		Kind:    types.SigningKind_RawMessage,
		From:    from,
		HasFrom: true,
		Message: &types.MessagePayload{
			Type:    types.RawMessageType_ETH_MESSAGE,
			Content: messageContent(message),
		},
	}, nil
}

// messageContent returns the message as hex without a 0x prefix. Non-hex input is treated as utf-8 text.
func messageContent(message string) string {
	if b, err := hexutil.Decode(message); err == nil {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString([]byte(message))
}

// parseTypedData accepts [address, typedData] as well as the legacy [typedData, address] order.
// typedData may be an object or its JSON string encoding.
func parseTypedData(raw []json.RawMessage) (*SigningCall, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("expected address and typed data")
	}
	addrIdx, dataIdx := 0, 1
	if _, ok := parseAddress(raw[0]); !ok {
		addrIdx, dataIdx = 1, 0
	}
	from, ok := parseAddress(raw[addrIdx])
	if !ok {
		return nil, fmt.Errorf("invalid signer address")
	}

	data := []byte(raw[dataIdx])
	var encoded string
	if err := json.Unmarshal(raw[dataIdx], &encoded); err == nil {
		data = []byte(encoded)
	}

	var content any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("invalid typed data: %w", err)
	}
	if _, isObject := content.(map[string]any); isObject {
		if err := ValidateTypedData(data); err != nil {
			return nil, err
		}
	}

	return &SigningCall{
		Kind:    types.SigningKind_RawMessage,
		From:    from,
		HasFrom: true,
		Message: &types.MessagePayload{
			Type:    types.RawMessageType_EIP712,
			Content: content,
		},
	}, nil
}

// ValidateTypedData checks that data is a well-formed EIP-712 document by hashing it.
func ValidateTypedData(data []byte) error {
	var typedData apitypes.TypedData
	if err := json.Unmarshal(data, &typedData); err != nil {
		return fmt.Errorf("invalid typed data: %w", err)
	}
	if typedData.PrimaryType == "" {
		return fmt.Errorf("invalid typed data: primaryType is required")
	}
	if _, ok := typedData.Types[typedData.PrimaryType]; !ok {
		return fmt.Errorf("invalid typed data: primaryType %s is not defined", typedData.PrimaryType)
	}
	if _, _, err := apitypes.TypedDataAndHash(typedData); err != nil {
		return fmt.Errorf("invalid typed data: %w", err)
	}
	return nil
}

func parseAddress(raw json.RawMessage) (common.Address, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}
