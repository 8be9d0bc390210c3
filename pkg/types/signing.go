package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RequestArguments is the EIP-1193 request envelope.
type RequestArguments struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type SigningKind string

const (
	SigningKind_Transaction SigningKind = "TRANSACTION"
	SigningKind_RawMessage  SigningKind = "RAW_MESSAGE"
)

type RawMessageType string

const (
	RawMessageType_EIP712      RawMessageType = "EIP712"
	RawMessageType_ETH_MESSAGE RawMessageType = "ETH_MESSAGE"
)

type FeeLevel string

const (
	FeeLevel_Low    FeeLevel = "LOW"
	FeeLevel_Medium FeeLevel = "MEDIUM"
	FeeLevel_High   FeeLevel = "HIGH"
)

func (f FeeLevel) IsValid() bool {
	switch f {
	case FeeLevel_Low, FeeLevel_Medium, FeeLevel_High:
		return true
	}
	return false
}

// VaultAccount is a read-only projection of a custody vault account for a single asset.
type VaultAccount struct {
	Id        string
	Addresses []common.Address
}

// TransactionPayload is the subset of eth_sendTransaction arguments forwarded to custody.
type TransactionPayload struct {
	From                 common.Address
	To                   *common.Address
	Value                string // decimal ether amount
	Data                 string // hex without 0x prefix
	GasLimit             string
	GasPrice             string // gwei
	MaxFeePerGas         string // gwei
	MaxPriorityFeePerGas string // gwei
}

// MessagePayload is a raw message to be signed by custody.
type MessagePayload struct {
	Type    RawMessageType
	Content any
}

// SigningRequest is built once per JSON-RPC signing call and never mutated after submission.
type SigningRequest struct {
	Kind                 SigningKind
	SourceVaultAccountId string
	Transaction          *TransactionPayload
	Message              *MessagePayload
	FeeLevel             FeeLevel
	Note                 string
	GaslessVaultId       string
}

type SigningHandle struct {
	RequestId   string
	Kind        SigningKind
	SubmittedAt time.Time
}

type OutcomeType string

const (
	Outcome_Completed OutcomeType = "completed"
	Outcome_Failed    OutcomeType = "failed"
	Outcome_Rejected  OutcomeType = "rejected"
	Outcome_Cancelled OutcomeType = "cancelled"

	// the custody service refused a status query in a way retrying cannot fix
	Outcome_Unavailable OutcomeType = "unavailable"
)

// MessageSignature is the r/s/v triple returned for raw message signing.
type MessageSignature struct {
	R string
	S string
	V uint64
}

// CompletedResult carries whatever the custody service returned on success.
type CompletedResult struct {
	TxHash    string
	Signature *MessageSignature
}

// TerminalOutcome is produced once per signing request and consumed once by the translator.
type TerminalOutcome struct {
	Type      OutcomeType
	RequestId string
	Status    string
	Reason    string
	Result    *CompletedResult
	Err       error
}

func (o *TerminalOutcome) IsSuccess() bool {
	return o != nil && o.Type == Outcome_Completed
}

func Completed(requestId, status string, result *CompletedResult) *TerminalOutcome {
	return &TerminalOutcome{Type: Outcome_Completed, RequestId: requestId, Status: status, Result: result}
}

func Failed(requestId, status, reason string) *TerminalOutcome {
	return &TerminalOutcome{Type: Outcome_Failed, RequestId: requestId, Status: status, Reason: reason}
}

func Rejected(requestId, status, reason string) *TerminalOutcome {
	return &TerminalOutcome{Type: Outcome_Rejected, RequestId: requestId, Status: status, Reason: reason}
}

func Cancelled(requestId, lastStatus string) *TerminalOutcome {
	return &TerminalOutcome{Type: Outcome_Cancelled, RequestId: requestId, Status: lastStatus}
}

func Unavailable(requestId, lastStatus string, err error) *TerminalOutcome {
	return &TerminalOutcome{Type: Outcome_Unavailable, RequestId: requestId, Status: lastStatus, Reason: err.Error(), Err: err}
}
