package providerErrors

import (
	"errors"
	"fmt"

	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
)

// Stable provider error codes. 4001/4100/4200 follow EIP-1193, the rest live in
// the JSON-RPC server error range.
const (
	CodeRemoteRejected          = 4001
	CodeUnknownSigner           = 4100
	CodeUnsupportedMethod       = 4200
	CodeSubmissionFailed        = -32010
	CodeRemoteFailed            = -32011
	CodeUnexpectedTerminalState = -32012
	CodeCancelled               = -32013
	CodeInvalidParams           = -32602
	CodeInternal                = -32603
)

var (
	ErrConfiguration           = errors.New("configuration error")
	ErrUnknownSigner           = errors.New("unknown signer")
	ErrSubmission              = errors.New("submission error")
	ErrRemoteRejected          = errors.New("remote signing rejected")
	ErrRemoteFailed            = errors.New("remote signing failed")
	ErrUnexpectedTerminalState = errors.New("unexpected terminal state")
	ErrCancelled               = errors.New("operation cancelled")
	ErrUnsupportedMethod       = errors.New("unsupported method")
	ErrInvalidParams           = errors.New("invalid params")
	ErrInternal                = errors.New("internal error")
)

var kindCodes = map[error]int{
	ErrUnknownSigner:           CodeUnknownSigner,
	ErrSubmission:              CodeSubmissionFailed,
	ErrRemoteRejected:          CodeRemoteRejected,
	ErrRemoteFailed:            CodeRemoteFailed,
	ErrUnexpectedTerminalState: CodeUnexpectedTerminalState,
	ErrCancelled:               CodeCancelled,
	ErrUnsupportedMethod:       CodeUnsupportedMethod,
	ErrInvalidParams:           CodeInvalidParams,
	ErrInternal:                CodeInternal,
}

// ConfigurationError is returned from provider construction and never retried.
type ConfigurationError struct {
	Reason string
	Err    error
}

func NewConfigurationError(reason string, err error) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

// ProviderRpcError is the error object handed back to provider callers.
//
// It satisfies go-ethereum's rpc.Error and rpc.DataError so the JSON-RPC
// server can render it without translation.
type ProviderRpcError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    any                    `json:"data,omitempty"`
	Payload types.RequestArguments `json:"payload"`

	kind  error
	cause error
}

func (e *ProviderRpcError) Error() string {
	return e.Message
}

func (e *ProviderRpcError) ErrorCode() int {
	return e.Code
}

func (e *ProviderRpcError) ErrorData() interface{} {
	return e.Data
}

func (e *ProviderRpcError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Kind returns the taxonomy sentinel for this error.
func (e *ProviderRpcError) Kind() error {
	return e.kind
}

// New builds a ProviderRpcError of the given kind. kind must be one of the Err* sentinels.
func New(kind error, message string, payload types.RequestArguments) *ProviderRpcError {
	code, ok := kindCodes[kind]
	if !ok {
		code = CodeInternal
	}
	return &ProviderRpcError{
		Code:    code,
		Message: message,
		Payload: payload,
		kind:    kind,
	}
}

func (e *ProviderRpcError) WithData(data any) *ProviderRpcError {
	e.Data = data
	return e
}

func (e *ProviderRpcError) WithCause(err error) *ProviderRpcError {
	e.cause = err
	return e
}

func UnknownSigner(address string, payload types.RequestArguments) *ProviderRpcError {
	return New(ErrUnknownSigner, fmt.Sprintf("no vault account can sign for address %s", address), payload)
}

func UnsupportedMethod(method string, payload types.RequestArguments) *ProviderRpcError {
	return New(ErrUnsupportedMethod, fmt.Sprintf("unsupported method: %s", method), payload)
}

func InvalidParams(method string, err error, payload types.RequestArguments) *ProviderRpcError {
	return New(ErrInvalidParams, fmt.Sprintf("invalid params for %s: %v", method, err), payload).WithCause(err)
}

func Submission(err error, payload types.RequestArguments) *ProviderRpcError {
	return New(ErrSubmission, fmt.Sprintf("custody service rejected the signing request: %v", err), payload).
		WithCause(err).
		WithData(err.Error())
}

// AsProviderRpcError unwraps err into a ProviderRpcError if one is present in the chain.
func AsProviderRpcError(err error) (*ProviderRpcError, bool) {
	var pErr *ProviderRpcError
	if errors.As(err, &pErr) {
		return pErr, true
	}
	return nil, false
}
