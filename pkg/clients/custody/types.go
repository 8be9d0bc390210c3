package custody

import (
	"fmt"
	"net/http"
)

type TransferPeerPathType string

const (
	PeerType_VaultAccount   TransferPeerPathType = "VAULT_ACCOUNT"
	PeerType_OneTimeAddress TransferPeerPathType = "ONE_TIME_ADDRESS"
	PeerType_InternalWallet TransferPeerPathType = "INTERNAL_WALLET"
	PeerType_ExternalWallet TransferPeerPathType = "EXTERNAL_WALLET"
	PeerType_Contract       TransferPeerPathType = "CONTRACT"
)

type TransactionOperation string

const (
	Operation_Transfer     TransactionOperation = "TRANSFER"
	Operation_ContractCall TransactionOperation = "CONTRACT_CALL"
	Operation_TypedMessage TransactionOperation = "TYPED_MESSAGE"
)

type TransactionStatus string

const (
	Status_Submitted                    TransactionStatus = "SUBMITTED"
	Status_Queued                       TransactionStatus = "QUEUED"
	Status_PendingAuthorization         TransactionStatus = "PENDING_AUTHORIZATION"
	Status_PendingSignature             TransactionStatus = "PENDING_SIGNATURE"
	Status_Broadcasting                 TransactionStatus = "BROADCASTING"
	Status_Pending3rdPartyManualApprove TransactionStatus = "PENDING_3RD_PARTY_MANUAL_APPROVAL"
	Status_Pending3rdParty              TransactionStatus = "PENDING_3RD_PARTY"
	Status_PendingAmlScreening          TransactionStatus = "PENDING_AML_SCREENING"
	Status_Confirming                   TransactionStatus = "CONFIRMING"
	Status_Cancelling                   TransactionStatus = "CANCELLING"
	Status_Completed                    TransactionStatus = "COMPLETED"
	Status_Cancelled                    TransactionStatus = "CANCELLED"
	Status_Rejected                     TransactionStatus = "REJECTED"
	Status_Failed                       TransactionStatus = "FAILED"
	Status_Blocked                      TransactionStatus = "BLOCKED"
	Status_Timeout                      TransactionStatus = "TIMEOUT"
)

type TransferPeerPath struct {
	Type TransferPeerPathType `json:"type"`
	Id   string               `json:"id,omitempty"`
}

type OneTimeAddress struct {
	Address string `json:"address"`
}

type DestinationTransferPeerPath struct {
	Type           TransferPeerPathType `json:"type"`
	Id             string               `json:"id,omitempty"`
	OneTimeAddress *OneTimeAddress      `json:"oneTimeAddress,omitempty"`
}

type RawMessage struct {
	Content any    `json:"content"`
	Type    string `json:"type"`
}

type RawMessageData struct {
	Messages []RawMessage `json:"messages"`
}

type ExtraParameters struct {
	ContractCallData string          `json:"contractCallData,omitempty"`
	RawMessageData   *RawMessageData `json:"rawMessageData,omitempty"`
}

type FeePayerInfo struct {
	FeePayerAccountId string `json:"feePayerAccountId"`
}

// TransactionRequest is the body of POST /v1/transactions for both transfers and message signing.
type TransactionRequest struct {
	Operation       TransactionOperation         `json:"operation"`
	AssetId         string                       `json:"assetId"`
	Source          TransferPeerPath             `json:"source"`
	Destination     *DestinationTransferPeerPath `json:"destination,omitempty"`
	Amount          string                       `json:"amount,omitempty"`
	FeeLevel        string                       `json:"feeLevel,omitempty"`
	GasLimit        string                       `json:"gasLimit,omitempty"`
	GasPrice        string                       `json:"gasPrice,omitempty"`
	MaxFee          string                       `json:"maxFee,omitempty"`
	PriorityFee     string                       `json:"priorityFee,omitempty"`
	Note            string                       `json:"note,omitempty"`
	ExternalTxId    string                       `json:"externalTxId,omitempty"`
	ExtraParameters *ExtraParameters             `json:"extraParameters,omitempty"`
	FeePayerInfo    *FeePayerInfo                `json:"feePayerInfo,omitempty"`
}

type CreateTransactionResponse struct {
	Id     string            `json:"id"`
	Status TransactionStatus `json:"status"`
}

type MessageSignature struct {
	FullSig string `json:"fullSig"`
	R       string `json:"r"`
	S       string `json:"s"`
	V       uint64 `json:"v"`
}

type SignedMessage struct {
	Content   string           `json:"content"`
	Signature MessageSignature `json:"signature"`
}

type TransactionResponse struct {
	Id             string            `json:"id"`
	Status         TransactionStatus `json:"status"`
	SubStatus      string            `json:"subStatus"`
	TxHash         string            `json:"txHash"`
	SignedMessages []SignedMessage   `json:"signedMessages"`
}

type Paging struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

type VaultAccountResponse struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type VaultAccountsPage struct {
	Accounts []VaultAccountResponse `json:"accounts"`
	Paging   Paging                 `json:"paging"`
}

type VaultAddress struct {
	AssetId string `json:"assetId"`
	Address string `json:"address"`
}

type VaultAddressesPage struct {
	Addresses []VaultAddress `json:"addresses"`
	Paging    Paging         `json:"paging"`
}

type WhitelistedAsset struct {
	Id      string `json:"id"`
	Address string `json:"address"`
}

type WhitelistedWallet struct {
	Id     string             `json:"id"`
	Name   string             `json:"name"`
	Assets []WhitelistedAsset `json:"assets"`
}

// APIError is a non-2xx response from the custody API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("custody API returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("custody API returned HTTP %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// IsTransient reports server side, timeout or throttling failures.
func (e *APIError) IsTransient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}
