package poller

import (
	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
)

// MapStatus returns the terminal outcome for a custody status, or nil while the request is still in flight.
// A CONFIRMING transaction that already carries a hash is final from the caller's point of view.
func MapStatus(kind types.SigningKind, tx *custody.TransactionResponse) *types.TerminalOutcome {
	status := string(tx.Status)
	reason := tx.SubStatus
	if reason == "" {
		reason = status
	}

	switch tx.Status {
	case custody.Status_Completed:
		return types.Completed(tx.Id, status, completedResult(tx))
	case custody.Status_Confirming:
		if kind == types.SigningKind_Transaction && tx.TxHash != "" {
			return types.Completed(tx.Id, status, completedResult(tx))
		}
	case custody.Status_Rejected:
		return types.Rejected(tx.Id, status, reason)
	case custody.Status_Failed, custody.Status_Blocked, custody.Status_Timeout, custody.Status_Cancelled:
		return types.Failed(tx.Id, status, reason)
	}
	return nil
}

func completedResult(tx *custody.TransactionResponse) *types.CompletedResult {
	result := &types.CompletedResult{TxHash: tx.TxHash}
	if len(tx.SignedMessages) > 0 {
		sig := tx.SignedMessages[0].Signature
		result.Signature = &types.MessageSignature{R: sig.R, S: sig.S, V: sig.V}
	}
	return result
}
