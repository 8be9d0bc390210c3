package provider

type methodClass int

const (
	methodUnsupported methodClass = iota
	methodSigning
	methodAccounts
	methodChainId
	methodPassthrough
)

// methodTable classifies every method the provider knows about. Anything missing is unsupported.
var methodTable = map[string]methodClass{
	// remote signing
	"eth_sendTransaction":  methodSigning,
	"eth_sign":             methodSigning,
	"personal_sign":        methodSigning,
	"eth_signTypedData":    methodSigning,
	"eth_signTypedData_v1": methodSigning,
	"eth_signTypedData_v3": methodSigning,
	"eth_signTypedData_v4": methodSigning,

	// answered locally
	"eth_accounts":        methodAccounts,
	"eth_requestAccounts": methodAccounts,
	"eth_chainId":         methodChainId,

	// plain reads forwarded to the node
	"eth_blockNumber":                      methodPassthrough,
	"eth_getBalance":                       methodPassthrough,
	"eth_gasPrice":                         methodPassthrough,
	"eth_maxPriorityFeePerGas":             methodPassthrough,
	"eth_feeHistory":                       methodPassthrough,
	"eth_getTransactionCount":              methodPassthrough,
	"eth_call":                             methodPassthrough,
	"eth_estimateGas":                      methodPassthrough,
	"eth_getLogs":                          methodPassthrough,
	"eth_getBlockByNumber":                 methodPassthrough,
	"eth_getBlockByHash":                   methodPassthrough,
	"eth_getTransactionByHash":             methodPassthrough,
	"eth_getTransactionReceipt":            methodPassthrough,
	"eth_getCode":                          methodPassthrough,
	"eth_getStorageAt":                     methodPassthrough,
	"eth_getBlockTransactionCountByNumber": methodPassthrough,
	"eth_getBlockTransactionCountByHash":   methodPassthrough,
	"eth_syncing":                          methodPassthrough,
	"eth_sendRawTransaction":               methodPassthrough,
	"net_version":                          methodPassthrough,
	"web3_clientVersion":                   methodPassthrough,

	// signing without broadcast is not offered by the custody service
	"eth_signTransaction": methodUnsupported,
}

func classify(method string) methodClass {
	return methodTable[method]
}
