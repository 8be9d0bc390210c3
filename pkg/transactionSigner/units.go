package transactionSigner

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// WeiToEther renders wei as a decimal ether amount without trailing zeros.
func WeiToEther(wei *big.Int) string {
	return formatUnits(wei, big.NewInt(params.Ether), 18)
}

// WeiToGwei renders wei as a decimal gwei amount without trailing zeros.
func WeiToGwei(wei *big.Int) string {
	return formatUnits(wei, big.NewInt(params.GWei), 9)
}

func formatUnits(v *big.Int, unit *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	s := new(big.Rat).SetFrac(v, unit).FloatString(decimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
